package importer

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/conorfennell/studyloop/internal/documents"
)

type pacedProcessor struct {
	next    documents.Processor
	limiter *rate.Limiter
}

// Pace limits how often next is asked to start processing. A non-positive
// perSecond returns next unchanged.
func Pace(next documents.Processor, perSecond float64) documents.Processor {
	if perSecond <= 0 {
		return next
	}
	return &pacedProcessor{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), 1)}
}

func (p *pacedProcessor) TriggerProcessing(ctx context.Context, documentID string) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting to trigger processing for %s: %w", documentID, err)
	}
	return p.next.TriggerProcessing(ctx, documentID)
}
