package cache

import (
	"context"

	"github.com/conorfennell/studyloop/internal/logger"
	"github.com/conorfennell/studyloop/internal/realtime"
)

// Subscriber is the part of the realtime hub the refresher needs.
type Subscriber interface {
	Subscribe(topic realtime.Topic) (<-chan realtime.ChangeEvent, func())
}

// affected maps a changed table to the per-user entries that render it.
var affected = map[string][]string{
	realtime.TableDocuments:      {ResourceDocuments, ResourceDashboard, ResourceQuizzes},
	realtime.TableQuizzes:        {ResourceQuizzes, ResourceDashboard},
	realtime.TableConceptMastery: {ResourceDashboard},
}

// Refresh drops the owning user's cache entries whenever a row they can see
// changes, until ctx ends. Entries are re-fetched in full on the next read.
func Refresh(ctx context.Context, hub Subscriber, c Cache, log *logger.Logger) {
	if log == nil {
		log = logger.NewNop()
	}
	events, cancel := hub.Subscribe(realtime.Topic{})
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			userID := ev.Column("user_id")
			resources := affected[ev.Table]
			if userID == "" || len(resources) == 0 {
				continue
			}
			if err := c.Invalidate(ctx, UserKeys(userID, resources...)...); err != nil {
				log.Warn("Cache refresh failed", "table", ev.Table, "user_id", userID, "error", err)
			}
		}
	}
}
