// Package fsrs provides a review interval policy based on FSRS-style
// stability growth: each successful review multiplies the memory stability
// and the next review is scheduled stability days out.
package fsrs

import (
	"math"
	"time"
)

// Params holds the parameters for the stability model.
// These are placeholder values and should be optimized later.
type Params struct {
	A                float64 // scales the overall memory increase
	B                float64 // difficulty exponent
	C                float64 // stability exponent
	D                float64 // retention effect scaler
	DesiredRetention float64 // desired retention rate (e.g., 0.9 for 90%)

	InitialStability float64 // stability in days right after mastery
	Difficulty       float64 // fixed concept difficulty, 1..10
	MaxDays          float64 // upper bound on a scheduled interval
}

// DefaultParams provides a set of sensible default parameters to start with.
func DefaultParams() *Params {
	return &Params{
		A:                0.2,
		B:                0.5,
		C:                0.1,
		D:                4.0,
		DesiredRetention: 0.9,
		InitialStability: 1,
		Difficulty:       5,
		MaxDays:          365,
	}
}

// Policy adapts Params to the review policy used by the mastery tracker.
type Policy struct {
	Params *Params
}

// NewPolicy returns a policy with default parameters.
func NewPolicy() Policy {
	return Policy{Params: DefaultParams()}
}

// Interval returns the stability after reviewCount successful reviews,
// rounded to whole days and clamped to [1, MaxDays].
func (p Policy) Interval(reviewCount int) time.Duration {
	days := math.Round(p.Params.Stability(reviewCount))
	if p.Params.MaxDays > 0 && (days > p.Params.MaxDays || math.IsInf(days, 1)) {
		days = p.Params.MaxDays
	}
	if days < 1 {
		days = 1
	}
	return time.Duration(days) * 24 * time.Hour
}

// Stability applies reviewCount successful reviews to the initial stability.
func (p *Params) Stability(reviewCount int) float64 {
	s := p.InitialStability
	for i := 0; i < reviewCount; i++ {
		s = p.calculateNewStability(s, p.Difficulty)
		if p.MaxDays > 0 && s > p.MaxDays {
			return p.MaxDays
		}
	}
	return s
}

// calculateNewStability applies the core formula for a successful review.
func (p *Params) calculateNewStability(stability, difficulty float64) float64 {
	// Formula: S' = S * (1 + a * D^(-b) * S^c * (e^(d * (1-R)) - 1))
	if stability < 1 {
		stability = 1
	}
	if difficulty < 1 {
		difficulty = 1
	}

	factor := p.A * math.Pow(difficulty, -p.B) * math.Pow(stability, p.C)
	exponent := p.D * (1 - p.DesiredRetention)
	multiplier := math.Exp(exponent) - 1

	return stability * (1 + factor*multiplier)
}
