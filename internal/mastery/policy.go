package mastery

import (
	"math"
	"time"
)

// ReviewPolicy decides how long after a successful review a mastered
// concept comes due again. reviewCount is the number of successful reviews
// completed since mastery; implementations must not shrink the interval as
// it grows.
type ReviewPolicy interface {
	Interval(reviewCount int) time.Duration
}

// FixedInterval schedules every review the same distance apart.
type FixedInterval struct {
	Every time.Duration
}

func (f FixedInterval) Interval(int) time.Duration {
	return f.Every
}

// ExponentialInterval multiplies Base by Factor per completed review, capped at Max.
type ExponentialInterval struct {
	Base   time.Duration
	Factor float64
	Max    time.Duration
}

// DefaultPolicy is one day doubling per review, capped at 180 days.
func DefaultPolicy() ExponentialInterval {
	return ExponentialInterval{
		Base:   24 * time.Hour,
		Factor: 2,
		Max:    180 * 24 * time.Hour,
	}
}

func (e ExponentialInterval) Interval(reviewCount int) time.Duration {
	if reviewCount < 0 {
		reviewCount = 0
	}
	d := float64(e.Base) * math.Pow(e.Factor, float64(reviewCount))
	if e.Max > 0 && d > float64(e.Max) {
		return e.Max
	}
	return time.Duration(d)
}
