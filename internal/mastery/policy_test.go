package mastery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExponentialInterval(t *testing.T) {
	p := DefaultPolicy()

	assert.Equal(t, 24*time.Hour, p.Interval(0))
	assert.Equal(t, 48*time.Hour, p.Interval(1))
	assert.Equal(t, 8*24*time.Hour, p.Interval(3))
	assert.Equal(t, 180*24*time.Hour, p.Interval(20), "capped")
	assert.Equal(t, 24*time.Hour, p.Interval(-1))

	for n := 1; n < 30; n++ {
		assert.GreaterOrEqual(t, p.Interval(n), p.Interval(n-1))
	}
}

func TestFixedInterval(t *testing.T) {
	p := FixedInterval{Every: 72 * time.Hour}
	assert.Equal(t, 72*time.Hour, p.Interval(0))
	assert.Equal(t, 72*time.Hour, p.Interval(9))
}
