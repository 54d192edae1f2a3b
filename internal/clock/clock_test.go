package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeClockAdvance(t *testing.T) {
	start := time.UnixMilli(0)
	c := NewFakeClock(start)

	c.Advance(31 * time.Second)
	assert.Equal(t, int64(31000), c.Now().UnixMilli())

	c.Set(time.UnixMilli(5))
	assert.Equal(t, int64(5), c.Now().UnixMilli())
}

func TestSystemClockHasMillisecondPrecision(t *testing.T) {
	now := New().Now()
	assert.Zero(t, now.Nanosecond()%int(time.Millisecond))
	assert.Equal(t, time.UTC, now.Location())
}
