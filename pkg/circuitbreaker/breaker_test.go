package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/speedrun-hq/payflow/pkg/logger"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(enabled bool) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker("store", enabled, 3, time.Minute, 30*time.Second, &logger.EmptyLogger{})
	cb.now = clock.Now
	return cb, clock
}

func TestCircuitBreaker_Trips(t *testing.T) {
	cb, clock := newTestBreaker(true)

	assert.False(t, cb.RecordFailure())
	assert.False(t, cb.RecordFailure())
	assert.True(t, cb.RecordFailure())
	assert.True(t, cb.IsOpen())

	clock.Advance(31 * time.Second)
	assert.False(t, cb.IsOpen(), "half-opens after the reset timeout")
	assert.Equal(t, 0, cb.State().FailureCount)
}

func TestCircuitBreaker_Window(t *testing.T) {
	cb, clock := newTestBreaker(true)

	cb.RecordFailure()
	cb.RecordFailure()
	clock.Advance(2 * time.Minute)

	assert.False(t, cb.RecordFailure(), "failures outside the window are forgotten")
	assert.Equal(t, 1, cb.State().FailureCount)
}

func TestCircuitBreaker_Do(t *testing.T) {
	cb, _ := newTestBreaker(true)
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Do(func() error { return boom }), boom)
	}

	called := false
	err := cb.Do(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)

	cb.Reset()
	assert.NoError(t, cb.Do(func() error { return nil }))
	assert.False(t, cb.State().Open)
}

func TestCircuitBreaker_Disabled(t *testing.T) {
	cb, _ := newTestBreaker(false)
	for i := 0; i < 10; i++ {
		assert.False(t, cb.RecordFailure())
	}
	assert.False(t, cb.IsOpen())
	assert.False(t, cb.State().Enabled)
}
