package circuitbreaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(threshold int) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	cb := NewCircuitBreaker(true, threshold, time.Minute, 30*time.Second, nil)
	cb.now = clock.Now
	return cb, clock
}

func TestTripsAtThreshold(t *testing.T) {
	cb, _ := newTestBreaker(3)

	assert.False(t, cb.RecordFailure())
	assert.False(t, cb.RecordFailure())
	assert.True(t, cb.RecordFailure())
	assert.True(t, cb.IsOpen())
}

func TestResetsAfterTimeout(t *testing.T) {
	cb, clock := newTestBreaker(1)

	assert.True(t, cb.RecordFailure())
	clock.Advance(31 * time.Second)
	assert.False(t, cb.IsOpen())
}

func TestFailuresOutsideWindowAreForgotten(t *testing.T) {
	cb, clock := newTestBreaker(2)

	assert.False(t, cb.RecordFailure())
	clock.Advance(2 * time.Minute)
	assert.False(t, cb.RecordFailure())
	assert.False(t, cb.IsOpen())
}

func TestRecordSuccessClearsFailures(t *testing.T) {
	cb, _ := newTestBreaker(2)

	cb.RecordFailure()
	cb.RecordSuccess()
	assert.False(t, cb.RecordFailure())

	count, _, _, threshold := cb.GetState()
	assert.Equal(t, 1, count)
	assert.Equal(t, 2, threshold)
}

func TestDisabledNeverOpens(t *testing.T) {
	cb := NewCircuitBreaker(false, 1, time.Minute, time.Minute, nil)
	assert.False(t, cb.RecordFailure())
	assert.False(t, cb.IsOpen())
	assert.False(t, cb.IsEnabled())
}

func TestManualReset(t *testing.T) {
	cb, _ := newTestBreaker(1)
	cb.RecordFailure()
	assert.True(t, cb.IsOpen())

	cb.Reset()
	assert.False(t, cb.IsOpen())
}
