package tokens

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func TestNewTracker_Defaults(t *testing.T) {
	stats := NewTracker(0, -1).Stats()
	assert.Equal(t, DefaultTokensPerMinute, stats.TokensPerMinuteLimit)
	assert.Equal(t, DefaultDocumentThreshold, stats.DocumentTokenThreshold)
	assert.Zero(t, stats.DocumentsProcessed)
	assert.Zero(t, stats.AverageTokensPerDoc)
}

func TestRecord_Accumulates(t *testing.T) {
	clock := newClock()
	tr := NewTracker(1000, 400, WithClock(clock.Now))

	u := tr.Record(300)
	assert.False(t, u.OverThreshold)
	assert.False(t, u.LimitExceeded)

	u = tr.Record(500)
	assert.True(t, u.OverThreshold)
	assert.False(t, u.LimitExceeded)
	assert.Equal(t, int64(800), u.WindowTokens)

	stats := tr.Stats()
	assert.Equal(t, int64(800), stats.TotalTokens)
	assert.Equal(t, int64(800), stats.TokensThisMinute)
	assert.Equal(t, int64(2), stats.DocumentsProcessed)
	assert.Equal(t, int64(1), stats.DocumentsOverThreshold)
	assert.InDelta(t, 400.0, stats.AverageTokensPerDoc, 0.001)
	assert.Equal(t, clock.Now(), stats.WindowStart)
}

func TestRecord_LimitExceededNeverRejects(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTracker(100, 1000, WithClock(newClock().Now), WithLogger(zerolog.New(&buf)))

	tr.Record(60)
	u := tr.Record(60)
	assert.True(t, u.LimitExceeded)
	u = tr.Record(1)
	assert.True(t, u.LimitExceeded)

	stats := tr.Stats()
	assert.Equal(t, int64(2), stats.LimitExceededCount)
	assert.Equal(t, int64(3), stats.DocumentsProcessed)
	assert.Equal(t, int64(121), stats.TotalTokens)
	assert.Contains(t, buf.String(), "tokens per minute limit exceeded")
}

func TestRecord_WindowRollsAfterAMinute(t *testing.T) {
	clock := newClock()
	tr := NewTracker(100, 1000, WithClock(clock.Now))

	tr.Record(90)
	clock.Advance(60 * time.Second)
	u := tr.Record(5)
	assert.Equal(t, int64(95), u.WindowTokens, "exactly one minute is still the same window")

	clock.Advance(time.Second)
	u = tr.Record(50)
	assert.Equal(t, int64(50), u.WindowTokens)
	assert.False(t, u.LimitExceeded)

	stats := tr.Stats()
	assert.Equal(t, int64(145), stats.TotalTokens)
	assert.Equal(t, clock.Now(), stats.WindowStart)
}

func TestStats_RollsIdleWindow(t *testing.T) {
	clock := newClock()
	tr := NewTracker(100, 1000, WithClock(clock.Now))
	tr.Record(40)

	clock.Advance(2 * time.Minute)
	stats := tr.Stats()
	assert.Zero(t, stats.TokensThisMinute)
	assert.Equal(t, int64(40), stats.TotalTokens)
}

func TestRecord_NegativeIgnored(t *testing.T) {
	tr := NewTracker(100, 1000)
	u := tr.Record(-10)
	assert.Zero(t, u.Tokens)
	assert.Equal(t, int64(1), tr.Stats().DocumentsProcessed)
}

func TestRecord_Concurrent(t *testing.T) {
	tr := NewTracker(1_000_000, 30_000, WithClock(newClock().Now))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				tr.Record(10)
			}
		}()
	}
	wg.Wait()

	stats := tr.Stats()
	require.Equal(t, int64(1000), stats.DocumentsProcessed)
	assert.Equal(t, int64(10_000), stats.TotalTokens)
}
