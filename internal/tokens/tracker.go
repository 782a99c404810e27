// Package tokens keeps audit counters of model token usage. It never blocks
// or rejects a call; exceeding a limit only increments a counter and logs.
package tokens

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jonathan/docmeta/internal/types"
)

// Default limits.
const (
	DefaultTokensPerMinute   int64 = 1_000_000
	DefaultDocumentThreshold int64 = 30_000
)

const window = time.Minute

// Usage describes how one recorded document compares to the limits.
type Usage struct {
	Tokens        int64
	WindowTokens  int64
	OverThreshold bool
	LimitExceeded bool
}

// Tracker accumulates token counts over a rolling one-minute window.
type Tracker struct {
	mu sync.Mutex

	perMinute int64
	threshold int64
	now       func() time.Time
	logger    zerolog.Logger

	total       int64
	inWindow    int64
	windowStart time.Time
	documents   int64
	overDocs    int64
	exceeded    int64
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithLogger sets the logger used for limit warnings.
func WithLogger(logger zerolog.Logger) Option {
	return func(t *Tracker) { t.logger = logger }
}

// NewTracker creates a tracker. Non-positive limits select the defaults.
func NewTracker(perMinute, documentThreshold int64, opts ...Option) *Tracker {
	if perMinute <= 0 {
		perMinute = DefaultTokensPerMinute
	}
	if documentThreshold <= 0 {
		documentThreshold = DefaultDocumentThreshold
	}
	t := &Tracker{
		perMinute: perMinute,
		threshold: documentThreshold,
		now:       time.Now,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.windowStart = t.now()
	return t
}

// Record adds the tokens used by one document.
func (t *Tracker) Record(tokens int) Usage {
	n := int64(tokens)
	if n < 0 {
		n = 0
	}

	t.mu.Lock()
	t.roll()
	t.total += n
	t.inWindow += n
	t.documents++

	u := Usage{Tokens: n, WindowTokens: t.inWindow}
	if n > t.threshold {
		t.overDocs++
		u.OverThreshold = true
	}
	if t.inWindow > t.perMinute {
		t.exceeded++
		u.LimitExceeded = true
	}
	t.mu.Unlock()

	if u.OverThreshold {
		t.logger.Warn().Int64("tokens", n).Int64("threshold", t.threshold).Msg("document exceeded token threshold")
	}
	if u.LimitExceeded {
		t.logger.Warn().Int64("window_tokens", u.WindowTokens).Int64("limit", t.perMinute).Msg("tokens per minute limit exceeded")
	}
	return u
}

// Stats returns a snapshot of the counters.
func (t *Tracker) Stats() types.TokenStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.roll()

	var avg float64
	if t.documents > 0 {
		avg = float64(t.total) / float64(t.documents)
	}
	return types.TokenStats{
		TotalTokens:            t.total,
		TokensThisMinute:       t.inWindow,
		TokensPerMinuteLimit:   t.perMinute,
		DocumentTokenThreshold: t.threshold,
		DocumentsProcessed:     t.documents,
		DocumentsOverThreshold: t.overDocs,
		LimitExceededCount:     t.exceeded,
		AverageTokensPerDoc:    avg,
		WindowStart:            t.windowStart,
	}
}

// roll starts a new window once the current one is older than a minute.
// Callers hold t.mu.
func (t *Tracker) roll() {
	now := t.now()
	if now.Sub(t.windowStart) > window {
		t.windowStart = now
		t.inWindow = 0
	}
}
