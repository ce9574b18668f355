// Package quota enforces the daily narration budget of non-premium users.
package quota

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

const dayLayout = "2006-01-02"

// ErrQuotaExhausted is returned when today's budget has been spent.
var ErrQuotaExhausted = errors.New("daily narration quota exhausted")

// Unlimited is returned by Remaining for premium users.
const Unlimited = -1

// Stats summarizes today's usage.
type Stats struct {
	Day      string
	Messages int
	Chars    int
	Limit    int
	Premium  bool
}

// Tracker counts messages per local calendar day. It is safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	limit    int
	premium  bool
	day      string
	messages int
	chars    int
	now      func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// WithPremium sets the initial premium flag.
func WithPremium(premium bool) Option {
	return func(t *Tracker) {
		t.premium = premium
	}
}

// NewTracker allows limit messages per day.
func NewTracker(limit int, opts ...Option) *Tracker {
	tracker := &Tracker{limit: limit, now: time.Now}

	for _, opt := range opts {
		opt(tracker)
	}

	tracker.day = tracker.today()

	return tracker
}

// SetPremium switches between the daily limit and unlimited narration.
func (t *Tracker) SetPremium(premium bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.premium = premium
}

// Allow consumes one message of chars characters, or returns
// ErrQuotaExhausted without consuming anything.
func (t *Tracker) Allow(chars int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resetIfNewDayLocked()

	if !t.premium && t.messages >= t.limit {
		return fmt.Errorf("%w: %d of %d messages used on %s", ErrQuotaExhausted, t.messages, t.limit, t.day)
	}

	t.messages++
	t.chars += chars

	return nil
}

// Refund returns one message and its characters after a failed narration.
func (t *Tracker) Refund(chars int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resetIfNewDayLocked()

	if t.messages > 0 {
		t.messages--
		t.chars = max(0, t.chars-chars)
	}
}

// Remaining returns the messages left today, or Unlimited.
func (t *Tracker) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resetIfNewDayLocked()

	if t.premium {
		return Unlimited
	}

	return max(0, t.limit-t.messages)
}

// Stats returns today's counters.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resetIfNewDayLocked()

	return Stats{
		Day:      t.day,
		Messages: t.messages,
		Chars:    t.chars,
		Limit:    t.limit,
		Premium:  t.premium,
	}
}

func (t *Tracker) resetIfNewDayLocked() {
	today := t.today()
	if today != t.day {
		t.day = today
		t.messages = 0
		t.chars = 0
	}
}

func (t *Tracker) today() string {
	return t.now().Local().Format(dayLayout)
}
