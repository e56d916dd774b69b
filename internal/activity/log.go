// Package activity provides the bounded in-memory activity log. Every
// skip, denial, forced trigger, and trade lands here with a reason
// code; the API and WebSocket stream read from it.
package activity

import (
	"sync"
	"time"
)

// Type classifies an activity entry.
type Type string

const (
	TypeDataFetch Type = "DATA_FETCH"
	TypeDecision  Type = "DECISION"
	TypeRisk      Type = "RISK"
	TypeTrade     Type = "TRADE"
	TypeError     Type = "ERROR"
	TypeBotStatus Type = "BOT_STATUS"
)

// Entry is a single activity record.
type Entry struct {
	TS      time.Time `json:"ts"`
	Type    Type      `json:"type"`
	Pair    string    `json:"pair,omitempty"`
	Reason  string    `json:"reason,omitempty"` // machine-readable reason code
	Message string    `json:"message"`
}

// Log is a fixed-capacity ring of entries. Writers never block: when
// full, the oldest entry is overwritten; slow subscribers drop.
type Log struct {
	mu    sync.RWMutex
	buf   []Entry
	head  int // next write position
	count int

	subs []chan Entry
	now  func() time.Time
}

// New creates an activity log holding at most capacity entries.
func New(capacity int) *Log {
	if capacity < 1 {
		capacity = 1
	}
	return &Log{
		buf: make([]Entry, capacity),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source. Test hook.
func (l *Log) SetClock(now func() time.Time) { l.now = now }

// Append records an entry, stamping it if TS is zero, and fans it out
// to subscribers (non-blocking).
func (l *Log) Append(e Entry) {
	l.mu.Lock()
	if e.TS.IsZero() {
		e.TS = l.now()
	}
	l.buf[l.head] = e
	l.head = (l.head + 1) % len(l.buf)
	if l.count < len(l.buf) {
		l.count++
	}
	subs := l.subs
	l.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- e:
		default:
			// subscriber lagging, drop
		}
	}
}

// Recent returns up to limit entries, newest first (0 = all retained).
func (l *Log) Recent(limit int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := l.count
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Entry, 0, n)
	for i := 0; i < n; i++ {
		idx := (l.head - 1 - i + len(l.buf)*2) % len(l.buf)
		out = append(out, l.buf[idx])
	}
	return out
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}

// Subscribe returns a channel receiving future entries. Entries are
// dropped for subscribers that fall behind.
func (l *Log) Subscribe(buffer int) <-chan Entry {
	ch := make(chan Entry, buffer)
	l.mu.Lock()
	l.subs = append(l.subs, ch)
	l.mu.Unlock()
	return ch
}
