// Package dispatcher implements the N-way timestamp merge over a set of
// bar feeds (spec.md §4.3): the single driver loop of one executor.
package dispatcher

import (
	"time"

	"xbacktest/internal/bar"
	"xbacktest/internal/feed"
)

// barSubject adapts a feed.BarFeed to the dispatcher's internal callback
// shape, preserving registration order for tie-breaking.
type barSubject struct {
	feed  feed.BarFeed
	onBar func(feed.BarFeed, bar.Bar)
}

// Dispatcher owns M subjects, each a cloned bar feed, and drives them in
// strict timestamp order with deterministic tie-breaking by registration
// order (spec.md §4.3).
type Dispatcher struct {
	subjects     []*barSubject
	lastDispatch time.Time
	haveLast     bool

	// OnTimeElapsed fires once per tick, before any dispatch, whenever the
	// next datetime strictly exceeds the previous dispatched datetime.
	OnTimeElapsed func(prev, next time.Time)
}

// New creates an empty Dispatcher.
func New() *Dispatcher {
	return &Dispatcher{}
}

// Register adds a feed to the dispatcher. onBar is invoked synchronously
// every time this feed is selected and its next bar consumed.
// Registration order is the dispatcher's tie-break order.
func (d *Dispatcher) Register(f feed.BarFeed, onBar func(feed.BarFeed, bar.Bar)) {
	d.subjects = append(d.subjects, &barSubject{feed: f, onBar: onBar})
}

// Run drives the dispatcher to exhaustion: on each tick it selects every
// subject sharing the smallest pending datetime, emits OnTimeElapsed if
// the clock has advanced, then dispatches each tied subject in
// registration order.
func (d *Dispatcher) Run() {
	for {
		next, ok := d.nextDatetime()
		if !ok {
			return // all subjects at EOF
		}
		if d.haveLast && next.After(d.lastDispatch) && d.OnTimeElapsed != nil {
			d.OnTimeElapsed(d.lastDispatch, next)
		}
		for _, s := range d.subjects {
			dt, has := s.feed.PeekDateTime()
			if !has || !dt.Equal(next) {
				continue
			}
			if b, ok := s.feed.NextBar(); ok {
				s.onBar(s.feed, b)
			}
		}
		d.lastDispatch = next
		d.haveLast = true
	}
}

// nextDatetime returns the smallest pending datetime across all
// subjects, or false if every subject is exhausted.
func (d *Dispatcher) nextDatetime() (time.Time, bool) {
	var best time.Time
	found := false
	for _, s := range d.subjects {
		dt, ok := s.feed.PeekDateTime()
		if !ok {
			continue
		}
		if !found || dt.Before(best) {
			best = dt
			found = true
		}
	}
	return best, found
}
