package remote

import (
	"context"
	"slices"
	"sync"
)

// Fanout delivers change events from one upstream source to many
// subscriptions. It backs the postgres and kafka change feeds.
type Fanout struct {
	mu     sync.Mutex
	subs   map[*fanoutSub]struct{}
	buffer int
}

// NewFanout creates a fanout whose subscriptions buffer up to buffer events
func NewFanout(buffer int) *Fanout {
	return &Fanout{
		subs:   make(map[*fanoutSub]struct{}),
		buffer: buffer,
	}
}

// Subscribe opens a stream of the team's events for the given tables. An
// empty teamID receives the events of every team. OpReset events reach
// every subscription.
func (f *Fanout) Subscribe(ctx context.Context, teamID string, tables []Table) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub := &fanoutSub{
		owner:  f,
		teamID: teamID,
		tables: slices.Clone(tables),
		ch:     make(chan ChangeEvent, f.buffer),
	}
	f.mu.Lock()
	f.subs[sub] = struct{}{}
	f.mu.Unlock()
	return sub, nil
}

// Dispatch delivers the event to every matching subscription without
// blocking and returns the number of subscriptions whose buffer was full.
func (f *Fanout) Dispatch(ev ChangeEvent) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	dropped := 0
	for sub := range f.subs {
		if !sub.wants(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			dropped++
		}
	}
	return dropped
}

// Len returns the number of open subscriptions
func (f *Fanout) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// CloseAll closes every open subscription
func (f *Fanout) CloseAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for sub := range f.subs {
		sub.closeLocked()
	}
}

type fanoutSub struct {
	owner  *Fanout
	teamID string
	tables []Table
	ch     chan ChangeEvent
	closed bool
}

func (s *fanoutSub) wants(ev ChangeEvent) bool {
	if ev.Op == OpReset {
		return true
	}
	if s.teamID != "" && ev.TeamID != s.teamID {
		return false
	}
	return slices.Contains(s.tables, ev.Table)
}

func (s *fanoutSub) Events() <-chan ChangeEvent {
	return s.ch
}

func (s *fanoutSub) Close() error {
	s.owner.mu.Lock()
	defer s.owner.mu.Unlock()
	s.closeLocked()
	return nil
}

func (s *fanoutSub) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	delete(s.owner.subs, s)
	close(s.ch)
}
