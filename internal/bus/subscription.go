// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bus

import (
	"sync"
	"sync/atomic"
)

// Subscription is one subscriber's bounded inbound queue.
type Subscription struct {
	b       *Bus
	codes   []Code // nil for SubscribeAll
	ch      chan Event
	once    sync.Once
	dropped atomic.Uint64
}

func (b *Bus) newSubscription(codes []Code) *Subscription {
	return &Subscription{b: b, codes: append([]Code(nil), codes...), ch: make(chan Event, b.queueSize)}
}

// C delivers events in publish order. It is closed by Close or when the bus
// shuts down.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Dropped reports how many events were dropped because the queue was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close detaches the subscription. It is safe to call more than once.
func (s *Subscription) Close() error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if s.codes == nil {
		delete(s.b.all, s)
	}
	for _, c := range s.codes {
		if set := s.b.subs[c]; set != nil {
			delete(set, s)
			if len(set) == 0 {
				delete(s.b.subs, c)
			}
		}
	}
	s.closeLocked()
	return nil
}

func (s *Subscription) closeLocked() {
	s.once.Do(func() { close(s.ch) })
}
