// Package live turns store change notifications into continuously updated
// query results.
//
// A Feed carries bare "something changed" signals per topic. Watch pairs a
// feed topic with a query and re-delivers the full query result after every
// signal, which is how session lists and message logs stay current in views.
package live

import (
	"context"
	"errors"
	"sync"
)

// ErrFeedClosed is returned when publishing to or subscribing on a closed feed.
var ErrFeedClosed = errors.New("feed closed")

// Feed fans change notifications out to subscribers of a topic.
//
// Subscribe returns a channel that receives a value after each Publish on the
// topic. Signals coalesce: a subscriber that is slow to drain sees at least
// one signal after the latest change, not one per change. The channel is
// closed once ctx is done or the feed shuts down.
type Feed interface {
	Publish(ctx context.Context, topic string) error
	Subscribe(ctx context.Context, topic string) (<-chan struct{}, error)
	Close() error
}

// MemoryFeed is an in-process Feed.
type MemoryFeed struct {
	mu     sync.Mutex
	subs   map[string]map[*signal]struct{}
	closed bool
}

// signal is a coalescing, close-safe notification channel shared by the feeds.
type signal struct {
	mu     sync.Mutex
	ch     chan struct{}
	closed bool
}

func newSignal() *signal {
	return &signal{ch: make(chan struct{}, 1)}
}

func (s *signal) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

func (s *signal) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// NewMemoryFeed creates an empty in-process feed.
func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{subs: make(map[string]map[*signal]struct{})}
}

func (f *MemoryFeed) Publish(_ context.Context, topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrFeedClosed
	}
	for s := range f.subs[topic] {
		s.notify()
	}
	return nil
}

func (f *MemoryFeed) Subscribe(ctx context.Context, topic string) (<-chan struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, ErrFeedClosed
	}

	s := newSignal()
	if f.subs[topic] == nil {
		f.subs[topic] = make(map[*signal]struct{})
	}
	f.subs[topic][s] = struct{}{}

	go func() {
		<-ctx.Done()
		f.remove(topic, s)
	}()

	return s.ch, nil
}

func (f *MemoryFeed) remove(topic string, s *signal) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if set, ok := f.subs[topic]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(f.subs, topic)
		}
	}
	s.close()
}

// Subscribers returns the number of live subscriptions on topic.
func (f *MemoryFeed) Subscribers(topic string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[topic])
}

func (f *MemoryFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true
	for topic, set := range f.subs {
		for s := range set {
			s.close()
		}
		delete(f.subs, topic)
	}
	return nil
}
