package live

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrSubscriptionFailed marks a live read channel that could not be
// established or that broke down. It is terminal for the subscription.
var ErrSubscriptionFailed = errors.New("subscription failed")

// QueryFunc produces the current snapshot of a live query.
type QueryFunc[T any] func(ctx context.Context) (T, error)

// Subscription delivers successive snapshots of a query.
type Subscription[T any] struct {
	updates chan T
	cancel  context.CancelFunc
	done    chan struct{}

	mu  sync.Mutex
	err error
}

// Watch subscribes to topic and then runs query, delivering its result on
// Updates. Every later signal on the topic triggers a fresh query whose full
// result is delivered again. Only one snapshot is processed at a time: the
// next query does not start until the previous result has been received.
//
// The subscription ends when ctx is done, Close is called, or the query or
// feed fails; in the last case Err reports the cause.
func Watch[T any](ctx context.Context, feed Feed, topic string, query QueryFunc[T]) (*Subscription[T], error) {
	ctx, cancel := context.WithCancel(ctx)

	signals, err := feed.Subscribe(ctx, topic)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: subscribe %s: %v", ErrSubscriptionFailed, topic, err)
	}

	s := &Subscription[T]{
		updates: make(chan T),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go s.run(ctx, signals, query)
	return s, nil
}

func (s *Subscription[T]) run(ctx context.Context, signals <-chan struct{}, query QueryFunc[T]) {
	defer close(s.done)
	defer close(s.updates)
	defer s.cancel()

	for {
		snapshot, err := query(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.fail(fmt.Errorf("%w: %v", ErrSubscriptionFailed, err))
			}
			return
		}

		select {
		case s.updates <- snapshot:
		case <-ctx.Done():
			return
		}

		select {
		case _, ok := <-signals:
			if !ok {
				if ctx.Err() == nil {
					s.fail(fmt.Errorf("%w: %v", ErrSubscriptionFailed, ErrFeedClosed))
				}
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Subscription[T]) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Updates yields snapshots until the subscription ends, then is closed.
func (s *Subscription[T]) Updates() <-chan T {
	return s.updates
}

// Err returns the terminal error, if the subscription failed.
func (s *Subscription[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed once the subscription has stopped delivering.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

// Close detaches the subscription. No snapshot is delivered after Close returns.
func (s *Subscription[T]) Close() {
	s.cancel()
	<-s.done
}
