package events

import (
	"context"
	"sync"
)

// ISubscription is a handle on state change notifications.
// Notifications coalesce: a subscriber that lags behind sees one signal for
// any number of changes and re-reads the current state.
type ISubscription interface {
	// Chan returns the notification channel, closed on Cancel
	Chan() <-chan struct{}
	// Cancel unsubscribes. Safe for repeated calls
	Cancel()
	// Watch calls cb on every notification until ctx ends or Cancel is called
	Watch(ctx context.Context, cb func()) ISubscription
}

// Notifier fans state change signals out to subscribers
type Notifier struct {
	mu   sync.RWMutex
	subs map[*subscription]struct{}
}

// NewNotifier creates a notifier without subscribers
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[*subscription]struct{})}
}

// Subscribe registers a new subscriber
func (n *Notifier) Subscribe() ISubscription {
	sub := &subscription{ch: make(chan struct{}, 1), owner: n}

	n.mu.Lock()
	n.subs[sub] = struct{}{}
	n.mu.Unlock()

	return sub
}

// Emit signals every subscriber without blocking
func (n *Notifier) Emit() {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for sub := range n.subs {
		select {
		case sub.ch <- struct{}{}:
		default:
			// a signal is already pending
		}
	}
}

// Len returns the number of active subscribers
func (n *Notifier) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs)
}

func (n *Notifier) remove(sub *subscription) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.subs[sub]; ok {
		delete(n.subs, sub)
		close(sub.ch)
	}
}

type subscription struct {
	ch    chan struct{}
	owner *Notifier
	once  sync.Once
	stop  context.CancelFunc
	mu    sync.Mutex
}

func (s *subscription) Chan() <-chan struct{} { return s.ch }

func (s *subscription) Cancel() {
	s.once.Do(func() {
		s.mu.Lock()
		stop := s.stop
		s.mu.Unlock()
		if stop != nil {
			stop()
		}
		s.owner.remove(s)
	})
}

func (s *subscription) Watch(ctx context.Context, cb func()) ISubscription {
	ctx, stop := context.WithCancel(ctx)
	s.mu.Lock()
	s.stop = stop
	s.mu.Unlock()

	go func() {
		defer s.Cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-s.ch:
				if !ok {
					return
				}
				cb()
			}
		}
	}()
	return s
}
