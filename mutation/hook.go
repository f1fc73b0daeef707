package mutation

import (
	"context"
	"sync"

	"github.com/stephenolajire/stumart-query/events"
)

// Hook binds a mutation builder to view-facing state: Mutate, IsPending and Err
type Hook[A any] struct {
	coord    *Coordinator
	build    func(A) Mutation
	notifier *events.Notifier

	mu      sync.Mutex
	pending int
	phase   Phase
	err     error
}

// NewHook creates a hook that builds a Mutation from the call argument
func NewHook[A any](coord *Coordinator, build func(A) Mutation) *Hook[A] {
	return &Hook[A]{
		coord:    coord,
		build:    build,
		notifier: events.NewNotifier(),
	}
}

// Mutate runs the mutation for arg. The returned error is also kept in Err
// until the next call.
func (h *Hook[A]) Mutate(ctx context.Context, arg A) error {
	h.mu.Lock()
	h.pending++
	h.err = nil
	h.mu.Unlock()
	h.notifier.Emit()

	err := h.coord.Mutate(ctx, h.build(arg), h.setPhase)

	h.mu.Lock()
	h.pending--
	h.err = err
	h.mu.Unlock()
	h.notifier.Emit()
	return err
}

// IsPending reports whether a call is between apply and settle
func (h *Hook[A]) IsPending() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pending > 0
}

// Err returns the error of the last settled call
func (h *Hook[A]) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Phase returns the latest phase observed
func (h *Hook[A]) Phase() Phase {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.phase
}

// Subscribe notifies on every state change
func (h *Hook[A]) Subscribe() events.ISubscription {
	return h.notifier.Subscribe()
}

func (h *Hook[A]) setPhase(p Phase) {
	h.mu.Lock()
	h.phase = p
	h.mu.Unlock()
	h.notifier.Emit()
}
