package events

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier_EmitReachesAllSubscribers(t *testing.T) {
	n := NewNotifier()
	subs := []ISubscription{n.Subscribe(), n.Subscribe(), n.Subscribe()}

	n.Emit()

	for i, sub := range subs {
		select {
		case <-sub.Chan():
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d not notified", i)
		}
	}
}

func TestNotifier_EmitsCoalesce(t *testing.T) {
	n := NewNotifier()
	sub := n.Subscribe()
	defer sub.Cancel()

	n.Emit()
	n.Emit()
	n.Emit()

	<-sub.Chan()
	select {
	case <-sub.Chan():
		t.Fatal("expected a single pending signal")
	default:
	}
}

func TestSubscription_CancelIsIdempotent(t *testing.T) {
	n := NewNotifier()
	sub := n.Subscribe()
	require.Equal(t, 1, n.Len())

	sub.Cancel()
	sub.Cancel()
	assert.Equal(t, 0, n.Len())

	_, open := <-sub.Chan()
	assert.False(t, open)

	// Emitting after cancel must not panic
	n.Emit()
}

func TestSubscription_Watch(t *testing.T) {
	n := NewNotifier()
	var calls int32

	ctx, cancel := context.WithCancel(context.Background())
	n.Subscribe().Watch(ctx, func() { atomic.AddInt32(&calls, 1) })

	n.Emit()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	require.Eventually(t, func() bool { return n.Len() == 0 }, time.Second, 5*time.Millisecond)
}
