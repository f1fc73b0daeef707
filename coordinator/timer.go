package coordinator

import (
	"sync"
	"time"
)

type taskState int

const (
	taskPending taskState = iota
	taskRunning
	taskCancelled
)

// Task is a call scheduled to run once after a delay.
// A pending task can be cancelled; once it started running it can't.
type Task struct {
	mu    sync.Mutex
	state taskState
	timer *time.Timer
	done  chan struct{}
}

// Schedule runs fn after delay unless the returned task is cancelled first
func Schedule(delay time.Duration, fn func()) *Task {
	t := &Task{done: make(chan struct{})}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.timer = time.AfterFunc(delay, func() {
		t.mu.Lock()
		if t.state != taskPending {
			t.mu.Unlock()
			return
		}
		t.state = taskRunning
		t.mu.Unlock()

		defer close(t.done)
		fn()
	})
	return t
}

// Cancel prevents a pending task from running.
// Returns false if the task already started or was cancelled before.
func (t *Task) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != taskPending {
		return false
	}
	t.state = taskCancelled
	t.timer.Stop()
	close(t.done)
	return true
}

// Cancelled reports whether the task was cancelled before running
func (t *Task) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == taskCancelled
}

// Done is closed once the task finished running or was cancelled
func (t *Task) Done() <-chan struct{} {
	return t.done
}
