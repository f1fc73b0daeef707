package coordinator

import (
	"context"

	"go.uber.org/zap"

	"github.com/stephenolajire/stumart-query/filter"
)

type outcome struct {
	result Result
	err    error
}

type pendingCall struct {
	task *Task
	out  chan outcome
}

// queryDebounced schedules the query on a cancellable timer. A newer call in
// the same debounce group cancels this one, which then returns ErrSuperseded
// without reaching the network.
func (c *Coordinator) queryDebounced(ctx context.Context, namespace string, filters filter.Set, fetch FetchFunc, opts Options) (Result, error) {
	group := opts.DebounceGroup
	if group == "" {
		group = namespace
	}
	delay := opts.Debounce
	opts.Debounce = 0

	call := &pendingCall{out: make(chan outcome, 1)}
	runCtx := context.WithoutCancel(ctx)

	c.mu.Lock()
	if prev, ok := c.debounced[group]; ok && prev.task.Cancel() {
		prev.out <- outcome{err: ErrSuperseded}
		c.writerLocked(namespace).RecordDebounceSuperseded()
		c.logger.Debug("Coordinator: debounced call superseded", zap.String("group", group))
	}
	call.task = Schedule(delay, func() {
		c.mu.Lock()
		if c.debounced[group] == call {
			delete(c.debounced, group)
		}
		c.mu.Unlock()

		result, err := c.query(runCtx, namespace, filters, fetch, opts)
		call.out <- outcome{result: result, err: err}
	})
	c.debounced[group] = call
	c.mu.Unlock()

	select {
	case o := <-call.out:
		return o.result, o.err
	case <-ctx.Done():
		c.mu.Lock()
		if call.task.Cancel() && c.debounced[group] == call {
			delete(c.debounced, group)
		}
		c.mu.Unlock()
		return Result{}, ctx.Err()
	}
}
