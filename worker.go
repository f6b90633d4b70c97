package sserelay

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// worker copies queue values into the bridge. It is the only goroutine that
// touches the queue and it never touches loop state.
type worker struct {
	queue    Queue
	sink     io.Writer
	log      logrus.FieldLogger
	retryMin time.Duration
	retryMax time.Duration
}

// run pops values until ctx is cancelled. Pop failures are retried with
// exponential backoff. A failed write to the sink ends the worker, it means
// the event loop is gone.
func (w *worker) run(ctx context.Context) error {
	delay := w.retryMin
	for {
		data, err := w.queue.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.log.WithError(err).WithField("retry", delay).Warn("queue pop failed")
			if !sleep(ctx, delay) {
				return nil
			}
			delay *= 2
			if delay > w.retryMax {
				delay = w.retryMax
			}
			continue
		}
		delay = w.retryMin

		if len(data) == 0 {
			continue
		}
		if _, err := w.sink.Write(data); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("write bridge: %w", err)
		}
	}
}

// sleep waits for d and reports false if ctx was cancelled first.
func sleep(ctx context.Context, d time.Duration) bool {
	tm := time.NewTimer(d)
	defer tm.Stop()

	select {
	case <-tm.C:
		return true
	case <-ctx.Done():
		return false
	}
}
