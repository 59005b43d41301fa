package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck fails when the process runs more than threshold
// goroutines, which usually means a leak.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(_ context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}

// BacklogCheck fails when size reports more than threshold queued units.
func BacklogCheck(size func() int, threshold int) CheckFunc {
	return func(_ context.Context) error {
		if n := size(); n > threshold {
			return errors.Errorf("backlog %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}

// PingCheck adapts a Ping method to a CheckFunc.
func PingCheck(ping func(ctx context.Context) error) CheckFunc {
	return func(ctx context.Context) error {
		return errors.Wrap(ping(ctx), "ping")
	}
}
