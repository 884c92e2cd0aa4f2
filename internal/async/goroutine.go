package async

import (
	"fmt"
	"runtime/debug"
)

// PanicLogger captures panic reports from background goroutines.
type PanicLogger interface {
	Error(format string, args ...any)
}

// Go runs fn in a goroutine guarded by panic recovery.
func Go(logger PanicLogger, name string, fn func()) {
	go func() {
		defer Recover(logger, name)
		fn()
	}()
}

// Recover logs panic details without crashing the process.
func Recover(logger PanicLogger, name string) {
	if r := recover(); r != nil {
		if logger == nil {
			return
		}
		if name == "" {
			logger.Error("goroutine panic: %v, stack: %s", r, debug.Stack())
			return
		}
		logger.Error("goroutine panic [%s]: %v, stack: %s", name, r, debug.Stack())
	}
}

// Outcome carries the result of a function run on a background goroutine.
type Outcome[T any] struct {
	Value T
	Err   error
}

// Call runs fn on its own goroutine and delivers the result on the returned
// channel. Exactly one Outcome is always sent, a panic included. The channel
// is buffered, so an abandoned call never leaks the goroutine: it finishes,
// sends, and exits even if nobody is listening.
func Call[T any](logger PanicLogger, name string, fn func() (T, error)) <-chan Outcome[T] {
	out := make(chan Outcome[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				if logger != nil {
					logger.Error("goroutine panic [%s]: %v, stack: %s", name, r, debug.Stack())
				}
				out <- Outcome[T]{Err: fmt.Errorf("panic in %s: %v", name, r)}
			}
		}()
		value, err := fn()
		out <- Outcome[T]{Value: value, Err: err}
	}()
	return out
}
