package recovery

import (
	"fmt"
	"log/slog"
	"runtime/debug"
)

var Logger = slog.Default()

// PanicError carries a recovered panic back to the caller of Run.
type PanicError struct {
	Name  string
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Name, e.Value)
}

// Go starts fn in its own goroutine and logs instead of crashing if it panics.
func Go(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				Logger.Error("goroutine_panic_recovered",
					slog.String("worker_name", name),
					slog.String("error", fmt.Sprintf("%v", r)),
					slog.String("stack", string(debug.Stack())),
				)
			}
		}()
		fn()
	}()
}

// Run executes fn synchronously and converts a panic into a *PanicError.
// Provider calls run through here so one misbehaving client cannot take the
// whole fan-out down.
func Run(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			Logger.Error("named_panic_recovered",
				slog.String("worker_name", name),
				slog.String("error", fmt.Sprintf("%v", r)),
				slog.String("stack", string(debug.Stack())),
			)
			err = &PanicError{Name: name, Value: r}
		}
	}()
	return fn()
}
