package httpkit

import (
	"fmt"
	"runtime/debug"
)

// PanicError wraps a recovered panic value together with the stack trace
// captured at the moment of recovery, so an ErrorHandler can log it.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

func recoverMiddleware(next Handler) Handler {
	return func(c *Ctx) (err error) {
		defer func() {
			if v := recover(); v != nil {
				err = &PanicError{Value: v, Stack: debug.Stack()}
			}
		}()
		return next(c)
	}
}
