package goroutine

import (
	"fmt"
	"runtime/debug"

	"github.com/x-xyz/listingengine/base/ctx"
	"github.com/x-xyz/listingengine/base/log"
)

// PanicError is what a recovered panic turns into
type PanicError struct {
	Name  string
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%s panicked: %v", e.Name, e.Value)
}

// Go runs f on its own goroutine and reports a non-nil error, or a recovered
// panic as *PanicError, on errCh. The returned channel is closed once f is done.
func Go(c ctx.Ctx, name string, errCh chan<- error, f func() error) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := Run(c, name, f); err != nil {
			errCh <- err
		}
	}()
	return done
}

// Run calls f in place, converting a panic into *PanicError
func Run(c ctx.Ctx, name string, f func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			stack := debug.Stack()
			c.WithFields(log.Fields{
				"routine": name,
				"panic":   p,
				"stack":   string(stack),
			}).Error("recovered from panic")
			err = &PanicError{Name: name, Value: p, Stack: stack}
		}
	}()
	return f()
}
