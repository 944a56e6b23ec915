package safe

import (
	"runtime/debug"

	"github.com/pkg/errors"
)

//be safe, don't panic

func Run(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			switch x := r.(type) {
			case error:
				err = errors.WithMessagef(x, "recovered from panic\n%s", debug.Stack())
			default:
				err = errors.Errorf("recovered from panic: %v\n%s", x, debug.Stack())
			}
		}
	}()
	err = fn()
	return err
}

func Go(fn func() error) chan error {
	c := make(chan error, 1)
	go func() {
		c <- Run(fn)
		close(c)
	}()
	return c
}

