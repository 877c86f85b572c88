package node

import (
	"errors"
	"strings"
)

type MultiError []error

func (m MultiError) Error() string {
	var b strings.Builder
	b.WriteString("multiple errors:")
	for _, err := range m {
		b.WriteString("\n- " + err.Error())
	}
	return b.String()
}

var (
	// ErrSignalStopped is returned inside the poll loop when the stop signal
	// arrives over the eventfd.
	ErrSignalStopped = errors.New("signal stopped")

	// ErrServerFull is logged when an accepted socket is dropped because the
	// connection limit is reached.
	ErrServerFull = errors.New("connection limit reached")
)
