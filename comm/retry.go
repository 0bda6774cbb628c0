package comm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cenkalti/backoff"
)

// ErrProtocolTimeout is generated when a device keeps answering with nothing
var ErrProtocolTimeout = errors.New("device returned no data")

// TimeoutError describes a query that exhausted its attempts
type TimeoutError struct {
	Command  string
	Attempts int
}

func (e TimeoutError) Error() string {
	return fmt.Sprintf("%s: no reply after %d attempts", e.Command, e.Attempts)
}

// Unwrap returns ErrProtocolTimeout
func (e TimeoutError) Unwrap() error {
	return ErrProtocolTimeout
}

// Querier is anything with a Query method
type Querier interface {
	Query(string) (string, error)
}

// QueryNonEmpty issues cmd up to attempts times until the reply is not blank.
// Transport errors end the loop at once and are returned as-is.
// Retries are back to back.
func QueryNonEmpty(q Querier, cmd string, attempts int) (string, error) {
	if attempts < 1 {
		attempts = 1
	}
	var (
		resp     string
		ioErr    error
		errEmpty = errors.New("empty")
	)
	op := func() error {
		r, err := q.Query(cmd)
		if err != nil {
			ioErr = err
			return nil
		}
		if strings.TrimSpace(r) == "" {
			return errEmpty
		}
		resp = r
		return nil
	}
	if attempts == 1 {
		// WithMaxRetries treats zero as unlimited
		if err := op(); err != nil {
			return "", TimeoutError{Command: cmd, Attempts: 1}
		}
	} else {
		b := backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(attempts-1))
		if err := backoff.Retry(op, b); err != nil {
			return "", TimeoutError{Command: cmd, Attempts: attempts}
		}
	}
	if ioErr != nil {
		return "", ioErr
	}
	return resp, nil
}
