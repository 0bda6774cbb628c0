package comm

import (
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/tarm/serial"
)

// SerialConnMaker returns a CreationFunc that opens the serial port described by conf
func SerialConnMaker(conf *serial.Config) CreationFunc {
	return func() (io.ReadWriteCloser, error) {
		if conf == nil {
			return nil, ErrNoSerialConf
		}
		return serial.OpenPort(conf)
	}
}

// TCPSetup opens a new TCP connection with a timeout on connect
func TCPSetup(addr string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("tcp", addr, timeout)
}

// BackingOffTCPConnMaker returns a CreationFunc that dials addr with an
// exponential backoff.  Terminal servers do not like being connection
// thrashed; a refused connection is not retried.
func BackingOffTCPConnMaker(addr string, timeout time.Duration) CreationFunc {
	return func() (io.ReadWriteCloser, error) {
		var (
			conn       net.Conn
			refused    error
			wasTimeout bool
		)
		op := func() error {
			var err error
			conn, err = TCPSetup(addr, timeout)
			if err != nil {
				if strings.Contains(strings.ToLower(err.Error()), "refused") {
					refused = err
					return nil
				}
				wasTimeout = true
				return err
			}
			wasTimeout = false
			return nil
		}

		// backoff will cease on a timeout so we don't wait
		// forever, so we need to check refused and wasTimeout too
		err := backoff.Retry(op, &backoff.ExponentialBackOff{
			InitialInterval:     25 * time.Millisecond,
			RandomizationFactor: 0.,
			Multiplier:          2.,
			MaxInterval:         1 * time.Second,
			MaxElapsedTime:      3 * time.Second,
			Clock:               backoff.SystemClock})
		if refused != nil {
			return nil, refused
		}
		if err != nil || wasTimeout {
			return nil, fmt.Errorf("connection timeout to %s: %w", addr, err)
		}
		return conn, nil
	}
}
