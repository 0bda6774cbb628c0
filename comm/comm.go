/*Package comm provides the channels instruments are spoken to over.

A Channel moves text.  Framing, terminators, timeouts and connection
management are the channel's business; drivers only see commands and replies.

Most usages of this package will boil down to:
	1.  build a RemoteDevice with NewRemoteDevice for RS232 or TCP hardware,
		or a GPIB with NewGPIB for hardware behind a Prologix adapter
	2.  hand it to a driver constructor, which holds it exclusively
	3.  use Mock in tests, it records every command in order

RemoteDevice is concurrent-safe; it leases a single pooled connection per
operation, so commands never interleave on the wire.
*/
package comm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tarm/serial"
	"golang.org/x/time/rate"
)

var (
	// ErrNoSerialConf is generated when IsSerial is true and no serial.Config was given
	ErrNoSerialConf = errors.New("remote device is serial but has no serial config")

	// ErrTerminatorNotFound is generated when the termination byte is not found in a response
	ErrTerminatorNotFound = errors.New("termination byte not found")
)

// Kind identifies the physical transport behind a channel
type Kind int

const (
	// Unknown is any channel that does not report its kind
	Unknown Kind = iota
	Serial
	GPIB
	TCP
	USBTMC
)

func (k Kind) String() string {
	switch k {
	case Serial:
		return "serial"
	case GPIB:
		return "gpib"
	case TCP:
		return "tcp"
	case USBTMC:
		return "usbtmc"
	default:
		return "unknown"
	}
}

// Channel is a command/response text channel to one instrument
type Channel interface {
	// Send writes a command which produces no reply
	Send(string) error

	// Query writes a command and returns its reply with framing removed
	Query(string) (string, error)

	// Read returns the next reply without writing anything
	Read() (string, error)
}

// Kinded is implemented by channels that know their transport
type Kinded interface {
	Kind() Kind
}

// KindOf returns the kind of ch, or Unknown
func KindOf(ch Channel) Kind {
	if k, ok := ch.(Kinded); ok {
		return k.Kind()
	}
	return Unknown
}

// Terminators holds the transmit and receive termination bytes
type Terminators struct {
	Tx byte
	Rx byte
}

// RemoteDevice is a Channel over RS232 or TCP
type RemoteDevice struct {
	// Addr is a host:port for TCP or a device path for serial
	Addr string

	IsSerial bool

	// Timeout bounds each operation on TCP connections and is the read
	// timeout on serial ones
	Timeout time.Duration

	// Limiter paces outgoing commands, nil does not limit
	Limiter *rate.Limiter

	// Log receives a debug line for every command, the standard logger if nil
	Log logrus.FieldLogger

	term Terminators
	pool *Pool
}

// NewRemoteDevice returns a RemoteDevice.  term defaults to carriage returns
// when nil.  conf is required when serial is true and ignored otherwise.
func NewRemoteDevice(addr string, serial bool, term *Terminators, conf *serial.Config) *RemoteDevice {
	rd := &RemoteDevice{
		Addr:     addr,
		IsSerial: serial,
		Timeout:  3 * time.Second,
		term:     Terminators{Tx: '\r', Rx: '\r'},
	}
	if term != nil {
		rd.term = *term
	}
	var maker CreationFunc
	if serial {
		if conf != nil && conf.ReadTimeout == 0 {
			conf.ReadTimeout = rd.Timeout
		}
		maker = SerialConnMaker(conf)
	} else {
		maker = BackingOffTCPConnMaker(addr, rd.Timeout)
	}
	rd.pool = NewPool(1, 5*time.Minute, maker)
	return rd
}

// Kind returns Serial or TCP
func (rd *RemoteDevice) Kind() Kind {
	if rd.IsSerial {
		return Serial
	}
	return TCP
}

func (rd *RemoteDevice) log() logrus.FieldLogger {
	if rd.Log == nil {
		return logrus.StandardLogger()
	}
	return rd.Log
}

func (rd *RemoteDevice) pace() error {
	if rd.Limiter == nil {
		return nil
	}
	return rd.Limiter.Wait(context.Background())
}

func (rd *RemoteDevice) write(conn *Conn, cmd string) error {
	if err := rd.pace(); err != nil {
		return err
	}
	rd.log().WithFields(logrus.Fields{"addr": rd.Addr, "cmd": cmd}).Debug("tx")
	conn.deadline(rd.Timeout)
	_, err := io.WriteString(conn, cmd+string(rd.term.Tx))
	return err
}

func (rd *RemoteDevice) read(conn *Conn) (string, error) {
	conn.deadline(rd.Timeout)
	buf, err := conn.ReadUntil(rd.term.Rx)
	if err != nil {
		if len(buf) > 0 && errors.Is(err, io.EOF) {
			return string(buf), ErrTerminatorNotFound
		}
		return "", err
	}
	resp := strings.TrimSuffix(string(buf), string(rd.term.Rx))
	rd.log().WithFields(logrus.Fields{"addr": rd.Addr, "resp": resp}).Debug("rx")
	return resp, nil
}

// Send writes cmd followed by the Tx terminator
func (rd *RemoteDevice) Send(cmd string) (err error) {
	conn, err := rd.pool.Get()
	if err != nil {
		return fmt.Errorf("%s: %w", rd.Addr, err)
	}
	defer func() { rd.pool.ReturnWithError(conn, err) }()
	err = rd.write(conn, cmd)
	return err
}

// Query writes cmd and reads up to the Rx terminator, which is stripped
func (rd *RemoteDevice) Query(cmd string) (resp string, err error) {
	conn, err := rd.pool.Get()
	if err != nil {
		return "", fmt.Errorf("%s: %w", rd.Addr, err)
	}
	defer func() { rd.pool.ReturnWithError(conn, err) }()
	if err = rd.write(conn, cmd); err != nil {
		return "", err
	}
	resp, err = rd.read(conn)
	return resp, err
}

// Read reads up to the next Rx terminator without writing
func (rd *RemoteDevice) Read() (resp string, err error) {
	conn, err := rd.pool.Get()
	if err != nil {
		return "", fmt.Errorf("%s: %w", rd.Addr, err)
	}
	defer func() { rd.pool.ReturnWithError(conn, err) }()
	resp, err = rd.read(conn)
	return resp, err
}

// Close frees the connection to the remote, if one is open.
// The next operation reopens it.
func (rd *RemoteDevice) Close() error {
	return rd.pool.Close()
}
