// Package connect opens a comm.Channel from a textual description, as found
// in a config file or on a command line
package connect

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tarm/serial"
	"golang.org/x/time/rate"

	"github.com/nasa-jpl/instrumentkit/comm"
	"github.com/nasa-jpl/instrumentkit/usbtmc"
)

// Spec describes a channel
type Spec struct {
	// Conn is serial, tcp, gpib or usbtmc.  Empty is serial.
	Conn string

	// Addr is a device path for serial and gpib (the Prologix adapter's
	// port), host:port for tcp, and vid:pid for usbtmc
	Addr string

	// GPIBAddr is the instrument's address on the bus
	GPIBAddr int

	// Baud overrides the instrument's default serial rate
	Baud int

	// RateLimit is the most commands per second sent over serial or tcp, 0 does not limit
	RateLimit float64
}

// ParseVIDPID parses "vid:pid", each part in any base strconv accepts
func ParseVIDPID(s string) (uint16, uint16, error) {
	v, p, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("usbtmc address %q is not vid:pid", s)
	}
	vid, err := strconv.ParseUint(v, 0, 16)
	if err != nil {
		return 0, 0, err
	}
	pid, err := strconv.ParseUint(p, 0, 16)
	if err != nil {
		return 0, 0, err
	}
	return uint16(vid), uint16(pid), nil
}

// Open opens the channel spec describes.  term and baud are the
// instrument's defaults for serial and tcp.
func Open(spec Spec, term comm.Terminators, baud int, log logrus.FieldLogger) (comm.Channel, error) {
	if spec.Baud != 0 {
		baud = spec.Baud
	}
	switch strings.ToLower(spec.Conn) {
	case "serial", "tcp", "":
		isSerial := !strings.EqualFold(spec.Conn, "tcp")
		var conf *serial.Config
		if isSerial {
			conf = &serial.Config{Name: spec.Addr, Baud: baud}
		}
		rd := comm.NewRemoteDevice(spec.Addr, isSerial, &term, conf)
		rd.Log = log
		if spec.RateLimit > 0 {
			rd.Limiter = rate.NewLimiter(rate.Limit(spec.RateLimit), 1)
		}
		return rd, nil
	case "gpib":
		g, err := comm.NewGPIB(spec.Addr, spec.GPIBAddr, 3*time.Second)
		if err != nil {
			return nil, err
		}
		g.Log = log
		return g, nil
	case "usbtmc":
		vid, pid, err := ParseVIDPID(spec.Addr)
		if err != nil {
			return nil, err
		}
		return usbtmc.Open(vid, pid)
	default:
		return nil, fmt.Errorf("connection %q not understood, use serial, tcp, gpib or usbtmc", spec.Conn)
	}
}
