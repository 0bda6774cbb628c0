package comm

import (
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gotmc/prologix"
	"github.com/sirupsen/logrus"
	"github.com/tarm/serial"
)

// GPIBChannel is a Channel to one instrument behind a Prologix GPIB-USB controller
type GPIBChannel struct {
	// Addr is the primary GPIB address of the instrument
	Addr int

	// Log receives a debug line for every command, the standard logger if nil
	Log logrus.FieldLogger

	port io.ReadWriteCloser
	ctl  *prologix.Controller
	mu   sync.Mutex
}

// NewGPIB opens the Prologix adapter on the serial port and addresses the
// instrument at addr
func NewGPIB(port string, addr int, timeout time.Duration) (*GPIBChannel, error) {
	sp, err := serial.OpenPort(&serial.Config{Name: port, Baud: 115200, ReadTimeout: timeout})
	if err != nil {
		return nil, err
	}
	// CLR on open resets some instruments, do not send it
	ctl, err := prologix.NewController(sp, addr, false)
	if err != nil {
		sp.Close()
		return nil, err
	}
	return &GPIBChannel{Addr: addr, port: sp, ctl: ctl}, nil
}

// Kind returns GPIB
func (g *GPIBChannel) Kind() Kind {
	return GPIB
}

func (g *GPIBChannel) log() logrus.FieldLogger {
	if g.Log == nil {
		return logrus.StandardLogger()
	}
	return g.Log
}

// Send writes cmd to the instrument
func (g *GPIBChannel) Send(cmd string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.log().WithFields(logrus.Fields{"gpib": g.Addr, "cmd": cmd}).Debug("tx")
	return g.ctl.Command("%s", cmd)
}

// Query writes cmd and returns the reply without its line ending
func (g *GPIBChannel) Query(cmd string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.log().WithFields(logrus.Fields{"gpib": g.Addr, "cmd": cmd}).Debug("tx")
	resp, err := g.ctl.Query(cmd)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(resp, "\r\n"), nil
}

// Read reads whatever the instrument has ready
func (g *GPIBChannel) Read() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	buf := make([]byte, 4096)
	n, err := g.ctl.Read(buf)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(buf[:n]), "\r\n"), nil
}

// Close returns the instrument to local control and closes the serial port
func (g *GPIBChannel) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ctl.FrontPanel(true)
	return g.port.Close()
}
