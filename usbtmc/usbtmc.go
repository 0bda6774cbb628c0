/*Package usbtmc is a comm.Channel over USB Test and Measurement Class bulk
transfers, for instruments reached through a USB488 interface.

It does not include multi-packet messaging and assumes every message fits in
the remote's buffer.

To send a message:
1.  Allocate a send buffer
2.  Write the header to it
3.  Write your data to it
4.  Ensure that the total transmission size is a multiple of 4 bytes before flushing

To receive a message:
1.  Create a read request header and send it on the Out endpoint
2.  Read from the In endpoint
3.  Pop the 12 byte header, its transfer size bounds the payload
*/
package usbtmc

import (
	"encoding/binary"
	"fmt"
	"strings"
	"sync"

	"github.com/google/gousb"

	"github.com/nasa-jpl/instrumentkit/comm"
)

const (
	reserved = 0x00

	msgDevDepOut       = 0x01
	msgRequestDevDepIn = 0x02

	headerLen = 12
	alignment = 4
	bufSize   = 1500
)

// bTagGen is a concurrent-safe bTag generator.  bTags run 1..255 and never 0.
type bTagGen struct {
	sync.Mutex
	value byte
}

func (b *bTagGen) next() byte {
	b.Lock()
	defer b.Unlock()
	b.value++
	if b.value == 0 {
		b.value = 1
	}
	return b.value
}

// invbTag is the bitwise inversion of a bTag, USBTMC table 1 offset 2
func invbTag(b byte) byte {
	return b ^ 0xff
}

// encBulkOutHeader creates the DEV_DEP_MSG_OUT header, USBTMC table 3.
// Offsets 4-7 are the transfer size LSB first, offset 8 bit 0 is end of message.
func encBulkOutHeader(tag byte, datalen int) [headerLen]byte {
	out := [headerLen]byte{}
	out[0] = msgDevDepOut
	out[1] = tag
	out[2] = invbTag(tag)
	out[3] = reserved
	binary.LittleEndian.PutUint32(out[4:8], uint32(datalen))
	out[8] = 0x01
	return out
}

// encBulkInHeader creates the REQUEST_DEV_DEP_MSG_IN header, USBTMC table 4.
// if terminator is nil, the device is told to ignore termination characters
func encBulkInHeader(tag byte, bufsize int, terminator *byte) [headerLen]byte {
	out := [headerLen]byte{}
	out[0] = msgRequestDevDepIn
	out[1] = tag
	out[2] = invbTag(tag)
	out[3] = reserved
	binary.LittleEndian.PutUint32(out[4:8], uint32(bufsize))
	if terminator != nil {
		out[8] = 0x02
		out[9] = *terminator
	}
	return out
}

// frame prepends the bulk out header to data and pads to 4 byte alignment
func frame(tag byte, data []byte) []byte {
	hdr := encBulkOutHeader(tag, len(data))
	b := append(hdr[:], data...)
	if residual := len(b) % alignment; residual > 0 {
		b = append(b, make([]byte, alignment-residual)...)
	}
	return b
}

// unframe pops the bulk in header and trims alignment padding
func unframe(buf []byte) ([]byte, error) {
	if len(buf) < headerLen {
		return nil, fmt.Errorf("only received %d bytes, need at least %d to form header", len(buf), headerLen)
	}
	size := int(binary.LittleEndian.Uint32(buf[4:8]))
	data := buf[headerLen:]
	if size < len(data) {
		data = data[:size]
	}
	return data, nil
}

// Device is a USBTMC instrument
type Device struct {
	// Terminator is the character the device ends replies with
	Terminator byte

	tags   bTagGen
	ctx    *gousb.Context
	device *gousb.Device
	in     *gousb.InEndpoint
	out    *gousb.OutEndpoint
	closer func()
	mu     sync.Mutex
}

// Open opens the device with the given vendor and product ID
func Open(vid, pid uint16) (*Device, error) {
	d := &Device{Terminator: '\n', ctx: gousb.NewContext()}
	var err error
	d.device, err = d.ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		d.ctx.Close()
		return nil, err
	}
	if d.device == nil {
		d.ctx.Close()
		return nil, fmt.Errorf("usb device %04x:%04x not found", vid, pid)
	}
	if err = d.device.SetAutoDetach(true); err != nil {
		d.Close()
		return nil, err
	}
	var iface *gousb.Interface
	iface, d.closer, err = d.device.DefaultInterface()
	if err != nil {
		d.Close()
		return nil, err
	}
	if d.in, err = iface.InEndpoint(2); err != nil {
		d.Close()
		return nil, err
	}
	if d.out, err = iface.OutEndpoint(2); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// Kind returns comm.USBTMC
func (d *Device) Kind() comm.Kind {
	return comm.USBTMC
}

func (d *Device) write(b []byte) error {
	_, err := d.out.Write(frame(d.tags.next(), b))
	return err
}

func (d *Device) read() (string, error) {
	term := d.Terminator
	hdr := encBulkInHeader(d.tags.next(), bufSize, &term)
	n, err := d.out.Write(hdr[:])
	if err != nil {
		return "", err
	}
	if n != headerLen {
		return "", fmt.Errorf("wrote %d bytes, not full %d required to transmit read request", n, headerLen)
	}
	buf := make([]byte, bufSize+headerLen)
	n, err = d.in.Read(buf)
	if err != nil {
		return "", err
	}
	data, err := unframe(buf[:n])
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(data), string([]byte{term})+"\r"), nil
}

// Send writes cmd followed by the terminator
func (d *Device) Send(cmd string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.write(append([]byte(cmd), d.Terminator))
}

// Query writes cmd and reads the reply
func (d *Device) Query(cmd string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.write(append([]byte(cmd), d.Terminator)); err != nil {
		return "", err
	}
	return d.read()
}

// Read requests and reads a reply
func (d *Device) Read() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.read()
}

// Close releases the interface, the device and the USB context
func (d *Device) Close() error {
	if d.closer != nil {
		d.closer()
	}
	var err error
	if d.device != nil {
		err = d.device.Close()
	}
	if d.ctx != nil {
		d.ctx.Close()
	}
	return err
}
