package comm

import (
	"errors"
	"sync"
)

// ErrNoReply is returned by Mock.Read when nothing is queued
var ErrNoReply = errors.New("mock: no reply queued")

// Mock is a scripted Channel.  It records every command sent or queried, in order.
type Mock struct {
	// ChannelKind is reported by Kind
	ChannelKind Kind

	// Replies holds successive replies per query command; the last reply
	// for a command repeats once the others are used up
	Replies map[string][]string

	// Reads is the queue Read pops from
	Reads []string

	// Errs makes Send or Query fail for the given command
	Errs map[string]error

	mu  sync.Mutex
	log []string
}

// NewMock returns a Mock of the given kind
func NewMock(kind Kind) *Mock {
	return &Mock{ChannelKind: kind, Replies: map[string][]string{}, Errs: map[string]error{}}
}

// Kind returns m.ChannelKind
func (m *Mock) Kind() Kind {
	return m.ChannelKind
}

// Reply queues replies to cmd
func (m *Mock) Reply(cmd string, replies ...string) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Replies == nil {
		m.Replies = map[string][]string{}
	}
	m.Replies[cmd] = append(m.Replies[cmd], replies...)
	return m
}

// Send records cmd
func (m *Mock) Send(cmd string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log = append(m.log, cmd)
	return m.Errs[cmd]
}

// Query records cmd and returns its next scripted reply, "" if none
func (m *Mock) Query(cmd string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log = append(m.log, cmd)
	if err := m.Errs[cmd]; err != nil {
		return "", err
	}
	r := m.Replies[cmd]
	switch len(r) {
	case 0:
		return "", nil
	case 1:
		return r[0], nil
	default:
		m.Replies[cmd] = r[1:]
		return r[0], nil
	}
}

// Read pops the read queue
func (m *Mock) Read() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Reads) == 0 {
		return "", ErrNoReply
	}
	r := m.Reads[0]
	m.Reads = m.Reads[1:]
	return r, nil
}

// Log returns a copy of every command seen so far
func (m *Mock) Log() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.log))
	copy(out, m.log)
	return out
}

// Reset forgets the command log
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log = nil
}
