package comm

import (
	"bufio"
	"io"
	"sync"
	"time"
)

// CreationFunc is a function which returns a new "connection" to something
// a closure should be used to encapsulate the variables and functions needed
type CreationFunc func() (io.ReadWriteCloser, error)

// Conn is a pooled connection.  Its buffered reader lives as long as the
// connection, so bytes that arrive after a terminator are kept for the next read.
type Conn struct {
	io.ReadWriteCloser
	r *bufio.Reader
}

func newConn(rwc io.ReadWriteCloser) *Conn {
	return &Conn{ReadWriteCloser: rwc, r: bufio.NewReader(rwc)}
}

// Read reads through the buffer
func (c *Conn) Read(b []byte) (int, error) {
	return c.r.Read(b)
}

// ReadUntil reads until and including term
func (c *Conn) ReadUntil(term byte) ([]byte, error) {
	return c.r.ReadBytes(term)
}

type deadliner interface {
	SetDeadline(time.Time) error
}

// deadline bounds the next operation on connections that support it
func (c *Conn) deadline(d time.Duration) {
	if d <= 0 {
		return
	}
	if dl, ok := c.ReadWriteCloser.(deadliner); ok {
		dl.SetDeadline(time.Now().Add(d))
	}
}

// Pool is a communication pool which holds one or more connections to a device
// that will be closed if they are not in use, and re-opened as needed.
// it is concurrent safe.  Pools must be created with NewPool.
type Pool struct {
	timeout time.Duration // time after the last connection is returned to free all connections
	leases  chan struct{} // one token per connection given out, cap is the pool size
	idle    chan *Conn    // connections ready for reuse
	timer   *time.Timer   // reclaim timer, nil when not armed
	maker   CreationFunc
	mu      sync.Mutex
}

// NewPool creates a pool of at most maxSize connections made by maker
func NewPool(maxSize int, timeout time.Duration, maker CreationFunc) *Pool {
	return &Pool{
		timeout: timeout,
		leases:  make(chan struct{}, maxSize),
		idle:    make(chan *Conn, maxSize),
		maker:   maker,
	}
}

// Get retrieves a connection from the pool, blocking until one is
// available if all are in use.  It is guaranteed that there is no contention
// for the connection until it is given back.
//
// When done with the connection, return it with Put(), or discard it with
// Destroy() if it has become no good (e.g., all calls error).
//
// If the error from Get is not nil, you must not return it to the pool.
func (p *Pool) Get() (*Conn, error) {
	p.leases <- struct{}{}

	p.mu.Lock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	select {
	case c := <-p.idle:
		p.mu.Unlock()
		return c, nil
	default:
	}
	p.mu.Unlock()

	rwc, err := p.maker()
	if err != nil {
		<-p.leases
		return nil, err
	}
	return newConn(rwc), nil
}

// Put restores a connection to the pool.  It may be reused, or will be
// automatically freed after all connections are returned and the timeout
// has elapsed.
func (p *Pool) Put(c *Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idle <- c
	<-p.leases
	if len(p.leases) == 0 && p.timeout > 0 {
		p.timer = time.AfterFunc(p.timeout, p.reclaim)
	}
}

// Destroy immediately frees a connection from the pool.  This should be used
// instead of Put if the connection has gone bad.
func (p *Pool) Destroy(c *Conn) {
	c.Close()
	<-p.leases
}

// ReturnWithError returns c with Put if err is nil, and Destroys it otherwise
func (p *Pool) ReturnWithError(c *Conn, err error) {
	if err != nil {
		p.Destroy(c)
		return
	}
	p.Put(c)
}

// Size returns the number of connections in the pool, or given out from it
func (p *Pool) Size() int {
	return len(p.idle) + len(p.leases)
}

// Active returns the number of connections owned by the pool that are currently
// given out
func (p *Pool) Active() int {
	return len(p.leases)
}

// Close closes every idle connection
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var err error
	for {
		select {
		case c := <-p.idle:
			if cerr := c.Close(); cerr != nil {
				err = cerr
			}
		default:
			return err
		}
	}
}

func (p *Pool) reclaim() {
	p.mu.Lock()
	if len(p.leases) != 0 {
		p.mu.Unlock()
		return
	}
	p.timer = nil
	p.mu.Unlock()
	p.Close()
}
