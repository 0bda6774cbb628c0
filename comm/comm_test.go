package comm_test

import (
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nasa-jpl/instrumentkit/comm"
)

// tcpEchoServer starts a loopback echo server and returns its address
func tcpEchoServer(t *testing.T) string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal("could not listen, test aborted:", err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() { io.Copy(conn, conn) }() // use goroutines to handle multiple connections
		}
	}()
	return ln.Addr().String()
}

func echoPool(t *testing.T, size int, timeout time.Duration) *comm.Pool {
	addr := tcpEchoServer(t)
	maker := func() (io.ReadWriteCloser, error) {
		return net.Dial("tcp", addr)
	}
	return comm.NewPool(size, timeout, maker)
}

func TestPoolFillsToCapacity(t *testing.T) {
	pool := echoPool(t, 3, time.Second)
	for i := 0; i < 3; i++ {
		if _, err := pool.Get(); err != nil {
			t.Fatal("could not get connection:", err)
		}
	}
	if pool.Active() != 3 {
		t.Errorf("expected 3 active connections, got %d", pool.Active())
	}
}

func TestPoolReusesReturnedConnections(t *testing.T) {
	pool := echoPool(t, 3, time.Second)
	for i := 0; i < 3; i++ {
		conn, err := pool.Get()
		if err != nil {
			t.Fatal("could not get connection:", err)
		}
		pool.Put(conn)
	}
	if pool.Size() != 1 {
		t.Errorf("expected a single reused connection, pool holds %d", pool.Size())
	}
}

func TestPoolReclaimsAfterTimeout(t *testing.T) {
	pool := echoPool(t, 2, 10*time.Millisecond)
	conn, err := pool.Get()
	if err != nil {
		t.Fatal(err)
	}
	pool.Put(conn)
	time.Sleep(200 * time.Millisecond)
	if pool.Size() != 0 {
		t.Errorf("expected idle connections to be reclaimed, pool holds %d", pool.Size())
	}
}

func TestPoolMaintainsSize(t *testing.T) {
	pool := echoPool(t, 2, time.Second)
	for i := 0; i < 2; i++ {
		if _, err := pool.Get(); err != nil {
			t.Fatal(err)
		}
	}
	got := make(chan struct{})
	go func() {
		pool.Get()
		close(got)
	}()
	select {
	case <-got:
		t.Error("failed to prevent pool overflow")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPoolDestroyReleasesLease(t *testing.T) {
	pool := echoPool(t, 1, time.Second)
	conn, err := pool.Get()
	if err != nil {
		t.Fatal(err)
	}
	pool.ReturnWithError(conn, errors.New("bad conn"))
	if pool.Size() != 0 {
		t.Errorf("expected destroyed connection to leave the pool, size %d", pool.Size())
	}
	if _, err := pool.Get(); err != nil {
		t.Errorf("expected a fresh connection after destroy, got %v", err)
	}
}

func TestRemoteDeviceQueryStripsTerminator(t *testing.T) {
	addr := tcpEchoServer(t)
	rd := comm.NewRemoteDevice(addr, false, nil, nil)
	defer rd.Close()
	resp, err := rd.Query("*IDN?")
	if err != nil {
		t.Fatal(err)
	}
	if resp != "*IDN?" {
		t.Errorf("expected *IDN? echoed, got %q", resp)
	}
	if rd.Kind() != comm.TCP {
		t.Errorf("expected TCP, got %s", rd.Kind())
	}
}

func TestRemoteDeviceKeepsBufferedBytesBetweenReads(t *testing.T) {
	addr := tcpEchoServer(t)
	rd := comm.NewRemoteDevice(addr, false, &comm.Terminators{Tx: '\n', Rx: '\n'}, nil)
	defer rd.Close()
	if err := rd.Send("first"); err != nil {
		t.Fatal(err)
	}
	if err := rd.Send("second"); err != nil {
		t.Fatal(err)
	}
	var got []string
	for i := 0; i < 2; i++ {
		r, err := rd.Read()
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, r)
	}
	if diff := cmp.Diff([]string{"first", "second"}, got); diff != "" {
		t.Errorf("reads mismatch (-want +got):\n%s", diff)
	}
}

func TestQueryNonEmptyRetries(t *testing.T) {
	m := comm.NewMock(comm.Unknown).Reply("SPTS?", "", "", "42")
	resp, err := comm.QueryNonEmpty(m, "SPTS?", 10)
	if err != nil {
		t.Fatal(err)
	}
	if resp != "42" {
		t.Errorf("expected 42 got %s", resp)
	}
	if n := len(m.Log()); n != 3 {
		t.Errorf("expected 3 queries, got %d", n)
	}
}

func TestQueryNonEmptyGivesUp(t *testing.T) {
	m := comm.NewMock(comm.Unknown).Reply("SPTS?", "")
	_, err := comm.QueryNonEmpty(m, "SPTS?", 10)
	if !errors.Is(err, comm.ErrProtocolTimeout) {
		t.Fatalf("expected ErrProtocolTimeout, got %v", err)
	}
	if n := len(m.Log()); n != 10 {
		t.Errorf("expected exactly 10 queries, got %d", n)
	}
}

func TestQueryNonEmptyStopsOnTransportError(t *testing.T) {
	m := comm.NewMock(comm.Unknown)
	boom := errors.New("port unplugged")
	m.Errs["SPTS?"] = boom
	_, err := comm.QueryNonEmpty(m, "SPTS?", 10)
	if !errors.Is(err, boom) {
		t.Errorf("expected the transport error, got %v", err)
	}
	if n := len(m.Log()); n != 1 {
		t.Errorf("expected a single query, got %d", n)
	}
}

func TestKindOf(t *testing.T) {
	if k := comm.KindOf(comm.NewMock(comm.GPIB)); k != comm.GPIB {
		t.Errorf("expected gpib, got %s", k)
	}
}

func TestMockReadQueue(t *testing.T) {
	m := &comm.Mock{Reads: []string{"a"}}
	if r, _ := m.Read(); r != "a" {
		t.Errorf("expected a got %s", r)
	}
	if _, err := m.Read(); !errors.Is(err, comm.ErrNoReply) {
		t.Errorf("expected ErrNoReply, got %v", err)
	}
}
