package main

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nasa-jpl/instrumentkit/connect"
	"github.com/nasa-jpl/instrumentkit/srs"
)

func testApp() (app, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	log := logrus.New()
	log.SetOutput(io.Discard)
	now := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	return app{
		out:   buf,
		log:   log,
		sleep: func(d time.Duration) { now = now.Add(d) },
		now:   func() time.Time { return now },
	}, buf
}

func TestGetSetting(t *testing.T) {
	a, buf := testApp()
	if err := a.run([]string{"-mock", "tc200", "get", "temperature-setpoint"}); err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(buf.String()); got != "25 degC" {
		t.Errorf("expected 25 degC got %q", got)
	}
}

func TestSetRejected(t *testing.T) {
	a, _ := testApp()
	if err := a.run([]string{"-mock", "sr830", "set", "amplitude", "9 V"}); err == nil {
		t.Error("expected an out of range amplitude to be refused")
	}
	if err := a.run([]string{"-mock", "sr830", "get", "loudness"}); err == nil {
		t.Error("expected an unknown setting to be refused")
	}
}

func TestDumpListsEverySetting(t *testing.T) {
	a, buf := testApp()
	if err := a.run([]string{"-mock", "tc200", "dump"}); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"setpoint", "beta", "sensor", "mode"} {
		if !strings.Contains(buf.String(), name) {
			t.Errorf("expected %s in the dump, got\n%s", name, buf.String())
		}
	}
}

func TestSnapModes(t *testing.T) {
	a, buf := testApp()
	if err := a.run([]string{"-mock", "sr830", "snap", "x", "y"}); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "x\t1\ny\t0\n" {
		t.Errorf("expected x 1 y 0 got %q", got)
	}
}

func TestSnapshot(t *testing.T) {
	a, buf := testApp()
	if err := a.run([]string{"-mock", "tc200", "snap"}); err != nil {
		t.Fatal(err)
	}
	expected := "enabled\t0\nsetpoint\t25\ntemperature\t22\n"
	if got := buf.String(); got != expected {
		t.Errorf("expected %q got %q", expected, got)
	}
}

func TestMeasureToFits(t *testing.T) {
	a, buf := testApp()
	path := filepath.Join(t.TempDir(), "run.fits")
	err := a.run([]string{"-mock", "sr830", "measure", "-rate", "4Hz", "-n", "8", "-o", path})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "wrote 8 points") {
		t.Errorf("expected a summary of 8 points got %q", buf.String())
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(b)%2880 != 0 || !bytes.HasPrefix(b, []byte("SIMPLE")) {
		t.Errorf("expected a FITS file, got %d bytes", len(b))
	}
}

func TestMeasureNeedsLockin(t *testing.T) {
	a, _ := testApp()
	if err := a.run([]string{"-mock", "tc200", "measure"}); err == nil {
		t.Error("expected a TC200 to refuse to measure")
	}
}

func TestUsage(t *testing.T) {
	a, _ := testApp()
	for _, args := range [][]string{{}, {"-mock", "sr830"}, {"-mock", "sr830", "fly"}, {"-mock", "esp301", "dump"}} {
		if err := a.run(args); err == nil {
			t.Errorf("%v: expected an error", args)
		}
	}
}

func TestOutputInterfaceOverTCP(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	got := make(chan string, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			got <- err.Error()
			return
		}
		defer conn.Close()
		line, _ := bufio.NewReader(conn).ReadString('\r')
		got <- line
	}()

	a, _ := testApp()
	spec := connect.Spec{Conn: "tcp", Addr: l.Addr().String()}
	if _, err = a.open("sr830", spec, "", false); !errors.Is(err, srs.ErrConfiguration) {
		t.Errorf("expected a configuration error without -outx, got %v", err)
	}
	in, err := a.open("sr830", spec, "serial", false)
	if err != nil {
		t.Fatal(err)
	}
	defer in.close()
	select {
	case line := <-got:
		if line != "OUTX 2\r" {
			t.Errorf("expected OUTX 2 got %q", line)
		}
	case <-time.After(5 * time.Second):
		t.Error("nothing arrived at the bridge")
	}
	if _, err = a.open("sr830", spec, "ethernet", false); err == nil {
		t.Error("expected an unknown interface to be refused")
	}
}
