package srs

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/google/go-cmp/cmp"

	"github.com/nasa-jpl/instrumentkit/comm"
	"github.com/nasa-jpl/instrumentkit/server/middleware/locker"
)

func newTestServer(t *testing.T) (*chi.Mux, *comm.Mock, *locker.Locker) {
	t.Helper()
	m := comm.NewMock(comm.GPIB)
	s, err := NewSR830(m, Config{Log: quiet(), Sleep: func(time.Duration) {}})
	if err != nil {
		t.Fatal(err)
	}
	m.Reset()
	l := locker.New()
	w := NewHTTPWrapper(s, l)
	r := chi.NewRouter()
	r.Use(l.Check)
	w.RT().Bind(r)
	return r, m, l
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, strings.NewReader(body)))
	return w
}

func TestHTTPSnap(t *testing.T) {
	r, m, _ := newTestServer(t)
	m.Reply("SNAP? 3,4", "1.5,45")
	w := do(r, http.MethodGet, "/snap?a=r&b=theta", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", w.Code, w.Body.String())
	}
	got := map[string]float64{}
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(map[string]float64{"r": 1.5, "theta": 45}, got); diff != "" {
		t.Errorf("snap mismatch (-want +got):\n%s", diff)
	}
}

func TestHTTPBadModeIs400(t *testing.T) {
	r, _, _ := newTestServer(t)
	if w := do(r, http.MethodPost, "/auto-offset", `{"str": "theta"}`); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 got %d", w.Code)
	}
	if w := do(r, http.MethodPost, "/phase", `{"str": "730"}`); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 got %d", w.Code)
	}
}

func TestHTTPMeasure(t *testing.T) {
	r, m, l := newTestServer(t)
	m.Reply("SPTS?", "2").Reply("TRCA?1,0,2", "1,2").Reply("TRCA?2,0,2", "3,4")
	w := do(r, http.MethodPost, "/measure", `{"rate": "1 Hz", "samples": 2}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", w.Code, w.Body.String())
	}
	got := Measurement{}
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(Measurement{Ch1: []float64{1, 2}, Ch2: []float64{3, 4}}, got); diff != "" {
		t.Errorf("measurement mismatch (-want +got):\n%s", diff)
	}
	if l.Locked() {
		t.Error("expected the locker to be released after a measurement")
	}
}

func TestHTTPLockedRefusesMeasure(t *testing.T) {
	r, m, l := newTestServer(t)
	l.Lock()
	if w := do(r, http.MethodPost, "/measure", `{"rate": "1 Hz", "samples": 2}`); w.Code != http.StatusLocked {
		t.Errorf("expected 423 got %d", w.Code)
	}
	if len(m.Log()) != 0 {
		t.Errorf("expected no I/O while locked, got %v", m.Log())
	}
	if w := do(r, http.MethodGet, "/lock", ""); w.Code != http.StatusOK {
		t.Errorf("expected the lock route to stay open, got %d", w.Code)
	}
}

func TestHTTPRaw(t *testing.T) {
	r, m, _ := newTestServer(t)
	m.Reply("*IDN?", "Stanford_Research_Systems,SR830")
	w := do(r, http.MethodPost, "/raw", `{"str": "*IDN?"}`)
	if body := strings.TrimSpace(w.Body.String()); body != `{"str":"Stanford_Research_Systems,SR830"}` {
		t.Errorf("unexpected raw reply %s", body)
	}
}
