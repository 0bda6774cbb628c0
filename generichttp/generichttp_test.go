package generichttp

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi"
	"github.com/google/go-cmp/cmp"

	"github.com/nasa-jpl/instrumentkit/comm"
	"github.com/nasa-jpl/instrumentkit/property"
	"github.com/nasa-jpl/instrumentkit/units"
)

var amplitude = property.Float{
	Name: "amplitude", Set: "SLVL", Unit: units.Volt,
	Domain: property.Range{Min: 0.004, Max: 5}}

func TestSubMuxSanitize(t *testing.T) {
	tests := map[string]string{
		"omc/nkt":   "/omc/nkt",
		"/omc/nkt":  "/omc/nkt",
		"omc/nkt/*": "/omc/nkt",
		"lockin/":   "/lockin",
	}
	for in, expected := range tests {
		if got := SubMuxSanitize(in); got != expected {
			t.Errorf("%q: expected %q got %q", in, expected, got)
		}
	}
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err      error
		expected int
	}{
		{property.ValidationError{Setting: "a"}, http.StatusBadRequest},
		{property.TypeError{Setting: "a"}, http.StatusBadRequest},
		{comm.TimeoutError{Command: "SPTS?", Attempts: 10}, http.StatusGatewayTimeout},
		{errors.New("wire"), http.StatusInternalServerError},
		{fmt.Errorf("wrapped: %w", property.ValidationError{}), http.StatusBadRequest},
	}
	for _, test := range tests {
		if got := ErrorStatus(test.err); got != test.expected {
			t.Errorf("%v: expected %d got %d", test.err, test.expected, got)
		}
	}
}

func TestEndpointsSortedUnique(t *testing.T) {
	rt := RouteTable{}
	h := func(http.ResponseWriter, *http.Request) {}
	rt[MethodPath{http.MethodGet, "/b"}] = h
	rt[MethodPath{http.MethodPost, "/b"}] = h
	rt[MethodPath{http.MethodGet, "/a"}] = h
	if diff := cmp.Diff([]string{"/a", "/b"}, rt.Endpoints()); diff != "" {
		t.Errorf("endpoints mismatch (-want +got):\n%s", diff)
	}
}

func setup() (*chi.Mux, *comm.Mock) {
	m := comm.NewMock(comm.GPIB).Reply("SLVL?", "1.5")
	rt := RouteTable{}
	BindSettings(rt, []property.Bound{{Setting: amplitude, Transport: m}})
	r := chi.NewRouter()
	rt.Bind(r)
	return r, m
}

func TestGetSettingQuantity(t *testing.T) {
	r, _ := setup()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/amplitude", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", w.Code)
	}
	if body := strings.TrimSpace(w.Body.String()); body != `{"f64":1.5,"unit":"V"}` {
		t.Errorf("expected quantity payload got %s", body)
	}
}

func TestSetSettingWrites(t *testing.T) {
	r, m := setup()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/amplitude", strings.NewReader(`{"str": "2 V"}`)))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", w.Code, w.Body.String())
	}
	if diff := cmp.Diff([]string{"SLVL 2"}, m.Log()); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestSetSettingOutOfRange(t *testing.T) {
	r, m := setup()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/amplitude", strings.NewReader(`{"str": "9"}`)))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 got %d", w.Code)
	}
	if len(m.Log()) != 0 {
		t.Errorf("expected nothing written, got %v", m.Log())
	}
}

func TestSetSettingGarbage(t *testing.T) {
	r, _ := setup()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/amplitude", strings.NewReader(`{"str": "loud"}`)))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 got %d", w.Code)
	}
}
