package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func mockConfig() Config {
	return Config{
		Mock:    true,
		Metrics: true,
		Nodes: []ObjSetup{
			{Type: "SR830", Endpoint: "lab/lockin"},
			{Type: "tc200", Endpoint: "/lab/heater/*"},
		},
	}
}

func TestBuildMuxMock(t *testing.T) {
	b, err := BuildMux(mockConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	srv := httptest.NewServer(b.Mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/endpoints")
	if err != nil {
		t.Fatal(err)
	}
	graph := map[string][]string{}
	err = json.NewDecoder(resp.Body).Decode(&graph)
	resp.Body.Close()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := graph["/lab/lockin"]; !ok {
		t.Errorf("expected /lab/lockin in %v", graph)
	}
	if _, ok := graph["/lab/heater"]; !ok {
		t.Errorf("expected /lab/heater in %v", graph)
	}

	resp, err = http.Get(srv.URL + "/lab/heater/temperature-setpoint")
	if err != nil {
		t.Fatal(err)
	}
	body := map[string]float64{}
	json.NewDecoder(resp.Body).Decode(&body)
	resp.Body.Close()
	if body["f64"] != 25 {
		t.Errorf("expected setpoint 25 got %v", body)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected /metrics to be served, got %d", resp.StatusCode)
	}

	names := []string{}
	for _, n := range b.Nodes {
		names = append(names, n.Name)
	}
	if diff := cmp.Diff([]string{"lab/lockin", "lab/heater"}, names); diff != "" {
		t.Errorf("nodes mismatch (-want +got):\n%s", diff)
	}
}

func TestLockRefusesWrites(t *testing.T) {
	b, err := BuildMux(mockConfig())
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(b.Mux)
	defer srv.Close()
	resp, err := http.Post(srv.URL+"/lab/lockin/lock", "application/json", strings.NewReader(`{"bool": true}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	resp, err = http.Post(srv.URL+"/lab/lockin/phase", "application/json", strings.NewReader(`{"str": "10"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusLocked {
		t.Errorf("expected 423 got %d", resp.StatusCode)
	}
	if !b.Nodes[0].Busy() {
		t.Error("expected the poller to see the node as busy")
	}
}

func TestBuildMuxErrors(t *testing.T) {
	tests := map[string]Config{
		"no nodes":  {Mock: true},
		"bad type":  {Mock: true, Nodes: []ObjSetup{{Type: "esp301", Endpoint: "a"}}},
		"duplicate": {Mock: true, Nodes: []ObjSetup{{Type: "tc200", Endpoint: "a"}, {Type: "sr830", Endpoint: "/a/"}}},
		"bad outx":  {Mock: true, Nodes: []ObjSetup{{Type: "sr830", Endpoint: "a", OutputInterface: "ethernet"}}},
	}
	for name, c := range tests {
		if _, err := BuildMux(c); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
}

func TestSetupLogging(t *testing.T) {
	if err := SetupLogging(LogSetup{Level: "debug", Format: "json"}); err != nil {
		t.Error(err)
	}
	if err := SetupLogging(LogSetup{Level: "loud"}); err == nil {
		t.Error("expected an error for an unknown level")
	}
	if err := SetupLogging(LogSetup{Format: "xml"}); err == nil {
		t.Error("expected an error for an unknown format")
	}
	SetupLogging(LogSetup{Level: "info"})
}
