package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/nasa-jpl/instrumentkit/comm"
	"github.com/nasa-jpl/instrumentkit/connect"
	"github.com/nasa-jpl/instrumentkit/generichttp"
	"github.com/nasa-jpl/instrumentkit/server/middleware/locker"
	"github.com/nasa-jpl/instrumentkit/srs"
	"github.com/nasa-jpl/instrumentkit/telemetry"
	"github.com/nasa-jpl/instrumentkit/thorlabs"
)

// LogSetup configures logrus
type LogSetup struct {
	// Level is a logrus level name, e.g. info or debug
	Level string `koanf:"Level" yaml:"Level"`

	// Format is text or json
	Format string `koanf:"Format" yaml:"Format"`
}

// MQTTSetup configures publishing of polled readings.  An empty Broker
// disables publishing.
type MQTTSetup struct {
	Broker   string `koanf:"Broker" yaml:"Broker"`
	ClientID string `koanf:"ClientID" yaml:"ClientID"`

	// Prefix is prepended to each node's endpoint to make its topic
	Prefix string `koanf:"Prefix" yaml:"Prefix"`

	// Interval between polls, e.g. 10s
	Interval time.Duration `koanf:"Interval" yaml:"Interval"`
}

// ObjSetup holds what is needed to open one instrument
type ObjSetup struct {
	// Type is the kind of instrument, sr830 or tc200
	Type string `koanf:"Type" yaml:"Type"`

	// Endpoint is the path the instrument's routes are served under, e.g. /lockin
	Endpoint string `koanf:"Endpoint" yaml:"Endpoint"`

	// Conn is serial, tcp, gpib or usbtmc
	Conn string `koanf:"Conn" yaml:"Conn"`

	// Addr is a device path for serial and gpib (the Prologix adapter's
	// port), host:port for tcp, and vid:pid for usbtmc
	Addr string `koanf:"Addr" yaml:"Addr"`

	// GPIBAddr is the instrument's address on the bus
	GPIBAddr int `koanf:"GPIBAddr" yaml:"GPIBAddr"`

	// Baud overrides the instrument's default serial rate
	Baud int `koanf:"Baud" yaml:"Baud"`

	// OutputInterface forces the SR830's OUTX choice, gpib or serial
	OutputInterface string `koanf:"OutputInterface" yaml:"OutputInterface"`

	// RateLimit is the most commands per second sent over serial or tcp, 0 does not limit
	RateLimit float64 `koanf:"RateLimit" yaml:"RateLimit"`
}

// Config is a struct that holds the initialization parameters for the server
type Config struct {
	// Addr is the address to listen at
	Addr string `koanf:"Addr" yaml:"Addr"`

	// Mock replaces every instrument with a simulator
	Mock bool `koanf:"Mock" yaml:"Mock"`

	Log LogSetup `koanf:"Log" yaml:"Log"`

	// Metrics serves prometheus metrics at /metrics
	Metrics bool `koanf:"Metrics" yaml:"Metrics"`

	MQTT MQTTSetup `koanf:"MQTT" yaml:"MQTT"`

	// Nodes is the list of nodes to set up
	Nodes []ObjSetup `koanf:"Nodes" yaml:"Nodes"`
}

// Built is a mux and the pollable nodes behind it
type Built struct {
	Mux   chi.Router
	Nodes []telemetry.Node

	// Metrics is nil unless Config.Metrics
	Metrics *telemetry.Metrics

	closers []func() error
}

// Close releases every instrument's channel
func (b *Built) Close() error {
	var first error
	for _, c := range b.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// SetupLogging configures the standard logrus logger
func SetupLogging(l LogSetup) error {
	if l.Level != "" {
		lvl, err := logrus.ParseLevel(l.Level)
		if err != nil {
			return err
		}
		logrus.SetLevel(lvl)
	}
	switch strings.ToLower(l.Format) {
	case "", "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("log format %q not understood, use text or json", l.Format)
	}
	return nil
}

func (o ObjSetup) spec() connect.Spec {
	return connect.Spec{Conn: o.Conn, Addr: o.Addr, GPIBAddr: o.GPIBAddr, Baud: o.Baud, RateLimit: o.RateLimit}
}

// BuildMux opens every node and mounts its routes under its endpoint.
// The mux serves a special route, /endpoints, which returns a map of
// endpoint to routes as JSON.
func BuildMux(c Config) (*Built, error) {
	root := chi.NewRouter()
	root.Use(middleware.Logger)
	b := &Built{Mux: root}
	supergraph := map[string][]string{}

	for _, node := range c.Nodes {
		var (
			httper generichttp.HTTPer
			src    telemetry.Source
		)
		hndlS := generichttp.SubMuxSanitize(node.Endpoint)
		if _, dup := supergraph[hndlS]; dup {
			b.Close()
			return nil, fmt.Errorf("endpoint %s is used more than once", hndlS)
		}
		log := logrus.WithFields(logrus.Fields{"node": hndlS, "type": node.Type})
		lock := locker.New()

		typ := strings.ToLower(node.Type)
		switch typ {
		case "sr830", "lockin", "srs":
			var (
				ch  comm.Channel
				err error
			)
			if c.Mock {
				ch = srs.NewSimulator()
			} else {
				ch, err = connect.Open(node.spec(), comm.Terminators{Tx: '\r', Rx: '\r'}, 9600, log)
			}
			if err != nil {
				b.Close()
				return nil, fmt.Errorf("%s: %w", hndlS, err)
			}
			oi, err := srs.ParseOutputInterface(node.OutputInterface)
			if err != nil {
				b.Close()
				return nil, fmt.Errorf("%s: %w", hndlS, err)
			}
			sr, err := srs.NewSR830(ch, srs.Config{OutputInterface: oi, Log: log})
			if err != nil {
				b.Close()
				return nil, fmt.Errorf("%s: %w", hndlS, err)
			}
			b.closers = append(b.closers, sr.Close)
			httper = srs.NewHTTPWrapper(sr, lock)
			src = sr

		case "tc200", "thorlabs-tc200":
			var (
				ch  comm.Channel
				err error
			)
			if c.Mock {
				ch = thorlabs.NewSimulator()
			} else {
				ch, err = connect.Open(node.spec(), thorlabs.Terminators, thorlabs.Baud, log)
			}
			if err != nil {
				b.Close()
				return nil, fmt.Errorf("%s: %w", hndlS, err)
			}
			tc := thorlabs.NewTC200(ch, log)
			b.closers = append(b.closers, tc.Close)
			httper = thorlabs.NewHTTPWrapper(tc, lock)
			src = tc

		default:
			b.Close()
			return nil, fmt.Errorf("type %q not understood", node.Type)
		}

		supergraph[hndlS] = httper.RT().Endpoints()
		b.Nodes = append(b.Nodes, telemetry.Node{Name: strings.TrimPrefix(hndlS, "/"), Source: src, Busy: lock.Locked})

		r := chi.NewRouter()
		r.Use(lock.Check)
		httper.RT().Bind(r)
		root.Mount(hndlS, r)
	}
	if len(c.Nodes) == 0 {
		return nil, fmt.Errorf("no nodes are configured")
	}
	if c.Metrics {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		b.Metrics = telemetry.NewMetrics(reg)
		root.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	root.Get("/endpoints", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		err := json.NewEncoder(w).Encode(supergraph)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	return b, nil
}
