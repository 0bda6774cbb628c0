package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/sirupsen/logrus"

	yml "gopkg.in/yaml.v2"

	"github.com/nasa-jpl/instrumentkit/telemetry"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "ikserver.yml"

	// EnvPrefix marks environment variables that override the file,
	// e.g. IKSERVER_Addr=:9000
	EnvPrefix = "IKSERVER_"

	k = koanf.New(".")
)

func defaults() Config {
	return Config{
		Addr:  ":8000",
		Log:   LogSetup{Level: "info", Format: "text"},
		MQTT:  MQTTSetup{ClientID: "ikserver", Prefix: "instrumentkit", Interval: 10 * time.Second},
		Nodes: []ObjSetup{}}
}

func setupconfig() {
	k.Load(structs.Provider(defaults(), "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		if !strings.Contains(err.Error(), "no such") { // file missing, who cares
			logrus.Fatalf("error loading config: %v", err)
		}
	}
	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.TrimPrefix(s, EnvPrefix), "_", ".")
	}), nil)
	if err != nil {
		logrus.Fatalf("error loading environment: %v", err)
	}
}

func root() {
	str := `ikserver communicates with lock-in amplifiers and temperature controllers
and exposes an HTTP interface to them.

Usage:
	ikserver <command>

Commands:
	run
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `ikserver is amenable to configuration via its .yml file.  For a primer on YAML, see
https://yaml.org/start.html

Without a configuration, the server will close immediately and display an error
that there are no nodes.

No two nodes can have the same Endpoint.

Endpoints may look like any variation between "lab/lockin" or "/lab/lockin/*", the leading
slash is added and the trailing slash and * removed by the server.

Conn is one of serial (the default), tcp, gpib (through a Prologix adapter
on the serial port in Addr) or usbtmc (Addr is vid:pid, e.g. 0x1313:0x8048).

Hardware and matching "type" fields, case insensitive, alphabetical by vendor:
- Stanford Research Systems
	> SR830 lock-in amplifier "sr830", "lockin", "srs"
- Thorlabs
	> TC200 heater controller "tc200", "thorlabs-tc200"

Mock: true replaces every instrument with a simulator.
Metrics: true serves prometheus metrics at /metrics.
MQTT.Broker, e.g. mqtt://localhost:1883, publishes a reading of every node to
<MQTT.Prefix>/<Endpoint> every MQTT.Interval.

Any setting may be overridden from the environment with the IKSERVER_ prefix,
with _ separating levels, e.g. IKSERVER_Log_Level=debug`
	fmt.Println(str)
}

func mkconf() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		logrus.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		logrus.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		logrus.Fatal(err)
	}
}

func printconf() {
	c := Config{}
	k.Unmarshal("", &c)
	err := yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		logrus.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("ikserver version %v\n", Version)
}

func run() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		logrus.Fatal(err)
	}
	if err = SetupLogging(c.Log); err != nil {
		logrus.Fatal(err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	built, err := BuildMux(c)
	if err != nil {
		logrus.Fatal(err)
	}
	defer built.Close()

	poller := &telemetry.Poller{
		Nodes:    built.Nodes,
		Interval: c.MQTT.Interval,
		Metrics:  built.Metrics,
		Prefix:   c.MQTT.Prefix,
		Log:      logrus.WithField("component", "poller"),
	}
	if c.MQTT.Broker != "" {
		pub, err := telemetry.DialMQTT(ctx, c.MQTT.Broker, c.MQTT.ClientID, logrus.WithField("component", "mqtt"))
		if err != nil {
			logrus.Fatal(err)
		}
		defer pub.Close(context.Background())
		poller.Publisher = pub
	}
	if poller.Interval <= 0 {
		poller.Interval = defaults().MQTT.Interval
	}
	if poller.Publisher != nil || poller.Metrics != nil {
		go poller.Run(ctx)
	}

	srv := &http.Server{Addr: c.Addr, Handler: built.Mux}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()
	logrus.WithField("addr", c.Addr).Info("now listening for requests")
	if err = srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		logrus.Fatal(err)
	}
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	switch cmd {
	case "help":
		help()
		return
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf()
		return
	case "run":
		run()
		return
	case "version":
		pversion()
		return
	default:
		logrus.Fatal("unknown command")
	}
}
