// Package telemetry polls instruments and exports what they read to
// prometheus and to an MQTT broker
package telemetry

import (
	"context"
	"encoding/json"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Source is an instrument that can report a set of named readings at once
type Source interface {
	Snapshot() (map[string]float64, error)
}

// SourceFunc adapts a function to a Source
type SourceFunc func() (map[string]float64, error)

// Snapshot calls f
func (f SourceFunc) Snapshot() (map[string]float64, error) {
	return f()
}

// Node is a named Source.  Busy, if not nil, is checked before each poll and
// the node is skipped while it returns true.
type Node struct {
	Name   string
	Source Source
	Busy   func() bool
}

// Metrics holds the prometheus collectors the Poller updates
type Metrics struct {
	Readings   *prometheus.GaugeVec
	PollErrors *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Readings: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "instrumentkit",
			Name:      "reading",
			Help:      "Last value read from an instrument",
		}, []string{"node", "quantity"}),
		PollErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "instrumentkit",
			Name:      "poll_errors_total",
			Help:      "Polls of an instrument that failed",
		}, []string{"node"}),
	}
	reg.MustRegister(m.Readings, m.PollErrors)
	return m
}

// Observe sets the gauge of each reading
func (m *Metrics) Observe(node string, r map[string]float64) {
	for q, v := range r {
		m.Readings.WithLabelValues(node, q).Set(v)
	}
}

// Failed counts a failed poll
func (m *Metrics) Failed(node string) {
	m.PollErrors.WithLabelValues(node).Inc()
}

// Publisher sends a payload to a topic
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// MQTTPublisher is a Publisher over an autopaho connection, which reconnects
// on its own until Close
type MQTTPublisher struct {
	// QoS of every publish
	QoS byte

	cm *autopaho.ConnectionManager
}

// DialMQTT connects to broker, e.g. mqtt://localhost:1883, and waits for the
// first connection to come up or ctx to end
func DialMQTT(ctx context.Context, broker, clientID string, log logrus.FieldLogger) (*MQTTPublisher, error) {
	u, err := url.Parse(broker)
	if err != nil {
		return nil, err
	}
	cfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{u},
		KeepAlive:                     20,
		CleanStartOnInitialConnection: true,
		SessionExpiryInterval:         60,
		OnConnectionUp: func(*autopaho.ConnectionManager, *paho.Connack) {
			log.WithField("broker", broker).Info("mqtt connection up")
		},
		OnConnectError: func(err error) {
			log.WithError(err).WithField("broker", broker).Warn("mqtt connection attempt failed")
		},
		ClientConfig: paho.ClientConfig{
			ClientID:      clientID,
			OnClientError: func(err error) { log.WithError(err).Warn("mqtt client error") },
		},
	}
	cm, err := autopaho.NewConnection(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err = cm.AwaitConnection(ctx); err != nil {
		return nil, err
	}
	return &MQTTPublisher{QoS: 1, cm: cm}, nil
}

// Publish sends payload to topic and waits for the broker to acknowledge it
func (p *MQTTPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	_, err := p.cm.Publish(ctx, &paho.Publish{QoS: p.QoS, Topic: topic, Payload: payload})
	return err
}

// Close disconnects from the broker
func (p *MQTTPublisher) Close(ctx context.Context) error {
	return p.cm.Disconnect(ctx)
}

// Message is what the Poller publishes for a node
type Message struct {
	Node     string             `json:"node"`
	Time     time.Time          `json:"time"`
	Readings map[string]float64 `json:"readings"`
}

// Poller reads every node on an interval.  Metrics and Publisher are optional.
type Poller struct {
	Nodes     []Node
	Interval  time.Duration
	Metrics   *Metrics
	Publisher Publisher

	// Prefix is prepended to the node name to make the topic
	Prefix string

	Log logrus.FieldLogger

	// Now is time.Now if nil
	Now func() time.Time
}

// Topic returns the topic a node publishes to
func (p *Poller) Topic(node string) string {
	if p.Prefix == "" {
		return node
	}
	return strings.TrimSuffix(p.Prefix, "/") + "/" + strings.TrimPrefix(node, "/")
}

func (p *Poller) log() logrus.FieldLogger {
	if p.Log == nil {
		return logrus.StandardLogger()
	}
	return p.Log
}

func (p *Poller) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}

// PollOnce reads every node that is not busy and returns the names of the
// nodes read successfully, sorted
func (p *Poller) PollOnce(ctx context.Context) []string {
	var ok []string
	for _, n := range p.Nodes {
		if n.Busy != nil && n.Busy() {
			p.log().WithField("node", n.Name).Debug("node busy, poll skipped")
			continue
		}
		r, err := n.Source.Snapshot()
		if err != nil {
			p.log().WithError(err).WithField("node", n.Name).Warn("poll failed")
			if p.Metrics != nil {
				p.Metrics.Failed(n.Name)
			}
			continue
		}
		if p.Metrics != nil {
			p.Metrics.Observe(n.Name, r)
		}
		if p.Publisher != nil {
			payload, err := json.Marshal(Message{Node: n.Name, Time: p.now(), Readings: r})
			if err == nil {
				err = p.Publisher.Publish(ctx, p.Topic(n.Name), payload)
			}
			if err != nil {
				p.log().WithError(err).WithField("node", n.Name).Warn("publish failed")
			}
		}
		ok = append(ok, n.Name)
	}
	sort.Strings(ok)
	return ok
}

// Run polls every Interval until ctx is done
func (p *Poller) Run(ctx context.Context) error {
	t := time.NewTicker(p.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			p.PollOnce(ctx)
		}
	}
}
