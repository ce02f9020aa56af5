// Package metrics exposes Prometheus counters for the transcoder and the
// transport around it.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "alturbridge"

// Envelope outcomes on the inbound path.
const (
	EnvelopeOK        = "ok"
	EnvelopeMismatch  = "mismatch"
	EnvelopeMalformed = "malformed"
)

// Payload directions.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Collector groups the bridge's metrics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	framesSerialized *prometheus.CounterVec
	envelopes        *prometheus.CounterVec
	payloadBytes     *prometheus.CounterVec
	codecErrors      prometheus.Counter
	activeSessions   prometheus.Gauge
}

// NewCollector registers the bridge's metrics on reg. Pass
// prometheus.DefaultRegisterer to expose them on the default /metrics handler.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		framesSerialized: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_serialized_total",
			Help:      "Outbound frames that produced a wire message, by frame kind",
		}, []string{"kind"}),
		envelopes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelopes_total",
			Help:      "Inbound envelopes by outcome",
		}, []string{"result"}),
		payloadBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payload_bytes_total",
			Help:      "µ-law payload bytes by direction",
		}, []string{"direction"}),
		codecErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "codec_errors_total",
			Help:      "Codec contract violations on either path",
		}),
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Calls currently bound to a transcoder",
		}),
	}
}

func (c *Collector) FrameSerialized(kind string) {
	if c == nil {
		return
	}
	c.framesSerialized.WithLabelValues(kind).Inc()
}

func (c *Collector) Envelope(result string) {
	if c == nil {
		return
	}
	c.envelopes.WithLabelValues(result).Inc()
}

func (c *Collector) PayloadBytes(direction string, n int) {
	if c == nil {
		return
	}
	c.payloadBytes.WithLabelValues(direction).Add(float64(n))
}

func (c *Collector) CodecError() {
	if c == nil {
		return
	}
	c.codecErrors.Inc()
}

func (c *Collector) SessionStarted() {
	if c == nil {
		return
	}
	c.activeSessions.Inc()
}

func (c *Collector) SessionEnded() {
	if c == nil {
		return
	}
	c.activeSessions.Dec()
}
