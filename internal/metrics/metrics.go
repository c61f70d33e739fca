// Package metrics exposes Prometheus gauges and counters for the match and
// round orchestrators, grounded on the collector/describe style used in
// go-tcpinfo's pkg/exporter.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// RTTMillis is the most recent ping/pong round-trip time observed on
	// the data channel, labeled by session id.
	RTTMillis = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "tango",
		Subsystem: "match",
		Name:      "rtt_milliseconds",
		Help:      "Most recent ping/pong round-trip time in milliseconds.",
	}, []string{"session"})

	// QueueLength tracks the local and remote lockstep queue depths.
	QueueLength = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "tango",
		Subsystem: "lockstep",
		Name:      "queue_length",
		Help:      "Number of pending inputs in a lockstep queue.",
	}, []string{"session", "side"})

	// TPSBias tracks the per-round tick-rate adjustment applied to the
	// emulator's target FPS.
	TPSBias = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "tango",
		Subsystem: "round",
		Name:      "tps_bias",
		Help:      "Ticks-per-second bias currently applied to the emulator.",
	}, []string{"session"})

	// RoundsCompleted counts rounds by end reason.
	RoundsCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tango",
		Subsystem: "round",
		Name:      "completed_total",
		Help:      "Number of rounds that reached the Ended state, by outcome.",
	}, []string{"session", "outcome"})

	// DesyncsTotal counts fatal desync errors by kind.
	DesyncsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tango",
		Subsystem: "round",
		Name:      "desyncs_total",
		Help:      "Number of fatal desync errors observed, by kind.",
	}, []string{"session", "kind"})
)

// MustRegister registers all tango metrics with the given registerer. It is
// the caller's responsibility to avoid double registration across tests.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(RTTMillis, QueueLength, TPSBias, RoundsCompleted, DesyncsTotal)
}
