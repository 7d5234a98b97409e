// Package metrics exposes Prometheus instrumentation for the link layer:
// frame counts, retransmissions, rejects, and bytes transferred, labeled by
// connection ID and role so a fleet of devices can be scraped from one
// exporter. The shape follows the teacher pack's TCP-info collectors
// (runZeroInc-sockstats/pkg/exporter, runZeroInc-conniver/pkg/exporter),
// generalized from a custom prometheus.Collector to plain registered
// Counter/Gauge vectors, since this protocol's metrics are simple tallies
// rather than values read back from the kernel on each scrape.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	framesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "serialink_frames_sent_total",
		Help: "Frames written to the transport, by connection and command kind.",
	}, []string{"connection", "role", "kind"})

	framesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "serialink_frames_received_total",
		Help: "Frames successfully decoded from the transport, by connection and command kind.",
	}, []string{"connection", "role", "kind"})

	retransmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "serialink_retransmissions_total",
		Help: "Retransmissions of an outstanding command frame, by connection.",
	}, []string{"connection", "role"})

	rejects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "serialink_rejects_total",
		Help: "REJ responses observed for a given connection, by connection.",
	}, []string{"connection", "role"})

	bytesTransferred = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "serialink_information_bytes_total",
		Help: "Payload bytes carried by acknowledged information frames, by connection and direction.",
	}, []string{"connection", "role", "direction"})

	openConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "serialink_open_connections",
		Help: "Currently open link connections, by role.",
	}, []string{"role"})

	peerUnresponsive = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "serialink_peer_unresponsive_total",
		Help: "Operations that failed because the peer exhausted the retransmission budget.",
	}, []string{"connection", "role"})
)

// Recorder binds the package's metric vectors to one connection. The zero
// value is not usable; use nil (obtained by passing a nil *Recorder around)
// to disable instrumentation entirely — every method is nil-receiver-safe.
type Recorder struct {
	connectionID string
	role         string
}

// NewRecorder returns a Recorder that labels every metric it records with
// connectionID and role.
func NewRecorder(connectionID, role string) *Recorder {
	return &Recorder{connectionID: connectionID, role: role}
}

// Handler returns the Prometheus scrape endpoint for the process-wide
// registry every Recorder shares.
func Handler() http.Handler {
	return promhttp.Handler()
}

func (r *Recorder) FrameSent(kind string) {
	if r == nil {
		return
	}
	framesSent.WithLabelValues(r.connectionID, r.role, kind).Inc()
}

func (r *Recorder) FrameReceived(kind string) {
	if r == nil {
		return
	}
	framesReceived.WithLabelValues(r.connectionID, r.role, kind).Inc()
}

func (r *Recorder) Retransmission() {
	if r == nil {
		return
	}
	retransmissions.WithLabelValues(r.connectionID, r.role).Inc()
}

func (r *Recorder) Reject() {
	if r == nil {
		return
	}
	rejects.WithLabelValues(r.connectionID, r.role).Inc()
}

func (r *Recorder) BytesTransferred(direction string, n int) {
	if r == nil {
		return
	}
	bytesTransferred.WithLabelValues(r.connectionID, r.role, direction).Add(float64(n))
}

func (r *Recorder) ConnectionOpened() {
	if r == nil {
		return
	}
	openConnections.WithLabelValues(r.role).Inc()
}

func (r *Recorder) ConnectionClosed() {
	if r == nil {
		return
	}
	openConnections.WithLabelValues(r.role).Dec()
}

func (r *Recorder) PeerUnresponsive() {
	if r == nil {
		return
	}
	peerUnresponsive.WithLabelValues(r.connectionID, r.role).Inc()
}
