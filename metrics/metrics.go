package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spance/minicap-go/mirror/definitions"
)

// Metrics holds the mirroring counters. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	// Frame metrics
	FramesReceived prometheus.Counter
	FrameBytes     prometheus.Counter
	FrameSize      prometheus.Histogram

	// Stream metrics
	StreamsStarted prometheus.Counter
	StreamsEnded   *prometheus.CounterVec

	// Session metrics
	SessionStarts *prometheus.CounterVec
	SessionState  *prometheus.GaugeVec
	Restarts      prometheus.Counter

	// Viewer metrics
	ActiveViewers prometheus.Gauge
	ViewerDrops   prometheus.Counter
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FramesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "minicap_frames_received_total",
			Help: "Total number of frames received from the capture helper",
		}),
		FrameBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "minicap_frame_bytes_total",
			Help: "Total number of encoded frame bytes received",
		}),
		FrameSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "minicap_frame_size_bytes",
			Help:    "Size of encoded frames in bytes",
			Buckets: prometheus.ExponentialBuckets(4096, 2, 10), // 4KB to 2MB
		}),
		StreamsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "minicap_streams_started_total",
			Help: "Total number of frame streams connected",
		}),
		StreamsEnded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "minicap_streams_ended_total",
				Help: "Total number of frame streams ended, by reason",
			},
			[]string{"reason"}, // closed, incomplete_banner, truncated_frame, frame_too_large, transport
		),
		SessionStarts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "minicap_session_starts_total",
				Help: "Total number of capture session start attempts, by result",
			},
			[]string{"result"},
		),
		SessionState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "minicap_session_state",
				Help: "Current capture session state (1 for the active state)",
			},
			[]string{"serial", "state"},
		),
		Restarts: factory.NewCounter(prometheus.CounterOpts{
			Name: "minicap_session_restarts_total",
			Help: "Total number of rotation-triggered session restarts",
		}),
		ActiveViewers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "minicap_active_viewers",
			Help: "Number of connected viewer clients",
		}),
		ViewerDrops: factory.NewCounter(prometheus.CounterOpts{
			Name: "minicap_viewer_frames_dropped_total",
			Help: "Total number of frames skipped for viewers that fell behind",
		}),
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) FrameReceived(size int) {
	if m == nil {
		return
	}
	m.FramesReceived.Inc()
	m.FrameBytes.Add(float64(size))
	m.FrameSize.Observe(float64(size))
}

func (m *Metrics) StreamStarted() {
	if m == nil {
		return
	}
	m.StreamsStarted.Inc()
}

func (m *Metrics) StreamEnded(err error) {
	if m == nil {
		return
	}
	m.StreamsEnded.WithLabelValues(EndReason(err)).Inc()
}

func (m *Metrics) SessionStarted(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.SessionStarts.WithLabelValues(result).Inc()
}

// StateChanged marks state as the single active state for serial.
func (m *Metrics) StateChanged(serial string, prev, next definitions.SessionState) {
	if m == nil {
		return
	}
	m.SessionState.WithLabelValues(serial, prev.String()).Set(0)
	m.SessionState.WithLabelValues(serial, next.String()).Set(1)
}

func (m *Metrics) Restarted() {
	if m == nil {
		return
	}
	m.Restarts.Inc()
}

func (m *Metrics) ViewerConnected() {
	if m == nil {
		return
	}
	m.ActiveViewers.Inc()
}

func (m *Metrics) ViewerDisconnected() {
	if m == nil {
		return
	}
	m.ActiveViewers.Dec()
}

func (m *Metrics) ViewerFrameDropped() {
	if m == nil {
		return
	}
	m.ViewerDrops.Inc()
}

// EndReason classifies a stream termination error for labelling.
func EndReason(err error) string {
	switch {
	case err == nil:
		return "closed"
	case errors.Is(err, definitions.ErrIncompleteBanner):
		return "incomplete_banner"
	case errors.Is(err, definitions.ErrTruncatedFrame):
		return "truncated_frame"
	case errors.Is(err, definitions.ErrFrameTooLarge):
		return "frame_too_large"
	default:
		return "transport"
	}
}
