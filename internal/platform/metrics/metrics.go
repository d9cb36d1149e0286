package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the verification engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	VerificationEvents *prometheus.CounterVec
	LockWait           prometheus.Histogram
	WSConnections      prometheus.Gauge
	RoomMembers        prometheus.Gauge
	StatusTransitions  *prometheus.CounterVec
	HTTPLatency        *prometheus.HistogramVec
}

// New creates and registers all collectors on reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		VerificationEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lms_verification_events_total",
			Help: "Verification events handled, by event type and outcome",
		}, []string{"event", "outcome"}),
		LockWait: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "lms_verification_lock_wait_seconds",
			Help:    "Time spent waiting for the per-application execution token",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		WSConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lms_ws_connections",
			Help: "Open authenticated websocket connections",
		}),
		RoomMembers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lms_room_members",
			Help: "Room memberships across all applications",
		}),
		StatusTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lms_status_transitions_total",
			Help: "Application status transitions, by target status",
		}, []string{"to"}),
		HTTPLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lms_http_request_duration_seconds",
			Help:    "HTTP request latency, by route pattern and status class",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}

// ObserveEvent counts one handled event. outcome is "ok" or an error code.
func (m *Metrics) ObserveEvent(event, outcome string) {
	if m == nil {
		return
	}
	m.VerificationEvents.WithLabelValues(event, outcome).Inc()
}

// ObserveLockWait records token wait time. Call with time.Now() taken before Lock.
func (m *Metrics) ObserveLockWait(start time.Time) {
	if m == nil {
		return
	}
	m.LockWait.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementTransition(to string) {
	if m == nil {
		return
	}
	m.StatusTransitions.WithLabelValues(to).Inc()
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}

// AddRoomMembers adjusts the membership gauge by delta.
func (m *Metrics) AddRoomMembers(delta int) {
	if m == nil || delta == 0 {
		return
	}
	m.RoomMembers.Add(float64(delta))
}

// ObserveHTTP records one served request. route is the matched pattern, not
// the raw path.
func (m *Metrics) ObserveHTTP(route string, status int, start time.Time) {
	if m == nil {
		return
	}
	m.HTTPLatency.WithLabelValues(route, strconv.Itoa(status/100)+"xx").Observe(time.Since(start).Seconds())
}
