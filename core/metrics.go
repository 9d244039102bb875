package volstress

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Metrics exposes live run counters on a Prometheus scrape endpoint, for
// watching a long load run from the outside while the archives are still
// being written. The observe methods are safe on a nil receiver, so a
// runner without metrics needs no guards.
type Metrics struct {
	registry *prometheus.Registry
	server   *http.Server
	ln       net.Listener
	log      *logrus.Entry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	loopingUsers    *prometheus.GaugeVec
}

func NewMetrics(log *logrus.Entry) *Metrics {
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		log:      log,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "volstress",
			Name:      "requests_total",
			Help:      "Archived request samples per scenario, step and result.",
		}, []string{"scenario", "step", "result"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "volstress",
			Name:      "request_duration_seconds",
			Help:      "Round-trip duration of archived request samples.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"scenario", "step"}),
		loopingUsers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "volstress",
			Name:      "looping_users",
			Help:      "Currently looping users per scenario.",
		}, []string{"scenario"}),
	}
	m.registry.MustRegister(m.requestsTotal, m.requestDuration, m.loopingUsers)
	return m
}

// Serve starts the scrape endpoint on addr and returns once the listener is
// bound. Serving continues in the background until Shutdown.
func (m *Metrics) Serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listen: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Handler: mux,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.log.WithError(err).Warn("metrics serve error")
		}
	}()
	m.server = srv
	m.ln = ln
	m.log.WithField("addr", ln.Addr().String()).Info("metrics endpoint up")
	return nil
}

// Addr returns the bound listen address, useful when Serve was given ":0".
func (m *Metrics) Addr() string {
	if m == nil || m.ln == nil {
		return ""
	}
	return m.ln.Addr().String()
}

func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil || m.server == nil {
		return nil
	}
	if err := m.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server shutdown: %w", err)
	}
	return nil
}

func (m *Metrics) observeSample(scenario, step string, entry *StepEntry) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(scenario, step, sampleResult(entry)).Inc()
	if d, completed := entry.Timestamps.TotalDuration(); completed {
		m.requestDuration.WithLabelValues(scenario, step).Observe(d.Seconds())
	}
}

func (m *Metrics) setLoopingUsers(scenario string, n int) {
	if m == nil {
		return
	}
	m.loopingUsers.WithLabelValues(scenario).Set(float64(n))
}

func sampleResult(entry *StepEntry) string {
	switch {
	case entry.Timeout:
		return "timeout"
	case entry.Error:
		return "error"
	case entry.AssertionFailed:
		return "failure"
	default:
		return "success"
	}
}
