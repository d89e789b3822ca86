// Package metrics exposes Prometheus collectors for the event pipeline and
// the ledger, and the HTTP server that serves them.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	queueDepth      prometheus.Gauge
	queueItems      *prometheus.CounterVec
	queueDuration   prometheus.Histogram
	eventsProcessed *prometheus.CounterVec
	commands        *prometheus.CounterVec
	ledgerOps       *prometheus.CounterVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		queueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "event_queue_depth",
			Help: "Number of batches waiting in the event queue",
		}),
		queueItems: f.NewCounterVec(prometheus.CounterOpts{
			Name: "event_queue_items_total",
			Help: "Total number of processed queue items",
		}, []string{"status"}),
		queueDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "event_queue_item_duration_seconds",
			Help:    "Duration of queue item processing in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		eventsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "events_processed_total",
			Help: "Total number of inbound events by kind",
		}, []string{"kind"}),
		commands: f.NewCounterVec(prometheus.CounterOpts{
			Name: "commands_total",
			Help: "Total number of dispatched commands by outcome",
		}, []string{"command", "outcome"}),
		ledgerOps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Total number of ledger operations",
		}, []string{"operation", "status"}),
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// SetQueueDepth records the current backlog.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// ItemProcessed records one finished queue item.
func (m *Metrics) ItemProcessed(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.queueItems.WithLabelValues(status(err)).Inc()
	m.queueDuration.Observe(d.Seconds())
}

// EventProcessed counts one inbound event.
func (m *Metrics) EventProcessed(kind string) {
	if m == nil {
		return
	}
	m.eventsProcessed.WithLabelValues(kind).Inc()
}

// CommandDispatched counts one dispatch by its outcome.
func (m *Metrics) CommandDispatched(command, outcome string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(command, outcome).Inc()
}

// LedgerOperation counts one ledger mutation.
func (m *Metrics) LedgerOperation(op string, err error) {
	if m == nil {
		return
	}
	m.ledgerOps.WithLabelValues(op, status(err)).Inc()
}

// Pinger reports backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server serves /metrics and /healthz.
type Server struct {
	srv *http.Server
}

// NewServer builds the HTTP server. health may be nil.
func NewServer(addr string, gatherer prometheus.Gatherer, health Pinger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if health != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := health.Ping(ctx); err != nil {
				http.Error(w, "unhealthy: "+err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Run serves until ctx is done, then shuts the listener down.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.srv.Addr).Msg("Metrics server listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}
