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

// Recorder records monitor activity using Prometheus.
type Recorder struct {
	registry *prometheus.Registry

	cycles        prometheus.Counter
	cycleDuration prometheus.Histogram
	fetchErrors   *prometheus.CounterVec
	findings      *prometheus.CounterVec
	decisions     *prometheus.CounterVec
	notifications *prometheus.CounterVec
	narratives    *prometheus.CounterVec
}

// New creates a recorder with its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		registry: reg,
		cycles: f.NewCounter(prometheus.CounterOpts{
			Name: "signalwatch_cycles_total",
			Help: "Total number of completed monitor cycles",
		}),
		cycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalwatch_cycle_duration_seconds",
			Help:    "Duration of monitor cycles in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		}),
		fetchErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signalwatch_fetch_errors_total",
			Help: "Series fetches that failed",
		}, []string{"timeframe"}),
		findings: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signalwatch_findings_total",
			Help: "Findings produced by detectors",
		}, []string{"indicator", "signal_type"}),
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signalwatch_decisions_total",
			Help: "Signal state decisions by outcome",
		}, []string{"outcome"}),
		notifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signalwatch_notifications_total",
			Help: "Alert deliveries by sink and status",
		}, []string{"sink", "status"}),
		narratives: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signalwatch_narratives_total",
			Help: "Narratives generated by model",
		}, []string{"model"}),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// ObserveCycle records one finished cycle.
func (r *Recorder) ObserveCycle(d time.Duration) {
	r.cycles.Inc()
	r.cycleDuration.Observe(d.Seconds())
}

func (r *Recorder) FetchError(timeframe string) {
	r.fetchErrors.WithLabelValues(timeframe).Inc()
}

func (r *Recorder) Finding(indicator, signalType string) {
	r.findings.WithLabelValues(indicator, signalType).Inc()
}

// Decision records an admitted or suppressed finding.
func (r *Recorder) Decision(admitted bool) {
	outcome := "suppressed"
	if admitted {
		outcome = "admitted"
	}
	r.decisions.WithLabelValues(outcome).Inc()
}

// Notification matches notify.ResultFunc.
func (r *Recorder) Notification(sink string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.notifications.WithLabelValues(sink, status).Inc()
}

func (r *Recorder) Narrative(model string) {
	r.narratives.WithLabelValues(model).Inc()
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (r *Recorder) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("metrics listener started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
