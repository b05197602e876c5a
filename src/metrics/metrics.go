// Package metrics records run outcomes and durations.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Recorder holds the run metrics on a private registry.
type Recorder struct {
	registry *prometheus.Registry
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	rejected *prometheus.CounterVec
	inFlight prometheus.Gauge
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ai_book_reader_runs_total",
				Help: "Completed runs by kind and outcome code.",
			},
			[]string{"kind", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ai_book_reader_run_duration_seconds",
				Help:    "Run duration by kind.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"kind"},
		),
		rejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ai_book_reader_triggers_rejected_total",
				Help: "Triggers rejected by reason.",
			},
			[]string{"reason"},
		),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ai_book_reader_runs_in_flight",
			Help: "Runs currently executing.",
		}),
	}
	r.registry.MustRegister(r.runs, r.duration, r.rejected, r.inFlight)
	return r
}

// Started marks a run as in flight.
func (r *Recorder) Started() {
	if r == nil {
		return
	}
	r.inFlight.Inc()
}

// Finished records a run's outcome code and duration.
func (r *Recorder) Finished(kind, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.inFlight.Dec()
	r.runs.WithLabelValues(kind, outcome).Inc()
	r.duration.WithLabelValues(kind).Observe(d.Seconds())
}

// Rejected counts a trigger that did not start a run.
func (r *Recorder) Rejected(reason string) {
	if r == nil {
		return
	}
	r.rejected.WithLabelValues(reason).Inc()
}

// Handler exposes the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (r *Recorder) Serve(ctx context.Context, addr string, log logrus.FieldLogger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.WithField("addr", addr).Info("metrics endpoint listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
