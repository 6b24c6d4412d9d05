// Package metrics exposes compositor and editor diagnostics as
// Prometheus collectors.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Recorder collects diagnostics. A nil *Recorder discards everything.
type Recorder struct {
	registry *prometheus.Registry

	compositions   *prometheus.CounterVec
	stale          prometheus.Counter
	degenerate     prometheus.Counter
	decodeFailures prometheus.Counter
	coverage       prometheus.Histogram
	duration       prometheus.Histogram
	edits          *prometheus.CounterVec
}

// New creates a recorder with its own registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		compositions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "overlay_compositions_total",
			Help: "Mask compositions by result mode",
		}, []string{"mode"}),
		stale: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "overlay_stale_compositions_total",
			Help: "Compositions discarded because a newer generation started",
		}),
		degenerate: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "overlay_degenerate_masks_total",
			Help: "Decoded masks flagged as likely degenerate",
		}),
		decodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "overlay_mask_decode_failures_total",
			Help: "Masks that failed to decode",
		}),
		coverage: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "overlay_mask_coverage_ratio",
			Help:    "Coloured pixels over total pixels per composition",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "overlay_composition_seconds",
			Help:    "Time spent decoding and compositing masks",
			Buckets: prometheus.DefBuckets,
		}),
		edits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "overlay_edits_total",
			Help: "Applied shape edits by kind",
		}, []string{"kind"}),
	}
	r.registry.MustRegister(r.compositions, r.stale, r.degenerate, r.decodeFailures, r.coverage, r.duration, r.edits)
	return r
}

// Registry returns the registry holding the recorder's collectors.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveComposition records one finished composition.
func (r *Recorder) ObserveComposition(mode string, coverage float64, d time.Duration) {
	if r == nil {
		return
	}
	r.compositions.WithLabelValues(mode).Inc()
	r.coverage.Observe(coverage)
	r.duration.Observe(d.Seconds())
}

// IncStale counts a discarded stale composition.
func (r *Recorder) IncStale() {
	if r == nil {
		return
	}
	r.stale.Inc()
}

// AddDegenerate counts masks flagged degenerate.
func (r *Recorder) AddDegenerate(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.degenerate.Add(float64(n))
}

// AddDecodeFailures counts masks that failed to decode.
func (r *Recorder) AddDecodeFailures(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.decodeFailures.Add(float64(n))
}

// IncEdit counts an applied edit of the given shape kind.
func (r *Recorder) IncEdit(kind string) {
	if r == nil {
		return
	}
	r.edits.WithLabelValues(kind).Inc()
}

// Handler serves the recorder's metrics.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Serve exposes /metrics on addr until ctx is done.
func (r *Recorder) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Info("metrics server listening", zap.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown", zap.Error(err))
		return err
	}
	return nil
}
