package unit

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bft-labs/unitdebug/pkg/log"
)

// Metrics counts the messages a unit handled. Every Runtime has its own
// registry so several runtimes can live in one process.
type Metrics struct {
	registry     *prometheus.Registry
	received     prometheus.Counter
	sent         prometheus.Counter
	acknowledged prometheus.Counter
	failures     prometheus.Counter
	reloads      prometheus.Counter
}

func newMetrics(id string) *Metrics {
	labels := prometheus.Labels{"unit": id}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "unitdebug",
			Subsystem:   "unit",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
	}
	m := &Metrics{
		registry:     prometheus.NewRegistry(),
		received:     counter("messages_received_total", "Messages received from the source queue."),
		sent:         counter("messages_sent_total", "Messages sent, counted once per path."),
		acknowledged: counter("messages_acknowledged_total", "Messages acknowledged."),
		failures:     counter("process_failures_total", "Failed Process calls in the main loop."),
		reloads:      counter("reloads_total", "Runtime configuration reloads."),
	}
	m.registry.MustRegister(m.received, m.sent, m.acknowledged, m.failures, m.reloads)
	return m
}

// Registry returns the Prometheus registry holding the unit's counters.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the counters in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// serve exposes Handler on addr until ctx is done.
func (m *Metrics) serve(ctx context.Context, addr string, logger log.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", log.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server failed", log.Err(err))
	}
}
