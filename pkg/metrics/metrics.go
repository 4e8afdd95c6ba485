// Package metrics exposes the crawler's counters in the Prometheus text
// format. Every method is safe on a nil *Registry, which records nothing.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/WessleyAI/autocrawl/pkg/mid"
)

const namespace = "autocrawl"

// Registry holds the crawler's collectors on a private Prometheus registry.
type Registry struct {
	reg *prometheus.Registry

	Searches      *prometheus.CounterVec
	Pages         *prometheus.CounterVec
	Links         *prometheus.CounterVec
	Records       *prometheus.CounterVec
	Written       *prometheus.CounterVec
	Drops         *prometheus.CounterVec
	FetchErrors   *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec
	QueueDepth    *prometheus.GaugeVec
}

// New creates a registry with every crawler collector registered, plus the
// Go runtime and process collectors.
func New() *Registry {
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help}, labels)
	}
	r := &Registry{
		reg:         prometheus.NewRegistry(),
		Searches:    counter("searches_total", "Planned searches started.", "source"),
		Pages:       counter("pages_total", "Listing pages walked.", "source"),
		Links:       counter("links_total", "Advert links emitted by the listing stage.", "source"),
		Records:     counter("records_total", "Records that passed the validity gate.", "source"),
		Written:     counter("written_total", "Records newly stored by the writer.", "source"),
		Drops:       counter("drops_total", "Units of work dropped, by reason.", "source", "reason"),
		FetchErrors: counter("fetch_errors_total", "Failed HTTP fetches, by host and status.", "host", "status"),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "HTTP fetch latency.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
		}, []string{"host"}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Items buffered between pipeline stages.",
		}, []string{"queue"}),
	}
	r.reg.MustRegister(
		r.Searches, r.Pages, r.Links, r.Records, r.Written, r.Drops,
		r.FetchErrors, r.FetchDuration, r.QueueDepth,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Searched counts one started search.
func (r *Registry) Searched(source string) {
	if r == nil {
		return
	}
	r.Searches.WithLabelValues(source).Inc()
}

// PageWalked counts one listing page.
func (r *Registry) PageWalked(source string) {
	if r == nil {
		return
	}
	r.Pages.WithLabelValues(source).Inc()
}

// LinksEmitted counts n links handed to the detail stage.
func (r *Registry) LinksEmitted(source string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.Links.WithLabelValues(source).Add(float64(n))
}

// RecordAccepted counts one record that passed the validity gate.
func (r *Registry) RecordAccepted(source string) {
	if r == nil {
		return
	}
	r.Records.WithLabelValues(source).Inc()
}

// RecordsWritten counts n records stored by the writer.
func (r *Registry) RecordsWritten(source string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.Written.WithLabelValues(source).Add(float64(n))
}

// Drop counts n dropped units for reason.
func (r *Registry) Drop(source, reason string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.Drops.WithLabelValues(source, reason).Add(float64(n))
}

// ObserveFetch records one HTTP request. status 0 means no response.
func (r *Registry) ObserveFetch(host string, status int, d time.Duration, err error) {
	if r == nil {
		return
	}
	r.FetchDuration.WithLabelValues(host).Observe(d.Seconds())
	if err != nil {
		r.FetchErrors.WithLabelValues(host, strconv.Itoa(status)).Inc()
	}
}

// SetQueue records the current depth of a pipeline queue.
func (r *Registry) SetQueue(queue string, depth int) {
	if r == nil {
		return
	}
	r.QueueDepth.WithLabelValues(queue).Set(float64(depth))
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Serve runs a /metrics server on addr until ctx is done.
func (r *Registry) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok\n"))
	})
	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.OTel("metrics"),
		mid.Logger(logger),
		mid.Methods(http.MethodGet, http.MethodHead),
	)
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logger.Info("metrics.listening", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
