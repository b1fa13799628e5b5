// Package metrics exposes Prometheus counters for listing and restore traffic.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	listingRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "restorepick_listing_requests_total",
			Help: "Total number of directory listing requests",
		},
		[]string{"source", "status"},
	)

	listingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "restorepick_listing_duration_seconds",
			Help:    "Directory listing latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	listingCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "restorepick_listing_cache_total",
			Help: "Listing cache lookups",
		},
		[]string{"result"},
	)

	restoreRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "restorepick_restore_requests_total",
			Help: "Total restore and download requests",
		},
		[]string{"kind", "status"},
	)

	restoreItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "restorepick_restore_items_total",
			Help: "Items covered by submitted restore and download requests",
		},
		[]string{"kind"},
	)

	treeNodes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "restorepick_tree_nodes",
			Help: "Nodes loaded in the current browse session",
		},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordListing(source string, duration time.Duration, success bool) {
	listingRequestsTotal.WithLabelValues(source, status(success)).Inc()
	listingDuration.WithLabelValues(source).Observe(duration.Seconds())
}

func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	listingCacheTotal.WithLabelValues(result).Inc()
}

func RecordRestore(kind string, items int, success bool) {
	restoreRequestsTotal.WithLabelValues(kind, status(success)).Inc()
	if success {
		restoreItems.WithLabelValues(kind).Add(float64(items))
	}
}

func SetTreeNodes(count int) {
	treeNodes.Set(float64(count))
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
