// Package metrics exposes Prometheus collectors for the sync core.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionStatus is 1 for the current stream status and 0 for the rest.
	ConnectionStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tracksync_connection_status",
		Help: "Current tracking stream status (1 = active)",
	}, []string{"status"})

	// ReconnectsScheduled counts reconnect timers armed after unintended closes.
	ReconnectsScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracksync_reconnects_scheduled_total",
		Help: "Reconnect attempts scheduled after unintended closes",
	})

	// FramesReceived counts inbound frames by type.
	FramesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracksync_frames_received_total",
		Help: "Inbound stream frames by message type",
	}, []string{"type"})

	// FramesDropped counts frames that could not be decoded.
	FramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracksync_frames_dropped_total",
		Help: "Malformed inbound frames dropped",
	})

	// QueueItems tracks queue depth by status.
	QueueItems = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tracksync_queue_items",
		Help: "Outbound queue items by status",
	}, []string{"status"})

	// QueueSubmissions counts delivery attempts by priority and result.
	QueueSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracksync_queue_submissions_total",
		Help: "Outbound delivery attempts by priority and result",
	}, []string{"priority", "result"})

	// CacheLookups counts cache fetch outcomes by key.
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracksync_cache_lookups_total",
		Help: "Cache fetch outcomes by key (hit, fetched, joined, stale, error)",
	}, []string{"key", "result"})

	// CacheFetchDuration tracks source fetch latency.
	CacheFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tracksync_cache_fetch_duration_seconds",
		Help:    "Collection fetch duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~5s
	}, []string{"key"})
)

// SetConnectionStatus marks status as the active one among all.
func SetConnectionStatus(status string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == status {
			v = 1
		}
		ConnectionStatus.WithLabelValues(s).Set(v)
	}
}

// Serve exposes /metrics on addr until ctx is cancelled. An empty addr is a
// no-op.
func Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	if addr == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
