// Package metrics exposes Prometheus counters for the presale session core.
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
	// TransactionTotal counts submitted operations by kind and outcome.
	TransactionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dominix",
		Name:      "transactions_total",
		Help:      "Total number of orchestrated operations by kind and result.",
	}, []string{"kind", "result"})

	// RefreshTotal counts chain state refresh attempts by outcome.
	RefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dominix",
		Name:      "refreshes_total",
		Help:      "Total number of chain state refresh attempts by result.",
	}, []string{"result"})

	// NotificationTotal counts emitted user notifications by kind.
	NotificationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dominix",
		Name:      "notifications_total",
		Help:      "Total number of user notifications by kind.",
	}, []string{"kind"})
)

// StartServer launches a standalone HTTP server exposing the /metrics endpoint.
func StartServer(ctx context.Context, addr string) error {
	if addr == "" {
		return errors.New("metrics address is empty")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}
