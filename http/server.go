package http

import (
	"context"
	"net/http"
	"time"

	"inviqa/notification-relay/config"
	"inviqa/notification-relay/log"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

func NewServeMux(cfg *config.Config, db Pinger, webhooks, api http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", NewHealthzHandler(cfg.GetDependencySystemAddresses(), db))
	mux.Handle("/webhooks", webhooks)
	mux.Handle("/", api)

	return mux
}

// StartHttpServer serves until ctx is cancelled and then drains in-flight
// requests.
func StartHttpServer(ctx context.Context, cfg *config.Config, handler http.Handler) error {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		log.Logger.Infof("HTTP server listening on %s", cfg.HTTPAddr)
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return errors.Wrap(err, "failed to start HTTP server")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "HTTP server did not shut down cleanly")
	}

	return nil
}
