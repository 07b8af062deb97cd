package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"crypto-feature-pipeline/internal/config"
	"crypto-feature-pipeline/internal/httpapi"
	"crypto-feature-pipeline/internal/logger"
)

// ShutdownTimeout bounds graceful shutdown before the process is forced down.
const ShutdownTimeout = 30 * time.Second

// NewLogger builds the process logger from cfg.
func NewLogger(cfg config.LoggingConfig) (*logrus.Logger, error) {
	return logger.New(logger.Options{
		Level:  cfg.Level,
		Format: cfg.Format,
		Output: cfg.Output,
		MaxAge: cfg.MaxAge,
	})
}

// HandleSignals cancels on the first SIGINT/SIGTERM. A second signal, or
// graceful shutdown exceeding ShutdownTimeout, exits with status 1.
func HandleSignals(cancel context.CancelFunc, log logrus.FieldLogger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.WithField("signal", sig.String()).Info("shutting down")
		cancel()

		select {
		case sig = <-sigCh:
			log.WithField("signal", sig.String()).Error("second signal, forcing exit")
			os.Exit(1)
		case <-time.After(ShutdownTimeout):
			log.Error("graceful shutdown timed out")
			os.Exit(1)
		}
	}()
}

// NewHTTPServer builds the ops server for a. started feeds /status uptime.
func (a *App) NewHTTPServer(started time.Time) *http.Server {
	router := httpapi.NewRouter(httpapi.Options{
		Gatherer: a.Registry,
		Status:   a.Scheduler,
		Features: a.Stores.Features,
		Logger:   logger.WithComponent(a.Log, "http"),
		Started:  started,
	})
	return &http.Server{
		Addr:              a.Config.MetricsAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Serve runs srv until ctx is done, then shuts it down.
func Serve(ctx context.Context, srv *http.Server, log logrus.FieldLogger) error {
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
