// Command server runs the ingestion scheduler and the ops HTTP server
// (/healthz, /metrics, /status, /features/latest) in one process.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"crypto-feature-pipeline/internal/app"
	"crypto-feature-pipeline/internal/config"
	"crypto-feature-pipeline/internal/logger"
)

func main() {
	configPath := flag.String("config", "", "Optional YAML config file")
	envFile := flag.String("env-file", ".env", "Optional .env file, never overrides the environment")
	flag.Parse()

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := app.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	app.HandleSignals(cancel, log)

	a, err := app.New(ctx, cfg, log, app.Options{})
	if err != nil {
		log.WithError(err).Fatal("init")
	}
	defer a.Close()

	log.WithFields(logrus.Fields{
		"coin":            cfg.CoinID,
		"interval":        cfg.Interval.String(),
		"raw_backend":     cfg.Storage.RawBackend,
		"feature_backend": cfg.Storage.FeatureBackend,
		"retry_policy":    cfg.Retry.Policy,
	}).Info("starting server")

	srv := a.NewHTTPServer(time.Now())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = a.Scheduler.Run(ctx)
	}()

	if err := app.Serve(ctx, srv, logger.WithComponent(log, "http")); err != nil {
		log.WithError(err).Error("http server")
		cancel()
	}

	wg.Wait()
	log.Info("shutdown complete")
}
