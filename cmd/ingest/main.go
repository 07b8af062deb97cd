// Command ingest runs a single ingestion cycle under the cycle lock and
// exits. It exits with status 1 when the cycle fails.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"crypto-feature-pipeline/internal/app"
	"crypto-feature-pipeline/internal/config"
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

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Error("ingest failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *logrus.Logger) error {
	a, err := app.New(ctx, cfg, log, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	ran, err := a.Scheduler.RunOnce(ctx)
	if err != nil {
		return err
	}
	if !ran {
		log.Warn("cycle skipped, another run holds the lock")
		return nil
	}

	st := a.Scheduler.Status()
	if st.LastResult != nil {
		log.WithFields(logrus.Fields{
			"cycle_id":          st.LastResult.CycleID,
			"fetched":           st.LastResult.Fetched,
			"raw_inserted":      st.LastResult.RawInserted,
			"features_inserted": st.LastResult.FeaturesInserted,
		}).Info("ingest complete")
	}
	return nil
}
