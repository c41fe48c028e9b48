package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/calder-io/flowgate/internal/engine"
	"github.com/calder-io/flowgate/internal/logging"
	"github.com/calder-io/flowgate/internal/scheduler"
	"github.com/calder-io/flowgate/internal/store"
)

func main() {
	var err error
	if len(os.Args) > 1 && os.Args[1] == "diagram" {
		err = runDiagram(os.Args[2:])
	} else {
		err = run()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "flowgate:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := loadConfig()

	logger := slog.New(logging.NewCorrelationHandler(
		slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)}),
	))
	slog.SetDefault(logger)

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	eng, err := engine.New(st, nil, engine.Config{
		RetryBackoffBase: cfg.retryBackoff(),
		WorkerPoolSize:   cfg.PoolSize,
		Logger:           logger,
	})
	if err != nil {
		return fmt.Errorf("init engine: %w", err)
	}
	defer eng.Shutdown()

	var sched *scheduler.Scheduler
	if cfg.Scheduler {
		sched = scheduler.New(st, eng, logger)
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer sched.Stop()
	}

	logger.Info("flowgate engine started",
		"db_path", cfg.DBPath,
		"pool_size", cfg.PoolSize,
		"scheduler", cfg.Scheduler,
	)

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}
