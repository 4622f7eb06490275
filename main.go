package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"quill/internal/app"
	"quill/internal/config"
	"quill/internal/worker"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// run serves the API and the task consumers until ctx is canceled.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	application, err := app.New(cfg, deps.DB, deps.VectorStore, deps.NSQProducer, logger, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := application.Close(); err != nil {
			slog.Warn("failed to release resources", "error", err)
		}
	}()

	if cfg.EnableWorkers {
		consumers, err := worker.Start(worker.Options{
			NSQLookupd: cfg.NSQLookupd,
			NSQDHost:   cfg.NSQDHost,
		}, application.Bindings...)
		if err != nil {
			return fmt.Errorf("failed to start workers: %w", err)
		}
		defer worker.Stop(consumers)
	}

	if !cfg.EnableAPI {
		slog.Info("api disabled, running workers only")
		<-ctx.Done()
		return nil
	}

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
