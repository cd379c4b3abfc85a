// Package main serves the cached COT positions, the contracts index and the
// positioning oscillators over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"cot-lab/internal/api"
	"cot-lab/internal/app"
	"cot-lab/internal/config"
	"cot-lab/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (default: $COT_CONFIG_FILE)")
	addr := flag.String("addr", "", "Listen address (overrides server.addr)")
	warm := flag.Bool("warm-catalog", false, "Load every report type's catalog before serving")
	flag.Parse()

	if err := run(*configPath, *addr, *warm); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, addr string, warm bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	logger, err := logging.New(cfg.LoggingOptions())
	if err != nil {
		return err
	}
	log := logging.Component(logger, "server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	core, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer core.Close()

	if warm {
		idx, err := core.Index(ctx)
		if err != nil {
			return fmt.Errorf("warm catalog: %w", err)
		}
		log.WithField("contracts", idx.Len()).Info("catalog loaded")
	}

	handler := api.NewHandler(core.Ranges, core.Catalog, core.Stores.Observations, logging.Component(logger, "api"))
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Server.Addr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("shutdown complete")
	return nil
}
