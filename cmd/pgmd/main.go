// Command pgmd is the PGM broker server: one positional argument (the
// listening port), no subcommands (spec §6).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/GliAcopo/pgmd/internal/config"
	"github.com/GliAcopo/pgmd/internal/logging"
	"github.com/GliAcopo/pgmd/internal/metrics"
	"github.com/GliAcopo/pgmd/internal/server"
)

func main() {
	cfg := config.Resolve(os.Args[1:], os.LookupEnv)

	logLevel := "info"
	if lvl, ok := os.LookupEnv("PGM_LOG_LEVEL"); ok && lvl != "" {
		logLevel = lvl
	}
	logger := logging.NewLogger(logLevel)

	var collector metrics.Collector = &metrics.NoopCollector{}
	if addr, ok := os.LookupEnv("PGM_METRICS_ADDR"); ok && addr != "" {
		collector = metrics.NewPrometheusCollector(prometheus.DefaultRegisterer)
		metricsServer := metrics.NewPrometheusServer(addr, "/metrics")
		go func() {
			if err := metricsServer.Start(context.Background()); err != nil {
				logger.Error("metrics server error", "error", err)
			}
		}()
		logger.Info("metrics server started", "address", addr)
	}

	baseDir, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error resolving working directory: %v\n", err)
		os.Exit(1)
	}

	srv := server.New(server.Config{
		Port:    cfg.Port,
		BaseDir: baseDir,
		Logger:  logger,
		Metrics: collector,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	logger.Info("starting pgmd", "port", cfg.Port)
	if err := srv.Run(ctx); err != nil && err != context.Canceled {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
	logger.Info("pgmd stopped")
}
