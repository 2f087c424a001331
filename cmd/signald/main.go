package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mytradingsignal/internal/logger"
	"mytradingsignal/internal/metrics"
	"mytradingsignal/internal/trace"
)

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

func main() {
	must(initializeSystem())
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := loadConfig(ctx, configPath())
	must(err)

	svc, err := buildService(ctx, cfg)
	must(err)

	metricsSrv := metrics.Serve(cfg.MetricsAddr)
	httpSrv := &http.Server{
		Addr:              cfg.Hub.ListenAddr,
		Handler:           svc.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorWithErr(ctx, "Subscriber server failed", err, "addr", cfg.Hub.ListenAddr)
			cancel()
		}
	}()

	svc.start(ctx)
	logger.Info(ctx, "Signal service started",
		"data_source", cfg.DataSource,
		"instruments", len(cfg.Instruments),
		"listen_addr", cfg.Hub.ListenAddr,
		"metrics_addr", cfg.MetricsAddr,
	)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sigc:
		logger.Info(ctx, "Shutting down...", "signal", s.String())
	case <-ctx.Done():
	}

	svc.stop()

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	_ = httpSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
	if err := trace.Shutdown(shutdownCtx); err != nil {
		logger.Warn(shutdownCtx, "Tracer shutdown failed", "error", err)
	}
}

func configPath() string {
	if p := os.Getenv("SIGNALD_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}
