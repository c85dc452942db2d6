package main

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"
)

// runOnce performs a full run against cfg with a fresh Tester and prints the
// summary to out.
func runOnce(ctx context.Context, cfg *Config, logger log.Logger, out io.Writer) (*RunResult, error) {
	tester, err := NewTester(cfg)
	if err != nil {
		return nil, NewRuntimeError(err)
	}
	result := NewRunner(logger, cfg.APIBase(), out).Run(ctx, tester.Checks())
	printSummary(out, result, cfg.Color)

	if cfg.MetricsPushURL != "" {
		if err := PushMetrics(ctx, cfg.MetricsPushURL, cfg.APIBase()); err != nil {
			logger.Warn("Failed to push metrics", "url", cfg.MetricsPushURL, "err", err)
		} else {
			logger.Debug("Pushed metrics", "url", cfg.MetricsPushURL)
		}
	}
	return result, nil
}

// runMonitor runs immediately and then every cfg.Interval until ctx is done,
// serving Prometheus metrics on cfg.MetricsAddr meanwhile.
func runMonitor(ctx context.Context, cfg *Config, logger log.Logger, out io.Writer) error {
	logger.Info("Starting monitor", "target", cfg.APIBase(), "interval", cfg.Interval, "metrics", cfg.MetricsAddr)

	ln, err := net.Listen("tcp", cfg.MetricsAddr)
	if err != nil {
		return NewRuntimeError(errors.Wrap(err, "metrics server failed"))
	}
	srv := NewMetricsServer(cfg.MetricsAddr)
	srvErr := make(chan error, 1)
	go func() {
		logger.Info("Starting Prometheus metrics server", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
		close(srvErr)
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Metrics server shutdown failed", "err", err)
		}
	}()

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	// Run once immediately
	if err := monitorRun(ctx, cfg, logger, out); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("Monitor stopped")
			return nil
		case err, ok := <-srvErr:
			if ok && err != nil {
				return NewRuntimeError(errors.Wrap(err, "metrics server failed"))
			}
			srvErr = nil
		case <-ticker.C:
			if err := monitorRun(ctx, cfg, logger, out); err != nil {
				return err
			}
		}
	}
}

// monitorRun only returns an error when the run could not be performed.
// Failed checks are reported through logs and metrics.
func monitorRun(ctx context.Context, cfg *Config, logger log.Logger, out io.Writer) error {
	result, err := runOnce(ctx, cfg, logger, out)
	if err != nil {
		return err
	}
	if !result.Passed() {
		logger.Warn("Run had failing checks", "run_id", result.RunID, "failed", result.Stats.Failed, "total", result.Stats.Total)
	}
	return nil
}
