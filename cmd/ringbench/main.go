// Command ringbench measures the throughput of the batchring queues.
//
// Usage:
//
//	ringbench -mode mpmc
//	ringbench -config bench.yaml -metrics :9100
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/aradilov/batchring/wait"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  = flag.String("config", "", "path to a YAML config file")
		mode        = flag.String("mode", "", "override the mode from the config")
		metricsAddr = flag.String("metrics", "", "serve Prometheus metrics on this address")
		debug       = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if *mode != "" {
		cfg.Mode = *mode
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := newLogger(*debug)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	reg := prometheus.NewRegistry()
	metrics := wait.NewMetrics(reg, "ringbench")
	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer srv.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := newBench(cfg, logger, metrics)
	if err != nil {
		return err
	}
	cfg = b.cfg

	logger.Info("starting",
		zap.String("mode", cfg.Mode),
		zap.Uint64("capacity", cfg.Capacity),
		zap.Int("producers", cfg.Producers),
		zap.Int("consumers", cfg.Consumers),
		zap.Int("messages", cfg.Messages),
		zap.Int("batch", cfg.Batch),
		zap.Bool("lazy", cfg.Lazy),
		zap.String("wait", cfg.Wait),
	)

	res, err := b.Run(ctx)
	if err != nil {
		return fmt.Errorf("run %s: %w", cfg.Mode, err)
	}

	if want := expectedChecksum(b); res.Checksum != want {
		return fmt.Errorf("checksum mismatch: got %d, want %d", res.Checksum, want)
	}

	rate := float64(res.Received) / res.Elapsed.Seconds()
	logger.Info("finished",
		zap.Uint64("sent", res.Sent),
		zap.Uint64("received", res.Received),
		zap.Duration("elapsed", res.Elapsed),
		zap.Float64("msgs_per_sec", rate),
	)
	return nil
}

// expectedChecksum is the sum of every value received: each producer sends
// 1..Messages, and every consumer gets all of it unless consumers share one stream.
func expectedChecksum(b *bench) int64 {
	m := int64(b.cfg.Messages)
	sum := int64(len(b.senders)) * m * (m + 1) / 2
	if b.shared {
		return sum
	}
	return sum * int64(len(b.receivers))
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
