// chisel-worker pulls split jobs from the broker, runs them through
// the geometry kernel, and uploads the resulting parts. It exits
// cleanly on SIGINT/SIGTERM or when the broker's restart signal is
// set; an external supervisor restarts the process.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/chisel3d/chisel/pkg/blob"
	"github.com/chisel3d/chisel/pkg/config"
	"github.com/chisel3d/chisel/pkg/jobs"
	"github.com/chisel3d/chisel/pkg/kernel"
	"github.com/chisel3d/chisel/pkg/kernel/manifold"
	"github.com/chisel3d/chisel/pkg/queue"
)

func main() {
	var (
		metricsAddr = pflag.String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
		concurrency = pflag.Int("concurrency", 0, "override WORKER_CONCURRENCY")
		debug       = pflag.Bool("debug", false, "enable debug logging")
	)
	pflag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	log := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
	}))
	slog.SetDefault(log)

	if err := run(log, *metricsAddr, *concurrency); err != nil {
		log.Error("worker exited", "err", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger, metricsAddr string, concurrency int) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if concurrency > 0 {
		cfg.WorkerConcurrency = concurrency
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Each job builds its own kernel; validate availability up front so
	// a build without the manifold backend fails fast.
	if _, err := manifold.New(); err != nil {
		return fmt.Errorf("kernel unavailable: %w", err)
	}
	newKernel := func() (kernel.Kernel, error) { return manifold.New() }

	broker, err := queue.DialRedis(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	log.Info("broker connected", "url", cfg.RedisURL)

	s3cfg := blob.S3Config{
		Endpoint:        cfg.MinioAddr(),
		AccessKeyID:     cfg.MinioAccessKey,
		SecretAccessKey: cfg.MinioSecretKey,
		UseSSL:          cfg.MinioUseSSL,
		PathStyle:       true,
	}
	s3cfg.Bucket = cfg.UploadBucket
	uploads, err := blob.NewS3(ctx, s3cfg)
	if err != nil {
		return err
	}
	s3cfg.Bucket = cfg.ResultsBucket
	results, err := blob.NewS3(ctx, s3cfg)
	if err != nil {
		return err
	}
	log.Info("object store connected", "endpoint", cfg.MinioAddr(),
		"uploads", cfg.UploadBucket, "results", cfg.ResultsBucket)

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				log.Warn("metrics server stopped", "err", err)
			}
		}()
		log.Info("metrics served", "addr", metricsAddr)
	}

	worker := &jobs.Worker{
		Broker:      broker,
		Uploads:     uploads,
		Results:     results,
		NewKernel:   newKernel,
		Log:         log,
		Queue:       jobs.QueueSplit,
		Policy:      jobs.SplitPolicy,
		Concurrency: cfg.WorkerConcurrency,
		WorkDir:     cfg.WorkDir,
	}
	log.Info("worker started", "queue", worker.Queue, "concurrency", worker.Concurrency)
	return worker.Run(ctx)
}
