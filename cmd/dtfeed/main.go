// Command dtfeed runs the BitMEX and GDAX feed adapters, the persistence
// worker, and the /metrics endpoint as one process.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/epic1st/dtfeed/archive"
	"github.com/epic1st/dtfeed/config"
	"github.com/epic1st/dtfeed/feed"
	"github.com/epic1st/dtfeed/feed/bitmex"
	"github.com/epic1st/dtfeed/feed/gdax"
	"github.com/epic1st/dtfeed/logging"
	"github.com/epic1st/dtfeed/metrics"
	"github.com/epic1st/dtfeed/persistence"
	"github.com/epic1st/dtfeed/pubsub"
	"github.com/epic1st/dtfeed/tickstore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("dtfeed: config load failed", err)
		os.Exit(1)
	}

	fileWriter, err := logging.NewRotatingFileWriter(logging.RotationConfig{
		Filename:           cfg.LogFilePath,
		MaxSizeMB:          100,
		MaxAge:             7 * 24 * time.Hour,
		MaxBackups:         10,
		CompressionEnabled: true,
	})
	if err != nil {
		logging.Fatal("dtfeed: log file open failed", err)
		os.Exit(1)
	}
	defer fileWriter.Close()
	logging.Configure(logging.INFO, os.Stdout, fileWriter)

	logging.Info("dtfeed: starting",
		logging.String("redis_addr", cfg.RedisAddr),
		logging.String("redis_auth", logging.MaskSecret(cfg.RedisAuth)),
		logging.String("tickstore_addr", cfg.TickStoreAddr),
		logging.String("s3_bucket", cfg.S3Bucket),
		logging.String("aws_access_key_id", logging.MaskSecret(cfg.AWSAccessKeyID)),
		logging.String("aws_secret_access_key", logging.MaskSecret(cfg.AWSSecretAccessKey)),
		logging.String("log_file", cfg.LogFilePath))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	withAuxiliary := func(s feed.Settings) feed.Settings {
		s.RedisAddr = cfg.RedisAddr
		s.RedisAuth = cfg.RedisAuth
		s.TickStoreAddr = cfg.TickStoreAddr
		return s
	}

	bitmexSettings := withAuxiliary(bitmex.DefaultSettings())
	gdaxSettings := withAuxiliary(gdax.DefaultSettings())

	go feed.Run(ctx, bitmexSettings, bitmex.New(bitmexSettings), 0)
	go feed.Run(ctx, gdaxSettings, gdax.New(gdaxSettings), gdax.InactivityTimeout)

	ts, err := tickstore.Dial(cfg.TickStoreAddr)
	if err != nil {
		logging.Fatal("dtfeed: tick store dial failed", err)
		os.Exit(1)
	}
	metrics.SetTickStoreConnected(true)

	sub, err := pubsub.Subscribe(ctx, cfg.RedisAddr, cfg.RedisAuth, bitmexSettings.Exchange.Name, gdaxSettings.Exchange.Name)
	if err != nil {
		logging.Fatal("dtfeed: pubsub subscribe failed", err)
		os.Exit(1)
	}

	var archiver *archive.Worker
	uploader, err := archive.NewS3Uploader(ctx, cfg.S3Bucket, cfg.AWSRegion, cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey)
	if err != nil {
		logging.TrackError(ctx, logging.CategoryConfig, "archive", err)
	} else {
		archiver = archive.NewWorker(uploader)
	}

	archiveCfg := archive.Config{
		SourceDir:    cfg.DTFDBPath,
		Bucket:       cfg.S3Bucket,
		StorageClass: cfg.S3StorageClass,
		Metadata:     map[string]string{"source": "dtfeed"},
	}

	persistenceWorker := persistence.New(ts, sub, time.Duration(cfg.UploadPeriod)*time.Second, archiver, archiveCfg)
	go persistenceWorker.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/debug/errors", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(logging.GetTopErrors(20))
	})
	server := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.TrackError(ctx, logging.CategoryTransport, "metrics", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logging.Info("dtfeed: shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)

	sub.Close()
	ts.Close()
}
