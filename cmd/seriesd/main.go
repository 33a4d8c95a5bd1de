package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/marketview/seriesd/internal/analytics"
	"github.com/marketview/seriesd/internal/cache"
	"github.com/marketview/seriesd/internal/config"
	"github.com/marketview/seriesd/internal/discovery"
	"github.com/marketview/seriesd/internal/notify"
	"github.com/marketview/seriesd/internal/server"
	"github.com/marketview/seriesd/internal/series"
	"github.com/marketview/seriesd/internal/summary"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logrus.SetLevel(level)
	}
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger := logrus.WithField("component", "main")

	if _, err := os.Stat(cfg.Data.Root); err != nil {
		logger.Fatalf("Data root %s not accessible: %v", cfg.Data.Root, err)
	}

	disc := discovery.NewService(cfg.Data.Root)
	manager := cache.NewManager(series.NewLoader(), analytics.NewEngine(cfg.Data.FeePercent))

	publisher, err := notify.Connect(cfg.NATS.URL)
	if err != nil {
		logger.Warnf("Update notifications disabled: %v", err)
	}
	defer publisher.Close()
	manager.OnReload(publisher.Publish)

	agg := summary.New(disc, manager, cfg.Summary.MaxWorkers)
	srv := server.New(disc, manager, agg, cfg.Data.Buckets)

	go warmUp(disc, manager, cfg.Data.Buckets, logger)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		logger.Infof("Listening on %s", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("HTTP server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Errorf("Shutdown error: %v", err)
	}
}

// warmUp eagerly loads every discovered series so the first dashboard
// request is served from cache.
func warmUp(disc *discovery.Service, manager *cache.Manager, buckets []string, logger *logrus.Entry) {
	start := time.Now()
	loaded := 0
	for _, bucket := range buckets {
		symbols, err := disc.Symbols(bucket)
		if err != nil {
			logger.Warnf("Warm-up skipping bucket %s: %v", bucket, err)
			continue
		}
		for _, sym := range symbols {
			key := cache.Key{Bucket: bucket, SeriesID: sym.SeriesID()}
			if _, ok := manager.Get(key, cache.Source{Path: sym.Path, ModTime: sym.ModTime}); ok {
				loaded++
			}
		}
	}
	logger.Infof("Warm-up loaded %d series in %s", loaded, time.Since(start).Round(time.Millisecond))
}
