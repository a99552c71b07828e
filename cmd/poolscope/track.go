package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"poolScope/internal/chain"
	"poolScope/internal/config"
	"poolScope/internal/pricing"
	"poolScope/internal/storage"
	"poolScope/internal/storage/postgres"
	"poolScope/internal/track"
	"poolScope/internal/window"
)

func runTrack(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadTrack(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Input == "" {
		return fmt.Errorf("input path is required")
	}

	windowDuration, err := time.ParseDuration(cfg.Window)
	if err != nil {
		return fmt.Errorf("invalid window: %w", err)
	}
	if windowDuration <= 0 {
		return fmt.Errorf("window must be positive")
	}
	cacheDuration, err := time.ParseDuration(cfg.CacheInterval)
	if err != nil {
		return fmt.Errorf("invalid cache interval: %w", err)
	}
	if cacheDuration <= 0 {
		return fmt.Errorf("cache interval must be positive")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var source track.TokenSource
	if cfg.RPCURL != "" {
		chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			return fmt.Errorf("connect rpc: %w", err)
		}
		defer chainClient.Close()
		source = chain.NewTokenReader(chainClient, logger)
	} else {
		source = &track.StaticTokenSource{}
	}

	var store *postgres.Store
	if cfg.PGDSN != "" {
		store, err = postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
	}

	var stateStore track.StateStore
	switch {
	case cfg.StateFile != "":
		stateStore = &track.FileStateStore{Path: cfg.StateFile}
	case store != nil:
		stateStore = &track.DBStateStore{Store: store, Name: fmt.Sprintf("tracker:%d", int64(windowDuration.Seconds()))}
	}

	var sink track.SwapSink
	if cfg.SwapsOut != "" {
		sink = storage.NewJsonlSwapSink(cfg.SwapsOut)
	}

	windows := window.NewTracker(int64(windowDuration.Seconds()), int64(cacheDuration.Seconds()), logger)
	book := pricing.NewBook(logger)
	controller := track.NewController(windows, book, source, logger)

	var snapshotStore track.SnapshotStore
	if store != nil {
		snapshotStore = store
	}

	processor := track.NewProcessor(track.Config{
		BatchSize:  cfg.BatchSize,
		StateStore: stateStore,
	}, controller, snapshotStore, sink, logger)

	logger.Info("track start",
		zap.String("input", cfg.Input),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.Duration("window", windowDuration),
		zap.Duration("cache_interval", cacheDuration),
		zap.Int("batch_size", cfg.BatchSize),
	)

	return processor.Run(ctx, cfg.Input)
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
