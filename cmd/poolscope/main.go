package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "poolscope",
		Short:        "Weighted pool activity tracker",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	trackCmd := &cobra.Command{
		Use:   "track",
		Short: "Track decoded pool events into rolling metrics and valuations",
		RunE:  runTrack,
	}

	trackCmd.Flags().String("rpc", "", "RPC URL for token metadata read-through (optional)")
	trackCmd.Flags().String("in", "", "input decoded pool events JSONL")
	trackCmd.Flags().String("window", "24h", "rolling window length")
	trackCmd.Flags().String("cache-interval", "2m", "minimum interval between window recomputes")
	trackCmd.Flags().String("pg-dsn", "", "Postgres DSN (optional)")
	trackCmd.Flags().Int("batch-size", 1000, "events per persistence flush")
	trackCmd.Flags().String("state-file", "", "optional local state file for progress tracking")
	trackCmd.Flags().String("swaps-out", "", "optional enriched swaps JSONL output")
	trackCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(trackCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
