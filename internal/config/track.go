package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// TrackConfig holds configuration for the track command.
type TrackConfig struct {
	RPCURL        string
	Input         string
	Window        string
	CacheInterval string
	PGDSN         string
	BatchSize     int
	StateFile     string
	SwapsOut      string
	LogLevel      string
}

// LoadTrack merges config file, environment variables, and flags into
// TrackConfig.
func LoadTrack(cfgFile string, flags *pflag.FlagSet) (TrackConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("POOLSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("batch-size", 1000)
	v.SetDefault("log-level", "info")
	v.SetDefault("window", "24h")
	v.SetDefault("cache-interval", "2m")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return TrackConfig{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return TrackConfig{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return TrackConfig{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := TrackConfig{
		RPCURL:        v.GetString("rpc"),
		Input:         v.GetString("in"),
		Window:        v.GetString("window"),
		CacheInterval: v.GetString("cache-interval"),
		PGDSN:         v.GetString("pg-dsn"),
		BatchSize:     v.GetInt("batch-size"),
		StateFile:     v.GetString("state-file"),
		SwapsOut:      v.GetString("swaps-out"),
		LogLevel:      v.GetString("log-level"),
	}

	return cfg, nil
}
