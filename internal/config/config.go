// Package config loads process configuration from config.yaml and
// SERIESD_* environment variables, with working defaults for every
// knob.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/marketview/seriesd/internal/analytics"
)

// Config holds all process settings.
type Config struct {
	Server struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"server"`

	Data struct {
		Root       string   `mapstructure:"root"`
		Buckets    []string `mapstructure:"buckets"`
		FeePercent float64  `mapstructure:"fee_percent"`
	} `mapstructure:"data"`

	Summary struct {
		MaxWorkers int `mapstructure:"max_workers"`
	} `mapstructure:"summary"`

	NATS struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"nats"`

	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
}

// Load reads configuration. A missing config file is fine; defaults
// and environment variables still apply.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	v.SetDefault("server.addr", ":5001")
	v.SetDefault("data.root", "./buckets")
	v.SetDefault("data.buckets", []string{})
	v.SetDefault("data.fee_percent", analytics.DefaultFeePercent)
	v.SetDefault("summary.max_workers", 0)
	v.SetDefault("nats.url", "")
	v.SetDefault("log.level", "info")

	v.SetEnvPrefix("seriesd")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
