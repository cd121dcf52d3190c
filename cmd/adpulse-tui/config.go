package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tinytelemetry/adpulse/internal/model"
	"github.com/tinytelemetry/adpulse/internal/socketrpc"
	"github.com/tinytelemetry/adpulse/internal/tui"
)

const (
	defaultUpdateInterval = model.DefaultUpdateInterval
	defaultRequestTimeout = tui.DefaultRequestTimeout
	defaultHistoryLimit   = 50
)

// cliConfig holds only TUI-relevant configuration.
type cliConfig struct {
	UpdateInterval time.Duration `mapstructure:"update-interval"`
	RequestTimeout time.Duration `mapstructure:"request-timeout"`
	HistoryLimit   int           `mapstructure:"tui-history-limit"`
	SocketPath     string        `mapstructure:"socket-path"`
	LogLevel       string        `mapstructure:"log-level"`
	LogFile        string        `mapstructure:"tui-log-file"`
}

func loadCLIConfig(configPath string) (cliConfig, error) {
	var cfg cliConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("ADPULSE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("update-interval", defaultUpdateInterval)
	v.SetDefault("request-timeout", defaultRequestTimeout)
	v.SetDefault("tui-history-limit", defaultHistoryLimit)
	v.SetDefault("socket-path", socketrpc.DefaultSocketPath())
	v.SetDefault("log-level", "info")
	v.SetDefault("tui-log-file", "")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "adpulse", "config.yml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	if cfg.UpdateInterval <= 0 {
		return cfg, fmt.Errorf("invalid update-interval: %s", cfg.UpdateInterval)
	}
	if cfg.RequestTimeout <= 0 {
		return cfg, fmt.Errorf("invalid request-timeout: %s", cfg.RequestTimeout)
	}
	return cfg, nil
}
