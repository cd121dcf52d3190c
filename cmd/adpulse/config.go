package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tinytelemetry/adpulse/internal/model"
	"github.com/tinytelemetry/adpulse/internal/socketrpc"
)

const (
	defaultBindHost         = "127.0.0.1"
	defaultAPIPort          = model.DefaultAPIPort
	defaultSyncInterval     = model.DefaultRefreshInterval
	defaultSyncTimeout      = 10 * time.Second
	defaultSyncRateLimit    = 20.0
	defaultSyncBackoffMax   = time.Minute
	defaultGlobalRefresh    = model.DefaultGlobalRefresh
	defaultCreativesCount   = 50
	defaultTelemetryCount   = 200
	defaultPacingCount      = 20
	defaultMaxCount         = model.DefaultMaxCount
	defaultHistoryRetention = time.Hour
	defaultHistoryLimit     = 500
	defaultLogLevel         = "info"
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	Host       string `mapstructure:"host" yaml:"host"`
	APIEnabled bool   `mapstructure:"api-enabled" yaml:"api-enabled"`
	APIPort    int    `mapstructure:"api-port" yaml:"api-port"`
	APIAddr    string `mapstructure:"api-addr" yaml:"api-addr"`
	SocketPath string `mapstructure:"socket-path" yaml:"socket-path"`

	SyncEnabled           bool          `mapstructure:"sync-enabled" yaml:"sync-enabled"`
	SyncBaseURL           string        `mapstructure:"sync-base-url" yaml:"sync-base-url"`
	SyncInterval          time.Duration `mapstructure:"sync-interval" yaml:"sync-interval"`
	SyncImmediate         bool          `mapstructure:"sync-immediate" yaml:"sync-immediate"`
	SyncTimeout           time.Duration `mapstructure:"sync-timeout" yaml:"sync-timeout"`
	SyncRateLimit         float64       `mapstructure:"sync-rate-limit" yaml:"sync-rate-limit"`
	SyncBackoff           bool          `mapstructure:"sync-backoff" yaml:"sync-backoff"`
	SyncBackoffMax        time.Duration `mapstructure:"sync-backoff-max" yaml:"sync-backoff-max"`
	GlobalRefreshInterval time.Duration `mapstructure:"global-refresh-interval" yaml:"global-refresh-interval"`

	CreativesCount int `mapstructure:"creatives-count" yaml:"creatives-count"`
	TelemetryCount int `mapstructure:"telemetry-count" yaml:"telemetry-count"`
	PacingCount    int `mapstructure:"pacing-count" yaml:"pacing-count"`
	MaxCount       int `mapstructure:"max-count" yaml:"max-count"`

	HistoryPath      string        `mapstructure:"history-path" yaml:"history-path"`
	HistoryRetention time.Duration `mapstructure:"history-retention" yaml:"history-retention"`
	HistoryLimit     int           `mapstructure:"history-limit" yaml:"history-limit"`

	LogLevel string `mapstructure:"log-level" yaml:"log-level"`
	LogFile  string `mapstructure:"log-file" yaml:"log-file"`

	ConfigPath string `mapstructure:"-" yaml:"-"` // not from config file
}

func loadConfig(configPath string) (appConfig, error) {
	var cfg appConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("ADPULSE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("host", defaultBindHost)
	v.SetDefault("api-enabled", true)
	v.SetDefault("api-port", defaultAPIPort)
	v.SetDefault("api-addr", "")
	v.SetDefault("socket-path", socketrpc.DefaultSocketPath())
	v.SetDefault("sync-enabled", true)
	v.SetDefault("sync-base-url", "")
	v.SetDefault("sync-interval", defaultSyncInterval)
	v.SetDefault("sync-immediate", true)
	v.SetDefault("sync-timeout", defaultSyncTimeout)
	v.SetDefault("sync-rate-limit", defaultSyncRateLimit)
	v.SetDefault("sync-backoff", false)
	v.SetDefault("sync-backoff-max", defaultSyncBackoffMax)
	v.SetDefault("global-refresh-interval", defaultGlobalRefresh)
	v.SetDefault("creatives-count", defaultCreativesCount)
	v.SetDefault("telemetry-count", defaultTelemetryCount)
	v.SetDefault("pacing-count", defaultPacingCount)
	v.SetDefault("max-count", defaultMaxCount)
	v.SetDefault("history-path", "")
	v.SetDefault("history-retention", defaultHistoryRetention)
	v.SetDefault("history-limit", defaultHistoryLimit)
	v.SetDefault("log-level", defaultLogLevel)
	v.SetDefault("log-file", "")

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
	cfg.ConfigPath = v.ConfigFileUsed()
	if _, err := os.Stat(cfg.ConfigPath); err != nil {
		cfg.ConfigPath = ""
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}

	// Expand ~ in history-path
	if strings.HasPrefix(cfg.HistoryPath, "~/") {
		cfg.HistoryPath = filepath.Join(home, cfg.HistoryPath[2:])
	}
	if cfg.APIAddr == "" {
		cfg.APIAddr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.APIPort))
	}
	return cfg, nil
}

func (c appConfig) validate() error {
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("invalid api-port: %d", c.APIPort)
	}
	for name, d := range map[string]time.Duration{
		"sync-interval":    c.SyncInterval,
		"sync-timeout":     c.SyncTimeout,
		"sync-backoff-max": c.SyncBackoffMax,
	} {
		if d <= 0 {
			return fmt.Errorf("invalid %s: %s (must be positive)", name, d)
		}
	}
	if c.GlobalRefreshInterval == 0 {
		return errors.New("invalid global-refresh-interval: 0 (use a negative value to disable)")
	}
	if c.HistoryRetention < 0 {
		return fmt.Errorf("invalid history-retention: %s", c.HistoryRetention)
	}
	for name, n := range map[string]int{
		"creatives-count": c.CreativesCount,
		"telemetry-count": c.TelemetryCount,
		"pacing-count":    c.PacingCount,
		"history-limit":   c.HistoryLimit,
	} {
		if n < 0 {
			return fmt.Errorf("invalid %s: %d (must not be negative)", name, n)
		}
	}
	if c.MaxCount <= 0 {
		return fmt.Errorf("invalid max-count: %d", c.MaxCount)
	}
	if c.SyncRateLimit < 0 {
		return fmt.Errorf("invalid sync-rate-limit: %g", c.SyncRateLimit)
	}
	if c.SyncEnabled && !c.APIEnabled && c.SyncBaseURL == "" {
		return errors.New("sync-enabled needs either api-enabled or sync-base-url")
	}
	return nil
}

// syncBaseURL is the API the agent polls: the configured URL, or this
// process's own API.
func (c appConfig) syncBaseURL() string {
	if c.SyncBaseURL != "" {
		return c.SyncBaseURL
	}
	host, port, err := net.SplitHostPort(c.APIAddr)
	if err != nil {
		return "http://" + c.APIAddr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = defaultBindHost
	}
	return "http://" + net.JoinHostPort(host, port)
}

func printConfig(cfg appConfig) error {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	_, err = os.Stdout.Write(out)
	return err
}
