package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/adpulse/internal/adops"
	"github.com/tinytelemetry/adpulse/internal/apiclient"
	"github.com/tinytelemetry/adpulse/internal/duckdb"
	"github.com/tinytelemetry/adpulse/internal/httpserver"
	"github.com/tinytelemetry/adpulse/internal/logging"
	"github.com/tinytelemetry/adpulse/internal/metrics"
	"github.com/tinytelemetry/adpulse/internal/socketrpc"
	"github.com/tinytelemetry/adpulse/internal/syncagent"
)

const (
	shutdownTimeout = 10 * time.Second
	syncBurst       = 4
)

// runServer starts the mock API, the sync agent and the control socket.
func runServer(cfg appConfig) error {
	logger, cleanupLogger, err := logging.New(logging.Config{
		Level: cfg.LogLevel,
		File:  cfg.LogFile,
		App:   "adpulse",
	})
	if err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}
	defer cleanupLogger()
	log := logger.Named("server")

	// Sync history store
	store, err := duckdb.NewStore(cfg.HistoryPath, 0)
	if err != nil {
		return fmt.Errorf("failed to initialize DuckDB: %w", err)
	}
	defer store.Close()

	retentionCleaner := duckdb.NewRetentionCleaner(store, duckdb.RetentionConfig{
		Window: cfg.HistoryRetention,
		Logger: logger,
	})
	if retentionCleaner != nil {
		defer retentionCleaner.Stop()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// HTTP API serving synthetic ad-ops data
	if cfg.APIEnabled {
		apiServer := httpserver.NewServer(cfg.APIAddr, adops.NewGenerator(adops.Options{}), httpserver.Options{
			MaxCount: cfg.MaxCount,
			Gatherer: registry,
			Metrics:  metrics.NewHTTP(registry),
			Logger:   logger,
		})
		if err := apiServer.Start(); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
		defer func() {
			if err := apiServer.Stop(); err != nil {
				log.Warn("api server shutdown", zap.Error(err))
			}
		}()
		// api-addr may ask for an ephemeral port.
		cfg.APIAddr = apiServer.Addr()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Sync agent and its control socket
	socketUp := false
	if cfg.SyncEnabled {
		client := apiclient.New(cfg.syncBaseURL(), apiclient.Options{
			Timeout:           cfg.SyncTimeout,
			RequestsPerSecond: cfg.SyncRateLimit,
			Burst:             syncBurst,
			Logger:            logger,
		})
		agent, err := syncagent.New(client, store, syncagent.Config{
			Interval:       cfg.SyncInterval,
			GlobalInterval: cfg.GlobalRefreshInterval,
			Lazy:           !cfg.SyncImmediate,
			Timeout:        cfg.SyncTimeout,
			CreativesCount: cfg.CreativesCount,
			TelemetryCount: cfg.TelemetryCount,
			PacingCount:    cfg.PacingCount,
			Backoff:        cfg.SyncBackoff,
			BackoffMax:     cfg.SyncBackoffMax,
			Metrics:        metrics.NewRefresh(registry),
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to build sync agent: %w", err)
		}
		if err := agent.Start(ctx); err != nil {
			return fmt.Errorf("failed to start sync agent: %w", err)
		}
		defer agent.Stop()

		sockServer := socketrpc.NewServer(cfg.SocketPath, agent, socketrpc.Options{
			History:       store,
			HistoryLimit:  cfg.HistoryLimit,
			UnknownSource: syncagent.ErrUnknownSource,
			Logger:        logger,
		})
		if err := sockServer.Start(); err != nil {
			log.Warn("failed to start socket server", zap.Error(err))
		} else {
			socketUp = true
			defer sockServer.Stop()
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		sig := <-sigCh
		fmt.Println("\nShutting down gracefully... (press Ctrl+C again to force)")
		log.Info("shutdown requested", zap.String("signal", sig.String()))
		cancel()

		// Shutdown deadline starts now, not at boot.
		deadline := time.NewTimer(shutdownTimeout)
		defer deadline.Stop()

		select {
		case <-sigCh:
			fmt.Println("\nForce shutdown.")
		case <-deadline.C:
			fmt.Println("Shutdown timed out, forcing exit.")
		}
		cleanupSocket(cfg.SocketPath)
		os.Exit(1)
	}()

	printStartupBanner(cfg, socketUp)
	log.Info("adpulse started",
		zap.String("version", version),
		zap.Bool("api", cfg.APIEnabled),
		zap.Bool("sync", cfg.SyncEnabled),
		zap.String("socket", cfg.SocketPath))

	g, gctx := errgroup.WithContext(ctx)

	// Wait for context cancellation (from signal handler) in the errgroup
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("errgroup exited with error", zap.Error(err))
	}
	return nil
}

func cleanupSocket(path string) {
	if path != "" {
		os.Remove(path)
	}
}

func printStartupBanner(cfg appConfig, socketUp bool) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")

	logo := cyan.Bold(true).Render(`
    ╔═╗┌┬┐╔═╗┬ ┬┬  ┌─┐┌─┐
    ╠═╣ ││╠═╝│ ││  └─┐├┤
    ╩ ╩─┴┘╩  └─┘┴─┘└─┘└─┘`)

	row := func(on bool, label, value string) string {
		if on {
			return fmt.Sprintf("    %s  %-14s %s", check, label, cyan.Render(value))
		}
		return fmt.Sprintf("    %s  %-14s %s", dot, label, dim.Render(value))
	}

	separator := dim.Render("    ─────────────────────────────────")
	lines := []string{"", logo, "    " + dim.Render("v"+version), "", separator, ""}

	lines = append(lines, bold.Render("    Gateway"), "")
	if cfg.APIEnabled {
		lines = append(lines, row(true, "HTTP API", cfg.APIAddr))
		lines = append(lines, row(true, "Metrics", cfg.APIAddr+"/metrics"))
	} else {
		lines = append(lines, row(false, "HTTP API", "disabled"))
	}
	if socketUp {
		lines = append(lines, row(true, "Unix Socket", shortenPath(cfg.SocketPath)))
	} else {
		lines = append(lines, row(false, "Unix Socket", "disabled"))
	}
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Sync"), "")
	if cfg.SyncEnabled {
		lines = append(lines, row(true, "Source", cfg.syncBaseURL()))
		lines = append(lines, row(true, "Interval", cfg.SyncInterval.String()))
		global := "disabled"
		if cfg.GlobalRefreshInterval > 0 {
			global = cfg.GlobalRefreshInterval.String()
		}
		lines = append(lines, row(cfg.GlobalRefreshInterval > 0, "Global", global))
	} else {
		lines = append(lines, row(false, "Agent", "disabled"))
	}
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Storage"), "")
	storage := "in-memory"
	if cfg.HistoryPath != "" {
		storage = shortenPath(cfg.HistoryPath)
	}
	lines = append(lines, row(true, "History", storage))
	if cfg.HistoryRetention > 0 {
		lines = append(lines, row(true, "Retention", cfg.HistoryRetention.String()))
	} else {
		lines = append(lines, row(false, "Retention", "disabled"))
	}
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Config"), "")
	if cfg.ConfigPath != "" {
		lines = append(lines, row(true, "Config File", shortenPath(cfg.ConfigPath)))
	} else {
		lines = append(lines, row(false, "Config File", "default (no file)"))
	}

	lines = append(lines, "", separator, "")
	lines = append(lines, "    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"), "")

	fmt.Println(strings.Join(lines, "\n"))
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
