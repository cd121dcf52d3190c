package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tinytelemetry/adpulse/internal/logging"
	"github.com/tinytelemetry/adpulse/internal/socketrpc"
	"github.com/tinytelemetry/adpulse/internal/tui"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

func main() {
	var configPath string
	var socketPath string
	var showVersion bool

	flag.StringVar(&configPath, "config", "", "config file (default is $HOME/.config/adpulse/config.yml)")
	flag.StringVar(&socketPath, "socket", "", "override socket path to connect to the adpulse service")
	flag.BoolVar(&showVersion, "version", false, "print version information")
	flag.Parse()

	if showVersion {
		fmt.Printf("AdPulse TUI - Dashboard Client\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Built:      %s\n", buildTime)
		fmt.Printf("  Go version: %s\n", goVersion)
		return
	}

	cfg, err := loadCLIConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if socketPath != "" {
		cfg.SocketPath = socketPath
	}

	if err := runTUI(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runTUI(cfg cliConfig) error {
	// Stderr is not an option while the dashboard owns the terminal.
	logFile := cfg.LogFile
	if logFile == "" || logFile == logging.Stderr {
		path, err := logging.DefaultPath("adpulse")
		if err != nil {
			return err
		}
		logFile = filepath.Join(filepath.Dir(path), "adpulse-tui.log")
	}
	logger, cleanup, err := logging.New(logging.Config{Level: cfg.LogLevel, File: logFile, App: "adpulse-tui"})
	if err != nil {
		return err
	}
	defer cleanup()

	client, err := socketrpc.Dial(cfg.SocketPath, cfg.RequestTimeout)
	if err != nil {
		return fmt.Errorf("cannot connect to adpulse service at %s: %w\nIs the adpulse service running? Start it with: adpulse", cfg.SocketPath, err)
	}
	defer client.Close()

	opts := tui.Options{
		UpdateInterval: cfg.UpdateInterval,
		RequestTimeout: cfg.RequestTimeout,
		HistoryLimit:   cfg.HistoryLimit,
		Logger:         logger,
	}
	dashboard, err := tui.NewDashboardModel(client, opts)
	if err != nil {
		return err
	}
	app := tui.NewApp(dashboard, tui.NewHistoryPage(client, opts))
	defer app.Close()

	p := tea.NewProgram(app, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		if strings.Contains(err.Error(), "TTY") || strings.Contains(err.Error(), "/dev/tty") {
			return fmt.Errorf("TUI requires a real terminal")
		}
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
