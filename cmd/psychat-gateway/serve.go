// ABOUTME: serve command: prints the startup banner and runs the gateway until interrupted
// ABOUTME: Chooses the colorized or JSON log handler from logging config

package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/psychat-gateway/internal/config"
	"github.com/2389/psychat-gateway/internal/gateway"
)

const banner = `
                       _           _
  _ __  ___ _   _  ___| |__   __ _| |_
 | '_ \/ __| | | |/ __| '_ \ / _' | __|
 | |_) \__ \ |_| | (__| | | | (_| | |_
 | .__/|___/\__, |\___|_| |_|\__,_|\__|
 |_|        |___/
`

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		printBanner(cfg)
		logger := setupLogger(cfg.Logging)

		logger.Info("starting psychat-gateway",
			"version", version,
			"http_addr", cfg.Server.HTTPAddr,
			"upstream", cfg.Upstream.BaseURL,
			"workspace", cfg.Upstream.WorkspaceSlug,
		)

		gw, err := gateway.New(cfg, logger)
		if err != nil {
			return fmt.Errorf("creating gateway: %w", err)
		}

		return gw.Run(cmd.Context())
	},
}

func printBanner(cfg *config.Config) {
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	gray.Printf("    version: %s\n\n", version)

	configSource := cfgFile
	if configSource == "" {
		configSource = os.Getenv(config.EnvConfigPath)
	}
	if configSource == "" {
		configSource = "(environment)"
	}

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configSource)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("Upstream:  %s", cfg.Upstream.BaseURL)
	if cfg.Upstream.WorkspaceSlug == "" {
		yellow.Print(" [no workspace]")
	} else {
		cyan.Printf(" [%s]", cfg.Upstream.WorkspaceSlug)
	}
	fmt.Println()

	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Print(" [funnel]")
		} else if cfg.Tailscale.HTTPS {
			yellow.Print(" [https]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	} else {
		green.Print("    ▶ ")
		fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	}

	if cfg.Metrics.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Metrics:   %s\n", cfg.Metrics.Path)
	}

	fmt.Println()
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	level := parseLevel(cfg.Level)

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = newColorHandler(os.Stdout, level)
	}

	logger := slog.New(handler)
	// store.Open logs through the default logger
	slog.SetDefault(logger)
	return logger
}
