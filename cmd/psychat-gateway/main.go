// ABOUTME: Entry point for psychat-gateway, the chat proxy in front of an AnythingLLM workspace
// ABOUTME: Defines the cobra root command and shared flags

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/2389/psychat-gateway/internal/config"
)

// Version is set by goreleaser at build time.
var version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "psychat-gateway",
	Short: "Chat gateway in front of an AnythingLLM workspace",
	Long: `psychat-gateway accepts chat turns from the web frontend, keeps each
session bound to its own AnythingLLM conversation thread, and relays replies
as JSON or server-sent events. It also stores reply feedback and serves the
support resource directory.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (YAML or TOML); defaults to $"+config.EnvConfigPath+" or environment only")

	rootCmd.AddCommand(serveCmd, healthCmd, sessionsCmd, resourcesCmd, versionCmd)
}

// loadConfig resolves the configuration for any subcommand.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Resolve(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}
