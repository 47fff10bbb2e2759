// Package main is the contentindex CLI entry point.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/contentindex/internal/config"
	"github.com/hyperjump/contentindex/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/contentindex/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// globalOptions are the flags shared by every command.
type globalOptions struct {
	configPath string
	debug      bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:   "contentindex",
		Short: "Multi-tenant full-text and geo index for structured content",
		Long: `contentindex keeps one search index per app in sync with content change
notifications and answers text, filter, and geo radius queries over it.

Run 'contentindex server' to serve the HTTP API; the other commands talk to a
running server, or open the indexes directly when --server is empty.`,
		Version:      version,
		SilenceUsage: true,
	}
	cmd.SetVersionTemplate("contentindex version {{.Version}}\n")
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfigPath, "config file path")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	cmd.AddCommand(
		newServerCmd(opts),
		newSearchCmd(opts),
		newReindexCmd(opts),
		newStatusCmd(opts),
		newDropCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "contentindex version %s\n", version)
		},
	}
}

// loadConfig loads config from path. When path is the default and does not exist, it looks for
// config.yaml in the current directory (for development), and otherwise falls back to built-in
// defaults. Returns the config and the path that was actually loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if _, err := os.Stat(path); err != nil {
			if cwd, cwdErr := os.Getwd(); cwdErr == nil {
				fallback := filepath.Join(cwd, "config.yaml")
				if _, statErr := os.Stat(fallback); statErr == nil {
					cfg, loadErr := config.Load(fallback)
					if loadErr != nil {
						return nil, "", loadErr
					}
					return cfg, fallback, nil
				}
			}
			cfg, err := config.Default()
			return cfg, "", err
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// setup loads the config and builds the logger for a command.
func (o *globalOptions) setup() (*config.Config, *zap.Logger, error) {
	cfg, resolved, err := loadConfig(o.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	debug := cfg.Debug || o.debug
	logger, err := utils.NewLogger(debug, cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debug))
	return cfg, logger, nil
}
