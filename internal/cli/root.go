// Package cli implements the pharmabot command-line interface.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pharmesol/pharmabot/internal/config"
	"github.com/pharmesol/pharmabot/pkg/client"
)

var (
	serverAddr string
	configPath string
	apiClient  *client.Client
)

// NewRootCmd creates the top-level pharmabot CLI command with all subcommands.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pharmabot",
		Short: "LLM-driven pharmacy services sales agent",
		Long: `Pharmabot answers incoming calls from prospective pharmacies,
identifies callers against the pharmacy directory, and drives the sales
conversation with a tool-calling LLM engine.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Skip client init for commands that don't need the API server.
			name := cmd.Name()
			if name == "serve" || name == "chat" {
				return
			}
			apiClient = client.New(serverAddr)
		},
	}

	cmd.PersistentFlags().StringVar(&serverAddr, "server", "http://127.0.0.1:7272", "pharmabot server address")
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table|json|yaml")

	cmd.AddCommand(
		newServeCmd(),
		newChatCmd(),
		newSessionsCmd(),
		newUICmd(),
	)

	return cmd
}

// loadConfig resolves the effective configuration: defaults, optionally
// overlaid with the --config file.
func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.DefaultConfig(), nil
	}
	return config.Load(configPath)
}

// newLogger builds a zap logger per the log configuration.
func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zc zap.Config
	if cfg.Format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}

	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		zc.Level = level
	}

	return zc.Build()
}
