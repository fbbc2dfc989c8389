package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pharmesol/pharmabot/internal/agent"
	"github.com/pharmesol/pharmabot/internal/crm"
	"github.com/pharmesol/pharmabot/internal/gateway"
)

// exitWords end the chat loop when typed on their own.
var exitWords = []string{"exit", "quit", "bye", "end", "see you", "goodbye"}

func newChatCmd() *cobra.Command {
	var (
		phone string
		mode  string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the agent locally",
		Long:  "Run a local conversation session without the API server, simulating an incoming call.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("mode") {
				cfg.Agent.Mode = mode
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := newLogger(cfg.Log)
			if err != nil {
				return fmt.Errorf("creating logger: %w", err)
			}
			defer logger.Sync()

			gw := gateway.NewClient(cfg.Gateway.APIKey, cfg.Gateway.Model, cfg.Gateway.MaxTokens, logger.Named("gateway"))
			directory := crm.NewClient(
				cfg.Directory.BaseURL,
				time.Duration(cfg.Directory.TimeoutSeconds)*time.Second,
				logger.Named("crm"),
			)
			eng := agent.New(gw, directory, cfg.Agent, logger.Named("agent"))

			ctx := context.Background()
			agentLabel := color.New(color.FgCyan, color.Bold).Sprint("Agent:")
			youLabel := color.New(color.FgGreen, color.Bold).Sprint("Customer:")

			fmt.Printf("%s %s\n", agentLabel, eng.HandleIncomingCall(ctx, phone))

			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Printf("%s ", youLabel)
				if !scanner.Scan() {
					break
				}
				input := strings.TrimSpace(scanner.Text())
				if input == "" {
					continue
				}
				if isExitWord(input) {
					break
				}

				reply := eng.ProcessMessage(ctx, input)
				fmt.Printf("%s %s\n", agentLabel, reply)

				lower := strings.ToLower(reply)
				if strings.Contains(lower, "goodbye") && strings.Contains(lower, "thank you") {
					break
				}
			}
			return scanner.Err()
		},
	}

	cmd.Flags().StringVar(&phone, "phone", "1-555-123-4567", "caller phone number")
	cmd.Flags().StringVar(&mode, "mode", "", "conversation engine: loop|direct")

	return cmd
}

func isExitWord(input string) bool {
	lower := strings.ToLower(input)
	for _, w := range exitWords {
		if lower == w {
			return true
		}
	}
	return false
}
