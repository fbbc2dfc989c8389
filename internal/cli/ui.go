package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pharmesol/pharmabot/internal/tui"
)

func newUICmd() *cobra.Command {
	var phone string

	cmd := &cobra.Command{
		Use:   "ui",
		Short: "Launch the interactive chat UI",
		Long:  "Launch a terminal chat UI connected to a running pharmabot server.",
		Example: `  pharmabot ui
  pharmabot ui --phone 1-555-123-4567 --server http://127.0.0.1:7272`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := tui.NewApp(serverAddr, phone)
			if err := app.Run(); err != nil {
				return fmt.Errorf("UI error: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&phone, "phone", "1-555-123-4567", "caller phone number for the session")

	return cmd
}
