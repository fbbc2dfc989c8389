package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pharmesol/pharmabot/pkg/api"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and manage conversation sessions",
	}

	cmd.AddCommand(
		newSessionsListCmd(),
		newSessionsGetCmd(),
		newSessionsEndCmd(),
	)

	return cmd
}

func newSessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			sessions, err := apiClient.ListSessions()
			if err != nil {
				return err
			}

			items := make([]interface{}, 0, len(sessions))
			for i := range sessions {
				items = append(items, &sessions[i])
			}

			printOutput(items,
				[]string{"ID", "PHARMACY", "PHONE", "MODE", "TURNS", "EMAIL", "AGE"},
				func(item interface{}) []string {
					s := item.(*api.Session)
					pharmacy := s.PharmacyName
					if pharmacy == "" {
						pharmacy = "<unknown>"
					}
					return []string{
						s.ID,
						pharmacy,
						s.Phone,
						s.Mode,
						strconv.Itoa(len(s.Turns)),
						strconv.FormatBool(s.EmailSent),
						formatAge(s.CreatedAt),
					}
				},
			)
			return nil
		},
	}
}

func newSessionsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one session including its transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := apiClient.GetSession(args[0])
			if err != nil {
				return err
			}

			switch outputFormat {
			case "json":
				return printJSON(session)
			case "yaml":
				return printYAML(session)
			default:
				printSessionTranscript(session)
				return nil
			}
		},
	}
}

func newSessionsEndCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "end <id>",
		Short: "End a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := apiClient.EndSession(args[0]); err != nil {
				return err
			}
			fmt.Printf("session %s ended\n", args[0])
			return nil
		},
	}
}

// printSessionTranscript writes a human-readable session summary.
func printSessionTranscript(s *api.Session) {
	fmt.Printf("Session:  %s\n", s.ID)
	fmt.Printf("Phone:    %s\n", s.Phone)
	if s.PharmacyName != "" {
		fmt.Printf("Pharmacy: %s\n", s.PharmacyName)
	}
	fmt.Printf("Mode:     %s\n", s.Mode)
	fmt.Printf("Email:    sent=%t\n", s.EmailSent)
	fmt.Println()
	for _, turn := range s.Turns {
		fmt.Printf("%-10s %s\n", turn.Role+":", turn.Content)
	}
}
