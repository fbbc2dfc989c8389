package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"
)

// outputFormat is set by the root command's -o flag.
// Supported values: "table" (default), "json", "yaml".
var outputFormat string

// printTable writes a session listing to stdout with aligned columns.
func printTable(headers []string, rows [][]string) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(headers, "\t"))
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	w.Flush()
}

// printJSON writes the value as pretty-printed JSON to stdout.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printYAML writes the value as YAML to stdout.
func printYAML(v interface{}) error {
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(v)
}

// printOutput renders a list of sessions in the selected output format. Table
// output maps each session to a row via toRow; json and yaml emit the list
// as-is.
func printOutput(items []interface{}, headers []string, toRow func(interface{}) []string) {
	switch outputFormat {
	case "json":
		if err := printJSON(items); err != nil {
			exitError(fmt.Sprintf("failed to encode JSON: %v", err))
		}
	case "yaml":
		if err := printYAML(items); err != nil {
			exitError(fmt.Sprintf("failed to encode YAML: %v", err))
		}
	default:
		rows := make([][]string, 0, len(items))
		for _, item := range items {
			rows = append(rows, toRow(item))
		}
		printTable(headers, rows)
	}
}

// exitError prints an error message to stderr and exits with code 1.
func exitError(msg string) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	os.Exit(1)
}

// formatAge says how long ago a session was opened, in the largest sensible
// unit ("5s", "3m", "2h", "4d"). Zero times render as "<unknown>".
func formatAge(t time.Time) string {
	if t.IsZero() {
		return "<unknown>"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
