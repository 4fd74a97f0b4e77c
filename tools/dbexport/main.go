// Command dbexport writes the detection history of a pagd node to CSV or
// JSON lines for offline analysis.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pagd-project/pagd-go/internal/datastore"
)

// Version information (can be set via ldflags during build)
var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var cfg Config

	cmd := &cobra.Command{
		Use:          "dbexport",
		Short:        "Export pagd detections",
		Long:         "Export detections from a pagd SQLite history, optionally limited to a time range.",
		SilenceUsage: true,
		Version:      version,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if cfg.OutPath != "" {
				f, err := os.Create(cfg.OutPath)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer f.Close()
				out = f
			}
			return run(cmd.Context(), cfg, out)
		},
	}

	cmd.Flags().StringVar(&cfg.DBPath, "db", "pagd.db", "Path to the detection history database")
	cmd.Flags().StringVar(&cfg.Format, "format", FormatCSV, "Output format: csv or jsonl")
	cmd.Flags().StringVarP(&cfg.OutPath, "out", "o", "", "Output file (default: stdout)")
	cmd.Flags().StringVar(&cfg.From, "from", "", "Start of range, RFC3339")
	cmd.Flags().StringVar(&cfg.To, "to", "", "End of range, RFC3339 (default: now)")
	cmd.Flags().IntVar(&cfg.Limit, "limit", 1000, "Most recent detections to export when no range is given")

	return cmd
}

func run(ctx context.Context, cfg Config, out io.Writer) error {
	store, err := datastore.Open(cfg.DBPath, nil)
	if err != nil {
		return err
	}
	defer store.Close()

	var detections []datastore.Detection
	if cfg.From != "" {
		from, to := cfg.Range(time.Now())
		detections, err = store.Between(ctx, from, to)
	} else {
		detections, err = store.Recent(ctx, cfg.Limit)
	}
	if err != nil {
		return err
	}

	return Write(out, cfg.Format, detections)
}
