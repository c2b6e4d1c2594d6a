package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var opts FilterOptions

// Execute runs the lorawan-log root command.
func Execute() error {
	root := &cobra.Command{
		Use:          "lorawan-log",
		Short:        "View and analyze LoRaWAN boot journals",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&opts.BootID, "boot-id", "", "filter by boot ID")
	root.PersistentFlags().StringVar(&opts.DevEUI, "dev-eui", "", "filter by DevEUI")
	root.PersistentFlags().StringVar(&opts.Category, "category", "", "filter by category (boot, join, uplink, sleep, error)")
	root.PersistentFlags().StringVar(&opts.Stage, "stage", "", "filter by stage (restore, radio, activate, join, uplink, persist, sleep)")
	root.PersistentFlags().StringVar(&opts.TimeStart, "time-start", "", "only events at or after this RFC3339 time")
	root.PersistentFlags().StringVar(&opts.TimeEnd, "time-end", "", "only events before this RFC3339 time")

	root.AddCommand(viewCmd(), statsCmd(), exportCmd(), filterCmd())
	return root.Execute()
}

// view <journal>: print events in human-readable form.
func viewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "view <journal>",
		Short: "View a journal in human-readable format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunView(args[0], opts, cmd.OutOrStdout())
		},
	}
}

// stats <journal>: per-node boot, join and uplink statistics.
func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <journal>",
		Short: "Show statistics about a journal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunStats(args[0], opts, cmd.OutOrStdout())
		},
	}
}

// export <journal>: convert to JSONL or CSV.
func exportCmd() *cobra.Command {
	var format, output string
	cmd := &cobra.Command{
		Use:   "export <journal>",
		Short: "Export a journal to JSONL or CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunExport(args[0], format, output, opts)
		},
	}
	cmd.Flags().StringVar(&format, "format", "jsonl", "output format (jsonl, csv)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	return cmd
}

// filter <journal> -o <out>: write matching events to a new journal.
func filterCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "filter <journal>",
		Short: "Write matching events to a new journal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := RunFilter(args[0], output, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Filtered %d events to %s\n", n, output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output journal (required)")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}
