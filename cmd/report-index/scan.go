package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"reportviewer/internal/cli"
	"reportviewer/internal/core"
	"reportviewer/internal/fetch"
)

func scanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Build the month index from the data root and print it",
		Args:  cobra.NoArgs,
		RunE:  runScan,
	}

	cmd.Flags().String("base-url", "", "Data root URL (defaults to DATA_BASE_URL)")
	cmd.Flags().Int("workers", 0, "Months probed in parallel (defaults to SCAN_WORKERS)")
	cmd.Flags().BoolP("json", "j", false, "Output as JSON")

	return cmd
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	if baseURL, _ := cmd.Flags().GetString("base-url"); baseURL != "" {
		cfg.DataBaseURL = strings.TrimRight(baseURL, "/")
	}
	if workers, _ := cmd.Flags().GetInt("workers"); workers > 0 {
		cfg.ScanWorkers = workers
	}

	builder := cli.NewIndexBuilder(cfg, cli.NewFetchClient(cfg), logger.Logger)
	idx, err := builder.Build(cmd.Context())
	if fetch.IsFetchError(err) {
		return fmt.Errorf("scan %s: data root did not serve a summaries listing: %w", cfg.DataBaseURL, err)
	}
	if err != nil {
		return fmt.Errorf("scan %s: %w", cfg.DataBaseURL, err)
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(idx)
	}
	return printIndex(cmd, idx)
}

func printIndex(cmd *cobra.Command, idx core.MonthIndex) error {
	if len(idx) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No reports found.")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MONTH\tSUMMARY\tINCOME\tBALANCE")
	for _, e := range idx {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Label, mark(e.SummaryLocation != ""), mark(e.Income != nil), mark(e.Balance != nil))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n%d months\n", len(idx))
	return nil
}

func mark(ok bool) string {
	if ok {
		return "yes"
	}
	return "-"
}
