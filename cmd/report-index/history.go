package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"reportviewer/internal/core"
	"reportviewer/internal/storage"
)

type historyRow struct {
	ID                string    `json:"id"`
	Year              int       `json:"year"`
	Month             int       `json:"month"`
	ActiveLitigation  int       `json:"active_litigation"`
	ClosedLitigations string    `json:"closed_litigations"`
	Location          string    `json:"location"`
	CreatedAt         time.Time `json:"created_at"`
}

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded legal-details submissions for a month",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}

	cmd.Flags().Int("year", 0, "Report year")
	cmd.Flags().Int("month", 0, "Report month (1-12)")
	cmd.Flags().String("db", "", "Audit database path (defaults to SQLITE_DB_PATH)")
	cmd.Flags().BoolP("json", "j", false, "Output as JSON")
	_ = cmd.MarkFlagRequired("year")
	_ = cmd.MarkFlagRequired("month")

	return cmd
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if dbPath, _ := cmd.Flags().GetString("db"); dbPath != "" {
		cfg.SQLiteDBPath = dbPath
	}
	if cfg.SQLiteDBPath == "" {
		return errors.New("no audit database: set SQLITE_DB_PATH or pass --db")
	}

	year, _ := cmd.Flags().GetInt("year")
	month, _ := cmd.Flags().GetInt("month")
	if _, err := core.ParseMonthKey(fmt.Sprintf("%d-%d", year, month)); err != nil {
		return err
	}

	repo, err := storage.NewAuditRepository(cfg.SQLiteDBPath, logger.Logger)
	if err != nil {
		return fmt.Errorf("open audit database: %w", err)
	}
	defer repo.Close()

	subs, err := repo.ListSubmissions(cmd.Context(), year, month)
	if err != nil {
		return err
	}

	rows := make([]historyRow, 0, len(subs))
	for _, s := range subs {
		rows = append(rows, historyRow{
			ID:                s.ID,
			Year:              s.Payload.Year,
			Month:             s.Payload.Month,
			ActiveLitigation:  s.Payload.ActiveLitigationCount,
			ClosedLitigations: s.Payload.ClosedLitigationsText,
			Location:          s.Location,
			CreatedAt:         s.CreatedAt,
		})
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}
	return printHistory(cmd, core.MonthLabel(year, month), rows)
}

func printHistory(cmd *cobra.Command, label string, rows []historyRow) error {
	if len(rows) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No submissions for %s.\n", label)
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SUBMITTED\tACTIVE\tCLOSED\tLOCATION")
	for _, r := range rows {
		closed := strings.Count(r.ClosedLitigations, "\n") + 1
		if strings.TrimSpace(r.ClosedLitigations) == "" {
			closed = 0
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", r.CreatedAt.Format(time.RFC3339), r.ActiveLitigation, closed, r.Location)
	}
	return tw.Flush()
}
