package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"reportviewer/internal/cli"
	"reportviewer/internal/core"
	"reportviewer/internal/legal"
	applog "reportviewer/internal/log"
)

func submitLegalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit-legal",
		Short: "Post legal details for a month to the API",
		Args:  cobra.NoArgs,
		RunE:  runSubmitLegal,
	}

	cmd.Flags().Int("year", 0, "Report year")
	cmd.Flags().Int("month", 0, "Report month (1-12)")
	cmd.Flags().Int("active", 0, "Active litigation count (0-10)")
	cmd.Flags().String("closed", "", "Closed litigations, one per line")
	cmd.Flags().String("api-base-url", "", "API root URL (defaults to API_BASE_URL)")
	_ = cmd.MarkFlagRequired("year")
	_ = cmd.MarkFlagRequired("month")
	_ = cmd.MarkFlagRequired("active")

	return cmd
}

func runSubmitLegal(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if base, _ := cmd.Flags().GetString("api-base-url"); base != "" {
		cfg.APIBaseURL = strings.TrimRight(base, "/")
	}

	var p core.LegalDetailsPayload
	p.Year, _ = cmd.Flags().GetInt("year")
	p.Month, _ = cmd.Flags().GetInt("month")
	p.ActiveLitigationCount, _ = cmd.Flags().GetInt("active")
	p.ClosedLitigationsText, _ = cmd.Flags().GetString("closed")
	p.ClosedLitigationsText = strings.TrimSpace(p.ClosedLitigationsText)

	if err := p.Validate(); err != nil {
		return err
	}

	submitter := legal.NewSubmitter(cli.NewFetchClient(cfg), cfg.APIBaseURL, logger.Logger)
	logger.Info("Submitting legal details",
		applog.FieldURL, submitter.Endpoint(),
		applog.FieldYear, p.Year,
		applog.FieldMonth, p.Month)
	st := submitter.Submit(cmd.Context(), p)
	if st.Kind != legal.StatusSuccess {
		return errors.New(st.Message)
	}
	fmt.Fprintln(cmd.OutOrStdout(), st.Message)
	return nil
}
