package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"reportviewer/internal/cli"
	"reportviewer/internal/config"
	applog "reportviewer/internal/log"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "report-index",
		Short:         "Inspect the monthly report tree and manage legal details",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(scanCmd())
	rootCmd.AddCommand(renderCmd())
	rootCmd.AddCommand(submitLegalCmd())
	rootCmd.AddCommand(historyCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// loadConfig reads the environment the same way the server does. Logs go to
// stderr so command output stays machine readable.
func loadConfig() (*config.Config, *applog.Logger, error) {
	cli.LoadEnvFile()
	cfg := config.Load()
	logger := applog.New(applog.Config{
		Handler: slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}),
	})
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
