package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"reportviewer/internal/markdown"
)

func renderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "render <file|->",
		Short: "Render a summary document to HTML",
		Long:  "Render a markdown summary with the viewer's restricted renderer. Use - to read stdin.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				src []byte
				err error
			)
			if args[0] == "-" {
				src, err = io.ReadAll(cmd.InOrStdin())
			} else {
				src, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			_, err = io.WriteString(cmd.OutOrStdout(), markdown.Render(string(src)))
			return err
		},
	}
}
