package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ent0n29/scamguard/internal/app"
	"github.com/ent0n29/scamguard/internal/config"
	"github.com/ent0n29/scamguard/internal/detect"
	"github.com/ent0n29/scamguard/internal/guard"
)

func checkCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "check [text]",
		Short: "Classify a single piece of text",
		Long: `check scores one utterance without any conversation memory. Pass the
text as arguments or pipe it on stdin.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if strings.TrimSpace(text) == "" {
				raw, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				text = string(raw)
			}
			return runCheck(cmd.Context(), loaded, text, strings.ToLower(output), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format (text, json, yaml)")
	cmd.Flags().String("providers", "", "force every capability to one backend (e.g. mock)")
	return cmd
}

func runCheck(ctx context.Context, cfg config.Config, text, output string, stdout io.Writer) error {
	built, err := app.Build(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer func() {
		if err := built.Cleanup(); err != nil {
			slog.Warn("cleanup failed", "error", err)
		}
	}()

	result, err := built.Orchestrator.CheckText(ctx, text)
	if err != nil {
		return err
	}
	if output != "text" {
		return writeStructured(stdout, output, result)
	}
	fmt.Fprintln(stdout, formatCheck(result))
	return nil
}

func formatCheck(r guard.TextCheck) string {
	style, ok := statusStyles[r.Label]
	if !ok {
		style = mutedStyle
	}
	line := style.Render(fmt.Sprintf("%s %.0f%%", r.Label, r.Confidence*100)) + "  " + r.Text
	if r.Reason != nil && r.Label == string(detect.StatusScam) {
		line += "\n" + mutedStyle.Render("↳ "+*r.Reason)
	}
	return line
}
