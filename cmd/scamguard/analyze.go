package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/ent0n29/scamguard/internal/app"
	"github.com/ent0n29/scamguard/internal/config"
	"github.com/ent0n29/scamguard/internal/protocol"
)

func analyzeCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "analyze [audio-id]",
		Short: "Analyze one recording offline and print every turn",
		Long: `analyze runs a full session against a recording in the audio directory
without a websocket client. The session starts immediately and, unless
--realtime is given, segments are processed as fast as the providers answer.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loaded
			if len(args) == 1 {
				cfg.Audio.Default = args[0]
			}
			if !cmd.Flags().Changed("realtime") {
				cfg.Audio.SimulateRealtime = false
			}
			return runAnalyze(cmd.Context(), cfg, strings.ToLower(output), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format (text, json, yaml)")
	cmd.Flags().String("audio-dir", "static/audio", "directory holding call recordings")
	cmd.Flags().Bool("realtime", false, "pace segments by their end time in the recording")
	cmd.Flags().String("segments", "", "replay a fixed diarization from a yaml file")
	cmd.Flags().String("database-url", "", "detection history store (postgres:// or sqlite://)")
	cmd.Flags().String("providers", "", "force every capability to one backend (e.g. mock)")
	return cmd
}

func runAnalyze(ctx context.Context, cfg config.Config, output string, stdout, stderr io.Writer) error {
	if output != "text" && output != "json" && output != "yaml" {
		return fmt.Errorf("unsupported output format %q (expected text, json or yaml)", output)
	}
	built, err := app.Build(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer func() {
		if err := built.Cleanup(); err != nil {
			slog.Warn("cleanup failed", "error", err)
		}
	}()

	sess := built.Sessions.Create("cli", cfg.Audio.Default)
	defer func() { _, _ = built.Sessions.End(sess.ID) }()

	inbound := make(chan any, 1)
	inbound <- protocol.ClientControl{Type: protocol.TypeClientControl, SessionID: sess.ID, Action: protocol.ActionStart}
	close(inbound)
	outbound := make(chan any, 16)

	runErr := make(chan error, 1)
	go func() {
		defer close(outbound)
		runErr <- built.Orchestrator.RunConnection(ctx, sess, inbound, outbound)
	}()

	rep := collect(outbound, output, stdout, stderr)
	err = <-runErr
	rep.SessionID = sess.ID

	if output != "text" {
		if werr := writeStructured(stdout, output, rep); werr != nil {
			return werr
		}
	} else if rep.Error == "" {
		fmt.Fprintln(stdout, formatSummary(rep))
	}
	if rep.Error != "" {
		return fmt.Errorf("analysis failed: %s", rep.Error)
	}
	return err
}

// collect consumes session events until the orchestrator closes outbound.
func collect(outbound <-chan any, output string, stdout, stderr io.Writer) report {
	var (
		rep report
		bar *progressbar.ProgressBar
	)
	text := output == "text"
	for msg := range outbound {
		switch ev := msg.(type) {
		case protocol.ReadyEvent:
			rep.AudioID = ev.AudioID
			rep.Segments = ev.Segments
			if text {
				fmt.Fprintln(stdout, headerStyle.Render(fmt.Sprintf("%s  %s (%d segments)", ev.Message, ev.AudioID, ev.Segments)))
			}
			bar = newProgressBar(stderr, ev.Segments)
		case protocol.LogEvent:
			slog.Debug("pipeline", "step", ev.Step, "message", ev.Message)
			if bar != nil && ev.Step == protocol.StepSkip {
				_ = bar.Add(1)
			}
		case protocol.ResultEvent:
			rep.addResult(ev)
			if bar != nil {
				_ = bar.Add(1)
			}
			if text {
				if bar != nil {
					_ = bar.Clear()
				}
				fmt.Fprintln(stdout, formatTurn(rep.Turns[len(rep.Turns)-1]))
			}
		case protocol.WarningEvent:
			rep.Warning = &warning{ScamCount: ev.ScamCount, At: ev.End, Advice: ev.Reason}
			if text {
				if bar != nil {
					_ = bar.Clear()
				}
				fmt.Fprintln(stdout, formatWarning(*rep.Warning))
			}
		case protocol.ErrorEvent:
			rep.Error = ev.Text
		case protocol.FinishedEvent:
			rep.Processed = ev.Processed
			rep.ScamCount = ev.ScamCount
			if bar != nil {
				_ = bar.Finish()
			}
		}
	}
	return rep
}

func newProgressBar(w io.Writer, total int) *progressbar.ProgressBar {
	if total <= 0 {
		return nil
	}
	if f, ok := w.(*os.File); !ok || f != os.Stderr {
		w = io.Discard
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]Analyzing turns...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionClearOnFinish(),
	)
}
