package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/ent0n29/scamguard/internal/detect"
	"github.com/ent0n29/scamguard/internal/protocol"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	warningStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("160")).Padding(0, 1)
	statusStyles = map[string]lipgloss.Style{
		string(detect.StatusScam): lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		string(detect.StatusWait): lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		string(detect.StatusSafe): lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
	}
)

// turn is one analyzed turn as written by the json and yaml outputs.
type turn struct {
	Index      int     `json:"index" yaml:"index"`
	Start      float64 `json:"start" yaml:"start"`
	End        float64 `json:"end" yaml:"end"`
	Speaker    string  `json:"speaker" yaml:"speaker"`
	Role       string  `json:"role" yaml:"role"`
	Text       string  `json:"text" yaml:"text"`
	Status     string  `json:"status" yaml:"status"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
	Reason     string  `json:"reason,omitempty" yaml:"reason,omitempty"`
}

type warning struct {
	ScamCount int     `json:"scam_count" yaml:"scam_count"`
	At        float64 `json:"at" yaml:"at"`
	Advice    string  `json:"advice" yaml:"advice"`
}

type report struct {
	SessionID string   `json:"session_id" yaml:"session_id"`
	AudioID   string   `json:"audio_id" yaml:"audio_id"`
	Segments  int      `json:"segments" yaml:"segments"`
	Processed int      `json:"processed" yaml:"processed"`
	ScamCount int      `json:"scam_count" yaml:"scam_count"`
	Turns     []turn   `json:"turns" yaml:"turns"`
	Warning   *warning `json:"warning,omitempty" yaml:"warning,omitempty"`
	Error     string   `json:"error,omitempty" yaml:"error,omitempty"`
}

func (r *report) addResult(ev protocol.ResultEvent) {
	r.Turns = append(r.Turns, turn{
		Index:      ev.Index,
		Start:      ev.Start,
		End:        ev.End,
		Speaker:    ev.Speaker,
		Role:       ev.Role,
		Text:       ev.Text,
		Status:     ev.Status,
		Confidence: ev.Confidence,
		Reason:     ev.Reason,
	})
	if ev.Status == string(detect.StatusScam) {
		r.ScamCount++
	}
}

func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format %q (expected text, json or yaml)", format)
	}
}

func formatTurn(t turn) string {
	style, ok := statusStyles[t.Status]
	if !ok {
		style = mutedStyle
	}
	line := fmt.Sprintf("%s %s %s %s",
		mutedStyle.Render(fmt.Sprintf("#%02d %6.1fs-%6.1fs", t.Index, t.Start, t.End)),
		fmt.Sprintf("%-10s %-8s", t.Speaker, t.Role),
		style.Render(fmt.Sprintf("%-4s %3.0f%%", t.Status, t.Confidence*100)),
		t.Text,
	)
	if t.Reason != "" && t.Status == string(detect.StatusScam) {
		line += "\n" + strings.Repeat(" ", 6) + mutedStyle.Render("↳ "+t.Reason)
	}
	return line
}

func formatWarning(w warning) string {
	return warningStyle.Render(fmt.Sprintf("WARNING after %d scam turns", w.ScamCount)) + "\n" + w.Advice
}

func formatSummary(r report) string {
	return headerStyle.Render(fmt.Sprintf("%s: %d/%d turns analyzed, %d flagged as scam", r.AudioID, r.Processed, r.Segments, r.ScamCount))
}
