package detect

import (
	"slices"
	"strings"
)

// EscalationThreshold is the number of SCAM turns that triggers the warning.
const EscalationThreshold = 3

// EscalationState is a snapshot of an EscalationTracker.
type EscalationState struct {
	ScamCount    int      `json:"scam_count"`
	WarningSent  bool     `json:"warning_sent"`
	ScamMessages []string `json:"scam_messages"`
}

// EscalationTracker counts confirmed SCAM turns and fires a single warning
// once the count reaches EscalationThreshold.
type EscalationTracker struct {
	scamCount   int
	warningSent bool
	messages    []string
}

func NewEscalationTracker() *EscalationTracker {
	return &EscalationTracker{}
}

// RecordScam registers one SCAM turn and returns the running count.
func (t *EscalationTracker) RecordScam(text string) int {
	t.scamCount++
	t.messages = append(t.messages, text)
	return t.scamCount
}

// ShouldWarn returns true exactly once per session: on the first call made
// after the count has reached the threshold.
func (t *EscalationTracker) ShouldWarn() bool {
	if t.warningSent || t.scamCount < EscalationThreshold {
		return false
	}
	t.warningSent = true
	return true
}

func (t *EscalationTracker) Threshold() int { return EscalationThreshold }

func (t *EscalationTracker) Messages() []string { return slices.Clone(t.messages) }

// WarningPrompt renders the accumulated SCAM messages for the explanation capability.
func (t *EscalationTracker) WarningPrompt() string {
	return FormatScamMessages(t.messages)
}

func (t *EscalationTracker) State() EscalationState {
	return EscalationState{
		ScamCount:    t.scamCount,
		WarningSent:  t.warningSent,
		ScamMessages: t.Messages(),
	}
}

func (t *EscalationTracker) Reset() {
	t.scamCount = 0
	t.warningSent = false
	t.messages = nil
}

// FormatScamMessages renders messages as a dash-bulleted list, one per line.
func FormatScamMessages(messages []string) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		lines = append(lines, "- "+m)
	}
	return strings.Join(lines, "\n")
}
