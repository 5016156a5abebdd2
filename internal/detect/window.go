package detect

import (
	"slices"
	"strings"
)

// WindowConfig tunes the conversational memory kept for one session.
type WindowConfig struct {
	RecentSize         int
	SuspiciousSize     int
	ContextTurns       int
	SuspicionThreshold float64
	ClearThreshold     float64
	HistoryMarker      string
	RecentMarker       string
}

func DefaultWindowConfig() WindowConfig {
	return WindowConfig{
		RecentSize:         5,
		SuspiciousSize:     5,
		ContextTurns:       3,
		SuspicionThreshold: 0.5,
		ClearThreshold:     0.8,
		HistoryMarker:      "[สัญญาณก่อนหน้า]",
		RecentMarker:       "[บทสนทนาล่าสุด]",
	}
}

func (c WindowConfig) withDefaults() WindowConfig {
	d := DefaultWindowConfig()
	if c.RecentSize <= 0 {
		c.RecentSize = d.RecentSize
	}
	if c.SuspiciousSize <= 0 {
		c.SuspiciousSize = d.SuspiciousSize
	}
	if c.ContextTurns <= 0 {
		c.ContextTurns = d.ContextTurns
	}
	if c.HistoryMarker == "" {
		c.HistoryMarker = d.HistoryMarker
	}
	if c.RecentMarker == "" {
		c.RecentMarker = d.RecentMarker
	}
	return c
}

// MemoryWindow holds the recent utterances and the suspicious-utterance log
// of one session. It is owned by a single session goroutine and is not safe
// for concurrent use.
type MemoryWindow struct {
	cfg        WindowConfig
	recent     []string
	suspicious []string
}

func NewMemoryWindow(cfg WindowConfig) *MemoryWindow {
	cfg = cfg.withDefaults()
	return &MemoryWindow{
		cfg:        cfg,
		recent:     make([]string, 0, cfg.RecentSize),
		suspicious: make([]string, 0, cfg.SuspiciousSize),
	}
}

// BuildContext prefixes newText with the suspicious log and the last few
// recent utterances, so short ambiguous turns inherit their surroundings.
func (m *MemoryWindow) BuildContext(newText string) string {
	parts := make([]string, 0, 3)
	if len(m.suspicious) > 0 {
		parts = append(parts, m.cfg.HistoryMarker+" "+strings.Join(m.suspicious, " | "))
	}
	if len(m.recent) > 0 {
		from := len(m.recent) - m.cfg.ContextTurns
		if from < 0 {
			from = 0
		}
		parts = append(parts, m.cfg.RecentMarker+" "+strings.Join(m.recent[from:], " "))
	}
	parts = append(parts, newText)
	return strings.Join(parts, " ")
}

// Update records a classified turn.
func (m *MemoryWindow) Update(text string, status Status, confidence float64) {
	m.recent = appendBounded(m.recent, text, m.cfg.RecentSize)

	if (status == StatusWait || status == StatusScam) && confidence > m.cfg.SuspicionThreshold {
		if !slices.Contains(m.suspicious, text) {
			m.suspicious = appendBounded(m.suspicious, text, m.cfg.SuspiciousSize)
		}
	}

	// A confident all-clear drops accumulated suspicion.
	if status == StatusSafe && confidence > m.cfg.ClearThreshold {
		m.suspicious = m.suspicious[:0]
	}
}

func (m *MemoryWindow) Recent() []string     { return slices.Clone(m.recent) }
func (m *MemoryWindow) Suspicious() []string { return slices.Clone(m.suspicious) }

func (m *MemoryWindow) Reset() {
	m.recent = m.recent[:0]
	m.suspicious = m.suspicious[:0]
}

func appendBounded(buf []string, v string, max int) []string {
	buf = append(buf, v)
	if over := len(buf) - max; over > 0 {
		copy(buf, buf[over:])
		buf = buf[:max]
	}
	return buf
}
