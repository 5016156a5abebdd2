package detect

import (
	"fmt"
	"strings"
)

const (
	DefaultLowThreshold  = 0.6
	DefaultHighThreshold = 0.75
)

// Gate maps a raw classifier score/label pair onto SAFE, WAIT or SCAM.
//
// Scores below low are SAFE, scores in [low,high) are WAIT, and scores at or
// above high are SCAM when the label leans fraud and SAFE otherwise. Setting
// low == high yields a single-cutoff policy with no WAIT band.
type Gate struct {
	low  float64
	high float64
}

func NewGate(low, high float64) (Gate, error) {
	if low < 0 || low > 1 || high < 0 || high > 1 {
		return Gate{}, fmt.Errorf("gate thresholds must be within [0,1], got low=%v high=%v", low, high)
	}
	if low > high {
		return Gate{}, fmt.Errorf("gate low threshold %v exceeds high threshold %v", low, high)
	}
	return Gate{low: low, high: high}, nil
}

func DefaultGate() Gate {
	return Gate{low: DefaultLowThreshold, high: DefaultHighThreshold}
}

func (g Gate) Thresholds() (low, high float64) { return g.low, g.high }

// Evaluate is pure: the same inputs always yield the same verdict.
func (g Gate) Evaluate(score float64, label string) Verdict {
	v := Verdict{Confidence: score}
	switch {
	case score < g.low:
		v.Status = StatusSafe
	case score < g.high:
		v.Status = StatusWait
	case IsFraudLabel(label):
		v.Status = StatusScam
	default:
		v.Status = StatusSafe
	}
	return v
}

// IsFraudLabel reports whether label names the positive class in either of
// the encodings classifiers emit ("SCAM" or the generic "LABEL_1").
func IsFraudLabel(label string) bool {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "SCAM", "LABEL_1":
		return true
	default:
		return false
	}
}
