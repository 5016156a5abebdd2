package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateEvaluateTwoTier(t *testing.T) {
	g, err := NewGate(0.6, 0.75)
	require.NoError(t, err)

	cases := []struct {
		score float64
		label string
		want  Status
	}{
		{0.45, "SCAM", StatusSafe},
		{0.65, "SCAM", StatusWait},
		{0.92, "SCAM", StatusScam},
		{0.95, "SAFE", StatusSafe},
		{0.75, "LABEL_1", StatusScam},
		{0.80, "label_0", StatusSafe},
		{0.60, "SAFE", StatusWait},
	}
	for _, tc := range cases {
		got := g.Evaluate(tc.score, tc.label)
		assert.Equal(t, tc.want, got.Status, "Evaluate(%v, %q)", tc.score, tc.label)
		assert.Equal(t, tc.score, got.Confidence)
	}
}

func TestGateSingleCutoffHasNoWaitBand(t *testing.T) {
	g, err := NewGate(0.7, 0.7)
	require.NoError(t, err)

	assert.Equal(t, StatusSafe, g.Evaluate(0.69, "SCAM").Status)
	assert.Equal(t, StatusScam, g.Evaluate(0.7, "SCAM").Status)
	assert.Equal(t, StatusSafe, g.Evaluate(0.99, "SAFE").Status)
}

func TestGateIsMonotonicInScore(t *testing.T) {
	g := DefaultGate()
	rank := map[Status]int{StatusSafe: 0, StatusWait: 1, StatusScam: 2}

	prev := StatusSafe
	sawWait := false
	for i := 0; i <= 100; i++ {
		score := float64(i) / 100
		got := g.Evaluate(score, "SCAM").Status
		require.GreaterOrEqual(t, rank[got], rank[prev], "score %v went from %s to %s", score, prev, got)
		if got == StatusWait {
			sawWait = true
		}
		if got == StatusScam {
			require.True(t, sawWait, "reached SCAM at %v without crossing WAIT", score)
		}
		require.Equal(t, got, g.Evaluate(score, "SCAM").Status, "Evaluate must be deterministic")
		prev = got
	}
}

func TestNewGateRejectsInvalidThresholds(t *testing.T) {
	_, err := NewGate(0.8, 0.6)
	require.Error(t, err)
	_, err = NewGate(-0.1, 0.6)
	require.Error(t, err)
	_, err = NewGate(0.5, 1.2)
	require.Error(t, err)
}

func TestIsFraudLabel(t *testing.T) {
	assert.True(t, IsFraudLabel("SCAM"))
	assert.True(t, IsFraudLabel(" label_1 "))
	assert.False(t, IsFraudLabel("LABEL_0"))
	assert.False(t, IsFraudLabel("SAFE"))
	assert.False(t, IsFraudLabel(""))
}
