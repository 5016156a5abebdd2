package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscalationWarnsExactlyOnce(t *testing.T) {
	tr := NewEscalationTracker()

	tr.RecordScam("one")
	assert.False(t, tr.ShouldWarn())
	tr.RecordScam("two")
	assert.False(t, tr.ShouldWarn())
	tr.RecordScam("three")
	require.True(t, tr.ShouldWarn())

	tr.RecordScam("four")
	assert.False(t, tr.ShouldWarn())
	assert.False(t, tr.ShouldWarn())

	st := tr.State()
	assert.Equal(t, 4, st.ScamCount)
	assert.True(t, st.WarningSent)
	assert.Equal(t, []string{"one", "two", "three", "four"}, st.ScamMessages)
}

func TestEscalationWarningPromptFormat(t *testing.T) {
	tr := NewEscalationTracker()

	tr.RecordScam("โอนเงินด่วน")
	tr.RecordScam("บัญชีถูกอายัด")
	assert.Equal(t, "- โอนเงินด่วน\n- บัญชีถูกอายัด", tr.WarningPrompt())
	assert.Equal(t, "", FormatScamMessages(nil))
}

func TestEscalationNeverWarnsBelowThreeScams(t *testing.T) {
	tr := NewEscalationTracker()
	require.Equal(t, 3, tr.Threshold())

	for i := 1; i < EscalationThreshold; i++ {
		tr.RecordScam("scam")
		for range 5 {
			assert.False(t, tr.ShouldWarn(), "warned after %d scam turns", i)
		}
		st := tr.State()
		assert.False(t, st.WarningSent)
	}
	tr.RecordScam("scam")
	require.True(t, tr.ShouldWarn())
	st := tr.State()
	assert.True(t, st.WarningSent)
	assert.GreaterOrEqual(t, st.ScamCount, EscalationThreshold)
}

func TestEscalationResetRearmsWarning(t *testing.T) {
	tr := NewEscalationTracker()
	for range EscalationThreshold {
		tr.RecordScam("x")
	}
	require.True(t, tr.ShouldWarn())

	tr.Reset()
	st := tr.State()
	assert.Zero(t, st.ScamCount)
	assert.False(t, st.WarningSent)
	assert.Empty(t, st.ScamMessages)
	assert.False(t, tr.ShouldWarn())
	tr.RecordScam("y")
	assert.False(t, tr.ShouldWarn())
}
