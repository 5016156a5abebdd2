package history

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDetections(sessionID string) []Detection {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return []Detection{
		{SessionID: sessionID, AudioID: "scam_bank.wav", Index: 1, Start: 0.5, End: 2, Speaker: "SPEAKER_01", Role: "CALLER", Text: "สวัสดีครับ", Status: "SAFE", Confidence: 0.2, CreatedAt: base},
		{SessionID: sessionID, AudioID: "scam_bank.wav", Index: 2, Start: 2.1, End: 4, Speaker: "SPEAKER_01", Role: "CALLER", Text: "โอนเงินด่วน", Status: "SCAM", Confidence: 0.93, Reason: "ตรวจพบพฤติกรรมน่าสงสัย", CreatedAt: base.Add(time.Second)},
		{SessionID: sessionID, AudioID: "scam_bank.wav", Index: 2, Start: 2.1, End: 4, Speaker: "SYSTEM", Role: "SYSTEM", Status: "WARNING", Confidence: 1, Reason: "advice", IsWarning: true, PIIRedacted: true, CreatedAt: base.Add(2 * time.Second)},
	}
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	for _, d := range sampleDetections("s1") {
		require.NoError(t, s.SaveDetection(ctx, d))
	}
	require.NoError(t, s.SaveDetection(ctx, Detection{SessionID: "s2", Status: "SAFE"}))

	all, err := s.ListDetections(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "สวัสดีครับ", all[0].Text)
	assert.Equal(t, "SCAM", all[1].Status)
	assert.True(t, all[2].IsWarning)
	assert.True(t, all[2].PIIRedacted)
	assert.NotEmpty(t, all[0].ID)

	last, err := s.ListDetections(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, "SCAM", last[0].Status)
	assert.Equal(t, "WARNING", last[1].Status)

	none, err := s.ListDetections(ctx, "missing", 0)
	require.NoError(t, err)
	assert.Empty(t, none)

	require.ErrorIs(t, s.SaveDetection(ctx, Detection{Status: "SAFE"}), ErrInvalidRecord)
}

func TestInMemoryStore(t *testing.T) {
	s := NewInMemoryStore()
	defer s.Close()
	exerciseStore(t, s)
	assert.Equal(t, "in-memory", s.Mode())
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	s, err := NewSQLiteStore(context.Background(), path)
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
	assert.Equal(t, "sqlite", s.Mode())
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("SCAMGUARD_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("SCAMGUARD_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := NewPostgresStore(ctx, url)
	require.NoError(t, err)
	defer s.Close()
	_, err = s.pool.Exec(ctx, `DELETE FROM detections WHERE session_id IN ('s1','s2')`)
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestNewStoreSelectsBackend(t *testing.T) {
	ctx := context.Background()

	s, err := NewStore(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "in-memory", s.Mode())

	dir := t.TempDir()
	s, err = NewStore(ctx, "sqlite://"+filepath.Join(dir, "a.db"))
	require.NoError(t, err)
	assert.Equal(t, "sqlite", s.Mode())
	require.NoError(t, s.Close())

	s, err = NewStore(ctx, filepath.Join(dir, "b.db"))
	require.NoError(t, err)
	assert.Equal(t, "sqlite", s.Mode())
	require.NoError(t, s.Close())

	_, err = NewStore(ctx, "mysql://nope")
	require.Error(t, err)
}
