package provider

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/scamguard/internal/audio"
	"github.com/ent0n29/scamguard/internal/detect"
)

func TestSegmentFileDiarizerClipsToWaveform(t *testing.T) {
	raw := []byte(`
segments:
  - {start: 4.0, end: 7.5, speaker: SPEAKER_00}
  - {start: 0.0, end: 3.8, speaker: SPEAKER_01}
  - {start: 9.0, end: 11.0, speaker: SPEAKER_01}
`)
	path := filepath.Join(t.TempDir(), "call.segments.yaml")
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	d, err := LoadSegmentFile(path)
	require.NoError(t, err)

	w := &audio.Waveform{Samples: make([]int16, 6*16000), SampleRate: 16000}
	segs, err := d.Diarize(context.Background(), w, 2)
	require.NoError(t, err)
	assert.Equal(t, []detect.Segment{
		{Start: 0, End: 3.8, Speaker: "SPEAKER_01"},
		{Start: 4, End: 6, Speaker: "SPEAKER_00"},
	}, segs)
}

func TestParseSegmentsAcceptsJSON(t *testing.T) {
	d, err := ParseSegments([]byte(`{"segments":[{"start":0.5,"end":1.5,"speaker":"SPEAKER_00"}]}`))
	require.NoError(t, err)
	require.Len(t, d.segments, 1)
	assert.Equal(t, "SPEAKER_00", d.segments[0].Speaker)
}

func TestParseSegmentsRejectsInvalid(t *testing.T) {
	_, err := ParseSegments([]byte("segments:\n  - {start: 2, end: 1, speaker: A}\n"))
	require.Error(t, err)

	_, err = ParseSegments([]byte("segments:\n  - {start: 0, end: 1}\n"))
	require.Error(t, err)

	_, err = LoadSegmentFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
