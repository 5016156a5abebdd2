package guard

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ent0n29/scamguard/internal/audio"
	"github.com/ent0n29/scamguard/internal/detect"
	"github.com/ent0n29/scamguard/internal/provider"
)

const testRate = 16000

// fakeCaps implements every capability with scripted answers.
type fakeCaps struct {
	// transcripts maps a segment start (rounded to 0.1 s) to its text.
	transcripts map[string]string
	asrErr      map[string]error
	// scamSuffixes lists utterances the fraud classifier flags.
	scamSuffixes []string
	fraudErr     error
	roleLabel    string
	explainErr   error

	fraudCalls   atomic.Int32
	explainCalls atomic.Int32

	mu              sync.Mutex
	warningMessages []string
	warningCalls    int
}

func clipKey(start float64) string { return fmt.Sprintf("%.1f", start) }

func (f *fakeCaps) Transcribe(_ context.Context, clip audio.Clip) (string, error) {
	key := clipKey(clip.Start)
	if err := f.asrErr[key]; err != nil {
		return "", err
	}
	return f.transcripts[key], nil
}

func (f *fakeCaps) Diarize(context.Context, *audio.Waveform, int) ([]detect.Segment, error) {
	return nil, errors.New("not used")
}

func (f *fakeCaps) ClassifyRole(context.Context, string) (string, float64, error) {
	label := f.roleLabel
	if label == "" {
		label = "CALLER"
	}
	return label, 0.9, nil
}

func (f *fakeCaps) ClassifyFraud(_ context.Context, text string) (string, float64, error) {
	f.fraudCalls.Add(1)
	if f.fraudErr != nil {
		return "", 0, f.fraudErr
	}
	for _, s := range f.scamSuffixes {
		if strings.HasSuffix(text, s) {
			return "SCAM", 0.92, nil
		}
	}
	return "SAFE", 0.95, nil
}

func (f *fakeCaps) Explain(context.Context, string) (string, error) {
	f.explainCalls.Add(1)
	if f.explainErr != nil {
		return "", f.explainErr
	}
	return "ขอรหัส OTP", nil
}

func (f *fakeCaps) ExplainWarning(_ context.Context, messages []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.warningCalls++
	f.warningMessages = append([]string(nil), messages...)
	if f.explainErr != nil {
		return "", f.explainErr
	}
	return "วางสายทันที", nil
}

func (f *fakeCaps) set() *provider.Set {
	return &provider.Set{
		Transcriber:     f,
		Diarizer:        f,
		RoleClassifier:  f,
		FraudClassifier: f,
		Explainer:       f,
	}
}

type fakeWaveforms struct {
	waveforms map[string]*audio.Waveform
}

func (f fakeWaveforms) Load(audioID string) (*audio.Waveform, error) {
	w, ok := f.waveforms[audioID]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", audioID, os.ErrNotExist)
	}
	return w, nil
}

type fakeSegments struct {
	segments map[string][]detect.Segment
	err      error
}

func (f fakeSegments) GetOrCompute(_ context.Context, audioID string) ([]detect.Segment, error) {
	if f.err != nil {
		return nil, f.err
	}
	return append([]detect.Segment(nil), f.segments[audioID]...), nil
}

func silence(seconds float64) *audio.Waveform {
	return &audio.Waveform{Samples: make([]int16, int(seconds*testRate)), SampleRate: testRate}
}

// turns builds n one-second turns with 0.8 s of speech each, all by speaker,
// transcribed as "utterance NN".
func turns(n int, speaker string) ([]detect.Segment, map[string]string) {
	segs := make([]detect.Segment, 0, n)
	texts := make(map[string]string, n)
	for i := 0; i < n; i++ {
		start := float64(i)
		segs = append(segs, detect.Segment{Start: start, End: start + 0.8, Speaker: speaker})
		texts[clipKey(start)] = fmt.Sprintf("utterance %02d", i+1)
	}
	return segs, texts
}
