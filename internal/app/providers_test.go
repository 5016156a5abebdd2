package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ent0n29/scamguard/internal/config"
)

func baseConfig() config.Config {
	var cfg config.Config
	cfg.Providers = config.ProvidersConfig{ASR: "auto", Diarization: "auto", Classifier: "auto", Explainer: "auto"}
	cfg.Inference.FraudModel = "scam_detector"
	cfg.Inference.RoleModel = "caller_identifier"
	cfg.Inference.Timeout = 5 * time.Second
	cfg.Inference.RetryAttempts = 1
	cfg.Ollama.Model = "qwen3:1.7b"
	cfg.Ollama.Timeout = 5 * time.Second
	return cfg
}

func TestResolveProvidersAutoFallsBackToMock(t *testing.T) {
	set, err := ResolveProviders(baseConfig(), nil)
	if err != nil {
		t.Fatalf("ResolveProviders() error = %v", err)
	}
	for _, capability := range []string{"asr", "diarization", "classifier", "explainer"} {
		if got := set.Names[capability]; got != "mock" {
			t.Fatalf("Names[%s] = %q, want mock", capability, got)
		}
	}
}

func TestResolveProvidersAutoPrefersConfiguredBackends(t *testing.T) {
	cfg := baseConfig()
	cfg.Inference.URL = "http://127.0.0.1:9000"
	cfg.Ollama.BaseURL = "http://127.0.0.1:11434"

	set, err := ResolveProviders(cfg, nil)
	if err != nil {
		t.Fatalf("ResolveProviders() error = %v", err)
	}
	if set.Names["asr"] != "inference" || set.Names["classifier"] != "inference" || set.Names["diarization"] != "inference" {
		t.Fatalf("unexpected names: %v", set.Names)
	}
	if set.Names["explainer"] != "ollama:qwen3:1.7b" {
		t.Fatalf("explainer = %q", set.Names["explainer"])
	}
}

func TestResolveProvidersSegmentsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "segments.yaml")
	raw := "segments:\n  - {start: 0, end: 1.5, speaker: SPEAKER_00}\n  - {start: 1.5, end: 3, speaker: SPEAKER_01}\n"
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := baseConfig()
	cfg.Audio.SegmentsFile = path
	cfg.Providers.CallTimeout = time.Second

	set, err := ResolveProviders(cfg, nil)
	if err != nil {
		t.Fatalf("ResolveProviders() error = %v", err)
	}
	if set.Names["diarization"] != "segments:"+path {
		t.Fatalf("diarization = %q", set.Names["diarization"])
	}
	if set.Names["asr"] != "mock" {
		t.Fatalf("asr = %q, timeout wrapping lost names", set.Names["asr"])
	}
}

func TestResolveProvidersRejectsUnusableChoices(t *testing.T) {
	cases := map[string]func(*config.Config){
		"explainer cannot transcribe": func(c *config.Config) { c.Providers.ASR = "ollama" },
		"segments needs a file":       func(c *config.Config) { c.Providers.Diarization = "segments" },
		"inference needs a url":       func(c *config.Config) { c.Providers.Classifier = "inference" },
		"deepgram cannot classify":    func(c *config.Config) { c.Providers.Classifier = "deepgram" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := baseConfig()
			mutate(&cfg)
			if _, err := ResolveProviders(cfg, nil); err == nil {
				t.Fatalf("ResolveProviders() succeeded, want error")
			}
		})
	}
}

func TestGuardConfigMapsDetectSettings(t *testing.T) {
	cfg := baseConfig()
	cfg.Detect = config.DetectConfig{
		LowThreshold:        0.7,
		HighThreshold:       0.7,
		RecentWindow:        4,
		SuspiciousWindow:    2,
		ContextTurns:        2,
		SuspicionThreshold:  0.5,
		ClearThreshold:      0.8,
		CandidateSpeaker:    "SPEAKER_00",
		RoleStrategy:        "first_speaker",
	}
	cfg.Audio.MinSegmentSeconds = 0.5

	got, err := guardConfig(cfg)
	if err != nil {
		t.Fatalf("guardConfig() error = %v", err)
	}
	if low, high := got.Gate.Thresholds(); low != 0.7 || high != 0.7 {
		t.Fatalf("thresholds = %v/%v", low, high)
	}
	if got.Window.RecentSize != 4 || got.Window.SuspiciousSize != 2 || got.Window.HistoryMarker == "" {
		t.Fatalf("window = %+v", got.Window)
	}
	if got.Role.CandidateSpeaker != "SPEAKER_00" || got.MinSegmentSeconds != 0.5 {
		t.Fatalf("unexpected config: %+v", got)
	}

	cfg.Detect.LowThreshold = 0.9
	if _, err := guardConfig(cfg); err == nil {
		t.Fatalf("guardConfig() with low > high succeeded, want error")
	}
}
