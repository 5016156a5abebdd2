package app

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ent0n29/scamguard/internal/config"
	"github.com/ent0n29/scamguard/internal/provider"
	"github.com/ent0n29/scamguard/internal/reliability"
)

// backends lazily constructs each configured backend at most once.
type backends struct {
	cfg    config.Config
	logger *slog.Logger

	mock      *provider.MockProvider
	deepgram  *provider.DeepgramProvider
	inference *provider.InferenceClient
	ollama    *provider.OllamaExplainer
	segments  *provider.SegmentFileDiarizer
}

func (b *backends) Mock() *provider.MockProvider {
	if b.mock == nil {
		b.mock = provider.NewMockProvider()
	}
	return b.mock
}

func (b *backends) Deepgram() (*provider.DeepgramProvider, error) {
	if b.deepgram != nil {
		return b.deepgram, nil
	}
	p, err := provider.NewDeepgramProvider(provider.DeepgramConfig{
		APIKey:   b.cfg.Deepgram.APIKey,
		Model:    b.cfg.Deepgram.Model,
		Language: b.cfg.Deepgram.Language,
	}, b.logger)
	if err != nil {
		return nil, fmt.Errorf("deepgram provider init failed: %w", err)
	}
	b.deepgram = p
	return p, nil
}

func (b *backends) Inference() (*provider.InferenceClient, error) {
	if b.inference != nil {
		return b.inference, nil
	}
	retry := reliability.DefaultRetryPolicy()
	retry.Attempts = b.cfg.Inference.RetryAttempts
	c, err := provider.NewInferenceClient(provider.InferenceConfig{
		URL:        b.cfg.Inference.URL,
		FraudModel: b.cfg.Inference.FraudModel,
		RoleModel:  b.cfg.Inference.RoleModel,
		Timeout:    b.cfg.Inference.Timeout,
		Retry:      retry,
	})
	if err != nil {
		return nil, fmt.Errorf("inference client init failed: %w", err)
	}
	b.inference = c
	return c, nil
}

func (b *backends) Ollama() (*provider.OllamaExplainer, error) {
	if b.ollama != nil {
		return b.ollama, nil
	}
	e, err := provider.NewOllamaExplainer(provider.OllamaConfig{
		BaseURL:     b.cfg.Ollama.BaseURL,
		Model:       b.cfg.Ollama.Model,
		Temperature: b.cfg.Ollama.Temperature,
		Timeout:     b.cfg.Ollama.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama explainer init failed: %w", err)
	}
	b.ollama = e
	return e, nil
}

func (b *backends) Segments() (*provider.SegmentFileDiarizer, error) {
	if b.segments != nil {
		return b.segments, nil
	}
	if strings.TrimSpace(b.cfg.Audio.SegmentsFile) == "" {
		return nil, fmt.Errorf("segments diarizer requires AUDIO_SEGMENTS_FILE")
	}
	d, err := provider.LoadSegmentFile(b.cfg.Audio.SegmentsFile)
	if err != nil {
		return nil, err
	}
	b.segments = d
	return d, nil
}

func mode(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return "auto"
	}
	return v
}

// ResolveProviders builds the capability set from configuration. "auto"
// prefers a configured remote backend and falls back to the mock.
func ResolveProviders(cfg config.Config, logger *slog.Logger) (*provider.Set, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := &backends{cfg: cfg, logger: logger}
	set := &provider.Set{Names: make(map[string]string, 4)}

	hasDeepgram := strings.TrimSpace(cfg.Deepgram.APIKey) != ""
	hasInference := strings.TrimSpace(cfg.Inference.URL) != ""
	hasOllama := strings.TrimSpace(cfg.Ollama.BaseURL) != ""

	// ASR
	switch m := mode(cfg.Providers.ASR); {
	case m == "deepgram" || (m == "auto" && hasDeepgram):
		dg, err := b.Deepgram()
		if err != nil {
			return nil, err
		}
		set.Transcriber, set.Names["asr"] = dg, "deepgram"
		if hasInference {
			inf, err := b.Inference()
			if err != nil {
				return nil, err
			}
			set.Transcriber = provider.NewFailoverTranscriber(dg, inf)
			set.Names["asr"] = "deepgram (failover: inference)"
		}
	case m == "inference" || (m == "auto" && hasInference):
		inf, err := b.Inference()
		if err != nil {
			return nil, err
		}
		set.Transcriber, set.Names["asr"] = inf, "inference"
	case m == "mock" || m == "auto":
		set.Transcriber, set.Names["asr"] = b.Mock(), "mock"
	default:
		return nil, fmt.Errorf("PROVIDERS_ASR: %q cannot transcribe", m)
	}

	// Diarization
	hasSegments := strings.TrimSpace(cfg.Audio.SegmentsFile) != ""
	switch m := mode(cfg.Providers.Diarization); {
	case m == "segments" || (m == "auto" && hasSegments):
		d, err := b.Segments()
		if err != nil {
			return nil, err
		}
		set.Diarizer, set.Names["diarization"] = d, "segments:"+cfg.Audio.SegmentsFile
	case m == "deepgram" || (m == "auto" && hasDeepgram):
		dg, err := b.Deepgram()
		if err != nil {
			return nil, err
		}
		set.Diarizer, set.Names["diarization"] = dg, "deepgram"
	case m == "inference" || (m == "auto" && hasInference):
		inf, err := b.Inference()
		if err != nil {
			return nil, err
		}
		set.Diarizer, set.Names["diarization"] = inf, "inference"
	case m == "mock" || m == "auto":
		set.Diarizer, set.Names["diarization"] = b.Mock(), "mock"
	default:
		return nil, fmt.Errorf("PROVIDERS_DIARIZATION: %q cannot diarize", m)
	}

	// Fraud and role classifiers share a backend.
	switch m := mode(cfg.Providers.Classifier); {
	case m == "inference" || (m == "auto" && hasInference):
		inf, err := b.Inference()
		if err != nil {
			return nil, err
		}
		set.FraudClassifier, set.RoleClassifier, set.Names["classifier"] = inf, inf, "inference"
	case m == "mock" || m == "auto":
		mock := b.Mock()
		set.FraudClassifier, set.RoleClassifier, set.Names["classifier"] = mock, mock, "mock"
	default:
		return nil, fmt.Errorf("PROVIDERS_CLASSIFIER: %q cannot classify", m)
	}

	// Explainer
	switch m := mode(cfg.Providers.Explainer); {
	case m == "ollama" || (m == "auto" && hasOllama):
		e, err := b.Ollama()
		if err != nil {
			return nil, err
		}
		set.Explainer, set.Names["explainer"] = e, "ollama:"+cfg.Ollama.Model
	case m == "mock" || m == "auto":
		set.Explainer, set.Names["explainer"] = b.Mock(), "mock"
	default:
		return nil, fmt.Errorf("PROVIDERS_EXPLAINER: %q cannot explain", m)
	}

	if err := set.Validate(); err != nil {
		return nil, err
	}
	if cfg.Providers.CallTimeout > 0 {
		bounded := provider.WithTimeout(set, cfg.Providers.CallTimeout)
		set = bounded
	}
	return set, nil
}
