package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/ent0n29/scamguard/internal/audio"
	"github.com/ent0n29/scamguard/internal/detect"
)

// DeepgramConfig configures the Deepgram prerecorded API.
type DeepgramConfig struct {
	APIKey   string
	Model    string
	Language string
}

// deepgramTranscriber is the subset of the prerecorded client we call.
type deepgramTranscriber interface {
	Transcribe(ctx context.Context, wav io.Reader, opts *interfaces.PreRecordedTranscriptionOptions) ([]byte, error)
}

type deepgramREST struct {
	dg *api.Client
}

func (r deepgramREST) Transcribe(ctx context.Context, wav io.Reader, opts *interfaces.PreRecordedTranscriptionOptions) ([]byte, error) {
	res, err := r.dg.FromStream(ctx, wav, opts)
	if err != nil {
		return nil, err
	}
	return json.Marshal(res)
}

// DeepgramProvider serves ASR and diarization from Deepgram's prerecorded API.
type DeepgramProvider struct {
	cfg    DeepgramConfig
	rest   deepgramTranscriber
	logger *slog.Logger
}

func NewDeepgramProvider(cfg DeepgramConfig, logger *slog.Logger) (*DeepgramProvider, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.APIKey == "" {
		return nil, errors.New("deepgram api key is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = "nova-2"
	}
	if strings.TrimSpace(cfg.Language) == "" {
		cfg.Language = "th"
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := client.NewREST(cfg.APIKey, &interfaces.ClientOptions{})
	return &DeepgramProvider{
		cfg:    cfg,
		rest:   deepgramREST{dg: api.New(c)},
		logger: logger.With("component", "deepgram"),
	}, nil
}

type deepgramResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string `json:"transcript"`
			} `json:"alternatives"`
		} `json:"channels"`
		Utterances []struct {
			Start   float64 `json:"start"`
			End     float64 `json:"end"`
			Speaker *int    `json:"speaker"`
		} `json:"utterances"`
	} `json:"results"`
}

func (p *DeepgramProvider) Transcribe(ctx context.Context, clip audio.Clip) (string, error) {
	wav, err := clip.WAV()
	if err != nil {
		return "", fmt.Errorf("encode clip: %w", err)
	}
	res, err := p.call(ctx, wav, &interfaces.PreRecordedTranscriptionOptions{
		Model:       p.cfg.Model,
		Language:    p.cfg.Language,
		SmartFormat: true,
		Punctuate:   true,
	})
	if err != nil {
		return "", err
	}
	if len(res.Results.Channels) == 0 || len(res.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}
	return strings.TrimSpace(res.Results.Channels[0].Alternatives[0].Transcript), nil
}

// Diarize labels turns with SPEAKER_NN tags so they line up with the
// candidate-speaker convention used by role resolution. Deepgram picks the
// speaker count itself; the hint is only logged.
func (p *DeepgramProvider) Diarize(ctx context.Context, w *audio.Waveform, speakers int) ([]detect.Segment, error) {
	wav, err := w.WAV()
	if err != nil {
		return nil, fmt.Errorf("encode waveform: %w", err)
	}
	res, err := p.call(ctx, wav, &interfaces.PreRecordedTranscriptionOptions{
		Model:      p.cfg.Model,
		Language:   p.cfg.Language,
		Diarize:    true,
		Utterances: true,
	})
	if err != nil {
		return nil, err
	}

	segs := make([]detect.Segment, 0, len(res.Results.Utterances))
	for _, u := range res.Results.Utterances {
		speaker := 0
		if u.Speaker != nil {
			speaker = *u.Speaker
		}
		segs = append(segs, detect.Segment{
			Start:   u.Start,
			End:     u.End,
			Speaker: fmt.Sprintf("SPEAKER_%02d", speaker),
		})
	}
	p.logger.Debug("deepgram diarization", "segments", len(segs), "speaker_hint", speakers)
	return segs, nil
}

func (p *DeepgramProvider) call(ctx context.Context, wav []byte, opts *interfaces.PreRecordedTranscriptionOptions) (deepgramResponse, error) {
	raw, err := p.rest.Transcribe(ctx, bytes.NewReader(wav), opts)
	if err != nil {
		return deepgramResponse{}, fmt.Errorf("deepgram request: %w", err)
	}
	var res deepgramResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		return deepgramResponse{}, fmt.Errorf("decode deepgram response: %w", err)
	}
	return res, nil
}
