package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ent0n29/scamguard/internal/audio"
	"github.com/ent0n29/scamguard/internal/detect"
	"github.com/ent0n29/scamguard/internal/reliability"
)

// InferenceConfig points at a model server hosting the classifier, ASR and
// diarization models behind a small JSON API.
type InferenceConfig struct {
	URL        string
	FraudModel string
	RoleModel  string
	Timeout    time.Duration
	Retry      reliability.RetryPolicy
}

// InferenceClient calls the model server. It implements Transcriber,
// Diarizer, RoleClassifier and FraudClassifier.
type InferenceClient struct {
	cfg    InferenceConfig
	client *http.Client
}

// StatusError is a non-2xx answer from an HTTP backend.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.Code, e.Body)
}

func (e *StatusError) HTTPStatus() int { return e.Code }

func NewInferenceClient(cfg InferenceConfig) (*InferenceClient, error) {
	cfg.URL = strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if cfg.URL == "" {
		return nil, errors.New("inference url is required")
	}
	if strings.TrimSpace(cfg.FraudModel) == "" {
		cfg.FraudModel = "scam_detector"
	}
	if strings.TrimSpace(cfg.RoleModel) == "" {
		cfg.RoleModel = "caller_identifier"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Retry.Attempts <= 0 {
		cfg.Retry = reliability.DefaultRetryPolicy()
	}
	return &InferenceClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type classifyRequest struct {
	Model string `json:"model"`
	Text  string `json:"text"`
}

type classifyResponse struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

func (c *InferenceClient) ClassifyFraud(ctx context.Context, text string) (string, float64, error) {
	return c.classify(ctx, c.cfg.FraudModel, text)
}

func (c *InferenceClient) ClassifyRole(ctx context.Context, text string) (string, float64, error) {
	return c.classify(ctx, c.cfg.RoleModel, text)
}

func (c *InferenceClient) classify(ctx context.Context, model, text string) (string, float64, error) {
	payload, err := json.Marshal(classifyRequest{Model: model, Text: text})
	if err != nil {
		return "", 0, fmt.Errorf("marshal request: %w", err)
	}
	var out classifyResponse
	err = c.do(ctx, "/classify", func() (io.Reader, string, error) {
		return bytes.NewReader(payload), "application/json", nil
	}, &out)
	if err != nil {
		return "", 0, fmt.Errorf("classify %s: %w", model, err)
	}
	if strings.TrimSpace(out.Label) == "" || out.Score < 0 || out.Score > 1 {
		return "", 0, reliability.Wrap(
			fmt.Errorf("classify %s: unusable output label=%q score=%v", model, out.Label, out.Score),
			reliability.KindMalformedCapabilityOutput,
		)
	}
	return out.Label, out.Score, nil
}

type transcribeResponse struct {
	Text string `json:"text"`
}

func (c *InferenceClient) Transcribe(ctx context.Context, clip audio.Clip) (string, error) {
	wav, err := clip.WAV()
	if err != nil {
		return "", fmt.Errorf("encode clip: %w", err)
	}
	var out transcribeResponse
	if err := c.do(ctx, "/transcribe", multipartBody(wav, nil), &out); err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	return strings.TrimSpace(out.Text), nil
}

type diarizeResponse struct {
	Segments []detect.Segment `json:"segments"`
}

func (c *InferenceClient) Diarize(ctx context.Context, w *audio.Waveform, speakers int) ([]detect.Segment, error) {
	wav, err := w.WAV()
	if err != nil {
		return nil, fmt.Errorf("encode waveform: %w", err)
	}
	fields := map[string]string{"num_speakers": strconv.Itoa(speakers)}
	var out diarizeResponse
	if err := c.do(ctx, "/diarize", multipartBody(wav, fields), &out); err != nil {
		return nil, fmt.Errorf("diarize: %w", err)
	}
	return out.Segments, nil
}

// multipartBody rebuilds the form on every attempt since a reader can only be sent once.
func multipartBody(wav []byte, fields map[string]string) func() (io.Reader, string, error) {
	return func() (io.Reader, string, error) {
		var b bytes.Buffer
		w := multipart.NewWriter(&b)
		for k, v := range fields {
			if err := w.WriteField(k, v); err != nil {
				return nil, "", err
			}
		}
		fw, err := w.CreateFormFile("file", "clip.wav")
		if err != nil {
			return nil, "", err
		}
		if _, err := fw.Write(wav); err != nil {
			return nil, "", err
		}
		if err := w.Close(); err != nil {
			return nil, "", err
		}
		return &b, w.FormDataContentType(), nil
	}
}

func (c *InferenceClient) do(ctx context.Context, path string, body func() (io.Reader, string, error), out any) error {
	err := reliability.Do(ctx, c.cfg.Retry, reliability.IsRetryable, func(ctx context.Context) error {
		r, contentType, err := body()
		if err != nil {
			return fmt.Errorf("build request body: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+path, r)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", contentType)

		res, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("send request: %w", err)
		}
		defer res.Body.Close()

		if res.StatusCode < 200 || res.StatusCode >= 300 {
			b, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
			return &StatusError{Code: res.StatusCode, Body: strings.TrimSpace(string(b))}
		}
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			return reliability.Wrap(fmt.Errorf("decode response: %w", err), reliability.KindMalformedCapabilityOutput)
		}
		return nil
	})
	return reliability.Wrap(err, reliability.KindCapabilityUnavailable)
}
