package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/ent0n29/scamguard/internal/detect"
	"github.com/ent0n29/scamguard/internal/reliability"
)

const (
	explainSystemPrompt = "หน้าที่ของคุณคือระบบแจ้งเตือนความปลอดภัย"
	explainUserPrompt   = `วิเคราะห์ข้อความต่อไปนี้ แล้วอธิบายสั้นๆ ว่า "ทำไมถึงเป็นมิจฉาชีพ?"
ตอบเป็นภาษาไทย ความยาวไม่เกิน 2 บรรทัด
ข้อความ: "%s"
คำอธิบาย:`

	warningSystemPrompt = `คุณคือผู้ช่วย AI ที่ช่วยปกป้องผู้ใช้จากมิจฉาชีพทางโทรศัพท์
หน้าที่ของคุณคือเตือนผู้ใช้อย่างจริงจังและให้คำแนะนำที่ปฏิบัติได้จริง
ตอบเป็นภาษาไทย ใช้ภาษาที่เข้าใจง่าย`
	warningUserPrompt = `⚠️ ตรวจพบพฤติกรรมหลอกลวงหลายครั้ง!

ข้อความที่น่าสงสัย:
%s

กรุณา:
1. เตือนผู้ใช้ว่านี่คือสายมิจฉาชีพ (1-2 ประโยค)
2. ระบุเทคนิคหลอกลวงที่ใช้ (bullet points สั้นๆ)
3. ให้คำแนะนำว่าควรทำอย่างไร (3-4 ข้อ)

ตอบ:`
)

// thinkBlock matches the reasoning preamble some local models emit.
var thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

// OllamaConfig configures the local explanation model.
type OllamaConfig struct {
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// OllamaExplainer implements Explainer against Ollama's /api/chat endpoint.
type OllamaExplainer struct {
	cfg    OllamaConfig
	client *http.Client
}

func NewOllamaExplainer(cfg OllamaConfig) (*OllamaExplainer, error) {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		return nil, errors.New("ollama base url is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("ollama model is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &OllamaExplainer{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Error   string        `json:"error"`
}

func (e *OllamaExplainer) Explain(ctx context.Context, text string) (string, error) {
	return e.chat(ctx, explainSystemPrompt, fmt.Sprintf(explainUserPrompt, text))
}

func (e *OllamaExplainer) ExplainWarning(ctx context.Context, scamMessages []string) (string, error) {
	return e.chat(ctx, warningSystemPrompt, fmt.Sprintf(warningUserPrompt, detect.FormatScamMessages(scamMessages)))
}

func (e *OllamaExplainer) chat(ctx context.Context, system, user string) (string, error) {
	payload, err := json.Marshal(ollamaChatRequest{
		Model: e.cfg.Model,
		Messages: []ollamaMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Stream:  false,
		Options: map[string]any{"temperature": e.cfg.Temperature},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.BaseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := e.client.Do(req)
	if err != nil {
		return "", reliability.Wrap(fmt.Errorf("ollama request: %w", err), reliability.KindCapabilityUnavailable)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return "", reliability.Wrap(&StatusError{Code: res.StatusCode, Body: strings.TrimSpace(string(body))}, reliability.KindCapabilityUnavailable)
	}

	var out ollamaChatResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", reliability.Wrap(fmt.Errorf("decode ollama response: %w", err), reliability.KindMalformedCapabilityOutput)
	}
	if out.Error != "" {
		return "", reliability.Wrap(fmt.Errorf("ollama: %s", out.Error), reliability.KindCapabilityUnavailable)
	}
	text := strings.TrimSpace(thinkBlock.ReplaceAllString(out.Message.Content, ""))
	if text == "" {
		return "", reliability.Wrap(errors.New("ollama returned empty content"), reliability.KindMalformedCapabilityOutput)
	}
	return text, nil
}
