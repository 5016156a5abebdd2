package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientControl MessageType = "client_control"
	TypeReady         MessageType = "ready"
	TypeLog           MessageType = "log"
	TypeResult        MessageType = "result"
	TypeWarning       MessageType = "warning"
	TypeError         MessageType = "error"
	TypeFinished      MessageType = "finished"
)

// Step names the pipeline stage a log event reports on.
type Step string

const (
	StepProcess Step = "PROCESS"
	StepSkip    Step = "SKIP"
	StepASR     Step = "ASR"
	StepBERT    Step = "BERT"
	StepSLM     Step = "SLM"
)

const (
	ActionStart = "start"

	StatusReady    = "READY"
	StatusFinished = "FINISHED"
	StatusError    = "ERROR"
	StatusWarning  = "WARNING"

	SystemSpeaker = "SYSTEM"
)

var (
	ErrUnsupportedType = errors.New("unsupported message type")
	ErrMissingAction   = errors.New("client message has no action")
)

// ClientControl is the only message a client sends: {"action":"start"}.
// A {"type":"client_control",...} envelope is accepted too.
type ClientControl struct {
	Type      MessageType `json:"type,omitempty"`
	SessionID string      `json:"session_id,omitempty"`
	Action    string      `json:"action"`
}

// InvalidClientMessage carries a frame the transport could not parse so the
// session can decide whether it is fatal.
type InvalidClientMessage struct {
	Err error
}

type ReadyEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Status    string      `json:"status"`
	Message   string      `json:"message"`
	AudioID   string      `json:"audio_id"`
	Segments  int         `json:"segments"`
	Timestamp float64     `json:"timestamp"`
}

type LogEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Step      Step        `json:"step"`
	Message   string      `json:"message"`
	Timestamp float64     `json:"timestamp"`
}

// ResultEvent reports one transcribed turn and its verdict.
type ResultEvent struct {
	Type       MessageType `json:"type"`
	SessionID  string      `json:"session_id"`
	Index      int         `json:"index"`
	Start      float64     `json:"start"`
	End        float64     `json:"end"`
	Speaker    string      `json:"speaker"`
	Text       string      `json:"text"`
	Status     string      `json:"status"`
	Role       string      `json:"role"`
	Reason     string      `json:"reason"`
	Confidence float64     `json:"confidence"`
	Timestamp  float64     `json:"timestamp"`
}

// WarningEvent is the one-off escalation advice. It mirrors the result shape
// so list renderers can show it inline.
type WarningEvent struct {
	Type       MessageType `json:"type"`
	SessionID  string      `json:"session_id"`
	Start      float64     `json:"start"`
	End        float64     `json:"end"`
	Speaker    string      `json:"speaker"`
	Text       string      `json:"text"`
	Status     string      `json:"status"`
	Role       string      `json:"role"`
	Reason     string      `json:"reason"`
	Confidence float64     `json:"confidence"`
	IsWarning  bool        `json:"is_warning"`
	ScamCount  int         `json:"scam_count"`
	Timestamp  float64     `json:"timestamp"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Status    string      `json:"status"`
	Code      string      `json:"code"`
	Text      string      `json:"text"`
	Reason    string      `json:"reason"`
	Timestamp float64     `json:"timestamp"`
}

type FinishedEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Status    string      `json:"status"`
	Segments  int         `json:"segments"`
	Processed int         `json:"processed"`
	ScamCount int         `json:"scam_count"`
	Timestamp float64     `json:"timestamp"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var msg ClientControl
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}
	if msg.Type != "" && msg.Type != TypeClientControl {
		return nil, ErrUnsupportedType
	}
	msg.Action = strings.ToLower(strings.TrimSpace(msg.Action))
	if msg.Action == "" {
		return nil, ErrMissingAction
	}
	msg.Type = TypeClientControl
	return msg, nil
}

// TypeOf returns the wire type of a protocol message.
func TypeOf(v any) (MessageType, bool) {
	switch m := v.(type) {
	case ClientControl:
		return m.Type, true
	case InvalidClientMessage:
		return "invalid", true
	case ReadyEvent:
		return m.Type, true
	case LogEvent:
		return m.Type, true
	case ResultEvent:
		return m.Type, true
	case WarningEvent:
		return m.Type, true
	case ErrorEvent:
		return m.Type, true
	case FinishedEvent:
		return m.Type, true
	default:
		return "", false
	}
}
