package history

import (
	"context"
	"errors"
	"time"
)

var ErrInvalidRecord = errors.New("invalid detection record")

// Detection stores one emitted result or warning of an analysis session.
type Detection struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	AudioID     string    `json:"audio_id"`
	Index       int       `json:"index"`
	Start       float64   `json:"start"`
	End         float64   `json:"end"`
	Speaker     string    `json:"speaker"`
	Role        string    `json:"role"`
	Text        string    `json:"text"`
	Status      string    `json:"status"`
	Confidence  float64   `json:"confidence"`
	Reason      string    `json:"reason"`
	IsWarning   bool      `json:"is_warning"`
	PIIRedacted bool      `json:"pii_redacted"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store persists and retrieves session detections.
type Store interface {
	SaveDetection(ctx context.Context, record Detection) error
	// ListDetections returns the session's detections in emission order.
	// A non-positive limit returns all of them.
	ListDetections(ctx context.Context, sessionID string, limit int) ([]Detection, error)
	Mode() string
	Close() error
}

func validate(record Detection) error {
	if record.SessionID == "" {
		return errors.Join(ErrInvalidRecord, errors.New("session_id is required"))
	}
	if record.Status == "" {
		return errors.Join(ErrInvalidRecord, errors.New("status is required"))
	}
	return nil
}
