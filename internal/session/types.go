package session

import "time"

// CreateRequest defines payload for creating a new session.
type CreateRequest struct {
	ClientID string `json:"client_id"`
	AudioID  string `json:"audio_id"`
}

// CreateResponse returns created session metadata.
type CreateResponse struct {
	SessionID       string    `json:"session_id"`
	ClientID        string    `json:"client_id"`
	AudioID         string    `json:"audio_id"`
	Status          Status    `json:"status"`
	State           State     `json:"state"`
	StartedAt       time.Time `json:"started_at"`
	LastActivityAt  time.Time `json:"last_activity_at"`
	InactivityTTLMS int64     `json:"inactivity_ttl_ms"`
	WebSocketURL    string    `json:"ws_url"`
}
