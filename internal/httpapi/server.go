package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/scamguard/internal/config"
	"github.com/ent0n29/scamguard/internal/guard"
	"github.com/ent0n29/scamguard/internal/history"
	"github.com/ent0n29/scamguard/internal/observability"
	"github.com/ent0n29/scamguard/internal/protocol"
	"github.com/ent0n29/scamguard/internal/session"
)

// Analyzer runs streaming sessions and one-shot text checks.
type Analyzer interface {
	RunConnection(ctx context.Context, s *session.Session, inbound <-chan any, outbound chan<- any) error
	CheckText(ctx context.Context, text string) (guard.TextCheck, error)
}

type Server struct {
	cfg       config.Config
	sessions  *session.Manager
	analyzer  Analyzer
	history   history.Store
	providers map[string]string
	metrics   *observability.Metrics
	logger    *slog.Logger
	upgrader  websocket.Upgrader
}

func New(cfg config.Config, sessions *session.Manager, analyzer Analyzer, store history.Store, providers map[string]string, metrics *observability.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:       cfg,
		sessions:  sessions,
		analyzer:  analyzer,
		history:   store,
		providers: providers,
		metrics:   metrics,
		logger:    logger.With("component", "httpapi"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.App.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)
	r.Delete("/v1/perf/latency", s.handleResetPerfLatency)

	r.Post("/api/check-text", s.handleCheckText)

	r.Post("/v1/sessions", s.handleCreateSession)
	r.Get("/v1/sessions/{id}", s.handleGetSession)
	r.Get("/v1/sessions/{id}/detections", s.handleListDetections)
	r.Post("/v1/sessions/{id}/end", s.handleEndSession)

	r.Get("/ws/analyze", s.handleAnalyzeWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"active_sessions": s.sessions.ActiveCount(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.analyzer == nil {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "analyzer not configured")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ready",
		"providers":  s.providers,
		"store_mode": s.storeMode(),
	})
}

type checkTextRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleCheckText(w http.ResponseWriter, r *http.Request) {
	if s.analyzer == nil {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "analyzer not configured")
		return
	}
	var req checkTextRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	result, err := s.analyzer.CheckText(r.Context(), req.Text)
	switch {
	case errors.Is(err, guard.ErrEmptyText):
		respondError(w, http.StatusBadRequest, "empty_text", err.Error())
		return
	case err != nil:
		s.logger.Warn("text check failed", "error", err)
		respondError(w, http.StatusServiceUnavailable, "classifier_unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req session.CreateRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	sess := s.createSession(req.ClientID, req.AudioID)

	respondJSON(w, http.StatusCreated, session.CreateResponse{
		SessionID:       sess.ID,
		ClientID:        sess.ClientID,
		AudioID:         sess.AudioID,
		Status:          sess.Status,
		State:           sess.State,
		StartedAt:       sess.StartedAt,
		LastActivityAt:  sess.LastActivityAt,
		InactivityTTLMS: s.cfg.App.SessionInactivityTimeout.Milliseconds(),
		WebSocketURL:    "/ws/analyze?session_id=" + url.QueryEscape(sess.ID),
	})
}

func (s *Server) createSession(clientID, audioID string) *session.Session {
	if strings.TrimSpace(clientID) == "" {
		clientID = "anonymous"
	}
	if strings.TrimSpace(audioID) == "" {
		audioID = s.cfg.Audio.Default
	}
	sess := s.sessions.Create(clientID, audioID)
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.ObserveSessionEvent("created")
	return sess
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleListDetections(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.sessions.Get(id); err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	if s.history == nil {
		respondJSON(w, http.StatusOK, map[string]any{"session_id": id, "detections": []history.Detection{}})
		return
	}
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	items, err := s.history.ListDetections(r.Context(), id, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "history_unavailable", err.Error())
		return
	}
	if items == nil {
		items = []history.Detection{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"session_id": id, "detections": items})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}

	sess, err := s.sessions.End(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.ObserveSessionEvent("ended")
	respondJSON(w, http.StatusOK, sess)
}

// handleAnalyzeWS streams one analysis session. Clients either pass a
// session_id from POST /v1/sessions or an audio id to start ad hoc.
func (s *Server) handleAnalyzeWS(w http.ResponseWriter, r *http.Request) {
	if s.analyzer == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "analyzer not configured")
		return
	}

	var sess *session.Session
	if sessionID := strings.TrimSpace(r.URL.Query().Get("session_id")); sessionID != "" {
		existing, err := s.sessions.Get(sessionID)
		if err != nil {
			respondError(w, http.StatusNotFound, "session_not_found", err.Error())
			return
		}
		if existing.Status == session.StatusEnded {
			respondError(w, http.StatusConflict, "session_ended", "session already ended")
			return
		}
		sess = existing
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if sess == nil {
		sess = s.createSession(r.URL.Query().Get("client_id"), r.URL.Query().Get("audio"))
	}
	s.metrics.ObserveSessionEvent("ws_connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan any, 16)
	outbound := make(chan any, 64)

	go func() {
		defer close(outbound)
		if err := s.analyzer.RunConnection(ctx, sess, inbound, outbound); err != nil {
			s.logger.Info("analysis ended", "session_id", sess.ID, "error", err)
		}
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		failed := false
		for msg := range outbound {
			if failed {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				s.metrics.WSWriteErrors.WithLabelValues("write_json").Inc()
				failed = true
				cancel()
			}
		}
		if failed {
			return
		}
		_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
		if err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")); err != nil {
			s.metrics.WSWriteErrors.WithLabelValues("close").Inc()
		}
	}()

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		defer close(inbound)
		s.readLoop(ctx, conn, inbound)
		cancel()
	}()

	<-writerDone
	_ = conn.Close()
	cancel()
	<-readerDone

	if _, err := s.sessions.End(sess.ID); err == nil {
		s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	}
	s.metrics.ObserveSessionEvent("ws_disconnected")
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, inbound chan<- any) {
	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		var msg any
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			msg = protocol.InvalidClientMessage{Err: err}
		} else {
			msg = parsed
		}
		if t, ok := protocol.TypeOf(msg); ok {
			s.metrics.WSMessages.WithLabelValues("in", string(t)).Inc()
		}
		select {
		case <-ctx.Done():
			return
		case inbound <- msg:
		}
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func (s *Server) storeMode() string {
	if s.history == nil {
		return "disabled"
	}
	return s.history.Mode()
}
