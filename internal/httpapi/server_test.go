package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/scamguard/internal/config"
	"github.com/ent0n29/scamguard/internal/guard"
	"github.com/ent0n29/scamguard/internal/history"
	"github.com/ent0n29/scamguard/internal/observability"
	"github.com/ent0n29/scamguard/internal/protocol"
	"github.com/ent0n29/scamguard/internal/session"
)

var namespaceSeq atomic.Int64

func testMetrics(prefix string) *observability.Metrics {
	return observability.NewMetrics(fmt.Sprintf("test_httpapi_%s_%d_%d", prefix, time.Now().UnixNano(), namespaceSeq.Add(1)))
}

type fakeAnalyzer struct {
	check    guard.TextCheck
	checkErr error
	sawStart atomic.Bool
}

func (f *fakeAnalyzer) CheckText(_ context.Context, text string) (guard.TextCheck, error) {
	if strings.TrimSpace(text) == "" {
		return guard.TextCheck{}, guard.ErrEmptyText
	}
	if f.checkErr != nil {
		return guard.TextCheck{}, f.checkErr
	}
	out := f.check
	out.Text = text
	return out, nil
}

func (f *fakeAnalyzer) RunConnection(ctx context.Context, s *session.Session, inbound <-chan any, outbound chan<- any) error {
	outbound <- protocol.ReadyEvent{Type: protocol.TypeReady, SessionID: s.ID, Status: protocol.StatusReady, AudioID: s.AudioID}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case msg, ok := <-inbound:
		if !ok {
			return errors.New("closed")
		}
		if c, isControl := msg.(protocol.ClientControl); !isControl || c.Action != protocol.ActionStart {
			outbound <- protocol.ErrorEvent{Type: protocol.TypeError, SessionID: s.ID, Status: protocol.StatusError, Code: "invalid_protocol_message"}
			return errors.New("bad start")
		}
	}
	f.sawStart.Store(true)
	outbound <- protocol.FinishedEvent{Type: protocol.TypeFinished, SessionID: s.ID, Status: protocol.StatusFinished}
	return nil
}

func newTestServer(t *testing.T, analyzer Analyzer, store history.Store) (*httptest.Server, *session.Manager) {
	t.Helper()
	cfg := config.Config{}
	cfg.App.SessionInactivityTimeout = 2 * time.Minute
	cfg.Audio.Default = "scam_bank.wav"
	sessions := session.NewManager(cfg.App.SessionInactivityTimeout)
	srv := New(cfg, sessions, analyzer, store, map[string]string{"asr": "mock"}, testMetrics(strings.ReplaceAll(t.Name(), "/", "_")), nil)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, sessions
}

func TestCreateGetAndEndSession(t *testing.T) {
	ts, _ := newTestServer(t, &fakeAnalyzer{}, nil)

	body, _ := json.Marshal(map[string]string{"client_id": "phone-1"})
	res, err := http.Post(ts.URL+"/v1/sessions", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("create session request error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want %d", res.StatusCode, http.StatusCreated)
	}
	var created session.CreateResponse
	if err := json.NewDecoder(res.Body).Decode(&created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if created.SessionID == "" || created.AudioID != "scam_bank.wav" {
		t.Fatalf("unexpected create response: %+v", created)
	}
	if !strings.Contains(created.WebSocketURL, created.SessionID) {
		t.Fatalf("ws_url = %q", created.WebSocketURL)
	}

	getRes, err := http.Get(ts.URL + "/v1/sessions/" + created.SessionID)
	if err != nil {
		t.Fatalf("get session request error = %v", err)
	}
	defer getRes.Body.Close()
	if getRes.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d, want %d", getRes.StatusCode, http.StatusOK)
	}

	endRes, err := http.Post(ts.URL+"/v1/sessions/"+created.SessionID+"/end", "application/json", nil)
	if err != nil {
		t.Fatalf("end session request error = %v", err)
	}
	defer endRes.Body.Close()
	if endRes.StatusCode != http.StatusOK {
		t.Fatalf("end status = %d, want %d", endRes.StatusCode, http.StatusOK)
	}

	missing, err := http.Get(ts.URL + "/v1/sessions/nope")
	if err != nil {
		t.Fatalf("get missing session error = %v", err)
	}
	defer missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("missing status = %d, want %d", missing.StatusCode, http.StatusNotFound)
	}
}

func TestCheckTextEndpoint(t *testing.T) {
	analyzer := &fakeAnalyzer{check: guard.TextCheck{Label: "SAFE", Confidence: 0.9}}
	ts, _ := newTestServer(t, analyzer, nil)

	post := func(payload string) *http.Response {
		t.Helper()
		res, err := http.Post(ts.URL+"/api/check-text", "application/json", strings.NewReader(payload))
		if err != nil {
			t.Fatalf("check-text request error = %v", err)
		}
		t.Cleanup(func() { res.Body.Close() })
		return res
	}

	res := post(`{"text":"สวัสดีครับ"}`)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	var got map[string]any
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["label"] != "SAFE" || got["text"] != "สวัสดีครับ" {
		t.Fatalf("unexpected body: %+v", got)
	}
	if _, ok := got["reason"]; !ok {
		t.Fatalf("reason key missing: %+v", got)
	}

	if res := post(`{"text":"   "}`); res.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty text status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
	if res := post(`{"text":`); res.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed body status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}

	down, _ := newTestServer(t, &fakeAnalyzer{checkErr: errors.New("classifier down")}, nil)
	failed, err := http.Post(down.URL+"/api/check-text", "application/json", strings.NewReader(`{"text":"ข้อความ"}`))
	if err != nil {
		t.Fatalf("check-text request error = %v", err)
	}
	defer failed.Body.Close()
	if failed.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("classifier failure status = %d, want %d", failed.StatusCode, http.StatusServiceUnavailable)
	}
}

func TestListDetections(t *testing.T) {
	store := history.NewInMemoryStore()
	ts, sessions := newTestServer(t, &fakeAnalyzer{}, store)
	sess := sessions.Create("c", "scam_bank.wav")
	for i := 1; i <= 3; i++ {
		if err := store.SaveDetection(context.Background(), history.Detection{SessionID: sess.ID, Index: i, Status: "SAFE", Text: "t"}); err != nil {
			t.Fatalf("SaveDetection() error = %v", err)
		}
	}

	res, err := http.Get(ts.URL + "/v1/sessions/" + sess.ID + "/detections?limit=2")
	if err != nil {
		t.Fatalf("list detections error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	var payload struct {
		Detections []history.Detection `json:"detections"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Detections) != 2 {
		t.Fatalf("detections = %d, want 2", len(payload.Detections))
	}

	bad, err := http.Get(ts.URL + "/v1/sessions/" + sess.ID + "/detections?limit=x")
	if err != nil {
		t.Fatalf("list detections error = %v", err)
	}
	defer bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d, want %d", bad.StatusCode, http.StatusBadRequest)
	}
}

func TestAnalyzeWebSocketStreamsUntilClose(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	ts, sessions := newTestServer(t, analyzer, nil)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/analyze?audio=demo.wav"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var ready map[string]any
	if err := conn.ReadJSON(&ready); err != nil {
		t.Fatalf("read ready: %v", err)
	}
	if ready["type"] != "ready" || ready["audio_id"] != "demo.wav" {
		t.Fatalf("unexpected first event: %+v", ready)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"start"}`)); err != nil {
		t.Fatalf("write start: %v", err)
	}
	var finished map[string]any
	if err := conn.ReadJSON(&finished); err != nil {
		t.Fatalf("read finished: %v", err)
	}
	if finished["type"] != "finished" {
		t.Fatalf("unexpected event: %+v", finished)
	}

	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected normal close, got %v", err)
	}
	if !analyzer.sawStart.Load() {
		t.Fatalf("analyzer never saw the start control")
	}

	deadline := time.Now().Add(2 * time.Second)
	for sessions.ActiveCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("session still active after stream closed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAnalyzeWebSocketForwardsInvalidFrames(t *testing.T) {
	ts, _ := newTestServer(t, &fakeAnalyzer{}, nil)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws/analyze", nil)
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var ready map[string]any
	if err := conn.ReadJSON(&ready); err != nil {
		t.Fatalf("read ready: %v", err)
	}
	if ready["audio_id"] != "scam_bank.wav" {
		t.Fatalf("default audio not applied: %+v", ready)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`not json`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	var errEvent map[string]any
	if err := conn.ReadJSON(&errEvent); err != nil {
		t.Fatalf("read error event: %v", err)
	}
	if errEvent["type"] != "error" || errEvent["code"] != "invalid_protocol_message" {
		t.Fatalf("unexpected event: %+v", errEvent)
	}
}

func TestAnalyzeWebSocketUnknownSession(t *testing.T) {
	ts, _ := newTestServer(t, &fakeAnalyzer{}, nil)

	_, res, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws/analyze?session_id=missing", nil)
	if err == nil {
		t.Fatalf("dial succeeded, want handshake failure")
	}
	if res == nil || res.StatusCode != http.StatusNotFound {
		t.Fatalf("handshake response = %+v, want 404", res)
	}
}

func TestReadyAndPerfEndpoints(t *testing.T) {
	ts, _ := newTestServer(t, &fakeAnalyzer{}, history.NewInMemoryStore())

	res, err := http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz error = %v", err)
	}
	defer res.Body.Close()
	var ready map[string]any
	if err := json.NewDecoder(res.Body).Decode(&ready); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ready["store_mode"] != "in-memory" {
		t.Fatalf("store_mode = %v", ready["store_mode"])
	}
	providers, _ := ready["providers"].(map[string]any)
	if providers["asr"] != "mock" {
		t.Fatalf("providers = %v", ready["providers"])
	}

	perf, err := http.Get(ts.URL + "/v1/perf/latency")
	if err != nil {
		t.Fatalf("GET /v1/perf/latency error = %v", err)
	}
	defer perf.Body.Close()
	if perf.StatusCode != http.StatusOK {
		t.Fatalf("perf status = %d", perf.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/v1/perf/latency", nil)
	del, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE /v1/perf/latency error = %v", err)
	}
	defer del.Body.Close()
	if del.StatusCode != http.StatusNoContent {
		t.Fatalf("reset status = %d, want %d", del.StatusCode, http.StatusNoContent)
	}
}
