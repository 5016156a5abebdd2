package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseClientMessageStart(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"action":"start"}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	control, ok := msg.(ClientControl)
	if !ok {
		t.Fatalf("message type = %T, want ClientControl", msg)
	}
	if control.Action != ActionStart || control.Type != TypeClientControl {
		t.Fatalf("unexpected control: %+v", control)
	}
}

func TestParseClientMessageAcceptsEnvelope(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"client_control","session_id":"s1","action":" Start "}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	control := msg.(ClientControl)
	if control.SessionID != "s1" || control.Action != ActionStart {
		t.Fatalf("unexpected control: %+v", control)
	}
}

func TestParseClientMessageRejects(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{"type":"client_audio_chunk","action":"start"}`)); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
	if _, err := ParseClientMessage([]byte(`{"hello":"world"}`)); !errors.Is(err, ErrMissingAction) {
		t.Fatalf("error = %v, want ErrMissingAction", err)
	}
	if _, err := ParseClientMessage([]byte(`not json`)); err == nil {
		t.Fatalf("expected error for invalid json")
	}
}

func TestWarningEventWireShape(t *testing.T) {
	raw, err := json.Marshal(WarningEvent{
		Type:       TypeWarning,
		Speaker:    SystemSpeaker,
		Status:     StatusWarning,
		Role:       SystemSpeaker,
		Reason:     "advice",
		Confidence: 1,
		IsWarning:  true,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for k, want := range map[string]any{
		"type": "warning", "speaker": "SYSTEM", "status": "WARNING", "role": "SYSTEM",
		"reason": "advice", "confidence": 1.0, "is_warning": true, "text": "",
	} {
		if got[k] != want {
			t.Fatalf("%s = %v, want %v", k, got[k], want)
		}
	}
}

func TestTypeOf(t *testing.T) {
	if typ, ok := TypeOf(ResultEvent{Type: TypeResult}); !ok || typ != TypeResult {
		t.Fatalf("TypeOf(result) = %q, %v", typ, ok)
	}
	if _, ok := TypeOf("nope"); ok {
		t.Fatalf("TypeOf(string) should be false")
	}
}
