package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ent0n29/scamguard/internal/audio"
	"github.com/ent0n29/scamguard/internal/detect"
)

var defaultMockScript = []string{
	"สวัสดีครับ ติดต่อจากธนาคารครับ",
	"ค่ะ มีอะไรคะ",
	"บัญชีของคุณพัวพันกับการฟอกเงิน ต้องโอนเงินเพื่อตรวจสอบ",
	"จริงเหรอคะ",
	"กรุณาแจ้งรหัส OTP ที่ได้รับทาง SMS ด่วนครับ",
	"ทำไมต้องให้รหัสคะ",
	"ถ้าไม่โอนภายในวันนี้ บัญชีจะถูกอายัดทันที",
	"ขอคิดดูก่อนนะคะ",
}

var mockScamKeywords = []string{"โอน", "otp", "อายัด", "ฟอกเงิน", "รหัส", "บัญชี"}

// MockProvider is a local fallback used when no real backend is configured.
// It diarizes into alternating fixed-length turns, replays a canned script
// for ASR and scores text by keyword.
type MockProvider struct {
	TurnSeconds float64
	Script      []string

	mu   sync.Mutex
	next int
}

func NewMockProvider() *MockProvider {
	return &MockProvider{TurnSeconds: 3, Script: defaultMockScript}
}

func (p *MockProvider) Diarize(_ context.Context, w *audio.Waveform, speakers int) ([]detect.Segment, error) {
	if speakers <= 0 {
		speakers = 2
	}
	turn := p.TurnSeconds
	if turn <= 0 {
		turn = 3
	}
	total := w.Duration()
	var segs []detect.Segment
	for i := 0; float64(i)*turn < total; i++ {
		start := float64(i) * turn
		end := start + turn
		if end > total {
			end = total
		}
		segs = append(segs, detect.Segment{
			Start:   start,
			End:     end,
			Speaker: fmt.Sprintf("SPEAKER_%02d", (i+1)%speakers),
		})
	}
	return segs, nil
}

func (p *MockProvider) Transcribe(_ context.Context, clip audio.Clip) (string, error) {
	if len(clip.Samples) == 0 || len(p.Script) == 0 {
		return "", nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	line := p.Script[p.next%len(p.Script)]
	p.next++
	return line, nil
}

func (p *MockProvider) ClassifyRole(_ context.Context, _ string) (string, float64, error) {
	return string(detect.RoleCaller), 0.9, nil
}

func (p *MockProvider) ClassifyFraud(_ context.Context, text string) (string, float64, error) {
	lower := strings.ToLower(text)
	hits := 0
	for _, kw := range mockScamKeywords {
		if strings.Contains(lower, kw) {
			hits++
		}
	}
	switch {
	case hits >= 2:
		return "SCAM", 0.92, nil
	case hits == 1:
		return "SCAM", 0.65, nil
	default:
		return "SAFE", 0.9, nil
	}
}

func (p *MockProvider) Explain(_ context.Context, text string) (string, error) {
	return "มีการเร่งรัดให้ทำธุรกรรมทางการเงินหรือขอข้อมูลส่วนตัว", nil
}

func (p *MockProvider) ExplainWarning(_ context.Context, scamMessages []string) (string, error) {
	return fmt.Sprintf("สายนี้มีลักษณะของมิจฉาชีพ (พบข้อความน่าสงสัย %d ครั้ง) อย่าโอนเงินหรือให้รหัส OTP และวางสายแล้วติดต่อธนาคารโดยตรง", len(scamMessages)), nil
}
