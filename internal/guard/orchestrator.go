package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ent0n29/scamguard/internal/audio"
	"github.com/ent0n29/scamguard/internal/detect"
	"github.com/ent0n29/scamguard/internal/history"
	"github.com/ent0n29/scamguard/internal/notify"
	"github.com/ent0n29/scamguard/internal/observability"
	"github.com/ent0n29/scamguard/internal/policy"
	"github.com/ent0n29/scamguard/internal/protocol"
	"github.com/ent0n29/scamguard/internal/provider"
	"github.com/ent0n29/scamguard/internal/reliability"
	"github.com/ent0n29/scamguard/internal/session"
)

const (
	DefaultReason      = "ตรวจพบพฤติกรรมน่าสงสัย"
	FallbackAdvice     = "ระวัง! สายนี้มีลักษณะของมิจฉาชีพ อย่าโอนเงินหรือให้ข้อมูลส่วนตัว วางสายแล้วติดต่อหน่วยงานโดยตรง"
	readyMessage       = "AI Ready. Waiting for play..."
	errorReason        = "AI Processing Failed"
	shortTextRunes     = 40
	notifyTimeout      = 10 * time.Second
)

// ClassifierFallbackReason is attached to the WAIT that stands in for a
// failed fraud classification.
const ClassifierFallbackReason = "ระบบวิเคราะห์ขัดข้องชั่วคราว ยังไม่สามารถประเมินข้อความนี้ได้"

// Config tunes the per-session pipeline.
type Config struct {
	Window            detect.WindowConfig
	Gate              detect.Gate
	Role              detect.RoleResolverConfig
	MinSegmentSeconds float64
	// MinTextRunes is the shortest transcript treated as speech.
	MinTextRunes     int
	SimulateRealtime bool
	ExplainEachScam  bool
}

func DefaultConfig() Config {
	return Config{
		Window:            detect.DefaultWindowConfig(),
		Gate:              detect.DefaultGate(),
		Role:              detect.RoleResolverConfig{Strategy: detect.RoleStrategyClassifier},
		MinSegmentSeconds: 0.3,
		MinTextRunes:      3,
		SimulateRealtime:  true,
	}
}

// WaveformSource loads recordings by audio id.
type WaveformSource interface {
	Load(audioID string) (*audio.Waveform, error)
}

// SegmentSource returns the diarized turns of a recording.
type SegmentSource interface {
	GetOrCompute(ctx context.Context, audioID string) ([]detect.Segment, error)
}

// Deps are the long-lived collaborators shared by every session.
type Deps struct {
	Capabilities *provider.Set
	Waveforms    WaveformSource
	Segments     SegmentSource
	Sessions     *session.Manager
	History      history.Store
	Notifier     notify.Notifier
	Metrics      *observability.Metrics
	Logger       *slog.Logger
}

// Orchestrator runs analysis sessions. It holds no per-session state; every
// RunConnection call owns its own window, resolver and tracker.
type Orchestrator struct {
	cfg  Config
	caps *provider.Set

	waveforms WaveformSource
	segments  SegmentSource
	sessions  *session.Manager
	history   history.Store
	notifier  notify.Notifier
	metrics   *observability.Metrics
	logger    *slog.Logger

	now          func() time.Time
	newScheduler func(enabled bool) *Scheduler
}

func NewOrchestrator(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Capabilities == nil {
		return nil, errors.New("capabilities are required")
	}
	if err := deps.Capabilities.Validate(); err != nil {
		return nil, err
	}
	if deps.Waveforms == nil || deps.Segments == nil {
		return nil, errors.New("waveform and segment sources are required")
	}
	if low, high := cfg.Gate.Thresholds(); low == 0 && high == 0 {
		cfg.Gate = detect.DefaultGate()
	}
	if cfg.MinSegmentSeconds <= 0 {
		cfg.MinSegmentSeconds = 0.3
	}
	if cfg.MinTextRunes <= 0 {
		cfg.MinTextRunes = 3
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Orchestrator{
		cfg:          cfg,
		caps:         deps.Capabilities,
		waveforms:    deps.Waveforms,
		segments:     deps.Segments,
		sessions:     deps.Sessions,
		history:      deps.History,
		notifier:     deps.Notifier,
		metrics:      deps.Metrics,
		logger:       deps.Logger.With("component", "guard"),
		now:          time.Now,
		newScheduler: NewScheduler,
	}, nil
}

// run is the state owned by one session for the lifetime of RunConnection.
type run struct {
	sess     *session.Session
	logger   *slog.Logger
	events   *emitter
	waveform *audio.Waveform
	segments []detect.Segment

	window     *detect.MemoryWindow
	resolver   *detect.RoleResolver
	escalation *detect.EscalationTracker
	scheduler  *Scheduler
	writer     *detectionWriter

	processed int
}

// RunConnection drives one session from INIT to FINISHED, pushing events to
// outbound and reading the start signal from inbound. Delivery blocks until
// the transport reads or ctx ends. A closed transport ends the session
// silently; the returned error then carries reliability.KindTransportClosed.
func (o *Orchestrator) RunConnection(ctx context.Context, sess *session.Session, inbound <-chan any, outbound chan<- any) error {
	r := &run{
		sess:   sess,
		logger: o.logger.With("session_id", sess.ID, "audio_id", sess.AudioID),
		events: &emitter{sessionID: sess.ID, out: outbound, now: o.now, metrics: o.metrics},
	}
	o.setState(sess.ID, session.StateInit)

	// INIT
	waveform, segments, err := o.prepare(ctx, sess.AudioID)
	if err != nil {
		if ctx.Err() != nil {
			return reliability.Wrap(ctx.Err(), reliability.KindTransportClosed)
		}
		return o.fail(ctx, r, err)
	}
	r.waveform = waveform
	r.segments = segments
	r.logger.Info("session initialized", "segments", len(segments), "duration_s", waveform.Duration())

	// AWAIT_START
	o.setState(sess.ID, session.StateAwaitStart)
	if err := r.events.send(ctx, protocol.ReadyEvent{
		Type:      protocol.TypeReady,
		SessionID: sess.ID,
		Status:    protocol.StatusReady,
		Message:   readyMessage,
		AudioID:   sess.AudioID,
		Segments:  len(segments),
		Timestamp: r.events.stamp(),
	}); err != nil {
		return err
	}
	if err := awaitStart(ctx, inbound); err != nil {
		if reliability.HasKind(err, reliability.KindTransportClosed) {
			return err
		}
		return o.fail(ctx, r, err)
	}

	// STREAMING
	r.window = detect.NewMemoryWindow(o.cfg.Window)
	r.resolver = detect.NewRoleResolver(o.caps.RoleClassifier, o.cfg.Role, r.logger)
	speakers := detect.Speakers(segments)
	for _, tag := range speakers {
		if tag != r.resolver.Candidate() {
			r.resolver.SetOtherSpeaker(tag)
			break
		}
	}
	r.resolver.ResolveFirst(speakers[0])
	r.escalation = detect.NewEscalationTracker()
	r.scheduler = o.newScheduler(o.cfg.SimulateRealtime)
	r.writer = newDetectionWriter(o.history, o.metrics, r.logger)
	defer r.writer.Close()
	o.setState(sess.ID, session.StateStreaming)
	o.metrics.ObserveSessionEvent("streaming_started")

	// Inbound frames after start carry no meaning; drain them so the reader
	// never blocks on a full channel.
	go drain(ctx, inbound)

	r.scheduler.Start()
	for i, seg := range segments {
		if err := o.processSegment(ctx, r, seg); err != nil {
			r.logger.Info("session stopped", "at_segment", i, "reason", err)
			return err
		}
	}

	// FINISHED
	state := r.escalation.State()
	o.setState(sess.ID, session.StateFinished)
	o.metrics.ObserveSessionEvent("finished")
	r.logger.Info("session finished", "processed", r.processed, "scam_count", state.ScamCount, "warning_sent", state.WarningSent)
	return r.events.send(ctx, protocol.FinishedEvent{
		Type:      protocol.TypeFinished,
		SessionID: sess.ID,
		Status:    protocol.StatusFinished,
		Segments:  len(segments),
		Processed: r.processed,
		ScamCount: state.ScamCount,
		Timestamp: r.events.stamp(),
	})
}

func (o *Orchestrator) prepare(ctx context.Context, audioID string) (*audio.Waveform, []detect.Segment, error) {
	waveform, err := o.waveforms.Load(audioID)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, audio.ErrInvalidAudioID) {
			return nil, nil, reliability.Wrap(err, reliability.KindAudioNotFound)
		}
		return nil, nil, reliability.Wrap(err, reliability.KindAudioUnreadable)
	}
	segments, err := o.segments.GetOrCompute(ctx, audioID)
	if err != nil {
		return nil, nil, err
	}
	if len(segments) == 0 {
		return nil, nil, reliability.Wrap(errors.New("no speaker turns"), reliability.KindMalformedCapabilityOutput)
	}
	return waveform, segments, nil
}

// awaitStart blocks until the client sends the start action. Any other
// message is a protocol violation.
func awaitStart(ctx context.Context, inbound <-chan any) error {
	select {
	case <-ctx.Done():
		return reliability.Wrap(ctx.Err(), reliability.KindTransportClosed)
	case msg, ok := <-inbound:
		if !ok {
			return reliability.Wrap(errors.New("client closed before start"), reliability.KindTransportClosed)
		}
		switch m := msg.(type) {
		case protocol.ClientControl:
			if m.Action == protocol.ActionStart {
				return nil
			}
			return reliability.Wrap(fmt.Errorf("unexpected action %q", m.Action), reliability.KindInvalidProtocolMessage)
		case protocol.InvalidClientMessage:
			return reliability.Wrap(fmt.Errorf("invalid start message: %w", m.Err), reliability.KindInvalidProtocolMessage)
		default:
			return reliability.Wrap(fmt.Errorf("unexpected message %T", msg), reliability.KindInvalidProtocolMessage)
		}
	}
}

func drain(ctx context.Context, inbound <-chan any) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-inbound:
			if !ok {
				return
			}
		}
	}
}

// processSegment runs the per-turn pipeline. It only returns an error when
// the session must stop.
func (o *Orchestrator) processSegment(ctx context.Context, r *run, seg detect.Segment) error {
	if err := r.scheduler.WaitUntil(ctx, seg.End); err != nil {
		return reliability.Wrap(err, reliability.KindTransportClosed)
	}
	segStarted := o.now()

	if err := r.events.log(ctx, protocol.StepProcess, fmt.Sprintf("Processing segment %d (%.1fs - %.1fs)...", r.processed+1, seg.Start, seg.End)); err != nil {
		return err
	}

	clip := r.waveform.Slice(seg.Start, seg.End)
	if clip.Duration() < o.cfg.MinSegmentSeconds {
		o.metrics.ObserveIndicator(observability.IndicatorSegmentSkipped)
		return r.events.log(ctx, protocol.StepSkip, "Segment too short, skipping...")
	}

	if err := r.events.log(ctx, protocol.StepASR, "Running Whisper ASR..."); err != nil {
		return err
	}
	started := o.now()
	text, err := o.caps.Transcriber.Transcribe(ctx, clip)
	o.metrics.ObserveCapability(observability.StageASR, o.now().Sub(started), err)
	if ctx.Err() != nil {
		return reliability.Wrap(ctx.Err(), reliability.KindTransportClosed)
	}
	text = strings.TrimSpace(text)
	if err != nil {
		r.logger.Warn("asr failed, skipping segment", "start", seg.Start, "end", seg.End, "error", err)
		text = ""
	}
	if utf8.RuneCountInString(text) < o.cfg.MinTextRunes {
		o.metrics.ObserveIndicator(observability.IndicatorASREmpty)
		return r.events.log(ctx, protocol.StepASR, "ASR returned empty text.")
	}
	if err := r.events.log(ctx, protocol.StepASR, fmt.Sprintf("Transcribed: %q", text)); err != nil {
		return err
	}
	r.processed++

	attempts := r.resolver.Attempts()
	started = o.now()
	r.resolver.Observe(ctx, seg.Speaker, text)
	if r.resolver.Attempts() != attempts {
		o.metrics.ObserveStage(observability.StageRoleResolve, o.now().Sub(started))
	}
	role := r.resolver.RoleOf(seg.Speaker)

	result := protocol.ResultEvent{
		Type:      protocol.TypeResult,
		SessionID: r.sess.ID,
		Index:     r.processed,
		Start:     seg.Start,
		End:       seg.End,
		Speaker:   seg.Speaker,
		Text:      text,
		Status:    string(detect.StatusSafe),
		Role:      string(role),
	}
	var warning *protocol.WarningEvent

	if role == detect.RoleCaller {
		verdict, err := o.classifyTurn(ctx, r, text)
		if err != nil {
			return err
		}
		result.Status = string(verdict.Status)
		result.Confidence = verdict.Confidence
		if verdict.Degraded {
			result.Reason = ClassifierFallbackReason
		}
		o.metrics.ObserveVerdict(result.Status)

		if verdict.Status == detect.StatusScam {
			result.Reason = o.scamReason(ctx, r, text)
			count := r.escalation.RecordScam(text)
			if err := r.events.log(ctx, protocol.StepBERT, fmt.Sprintf("🔴 SCAM #%d/%d", count, r.escalation.Threshold())); err != nil {
				return err
			}
			if r.escalation.ShouldWarn() {
				w, err := o.escalate(ctx, r, seg)
				if err != nil {
					return err
				}
				warning = &w
			}
		}
		r.window.Update(text, verdict.Status, verdict.Confidence)
	}

	result.Timestamp = r.events.stamp()
	if err := r.events.send(ctx, result); err != nil {
		return err
	}
	o.persist(r, resultDetection(r.sess, result))
	if warning != nil {
		warning.Timestamp = r.events.stamp()
		if err := r.events.send(ctx, *warning); err != nil {
			return err
		}
		o.persist(r, warningDetection(r.sess, *warning))
	}

	o.metrics.ObserveStage(observability.StageSegmentTotal, o.now().Sub(segStarted))
	o.recordProgress(r)
	return nil
}

// classifyTurn classifies caller text in its conversational context. A
// classifier failure degrades to a WAIT without confidence.
func (o *Orchestrator) classifyTurn(ctx context.Context, r *run, text string) (detect.Verdict, error) {
	short := text
	if utf8.RuneCountInString(short) > shortTextRunes {
		short = string([]rune(short)[:shortTextRunes]) + "..."
	}
	if err := r.events.log(ctx, protocol.StepBERT, fmt.Sprintf("📝 New: %q", short)); err != nil {
		return detect.Verdict{}, err
	}
	if n := len(r.window.Suspicious()); n > 0 {
		if err := r.events.log(ctx, protocol.StepBERT, fmt.Sprintf("⚠️ History: %d suspicious", n)); err != nil {
			return detect.Verdict{}, err
		}
	}
	if n := len(r.window.Recent()); n > 0 {
		if err := r.events.log(ctx, protocol.StepBERT, fmt.Sprintf("💬 Context: %d recent msgs", n)); err != nil {
			return detect.Verdict{}, err
		}
	}

	contextText := r.window.BuildContext(text)
	started := o.now()
	label, score, err := o.caps.FraudClassifier.ClassifyFraud(ctx, contextText)
	o.metrics.ObserveCapability(observability.StageClassify, o.now().Sub(started), err)
	if ctx.Err() != nil {
		return detect.Verdict{}, reliability.Wrap(ctx.Err(), reliability.KindTransportClosed)
	}

	var verdict detect.Verdict
	if err != nil {
		r.logger.Warn("fraud classification failed", "error", err)
		o.metrics.ObserveIndicator(observability.IndicatorClassifierFallback)
		verdict = detect.Verdict{Status: detect.StatusWait, Context: contextText, Degraded: true}
	} else {
		verdict = o.cfg.Gate.Evaluate(score, label)
		verdict.Context = contextText
	}

	if err := r.events.log(ctx, protocol.StepBERT, fmt.Sprintf("%s %s (%.0f%%)", statusEmoji(verdict.Status), verdict.Status, verdict.Confidence*100)); err != nil {
		return detect.Verdict{}, err
	}
	return verdict, nil
}

func (o *Orchestrator) scamReason(ctx context.Context, r *run, text string) string {
	if !o.cfg.ExplainEachScam {
		return DefaultReason
	}
	started := o.now()
	reason, err := o.caps.Explainer.Explain(ctx, text)
	o.metrics.ObserveCapability(observability.StageExplain, o.now().Sub(started), err)
	if err != nil || strings.TrimSpace(reason) == "" {
		if err != nil {
			r.logger.Warn("explain failed, using default reason", "error", err)
		}
		o.metrics.ObserveIndicator(observability.IndicatorExplainerFallback)
		return DefaultReason
	}
	return strings.TrimSpace(reason)
}

// escalate asks for aggregated advice and builds the one-off warning.
func (o *Orchestrator) escalate(ctx context.Context, r *run, seg detect.Segment) (protocol.WarningEvent, error) {
	if err := r.events.log(ctx, protocol.StepSLM, "Sending context to Qwen SLM for advice..."); err != nil {
		return protocol.WarningEvent{}, err
	}
	messages := r.escalation.Messages()
	started := o.now()
	advice, err := o.caps.Explainer.ExplainWarning(ctx, messages)
	o.metrics.ObserveCapability(observability.StageExplain, o.now().Sub(started), err)
	if ctx.Err() != nil {
		return protocol.WarningEvent{}, reliability.Wrap(ctx.Err(), reliability.KindTransportClosed)
	}
	advice = strings.TrimSpace(advice)
	if err != nil || advice == "" {
		if err != nil {
			r.logger.Warn("warning advice failed, using fallback", "error", err)
		}
		o.metrics.ObserveIndicator(observability.IndicatorExplainerFallback)
		advice = FallbackAdvice
	}
	if err := r.events.log(ctx, protocol.StepSLM, "Agent received advice."); err != nil {
		return protocol.WarningEvent{}, err
	}
	o.metrics.ObserveEscalation()
	r.logger.Warn("escalation warning issued", "scam_count", len(messages))

	o.notifyAsync(r, notify.Warning{
		SessionID: r.sess.ID,
		AudioID:   r.sess.AudioID,
		ScamCount: len(messages),
		Advice:    advice,
	})

	return protocol.WarningEvent{
		Type:       protocol.TypeWarning,
		SessionID:  r.sess.ID,
		Start:      seg.Start,
		End:        seg.End,
		Speaker:    protocol.SystemSpeaker,
		Status:     protocol.StatusWarning,
		Role:       protocol.SystemSpeaker,
		Reason:     advice,
		Confidence: 1.0,
		IsWarning:  true,
		ScamCount:  len(messages),
	}, nil
}

func (o *Orchestrator) notifyAsync(r *run, w notify.Warning) {
	if _, nop := o.notifier.(notify.Nop); nop {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := o.notifier.NotifyWarning(ctx, w); err != nil {
			r.logger.Warn("warning notification failed", "error", err)
		}
	}()
}

// fail emits the single terminal error event for a fatal condition.
func (o *Orchestrator) fail(ctx context.Context, r *run, cause error) error {
	kind := reliability.KindOf(cause)
	if kind == reliability.KindUnknown {
		kind = reliability.KindCapabilityUnavailable
		cause = reliability.Wrap(cause, kind)
	}
	r.logger.Error("session failed", "kind", kind, "error", cause)
	o.setState(r.sess.ID, session.StateError)
	o.metrics.ObserveSessionEvent("error_" + string(kind))
	if err := r.events.send(ctx, protocol.ErrorEvent{
		Type:      protocol.TypeError,
		SessionID: r.sess.ID,
		Status:    protocol.StatusError,
		Code:      string(kind),
		Text:      "System Error: " + cause.Error(),
		Reason:    errorReason,
		Timestamp: r.events.stamp(),
	}); err != nil {
		return err
	}
	return cause
}

func (o *Orchestrator) setState(sessionID string, state session.State) {
	if o.sessions == nil {
		return
	}
	_ = o.sessions.SetState(sessionID, state)
}

func (o *Orchestrator) recordProgress(r *run) {
	if o.sessions == nil {
		return
	}
	state := r.escalation.State()
	identity := r.resolver.Identity()
	_ = o.sessions.RecordProgress(r.sess.ID, session.Progress{
		SegmentsTotal:     len(r.segments),
		SegmentsProcessed: r.processed,
		ScamCount:         state.ScamCount,
		WarningSent:       state.WarningSent,
		CallerSpeaker:     identity.Speaker,
	})
}

// persist queues a redacted copy of an emitted event for the session's
// history writer. Failures never affect the session.
func (o *Orchestrator) persist(r *run, d history.Detection) {
	if r.writer == nil {
		return
	}
	textRedacted, textChanged := policy.RedactPII(d.Text)
	reasonRedacted, reasonChanged := policy.RedactPII(d.Reason)
	d.Text, d.Reason = textRedacted, reasonRedacted
	d.PIIRedacted = textChanged || reasonChanged
	d.CreatedAt = o.now().UTC()
	r.writer.Enqueue(d)
}

func resultDetection(s *session.Session, ev protocol.ResultEvent) history.Detection {
	return history.Detection{
		SessionID:  s.ID,
		AudioID:    s.AudioID,
		Index:      ev.Index,
		Start:      ev.Start,
		End:        ev.End,
		Speaker:    ev.Speaker,
		Role:       ev.Role,
		Text:       ev.Text,
		Status:     ev.Status,
		Confidence: ev.Confidence,
		Reason:     ev.Reason,
	}
}

func warningDetection(s *session.Session, ev protocol.WarningEvent) history.Detection {
	return history.Detection{
		SessionID:  s.ID,
		AudioID:    s.AudioID,
		Start:      ev.Start,
		End:        ev.End,
		Speaker:    ev.Speaker,
		Role:       ev.Role,
		Status:     ev.Status,
		Confidence: ev.Confidence,
		Reason:     ev.Reason,
		IsWarning:  true,
	}
}

func statusEmoji(s detect.Status) string {
	switch s {
	case detect.StatusScam:
		return "🚨"
	case detect.StatusWait:
		return "⚠️"
	default:
		return "✅"
	}
}

// emitter stamps and delivers the events of one session.
type emitter struct {
	sessionID string
	out       chan<- any
	now       func() time.Time
	metrics   *observability.Metrics
	last      float64
}

// stamp returns a unix timestamp in seconds that never decreases within the session.
func (e *emitter) stamp() float64 {
	ts := float64(e.now().UnixMicro()) / 1e6
	if ts < e.last {
		ts = e.last
	}
	e.last = ts
	return ts
}

func (e *emitter) send(ctx context.Context, msg any) error {
	select {
	case <-ctx.Done():
		return reliability.Wrap(ctx.Err(), reliability.KindTransportClosed)
	default:
	}
	select {
	case <-ctx.Done():
		return reliability.Wrap(ctx.Err(), reliability.KindTransportClosed)
	case e.out <- msg:
		if e.metrics != nil {
			if t, ok := protocol.TypeOf(msg); ok {
				e.metrics.WSMessages.WithLabelValues("out", string(t)).Inc()
			}
		}
		return nil
	}
}

func (e *emitter) log(ctx context.Context, step protocol.Step, message string) error {
	return e.send(ctx, protocol.LogEvent{
		Type:      protocol.TypeLog,
		SessionID: e.sessionID,
		Step:      step,
		Message:   message,
		Timestamp: e.stamp(),
	})
}
