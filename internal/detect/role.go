package detect

import (
	"context"
	"log/slog"
	"strings"
)

const (
	DefaultCandidateSpeaker = "SPEAKER_01"
	DefaultOtherSpeaker     = "SPEAKER_00"

	roleBufferSize = 2
)

// RoleStrategy selects how the adversarial speaker is identified.
type RoleStrategy string

const (
	// RoleStrategyClassifier asks the caller/receiver classifier about the
	// candidate channel's first two utterances.
	RoleStrategyClassifier RoleStrategy = "classifier"
	// RoleStrategyFirstSpeaker treats the speaker of the first diarized turn
	// as the caller.
	RoleStrategyFirstSpeaker RoleStrategy = "first_speaker"
)

// RoleClassifier labels a piece of dialogue as spoken by the CALLER or the RECEIVER.
type RoleClassifier interface {
	ClassifyRole(ctx context.Context, text string) (label string, confidence float64, err error)
}

// CallerIdentity is either unresolved or bound to one diarized speaker tag.
type CallerIdentity struct {
	Speaker  string `json:"speaker,omitempty"`
	Resolved bool   `json:"resolved"`
}

// RoleResolverConfig configures a RoleResolver.
type RoleResolverConfig struct {
	Strategy         RoleStrategy
	CandidateSpeaker string
	OtherSpeaker     string
	MinConfidence    float64
}

// RoleResolver decides which diarized speaker is the adversarial party.
// Once resolved the identity never changes for the session.
type RoleResolver struct {
	classifier RoleClassifier
	cfg        RoleResolverConfig
	logger     *slog.Logger

	buffer   []string
	identity CallerIdentity
	attempts int
}

func NewRoleResolver(classifier RoleClassifier, cfg RoleResolverConfig, logger *slog.Logger) *RoleResolver {
	if cfg.Strategy == "" {
		cfg.Strategy = RoleStrategyClassifier
	}
	if strings.TrimSpace(cfg.CandidateSpeaker) == "" {
		cfg.CandidateSpeaker = DefaultCandidateSpeaker
	}
	if strings.TrimSpace(cfg.OtherSpeaker) == "" {
		cfg.OtherSpeaker = DefaultOtherSpeaker
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RoleResolver{classifier: classifier, cfg: cfg, logger: logger}
}

// SetOtherSpeaker names the speaker that becomes the caller when the
// candidate channel is classified as the receiver.
func (r *RoleResolver) SetOtherSpeaker(tag string) {
	if strings.TrimSpace(tag) != "" {
		r.cfg.OtherSpeaker = tag
	}
}

// Candidate is the speaker whose utterances are sent to the classifier.
func (r *RoleResolver) Candidate() string { return r.cfg.CandidateSpeaker }

func (r *RoleResolver) Identity() CallerIdentity { return r.identity }

func (r *RoleResolver) Attempts() int { return r.attempts }

// ResolveFirst binds the caller to tag, the speaker of the first diarized
// turn, under the first_speaker strategy. Other strategies and an already
// resolved identity are left untouched.
func (r *RoleResolver) ResolveFirst(tag string) CallerIdentity {
	if r.identity.Resolved || r.cfg.Strategy != RoleStrategyFirstSpeaker || strings.TrimSpace(tag) == "" {
		return r.identity
	}
	r.identity = CallerIdentity{Speaker: tag, Resolved: true}
	r.logger.Info("caller identified", "speaker", tag, "strategy", string(r.cfg.Strategy))
	return r.identity
}

// Observe feeds one transcribed turn to the resolver and returns the current identity.
func (r *RoleResolver) Observe(ctx context.Context, speaker, text string) CallerIdentity {
	if r.identity.Resolved {
		return r.identity
	}

	if r.cfg.Strategy == RoleStrategyFirstSpeaker {
		r.identity = CallerIdentity{Speaker: speaker, Resolved: true}
		return r.identity
	}

	if speaker == r.cfg.CandidateSpeaker {
		r.buffer = append(r.buffer, text)
	}
	if len(r.buffer) < roleBufferSize || r.classifier == nil {
		return r.identity
	}

	dialogue := strings.Join(r.buffer[:roleBufferSize], " ")
	r.buffer = nil
	r.attempts++

	label, confidence, err := r.classifier.ClassifyRole(ctx, dialogue)
	if err != nil {
		r.logger.Warn("caller role classification failed", "attempt", r.attempts, "error", err)
		return r.identity
	}
	if confidence < r.cfg.MinConfidence {
		r.logger.Info("caller role below confidence floor", "label", label, "confidence", confidence)
		return r.identity
	}

	switch Role(strings.ToUpper(strings.TrimSpace(label))) {
	case RoleCaller:
		r.identity = CallerIdentity{Speaker: r.cfg.CandidateSpeaker, Resolved: true}
	case RoleReceiver:
		r.identity = CallerIdentity{Speaker: r.cfg.OtherSpeaker, Resolved: true}
	default:
		r.logger.Info("caller role label not mapped", "label", label)
		return r.identity
	}
	r.logger.Info("caller identified", "speaker", r.identity.Speaker, "label", label, "confidence", confidence)
	return r.identity
}

// RoleOf maps a speaker to its role. Unresolved sessions treat everyone as
// the receiver so nobody is accused without an identification.
func (r *RoleResolver) RoleOf(speaker string) Role {
	if r.identity.Resolved && speaker == r.identity.Speaker {
		return RoleCaller
	}
	return RoleReceiver
}

func (r *RoleResolver) Reset() {
	r.buffer = nil
	r.identity = CallerIdentity{}
	r.attempts = 0
}
