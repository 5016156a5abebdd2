package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ent0n29/scamguard/internal/audio"
	"github.com/ent0n29/scamguard/internal/config"
	"github.com/ent0n29/scamguard/internal/detect"
	"github.com/ent0n29/scamguard/internal/diarization"
	"github.com/ent0n29/scamguard/internal/guard"
	"github.com/ent0n29/scamguard/internal/history"
	"github.com/ent0n29/scamguard/internal/httpapi"
	"github.com/ent0n29/scamguard/internal/notify"
	"github.com/ent0n29/scamguard/internal/observability"
	"github.com/ent0n29/scamguard/internal/provider"
	"github.com/ent0n29/scamguard/internal/session"
)

type BuildResult struct {
	Config       config.Config
	API          *httpapi.Server
	Sessions     *session.Manager
	Orchestrator *guard.Orchestrator
	Metrics      *observability.Metrics
	Providers    *provider.Set
	History      history.Store
	Cache        *diarization.Cache

	// Cleanup should be called on shutdown to release external resources (DB, provider clients).
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*BuildResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	metrics := observability.NewMetrics(cfg.App.MetricsNamespace)

	store, err := history.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("history store init failed: %w", err)
	}

	caps, err := ResolveProviders(cfg, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	notifier, err := buildNotifier(cfg.Twilio, logger)
	if err != nil {
		_ = caps.Close()
		_ = store.Close()
		return nil, err
	}

	library := audio.NewLibrary(cfg.Audio.Dir)
	cache := diarization.NewCache(library, caps.Diarizer, cfg.Audio.SpeakerCount, logger.With("component", "diarization"))

	sessions := session.NewManager(cfg.App.SessionInactivityTimeout)
	sessions.SetExpireHook(func(_ *session.Session) {
		metrics.ObserveSessionEvent("expired")
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
	})

	guardCfg, err := guardConfig(cfg)
	if err != nil {
		_ = caps.Close()
		_ = store.Close()
		return nil, err
	}
	orchestrator, err := guard.NewOrchestrator(guardCfg, guard.Deps{
		Capabilities: caps,
		Waveforms:    library,
		Segments:     cache,
		Sessions:     sessions,
		History:      store,
		Notifier:     notifier,
		Metrics:      metrics,
		Logger:       logger,
	})
	if err != nil {
		_ = caps.Close()
		_ = store.Close()
		return nil, fmt.Errorf("orchestrator init failed: %w", err)
	}

	api := httpapi.New(cfg, sessions, orchestrator, store, caps.Names, metrics, logger)

	cleanup := func() error {
		return errors.Join(caps.Close(), store.Close())
	}

	return &BuildResult{
		Config:       cfg,
		API:          api,
		Sessions:     sessions,
		Orchestrator: orchestrator,
		Metrics:      metrics,
		Providers:    caps,
		History:      store,
		Cache:        cache,
		Cleanup:      cleanup,
	}, nil
}

func guardConfig(cfg config.Config) (guard.Config, error) {
	gate, err := detect.NewGate(cfg.Detect.LowThreshold, cfg.Detect.HighThreshold)
	if err != nil {
		return guard.Config{}, fmt.Errorf("detect thresholds: %w", err)
	}
	out := guard.DefaultConfig()
	out.Gate = gate
	out.Window.RecentSize = cfg.Detect.RecentWindow
	out.Window.SuspiciousSize = cfg.Detect.SuspiciousWindow
	out.Window.ContextTurns = cfg.Detect.ContextTurns
	out.Window.SuspicionThreshold = cfg.Detect.SuspicionThreshold
	out.Window.ClearThreshold = cfg.Detect.ClearThreshold
	out.Role = detect.RoleResolverConfig{
		Strategy:         detect.RoleStrategy(cfg.Detect.RoleStrategy),
		CandidateSpeaker: cfg.Detect.CandidateSpeaker,
		MinConfidence:    cfg.Detect.RoleMinConfidence,
	}
	out.MinSegmentSeconds = cfg.Audio.MinSegmentSeconds
	out.SimulateRealtime = cfg.Audio.SimulateRealtime
	out.ExplainEachScam = cfg.Detect.ExplainEachScam
	return out, nil
}

func buildNotifier(cfg config.TwilioConfig, logger *slog.Logger) (notify.Notifier, error) {
	tc := notify.TwilioConfig{
		AccountSID: cfg.AccountSID,
		AuthToken:  cfg.AuthToken,
		From:       cfg.From,
		To:         cfg.To,
	}
	if !tc.Enabled() {
		return notify.Nop{}, nil
	}
	n, err := notify.NewTwilioNotifier(tc, logger.With("component", "notify"))
	if err != nil {
		return nil, fmt.Errorf("twilio notifier init failed: %w", err)
	}
	return n, nil
}
