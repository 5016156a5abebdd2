package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config contains all runtime settings for the scam-call analysis service.
// Every key can be set from the environment by upper-casing it and replacing
// dots with underscores (app.bind_addr -> APP_BIND_ADDR).
type Config struct {
	App         AppConfig       `mapstructure:"app"`
	Audio       AudioConfig     `mapstructure:"audio"`
	Detect      DetectConfig    `mapstructure:"detect"`
	Providers   ProvidersConfig `mapstructure:"providers"`
	Deepgram    DeepgramConfig  `mapstructure:"deepgram"`
	Inference   InferenceConfig `mapstructure:"inference"`
	Ollama      OllamaConfig    `mapstructure:"ollama"`
	Twilio      TwilioConfig    `mapstructure:"twilio"`
	Logging     LoggingConfig   `mapstructure:"logging"`
	DatabaseURL string          `mapstructure:"database_url"`
}

type AppConfig struct {
	BindAddr                 string        `mapstructure:"bind_addr"`
	ShutdownTimeout          time.Duration `mapstructure:"shutdown_timeout"`
	SessionInactivityTimeout time.Duration `mapstructure:"session_inactivity_timeout"`
	MetricsNamespace         string        `mapstructure:"metrics_namespace"`
	AllowAnyOrigin           bool          `mapstructure:"allow_any_origin"`
}

type AudioConfig struct {
	Dir               string   `mapstructure:"dir"`
	Default           string   `mapstructure:"default"`
	Precompute        []string `mapstructure:"precompute"`
	SimulateRealtime  bool     `mapstructure:"simulate_realtime"`
	MinSegmentSeconds float64  `mapstructure:"min_segment_seconds"`
	SpeakerCount      int      `mapstructure:"speaker_count"`
	// SegmentsFile replays a fixed diarization instead of calling a diarizer.
	SegmentsFile string `mapstructure:"segments_file"`
}

type DetectConfig struct {
	LowThreshold        float64 `mapstructure:"low_threshold"`
	HighThreshold       float64 `mapstructure:"high_threshold"`
	RecentWindow        int     `mapstructure:"recent_window"`
	SuspiciousWindow    int     `mapstructure:"suspicious_window"`
	ContextTurns        int     `mapstructure:"context_turns"`
	SuspicionThreshold  float64 `mapstructure:"suspicion_threshold"`
	ClearThreshold      float64 `mapstructure:"clear_threshold"`
	CandidateSpeaker    string  `mapstructure:"candidate_speaker"`
	RoleStrategy        string  `mapstructure:"role_strategy"`
	RoleMinConfidence   float64 `mapstructure:"role_min_confidence"`
	ExplainEachScam     bool    `mapstructure:"explain_each_scam"`
}

// ProvidersConfig picks a backend per capability: auto, deepgram, inference,
// ollama, segments or mock.
type ProvidersConfig struct {
	ASR         string        `mapstructure:"asr"`
	Diarization string        `mapstructure:"diarization"`
	Classifier  string        `mapstructure:"classifier"`
	Explainer   string        `mapstructure:"explainer"`
	CallTimeout time.Duration `mapstructure:"call_timeout"`
}

type DeepgramConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
	Language string `mapstructure:"language"`
}

type InferenceConfig struct {
	URL           string        `mapstructure:"url"`
	FraudModel    string        `mapstructure:"fraud_model"`
	RoleModel     string        `mapstructure:"role_model"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
}

type OllamaConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type TwilioConfig struct {
	AccountSID string   `mapstructure:"account_sid"`
	AuthToken  string   `mapstructure:"auth_token"`
	From       string   `mapstructure:"from"`
	To         []string `mapstructure:"to"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"addr":         "app.bind_addr",
	"audio-dir":    "audio.dir",
	"audio":        "audio.default",
	"realtime":     "audio.simulate_realtime",
	"segments":     "audio.segments_file",
	"database-url": "database_url",
	"log-level":    "logging.level",
	"log-format":   "logging.format",
	"providers":    "providers.mode",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.bind_addr", ":8080")
	v.SetDefault("app.shutdown_timeout", 15*time.Second)
	v.SetDefault("app.session_inactivity_timeout", 2*time.Minute)
	v.SetDefault("app.metrics_namespace", "scamguard")
	v.SetDefault("app.allow_any_origin", false)

	v.SetDefault("audio.dir", "static/audio")
	v.SetDefault("audio.default", "scam_bank.wav")
	v.SetDefault("audio.precompute", []string{"scam_bank.wav"})
	v.SetDefault("audio.simulate_realtime", true)
	v.SetDefault("audio.min_segment_seconds", 0.3)
	v.SetDefault("audio.speaker_count", 2)
	v.SetDefault("audio.segments_file", "")

	v.SetDefault("detect.low_threshold", 0.6)
	v.SetDefault("detect.high_threshold", 0.75)
	v.SetDefault("detect.recent_window", 5)
	v.SetDefault("detect.suspicious_window", 5)
	v.SetDefault("detect.context_turns", 3)
	v.SetDefault("detect.suspicion_threshold", 0.5)
	v.SetDefault("detect.clear_threshold", 0.8)
	v.SetDefault("detect.candidate_speaker", "SPEAKER_01")
	v.SetDefault("detect.role_strategy", "classifier")
	v.SetDefault("detect.role_min_confidence", 0.0)
	v.SetDefault("detect.explain_each_scam", false)

	v.SetDefault("providers.mode", "")
	v.SetDefault("providers.asr", "auto")
	v.SetDefault("providers.diarization", "auto")
	v.SetDefault("providers.classifier", "auto")
	v.SetDefault("providers.explainer", "auto")
	v.SetDefault("providers.call_timeout", time.Duration(0))

	v.SetDefault("deepgram.api_key", "")
	v.SetDefault("deepgram.model", "nova-2")
	v.SetDefault("deepgram.language", "th")

	v.SetDefault("inference.url", "")
	v.SetDefault("inference.fraud_model", "scam_detector")
	v.SetDefault("inference.role_model", "caller_identifier")
	v.SetDefault("inference.timeout", 30*time.Second)
	v.SetDefault("inference.retry_attempts", 3)

	v.SetDefault("ollama.base_url", "")
	v.SetDefault("ollama.model", "qwen3:1.7b")
	v.SetDefault("ollama.temperature", 0.3)
	v.SetDefault("ollama.timeout", 60*time.Second)

	v.SetDefault("twilio.account_sid", "")
	v.SetDefault("twilio.auth_token", "")
	v.SetDefault("twilio.from", "")
	v.SetDefault("twilio.to", []string{})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("database_url", "")
}

// Load merges defaults, an optional YAML file, environment variables and
// any flags in flags that map to configuration keys, in increasing order of
// precedence.
func Load(file string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if strings.TrimSpace(file) != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.Twilio.To = trimAll(cfg.Twilio.To)
	cfg.Audio.Precompute = trimAll(cfg.Audio.Precompute)

	if mode := strings.TrimSpace(v.GetString("providers.mode")); mode != "" {
		cfg.Providers.ASR = mode
		cfg.Providers.Diarization = mode
		cfg.Providers.Classifier = mode
		cfg.Providers.Explainer = mode
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var providerNames = map[string]bool{
	"auto": true, "deepgram": true, "inference": true, "ollama": true, "segments": true, "mock": true,
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.App.BindAddr) == "" {
		errs = append(errs, errors.New("APP_BIND_ADDR must not be empty"))
	}
	if c.App.SessionInactivityTimeout < 5*time.Second {
		errs = append(errs, errors.New("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s"))
	}
	if c.App.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("APP_SHUTDOWN_TIMEOUT must be positive"))
	}
	if c.Audio.MinSegmentSeconds <= 0 {
		errs = append(errs, errors.New("AUDIO_MIN_SEGMENT_SECONDS must be positive"))
	}
	if c.Audio.SpeakerCount < 1 {
		errs = append(errs, errors.New("AUDIO_SPEAKER_COUNT must be at least 1"))
	}
	d := c.Detect
	for name, v := range map[string]float64{
		"DETECT_LOW_THRESHOLD":       d.LowThreshold,
		"DETECT_HIGH_THRESHOLD":      d.HighThreshold,
		"DETECT_SUSPICION_THRESHOLD": d.SuspicionThreshold,
		"DETECT_CLEAR_THRESHOLD":     d.ClearThreshold,
		"DETECT_ROLE_MIN_CONFIDENCE": d.RoleMinConfidence,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s must be within [0,1], got %v", name, v))
		}
	}
	if d.LowThreshold > d.HighThreshold {
		errs = append(errs, fmt.Errorf("DETECT_LOW_THRESHOLD (%v) must not exceed DETECT_HIGH_THRESHOLD (%v)", d.LowThreshold, d.HighThreshold))
	}
	if d.RecentWindow <= 0 || d.SuspiciousWindow <= 0 || d.ContextTurns <= 0 {
		errs = append(errs, errors.New("DETECT_RECENT_WINDOW, DETECT_SUSPICIOUS_WINDOW and DETECT_CONTEXT_TURNS must be positive"))
	}
	switch d.RoleStrategy {
	case "classifier", "first_speaker":
	default:
		errs = append(errs, fmt.Errorf("DETECT_ROLE_STRATEGY must be classifier or first_speaker, got %q", d.RoleStrategy))
	}
	for name, v := range map[string]string{
		"PROVIDERS_ASR":         c.Providers.ASR,
		"PROVIDERS_DIARIZATION": c.Providers.Diarization,
		"PROVIDERS_CLASSIFIER":  c.Providers.Classifier,
		"PROVIDERS_EXPLAINER":   c.Providers.Explainer,
	} {
		if !providerNames[strings.ToLower(strings.TrimSpace(v))] {
			errs = append(errs, fmt.Errorf("%s: unknown provider %q", name, v))
		}
	}
	if c.Providers.CallTimeout < 0 {
		errs = append(errs, errors.New("PROVIDERS_CALL_TIMEOUT must not be negative"))
	}
	if c.Inference.RetryAttempts < 1 {
		errs = append(errs, errors.New("INFERENCE_RETRY_ATTEMPTS must be at least 1"))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "console", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("LOGGING_FORMAT must be console or json, got %q", c.Logging.Format))
	}
	return errors.Join(errs...)
}

func trimAll(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
