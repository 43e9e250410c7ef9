package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for both the web front door and the
// session worker. It is assembled once at startup and never mutated after.
type Config struct {
	WebBindAddr      string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	LiveKitURL       string
	LiveKitAPIKey    string
	LiveKitAPISecret string
	TokenTTL         time.Duration

	DefaultLanguage string
	DefaultVoice    string

	VoiceProvider   string
	SarvamAPIKey    string
	SarvamWSBaseURL string
	SarvamSTTModel  string
	SarvamTTSModel  string

	LLMProvider  string
	LLMModel     string
	LLMBaseURL   string
	GroqAPIKey   string
	OpenAIAPIKey string

	N8NBaseURL         string
	N8NAgentConfigPath string
	N8NLeadCapturePath string

	WebServerURL string

	SessionInactivityTimeout time.Duration
	MaxConcurrentSessions    int

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		WebBindAddr:      envOrDefault("WEB_BIND_ADDR", ":3000"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "leadvoice"),

		LiveKitURL:       trimmedEnv("LIVEKIT_URL"),
		LiveKitAPIKey:    trimmedEnv("LIVEKIT_API_KEY"),
		LiveKitAPISecret: trimmedEnv("LIVEKIT_API_SECRET"),

		DefaultLanguage: envOrDefault("DEFAULT_LANGUAGE", "hi-IN"),
		DefaultVoice:    envOrDefault("DEFAULT_VOICE", "arya"),

		VoiceProvider:   envOrDefault("VOICE_PROVIDER", "auto"),
		SarvamAPIKey:    trimmedEnv("SARVAM_API_KEY"),
		SarvamWSBaseURL: envOrDefault("SARVAM_WS_BASE_URL", "wss://api.sarvam.ai"),
		SarvamSTTModel:  envOrDefault("SARVAM_STT_MODEL", "saaras:v3"),
		SarvamTTSModel:  envOrDefault("SARVAM_TTS_MODEL", "bulbul:v2"),

		LLMProvider:  envOrDefault("LLM_PROVIDER", "groq"),
		LLMModel:     trimmedEnv("LLM_MODEL"),
		LLMBaseURL:   trimmedEnv("LLM_BASE_URL"),
		GroqAPIKey:   trimmedEnv("GROQ_API_KEY"),
		OpenAIAPIKey: trimmedEnv("OPENAI_API_KEY"),

		N8NBaseURL:         trimmedEnv("N8N_BASE_URL"),
		N8NAgentConfigPath: envOrDefault("N8N_WEBHOOK_AGENT_CONFIG", "/webhook/agent-config"),
		N8NLeadCapturePath: envOrDefault("N8N_WEBHOOK_LEAD_CAPTURE", "/webhook/lead-capture"),

		WebServerURL: envOrDefault("WEB_SERVER_URL", "http://localhost:3000"),

		DatabaseURL: trimmedEnv("DATABASE_URL"),

		ShutdownTimeout:          15 * time.Second,
		TokenTTL:                 time.Hour,
		SessionInactivityTimeout: 5 * time.Minute,
		MaxConcurrentSessions:    4,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.TokenTTL, err = durationFromEnv("TOKEN_TTL", cfg.TokenTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxConcurrentSessions, err = intFromEnv("MAX_CONCURRENT_SESSIONS", cfg.MaxConcurrentSessions)
	if err != nil {
		return Config{}, err
	}

	if cfg.TokenTTL < time.Minute {
		return Config{}, fmt.Errorf("TOKEN_TTL must be at least 1m")
	}
	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.MaxConcurrentSessions <= 0 {
		return Config{}, fmt.Errorf("MAX_CONCURRENT_SESSIONS must be positive")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.LLMProvider)) {
	case "groq", "openai", "mock":
	default:
		return Config{}, fmt.Errorf("invalid LLM_PROVIDER: %q (expected groq|openai|mock)", cfg.LLMProvider)
	}

	if strings.TrimSpace(cfg.LLMModel) == "" {
		if strings.EqualFold(cfg.LLMProvider, "openai") {
			cfg.LLMModel = "gpt-4o-mini"
		} else {
			cfg.LLMModel = "llama-3.3-70b-versatile"
		}
	}

	return cfg, nil
}

// HasRelayCredentials reports whether the LiveKit API key pair is configured.
// Token issuance and room joins are refused without it.
func (c Config) HasRelayCredentials() bool {
	return c.LiveKitAPIKey != "" && c.LiveKitAPISecret != ""
}

// LLMAPIKey returns the API key matching the configured LLM provider.
func (c Config) LLMAPIKey() string {
	if strings.EqualFold(c.LLMProvider, "openai") {
		return c.OpenAIAPIKey
	}
	return c.GroqAPIKey
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}
