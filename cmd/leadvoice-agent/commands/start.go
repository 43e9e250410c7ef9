package commands

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/raaestate/leadvoice/internal/calllog"
	"github.com/raaestate/leadvoice/internal/config"
	"github.com/raaestate/leadvoice/internal/llm"
	"github.com/raaestate/leadvoice/internal/observability"
	"github.com/raaestate/leadvoice/internal/profile"
	"github.com/raaestate/leadvoice/internal/voice"
	"github.com/raaestate/leadvoice/internal/worker"
)

const version = "0.3.0"

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the session worker",
	Long: `Start the session worker and register with the front door server.

Required environment:
  LIVEKIT_URL, LIVEKIT_API_KEY, LIVEKIT_API_SECRET

Common environment:
  WEB_SERVER_URL        front door base URL (default http://localhost:3000)
  VOICE_PROVIDER        auto|sarvam|mock (default auto)
  SARVAM_API_KEY        enables the Sarvam STT/TTS backend
  LLM_PROVIDER          groq|openai|mock (default groq)
  GROQ_API_KEY          key for LLM_PROVIDER=groq
  OPENAI_API_KEY        key for LLM_PROVIDER=openai
  DATABASE_URL          Postgres call log (in-memory when unset)
  N8N_BASE_URL          lead capture and agent config webhooks`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStart()
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart() error {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if !cfg.HasRelayCredentials() || cfg.LiveKitURL == "" {
		log.Fatalf("LIVEKIT_URL, LIVEKIT_API_KEY and LIVEKIT_API_SECRET are required")
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	stages := observability.NewStageWindow(256)

	var (
		sttProvider voice.STTProvider
		ttsProvider voice.TTSProvider
	)

	voiceMode := strings.ToLower(strings.TrimSpace(cfg.VoiceProvider))
	if voiceMode == "" {
		voiceMode = "auto"
	}

	trySarvam := func() bool {
		if cfg.SarvamAPIKey == "" {
			return false
		}
		p := voice.NewSarvamProvider(voice.SarvamConfig{
			APIKey:     cfg.SarvamAPIKey,
			WSBaseURL:  cfg.SarvamWSBaseURL,
			STTModelID: cfg.SarvamSTTModel,
			TTSModelID: cfg.SarvamTTSModel,
		})
		mock := voice.NewMockProvider()
		sttProvider, ttsProvider = voice.NewFailoverProviderPair(
			p, p, mock, mock, cfg.DefaultVoice, cfg.SarvamTTSModel)
		log.Printf("voice provider: sarvam (mock fallback)")
		return true
	}

	switch voiceMode {
	case "sarvam":
		if !trySarvam() {
			log.Fatalf("VOICE_PROVIDER=sarvam but SARVAM_API_KEY is not set")
		}
	case "mock":
		p := voice.NewMockProvider()
		sttProvider = p
		ttsProvider = p
		log.Printf("voice provider: mock")
	case "auto":
		if trySarvam() {
			break
		}
		p := voice.NewMockProvider()
		sttProvider = p
		ttsProvider = p
		log.Printf("voice provider: mock (no sarvam key)")
	default:
		log.Fatalf("invalid VOICE_PROVIDER: %q (expected auto|sarvam|mock)", cfg.VoiceProvider)
	}

	var brain llm.Completer
	llmMode := strings.ToLower(strings.TrimSpace(cfg.LLMProvider))
	if llmMode == "mock" || cfg.LLMAPIKey() == "" {
		brain = llm.NewMockCompleter()
		log.Printf("llm provider: mock")
	} else {
		brain, err = llm.NewOpenAIClient(llm.OpenAIConfig{
			Provider: llmMode,
			APIKey:   cfg.LLMAPIKey(),
			BaseURL:  cfg.LLMBaseURL,
			Model:    cfg.LLMModel,
		})
		if err != nil {
			log.Fatalf("llm client init failed: %v", err)
		}
		log.Printf("llm provider: %s", llmMode)
	}

	ctx := context.Background()
	store, err := calllog.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("call log store init failed: %v", err)
	}
	defer store.Close()

	var leads *profile.LeadNotifier
	if cfg.N8NBaseURL != "" {
		leads = profile.NewLeadNotifier(cfg.N8NBaseURL, cfg.N8NLeadCapturePath, nil)
	} else {
		log.Printf("N8N_BASE_URL not set, lead capture disabled")
	}

	profiles := worker.NewWebConfigClient(cfg.WebServerURL, cfg.DefaultLanguage, cfg.DefaultVoice, nil)

	runtime, err := worker.NewRuntime(worker.Options{
		Config:   cfg,
		STT:      sttProvider,
		TTS:      ttsProvider,
		Brain:    brain,
		Store:    store,
		Leads:    leads,
		Profiles: profiles,
		Metrics:  metrics,
		Stages:   stages,
	})
	if err != nil {
		log.Fatalf("worker init failed: %v", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Printf("shutdown signal received")
		cancel()
	}()

	workerID := "worker-" + uuid.NewString()[:8]
	log.Printf("session worker %s starting (max_sessions=%d)", workerID, cfg.MaxConcurrentSessions)
	if err := runtime.Run(runCtx, workerID, version); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Printf("shutdown complete")
	return nil
}
