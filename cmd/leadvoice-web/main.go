package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/raaestate/leadvoice/internal/config"
	"github.com/raaestate/leadvoice/internal/dispatch"
	"github.com/raaestate/leadvoice/internal/httpapi"
	"github.com/raaestate/leadvoice/internal/observability"
	"github.com/raaestate/leadvoice/internal/profile"
	"github.com/raaestate/leadvoice/internal/relay"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	minter := relay.NewTokenMinter(cfg.LiveKitAPIKey, cfg.LiveKitAPISecret, cfg.TokenTTL)
	if !minter.Configured() {
		log.Printf("LIVEKIT_API_KEY/LIVEKIT_API_SECRET not set, token endpoint will refuse requests")
	}

	profiles := profile.NewManager(profile.ManagerOptions{
		BaseURL:         cfg.N8NBaseURL,
		ConfigPath:      cfg.N8NAgentConfigPath,
		DefaultLanguage: cfg.DefaultLanguage,
		DefaultVoice:    cfg.DefaultVoice,
	})
	if cfg.N8NBaseURL == "" {
		log.Printf("N8N_BASE_URL not set, agent configs fall back to defaults")
	}

	hub := dispatch.NewHub(dispatch.HubOptions{
		OnWorkerEvent: func(event string) {
			metrics.DispatchEvents.WithLabelValues(event).Inc()
		},
		OnJobResult: func(res dispatch.JobResult) {
			metrics.DispatchEvents.WithLabelValues("job_"+res.Status).Inc()
			log.Printf("job %s on %s finished: %s", res.JobID, res.WorkerID, res.Status)
		},
	})

	api := httpapi.New(cfg, minter, profiles, hub, metrics)
	httpServer := &http.Server{
		Addr:    cfg.WebBindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("front door listening on %s", cfg.WebBindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
