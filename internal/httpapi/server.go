package httpapi

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/raaestate/leadvoice/internal/config"
	"github.com/raaestate/leadvoice/internal/dispatch"
	"github.com/raaestate/leadvoice/internal/observability"
	"github.com/raaestate/leadvoice/internal/profile"
	"github.com/raaestate/leadvoice/internal/relay"
)

type Server struct {
	cfg      config.Config
	minter   *relay.TokenMinter
	profiles *profile.Manager
	hub      *dispatch.Hub
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
	static   http.Handler
}

func New(cfg config.Config, minter *relay.TokenMinter, profiles *profile.Manager, hub *dispatch.Hub, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:      cfg,
		minter:   minter,
		profiles: profiles,
		hub:      hub,
		metrics:  metrics,
		static:   newStaticHandler(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Workers are not browsers; they carry no Origin header.
			CheckOrigin: func(r *http.Request) bool {
				return strings.TrimSpace(r.Header.Get("Origin")) == ""
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Get("/ui", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Handle("/ui/*", http.StripPrefix("/ui/", s.static))

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/api/token", s.handleToken)
	r.Get("/api/config/{agent_id}", s.handleAgentConfig)
	r.Post("/api/invalidate-cache", s.handleInvalidateCache)
	r.Get("/api/languages", s.handleLanguages)
	r.Get("/api/worker/health", s.handleWorkerHealth)

	r.Post("/webhook/relay", s.handleRelayWebhook)
	r.Get("/v1/worker/ws", s.handleWorkerWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "leadvoice-web",
	})
}

type tokenRequest struct {
	AgentID  string `json:"agent_id"`
	Language string `json:"language"`
	Voice    string `json:"voice"`
	UserName string `json:"user_name"`
}

type tokenResponse struct {
	Token      string    `json:"token"`
	RoomName   string    `json:"room_name"`
	LiveKitURL string    `json:"livekit_url"`
	Identity   string    `json:"identity"`
	AgentID    string    `json:"agent_id"`
	Language   string    `json:"language"`
	Voice      string    `json:"voice"`
	ExpiresAt  time.Time `json:"expires_at"`
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if !s.minter.Configured() {
		respondError(w, http.StatusUnauthorized, "missing_relay_credentials",
			"LIVEKIT_API_KEY and LIVEKIT_API_SECRET must be configured")
		return
	}

	agentID := strings.TrimSpace(req.AgentID)
	if agentID == "" {
		agentID = "default"
	}

	// Profile resolution warms the cache for the worker; failures fall back
	// to defaults and never block issuance.
	prof := s.profiles.Get(r.Context(), agentID)
	language := strings.TrimSpace(req.Language)
	if language == "" {
		language = prof.Language
	}
	voice := strings.TrimSpace(req.Voice)
	if voice == "" {
		voice = prof.Voice
	}

	identity := strings.TrimSpace(req.UserName)
	if identity == "" {
		identity = "caller-" + uuid.NewString()[:8]
	}

	roomName := relay.RoomName(agentID, time.Now())
	token, err := s.minter.Mint(roomName, identity)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "token_mint_failed", err.Error())
		return
	}

	if s.metrics != nil {
		s.metrics.CallEvents.WithLabelValues("token_issued").Inc()
	}
	respondJSON(w, http.StatusOK, tokenResponse{
		Token:      token,
		RoomName:   roomName,
		LiveKitURL: s.cfg.LiveKitURL,
		Identity:   identity,
		AgentID:    agentID,
		Language:   language,
		Voice:      voice,
		ExpiresAt:  time.Now().Add(s.cfg.TokenTTL).UTC(),
	})
}

func (s *Server) handleAgentConfig(w http.ResponseWriter, r *http.Request) {
	agentID := strings.TrimSpace(chi.URLParam(r, "agent_id"))
	if agentID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "agent_id is required")
		return
	}
	respondJSON(w, http.StatusOK, s.profiles.Get(r.Context(), agentID))
}

type invalidateRequest struct {
	AgentID string `json:"agent_id"`
}

func (s *Server) handleInvalidateCache(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	removed := s.profiles.Invalidate(req.AgentID)
	respondJSON(w, http.StatusOK, map[string]any{
		"invalidated": removed,
		"agent_id":    strings.TrimSpace(req.AgentID),
	})
}

func (s *Server) handleWorkerHealth(w http.ResponseWriter, _ *http.Request) {
	snap := s.hub.Snapshot()
	resp := map[string]any{
		"available":    snap.Online,
		"generated_at": snap.GeneratedAt,
		"workers":      snap.Workers,
	}
	// Promote the most recently seen worker so single-worker deployments can
	// read a flat payload.
	if len(snap.Workers) > 0 {
		freshest := snap.Workers[0]
		for _, ws := range snap.Workers[1:] {
			if ws.LastSeenAt.After(freshest.LastSeenAt) {
				freshest = ws
			}
		}
		resp["worker_id"] = freshest.WorkerID
		resp["last_seen"] = freshest.LastSeenAt
		resp["active_sessions"] = freshest.ActiveSessions
		if freshest.TurnStats != nil {
			resp["turn_stats"] = freshest.TurnStats
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

// relayWebhookEvent is the subset of the LiveKit webhook payload we act on.
type relayWebhookEvent struct {
	Event string `json:"event"`
	Room  struct {
		Name string `json:"name"`
	} `json:"room"`
	Participant struct {
		Identity string `json:"identity"`
	} `json:"participant"`
}

func (s *Server) handleRelayWebhook(w http.ResponseWriter, r *http.Request) {
	var evt relayWebhookEvent
	if err := decodeJSON(r, &evt); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "unreadable webhook payload")
		return
	}

	if evt.Event != "participant_joined" {
		respondJSON(w, http.StatusOK, map[string]any{"handled": false})
		return
	}
	roomName := strings.TrimSpace(evt.Room.Name)
	identity := strings.TrimSpace(evt.Participant.Identity)
	if roomName == "" || identity == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "room and participant are required")
		return
	}
	// Agent participants joining their own rooms do not get another agent.
	if strings.HasPrefix(identity, "agent-") {
		respondJSON(w, http.StatusOK, map[string]any{"handled": false})
		return
	}

	agentID := agentIDFromRoom(roomName)
	// Resolve (and cache) the profile before dispatch so the worker's
	// config fetch is a cache hit even when N8N is slow.
	s.profiles.Get(r.Context(), agentID)

	job := dispatch.JobAssign{
		JobID:          uuid.NewString(),
		RoomName:       roomName,
		AgentID:        agentID,
		CallerIdentity: identity,
	}
	workerID, err := s.hub.Dispatch(job)
	if err != nil {
		if s.metrics != nil {
			s.metrics.DispatchEvents.WithLabelValues("no_worker").Inc()
		}
		log.Printf("webhook: no worker for room %s: %v", roomName, err)
		respondError(w, http.StatusServiceUnavailable, "no_worker_available", err.Error())
		return
	}

	if s.metrics != nil {
		s.metrics.DispatchEvents.WithLabelValues("dispatched").Inc()
	}
	log.Printf("webhook: room %s dispatched to worker %s", roomName, workerID)
	respondJSON(w, http.StatusOK, map[string]any{
		"handled":   true,
		"job_id":    job.JobID,
		"worker_id": workerID,
	})
}

func (s *Server) handleWorkerWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	if s.metrics != nil {
		s.metrics.DispatchEvents.WithLabelValues("worker_connected").Inc()
	}
	s.hub.ServeWorker(conn)
}

// agentIDFromRoom recovers the agent id from a test-{agent_id}-{unix} room
// name. Unknown shapes fall back to the default agent.
func agentIDFromRoom(roomName string) string {
	trimmed := strings.TrimPrefix(roomName, "test-")
	if trimmed == roomName {
		return "default"
	}
	if idx := strings.LastIndex(trimmed, "-"); idx > 0 {
		return trimmed[:idx]
	}
	return "default"
}
