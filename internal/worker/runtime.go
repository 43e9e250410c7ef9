package worker

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/raaestate/leadvoice/internal/calllog"
	"github.com/raaestate/leadvoice/internal/calls"
	"github.com/raaestate/leadvoice/internal/config"
	"github.com/raaestate/leadvoice/internal/dispatch"
	"github.com/raaestate/leadvoice/internal/llm"
	"github.com/raaestate/leadvoice/internal/observability"
	"github.com/raaestate/leadvoice/internal/pipeline"
	"github.com/raaestate/leadvoice/internal/profile"
	"github.com/raaestate/leadvoice/internal/relay"
	"github.com/raaestate/leadvoice/internal/voice"
)

// RoomConnector joins a relay room; swapped for a fake in tests.
type RoomConnector func(cfg relay.RoomConfig) (relay.AudioRoom, error)

// ProfileSource resolves agent profiles for dispatched jobs.
type ProfileSource interface {
	Fetch(ctx context.Context, agentID string) profile.Profile
}

type Options struct {
	Config   config.Config
	STT      voice.STTProvider
	TTS      voice.TTSProvider
	Brain    llm.Completer
	Store    calllog.Store
	Leads    *profile.LeadNotifier
	Profiles ProfileSource
	Metrics  *observability.Metrics
	Stages   *observability.StageWindow

	// Connect defaults to the LiveKit connector.
	Connect RoomConnector
}

// Runtime is the session worker: it accepts room jobs from the front door
// and runs one voice pipeline per job, bounded by MaxConcurrentSessions.
type Runtime struct {
	opts    Options
	manager *calls.Manager

	cancelMu sync.Mutex
	cancels  map[string]context.CancelFunc

	wg sync.WaitGroup
}

func NewRuntime(opts Options) (*Runtime, error) {
	if opts.STT == nil || opts.TTS == nil || opts.Brain == nil {
		return nil, fmt.Errorf("stt, tts and brain providers are required")
	}
	if opts.Store == nil {
		opts.Store = calllog.NewInMemoryStore()
	}
	if opts.Profiles == nil {
		opts.Profiles = NewWebConfigClient(
			opts.Config.WebServerURL,
			opts.Config.DefaultLanguage,
			opts.Config.DefaultVoice,
			nil,
		)
	}
	if opts.Connect == nil {
		cfg := opts.Config
		opts.Connect = func(rc relay.RoomConfig) (relay.AudioRoom, error) {
			rc.URL = cfg.LiveKitURL
			rc.APIKey = cfg.LiveKitAPIKey
			rc.APISecret = cfg.LiveKitAPISecret
			return relay.Connect(rc)
		}
	}
	r := &Runtime{
		opts:    opts,
		manager: calls.NewManager(opts.Config.SessionInactivityTimeout),
		cancels: make(map[string]context.CancelFunc),
	}
	// The janitor marks wedged sessions expired; cancelling their context
	// unwinds the pipeline and frees the slot.
	r.manager.SetExpireHook(func(s *calls.Session) {
		log.Printf("session %s in %s expired after inactivity", s.ID, s.RoomName)
		if r.opts.Metrics != nil {
			r.opts.Metrics.CallEvents.WithLabelValues("session_expired").Inc()
		}
		r.cancelSession(s.ID)
	})
	return r, nil
}

func (r *Runtime) trackSession(sessionID string, cancel context.CancelFunc) {
	r.cancelMu.Lock()
	defer r.cancelMu.Unlock()
	r.cancels[sessionID] = cancel
}

func (r *Runtime) cancelSession(sessionID string) {
	r.cancelMu.Lock()
	cancel := r.cancels[sessionID]
	delete(r.cancels, sessionID)
	r.cancelMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (r *Runtime) ActiveSessions() int { return r.manager.ActiveCount() }

func (r *Runtime) turnStats() *observability.StageSnapshot {
	if r.opts.Stages == nil {
		return nil
	}
	snap := r.opts.Stages.Snapshot()
	return &snap
}

// Run starts the janitor and the dispatch socket, blocking until ctx ends.
// In-flight sessions get to finish before Run returns.
func (r *Runtime) Run(ctx context.Context, workerID, version string) error {
	r.manager.StartJanitor(ctx, 0)

	client, err := dispatch.NewClient(dispatch.ClientOptions{
		WebServerURL:   r.opts.Config.WebServerURL,
		WorkerID:       workerID,
		MaxSessions:    r.opts.Config.MaxConcurrentSessions,
		Version:        version,
		ActiveSessions: r.ActiveSessions,
		TurnStats:      r.turnStats,
		Handler:        r.HandleJob,
	})
	if err != nil {
		return err
	}
	client.Run(ctx)
	r.wg.Wait()
	return ctx.Err()
}

// HandleJob joins the job's room and runs a pipeline in it until the call
// ends. It is the dispatch.JobHandler for this worker.
func (r *Runtime) HandleJob(ctx context.Context, job dispatch.JobAssign) (status, detail string) {
	if max := r.opts.Config.MaxConcurrentSessions; max > 0 && r.manager.ActiveCount() >= max {
		return "rejected", "worker at capacity"
	}

	prof := r.opts.Profiles.Fetch(ctx, job.AgentID)

	agentIdentity := "agent-" + uuid.NewString()
	session, err := r.manager.Create(job.RoomName, job.AgentID, agentIdentity, job.CallerIdentity, prof.Language, prof.Voice)
	if err != nil {
		return "rejected", err.Error()
	}
	defer r.manager.End(session.ID)

	sessionCtx, cancelSession := context.WithCancel(ctx)
	defer cancelSession()
	r.trackSession(session.ID, cancelSession)
	defer r.cancelSession(session.ID)

	if r.opts.Metrics != nil {
		r.opts.Metrics.ActiveCalls.Inc()
		defer r.opts.Metrics.ActiveCalls.Dec()
		r.opts.Metrics.CallEvents.WithLabelValues("session_started").Inc()
	}

	room, err := r.opts.Connect(relay.RoomConfig{
		RoomName:  job.RoomName,
		Identity:  agentIdentity,
		TrackName: "agent-voice",
	})
	if err != nil {
		log.Printf("job %s: join room %s: %v", job.JobID, job.RoomName, err)
		return "failed", fmt.Sprintf("join room: %v", err)
	}
	defer room.Close()

	p, err := pipeline.New(pipeline.Config{
		SessionID: session.ID,
		RoomName:  job.RoomName,
		AgentID:   job.AgentID,
		Profile:   prof,
	}, pipeline.Deps{
		Room:    room,
		STT:     r.opts.STT,
		TTS:     r.opts.TTS,
		Brain:   r.opts.Brain,
		Store:   r.opts.Store,
		Leads:   r.opts.Leads,
		Metrics: r.opts.Metrics,
		Stages:  r.opts.Stages,
		OnTurn:  func() { r.manager.RecordTurn(session.ID) },
		OnInterrupt: func() {
			r.manager.RecordInterruption(session.ID)
		},
		OnActivity: func() { r.manager.Touch(session.ID) },
	})
	if err != nil {
		return "failed", err.Error()
	}

	r.wg.Add(1)
	defer r.wg.Done()

	if err := p.Run(sessionCtx); err != nil && ctx.Err() == nil {
		if sessionCtx.Err() != nil {
			return "failed", "session expired after inactivity"
		}
		return "failed", err.Error()
	}
	return "completed", ""
}
