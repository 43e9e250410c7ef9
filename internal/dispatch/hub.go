package dispatch

import (
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raaestate/leadvoice/internal/observability"
)

var ErrNoWorkerAvailable = errors.New("no worker available")

// WorkerStatus is one worker's entry in the health snapshot.
type WorkerStatus struct {
	WorkerID       string    `json:"worker_id"`
	MaxSessions    int       `json:"max_sessions"`
	ActiveSessions int       `json:"active_sessions"`
	ConnectedAt    time.Time `json:"connected_at"`
	LastSeenAt     time.Time `json:"last_seen_at"`
	Version        string    `json:"version,omitempty"`

	TurnStats *observability.StageSnapshot `json:"turn_stats,omitempty"`
}

type HubSnapshot struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Workers     []WorkerStatus `json:"workers"`
	Online      bool           `json:"online"`
}

type workerConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	workerID       string
	maxSessions    int
	version        string
	activeSessions int
	connectedAt    time.Time
	lastSeenAt     time.Time
	turnStats      *observability.StageSnapshot
}

func (w *workerConn) send(v any) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	return w.conn.WriteJSON(v)
}

// Hub tracks connected session workers and assigns room jobs to them.
// Workers dial in, register, and heartbeat; the hub never dials out.
type Hub struct {
	mu            sync.RWMutex
	workers       map[string]*workerConn
	staleAfter    time.Duration
	onJobResult   func(JobResult)
	onWorkerEvent func(event string)
}

type HubOptions struct {
	// StaleAfter marks a worker unavailable when its last heartbeat is older.
	StaleAfter time.Duration
	// OnJobResult receives job completion reports from workers.
	OnJobResult func(JobResult)
	// OnWorkerEvent receives register/disconnect notifications for metrics.
	OnWorkerEvent func(event string)
}

func NewHub(opts HubOptions) *Hub {
	stale := opts.StaleAfter
	if stale <= 0 {
		stale = 30 * time.Second
	}
	return &Hub{
		workers:       make(map[string]*workerConn),
		staleAfter:    stale,
		onJobResult:   opts.OnJobResult,
		onWorkerEvent: opts.OnWorkerEvent,
	}
}

// ServeWorker owns the connection until it closes. The first message must be
// a worker_register; everything after is heartbeats and job results.
func (h *Hub) ServeWorker(conn *websocket.Conn) {
	defer conn.Close()

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return
	}
	msg, err := ParseWorkerMessage(raw)
	if err != nil {
		log.Printf("worker handshake rejected: %v", err)
		return
	}
	reg, ok := msg.(WorkerRegister)
	if !ok {
		log.Printf("worker handshake rejected: first message %T, want worker_register", msg)
		return
	}

	now := time.Now().UTC()
	w := &workerConn{
		conn:        conn,
		workerID:    reg.WorkerID,
		maxSessions: reg.MaxSessions,
		version:     reg.Version,
		connectedAt: now,
		lastSeenAt:  now,
	}

	h.mu.Lock()
	if old, exists := h.workers[reg.WorkerID]; exists {
		old.conn.Close()
	}
	h.workers[reg.WorkerID] = w
	h.mu.Unlock()

	log.Printf("worker registered: %s (max_sessions=%d)", reg.WorkerID, reg.MaxSessions)
	h.emit("worker_registered")

	defer func() {
		h.mu.Lock()
		if current, exists := h.workers[reg.WorkerID]; exists && current == w {
			delete(h.workers, reg.WorkerID)
		}
		h.mu.Unlock()
		log.Printf("worker disconnected: %s", reg.WorkerID)
		h.emit("worker_disconnected")
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := ParseWorkerMessage(raw)
		if err != nil {
			continue
		}
		switch m := msg.(type) {
		case WorkerHeartbeat:
			h.mu.Lock()
			w.lastSeenAt = time.Now().UTC()
			w.activeSessions = m.ActiveSessions
			if m.TurnStats != nil {
				w.turnStats = m.TurnStats
			}
			h.mu.Unlock()
		case JobResult:
			if h.onJobResult != nil {
				h.onJobResult(m)
			}
		}
	}
}

// Dispatch assigns the job to the least loaded live worker with free capacity.
func (h *Hub) Dispatch(job JobAssign) (string, error) {
	job.Type = TypeJobAssign

	type candidate struct {
		conn           *workerConn
		workerID       string
		activeSessions int
	}

	// Load fields are copied under the lock; heartbeats keep mutating them.
	h.mu.RLock()
	candidates := make([]candidate, 0, len(h.workers))
	now := time.Now().UTC()
	for _, w := range h.workers {
		if now.Sub(w.lastSeenAt) > h.staleAfter {
			continue
		}
		if w.maxSessions > 0 && w.activeSessions >= w.maxSessions {
			continue
		}
		candidates = append(candidates, candidate{
			conn:           w,
			workerID:       w.workerID,
			activeSessions: w.activeSessions,
		})
	}
	h.mu.RUnlock()

	if len(candidates) == 0 {
		return "", ErrNoWorkerAvailable
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].activeSessions != candidates[j].activeSessions {
			return candidates[i].activeSessions < candidates[j].activeSessions
		}
		return candidates[i].workerID < candidates[j].workerID
	})

	var lastErr error
	for _, c := range candidates {
		if err := c.conn.send(job); err != nil {
			lastErr = err
			continue
		}
		return c.workerID, nil
	}
	if lastErr != nil {
		return "", lastErr
	}
	return "", ErrNoWorkerAvailable
}

// Snapshot reports connected workers for the health endpoint. Online is true
// when at least one worker has a fresh heartbeat.
func (h *Hub) Snapshot() HubSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()

	now := time.Now().UTC()
	workers := make([]WorkerStatus, 0, len(h.workers))
	online := false
	for _, w := range h.workers {
		if now.Sub(w.lastSeenAt) <= h.staleAfter {
			online = true
		}
		workers = append(workers, WorkerStatus{
			WorkerID:       w.workerID,
			MaxSessions:    w.maxSessions,
			ActiveSessions: w.activeSessions,
			ConnectedAt:    w.connectedAt,
			LastSeenAt:     w.lastSeenAt,
			Version:        w.version,
			TurnStats:      w.turnStats,
		})
	}
	sort.Slice(workers, func(i, j int) bool { return workers[i].WorkerID < workers[j].WorkerID })

	return HubSnapshot{
		GeneratedAt: now,
		Workers:     workers,
		Online:      online,
	}
}

func (h *Hub) emit(event string) {
	if h.onWorkerEvent != nil {
		h.onWorkerEvent(event)
	}
}
