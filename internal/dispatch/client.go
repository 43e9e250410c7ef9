package dispatch

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raaestate/leadvoice/internal/observability"
	"github.com/raaestate/leadvoice/internal/reliability"
)

const (
	heartbeatInterval = 10 * time.Second
	reconnectBase     = time.Second
	reconnectCap      = 30 * time.Second
)

// JobHandler runs an assigned job. It is called on its own goroutine; the
// returned status and detail are reported back to the front door.
type JobHandler func(ctx context.Context, job JobAssign) (status, detail string)

type ClientOptions struct {
	// WebServerURL is the front door base URL, http(s) scheme.
	WebServerURL string
	WorkerID     string
	MaxSessions  int
	Version      string
	// ActiveSessions and TurnStats are polled for heartbeats.
	ActiveSessions func() int
	TurnStats      func() *observability.StageSnapshot
	Handler        JobHandler
}

// Client maintains the worker's registration socket to the front door,
// heartbeats over it and runs assigned jobs. It reconnects with backoff
// until the context is cancelled.
type Client struct {
	opts ClientOptions
	url  string

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewClient(opts ClientOptions) (*Client, error) {
	if strings.TrimSpace(opts.WorkerID) == "" {
		return nil, fmt.Errorf("worker id is required")
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 1
	}
	if opts.Handler == nil {
		return nil, fmt.Errorf("job handler is required")
	}
	u, err := workerSocketURL(opts.WebServerURL)
	if err != nil {
		return nil, err
	}
	return &Client{opts: opts, url: u}, nil
}

// Run blocks until ctx is cancelled, reconnecting whenever the socket drops.
func (c *Client) Run(ctx context.Context) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}
		err := c.runOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		attempt++
		delay := reliability.ExponentialBackoff(attempt, reconnectBase, reconnectCap)
		log.Printf("dispatch socket lost (%v), reconnecting in %s", err, delay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (c *Client) runOnce(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial front door: %w", err)
	}
	defer conn.Close()

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	if err := c.send(WorkerRegister{
		Type:        TypeWorkerRegister,
		WorkerID:    c.opts.WorkerID,
		MaxSessions: c.opts.MaxSessions,
		Version:     c.opts.Version,
	}); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	log.Printf("registered with front door as %s", c.opts.WorkerID)

	hbCtx, cancelHB := context.WithCancel(ctx)
	defer cancelHB()
	go c.heartbeatLoop(hbCtx)

	// The dialer context does not cover established connections.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		msg, err := ParseHubMessage(raw)
		if err != nil {
			continue
		}
		if job, ok := msg.(JobAssign); ok {
			go c.runJob(ctx, job)
		}
	}
}

func (c *Client) runJob(ctx context.Context, job JobAssign) {
	log.Printf("job %s: joining room %s for agent %s", job.JobID, job.RoomName, job.AgentID)
	status, detail := c.opts.Handler(ctx, job)
	if err := c.send(JobResult{
		Type:     TypeJobResult,
		JobID:    job.JobID,
		WorkerID: c.opts.WorkerID,
		Status:   status,
		Detail:   detail,
	}); err != nil {
		log.Printf("job %s: report result: %v", job.JobID, err)
	}
}

func (c *Client) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			active := 0
			if c.opts.ActiveSessions != nil {
				active = c.opts.ActiveSessions()
			}
			var stats *observability.StageSnapshot
			if c.opts.TurnStats != nil {
				stats = c.opts.TurnStats()
			}
			if err := c.send(WorkerHeartbeat{
				Type:           TypeWorkerHeartbeat,
				WorkerID:       c.opts.WorkerID,
				ActiveSessions: active,
				TSMs:           time.Now().UnixMilli(),
				TurnStats:      stats,
			}); err != nil {
				return
			}
		}
	}
}

func (c *Client) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	return c.conn.WriteJSON(v)
}

func workerSocketURL(webServerURL string) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(webServerURL), "/")
	if base == "" {
		return "", fmt.Errorf("web server url is required")
	}
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	case strings.HasPrefix(base, "ws://"), strings.HasPrefix(base, "wss://"):
	default:
		return "", fmt.Errorf("web server url %q must be http(s) or ws(s)", webServerURL)
	}
	return base + "/v1/worker/ws", nil
}
