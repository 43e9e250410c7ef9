package profile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/raaestate/leadvoice/internal/reliability"
)

// Lead is the caller summary posted to the lead-capture workflow when a
// call ends.
type Lead struct {
	AgentID       string    `json:"agent_id"`
	RoomName      string    `json:"room_name"`
	SessionID     string    `json:"session_id"`
	CallerName    string    `json:"caller_name,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	Budget        string    `json:"budget,omitempty"`
	Locality      string    `json:"locality,omitempty"`
	PropertyType  string    `json:"property_type,omitempty"`
	Transcript    string    `json:"transcript,omitempty"`
	TurnCount     int       `json:"turn_count"`
	StartedAt     time.Time `json:"started_at"`
	EndedAt       time.Time `json:"ended_at"`
	EndReason     string    `json:"end_reason,omitempty"`
	WantsCallback bool      `json:"wants_callback,omitempty"`
}

// LeadNotifier posts captured leads to the N8N lead webhook. One retry on a
// retryable status; a lead that still fails is logged by the caller, never
// fatal to the session.
type LeadNotifier struct {
	baseURL string
	path    string
	client  *http.Client
}

func NewLeadNotifier(baseURL, path string, client *http.Client) *LeadNotifier {
	if strings.TrimSpace(path) == "" {
		path = "/webhook/lead-capture"
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &LeadNotifier{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		path:    path,
		client:  client,
	}
}

// Enabled reports whether a lead webhook is configured.
func (n *LeadNotifier) Enabled() bool { return n.baseURL != "" }

func (n *LeadNotifier) Notify(ctx context.Context, lead Lead) error {
	if !n.Enabled() {
		return nil
	}
	payload, err := json.Marshal(lead)
	if err != nil {
		return fmt.Errorf("marshal lead: %w", err)
	}

	return reliability.RetryOnce(ctx, 500*time.Millisecond, reliability.IsRetryable, func() error {
		return n.post(ctx, payload)
	})
}

func (n *LeadNotifier) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+n.path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send lead: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return &reliability.HTTPError{Status: res.StatusCode, Body: string(body)}
	}
	return nil
}
