package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/raaestate/leadvoice/internal/profile"
)

// WebConfigClient fetches agent profiles through the front door, which owns
// the N8N integration and the cache. The worker never talks to N8N directly.
type WebConfigClient struct {
	baseURL  string
	client   *http.Client
	defaults profile.Profile
}

func NewWebConfigClient(webServerURL, defaultLanguage, defaultVoice string, client *http.Client) *WebConfigClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebConfigClient{
		baseURL:  strings.TrimRight(strings.TrimSpace(webServerURL), "/"),
		client:   client,
		defaults: profile.DefaultProfile("", defaultLanguage, defaultVoice),
	}
}

// Fetch returns the profile for agentID, degrading to defaults when the
// front door is unreachable. A dispatched job must still produce a call.
func (c *WebConfigClient) Fetch(ctx context.Context, agentID string) profile.Profile {
	defaults := c.defaults
	defaults.AgentID = agentID
	if c.baseURL == "" {
		return defaults
	}

	u := c.baseURL + "/api/config/" + url.PathEscape(agentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return defaults
	}
	res, err := c.client.Do(req)
	if err != nil {
		return defaults
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return defaults
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return defaults
	}
	var p profile.Profile
	if err := json.Unmarshal(body, &p); err != nil {
		return defaults
	}
	p = p.Normalize(defaults)
	p.AgentID = agentID
	return p
}

func (c *WebConfigClient) String() string {
	return fmt.Sprintf("web config client (%s)", c.baseURL)
}
