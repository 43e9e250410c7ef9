package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

type cacheEntry struct {
	profile   Profile
	fetchedAt time.Time
}

// Manager fetches agent profiles from an N8N webhook and caches them.
// A failed fetch degrades to the default profile instead of failing the call.
type Manager struct {
	baseURL   string
	path      string
	client    *http.Client
	cacheTTL  time.Duration
	defaults  Profile
	mu        sync.RWMutex
	cache     map[string]cacheEntry
}

type ManagerOptions struct {
	BaseURL         string
	ConfigPath      string
	CacheTTL        time.Duration
	DefaultLanguage string
	DefaultVoice    string
	HTTPClient      *http.Client
}

func NewManager(opts ManagerOptions) *Manager {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = "/webhook/agent-config"
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Manager{
		baseURL:  strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		path:     path,
		client:   client,
		cacheTTL: ttl,
		defaults: DefaultProfile("", opts.DefaultLanguage, opts.DefaultVoice),
		cache:    make(map[string]cacheEntry),
	}
}

// Get returns the profile for agentID, from cache when fresh. When N8N is
// unreachable or returns garbage, the default profile is returned with
// Source set to "default" so callers can tell.
func (m *Manager) Get(ctx context.Context, agentID string) Profile {
	agentID = strings.TrimSpace(agentID)

	m.mu.RLock()
	entry, ok := m.cache[agentID]
	m.mu.RUnlock()
	if ok && time.Since(entry.fetchedAt) < m.cacheTTL {
		return entry.profile
	}

	defaults := m.defaults
	defaults.AgentID = agentID

	if m.baseURL == "" {
		return defaults
	}

	fetched, err := m.fetch(ctx, agentID)
	if err != nil {
		log.Printf("agent config fetch failed for %q, using defaults: %v", agentID, err)
		// Serve a stale cache entry over defaults if one exists.
		if ok {
			return entry.profile
		}
		return defaults
	}

	p := fetched.Normalize(defaults)
	p.AgentID = agentID
	p.Source = SourceN8N

	m.mu.Lock()
	m.cache[agentID] = cacheEntry{profile: p, fetchedAt: time.Now()}
	m.mu.Unlock()
	return p
}

// Invalidate drops cached profiles. With an empty agentID the whole cache
// is cleared. Returns the number of entries removed.
func (m *Manager) Invalidate(agentID string) int {
	agentID = strings.TrimSpace(agentID)
	m.mu.Lock()
	defer m.mu.Unlock()
	if agentID == "" {
		n := len(m.cache)
		m.cache = make(map[string]cacheEntry)
		return n
	}
	if _, ok := m.cache[agentID]; !ok {
		return 0
	}
	delete(m.cache, agentID)
	return 1
}

func (m *Manager) fetch(ctx context.Context, agentID string) (Profile, error) {
	u := m.baseURL + m.path + "?agent_id=" + url.QueryEscape(agentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Profile{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	res, err := m.client.Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return Profile{}, fmt.Errorf("agent config status %d: %s", res.StatusCode, string(body))
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return Profile{}, fmt.Errorf("read response: %w", err)
	}

	var p Profile
	if err := json.Unmarshal(body, &p); err != nil {
		// Some workflows wrap the payload in an array or an envelope.
		var arr []Profile
		if errArr := json.Unmarshal(body, &arr); errArr == nil && len(arr) > 0 {
			return arr[0], nil
		}
		var envelope struct {
			Data Profile `json:"data"`
		}
		if errEnv := json.Unmarshal(body, &envelope); errEnv == nil && envelope.Data.SystemPrompt != "" {
			return envelope.Data, nil
		}
		return Profile{}, fmt.Errorf("decode profile: %w", err)
	}
	return p, nil
}
