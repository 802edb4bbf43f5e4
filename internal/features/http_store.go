package features

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// HTTPStore reads feature records from the external feature service.
//
// Availability contract: AgentFeatures caches every successful read and
// serves the last-known record (then Defaults) when the service is down.
// The feature system going away must never take call admission with it.
type HTTPStore struct {
	baseURL string
	client  *http.Client
	log     *slog.Logger

	mu        sync.RWMutex
	lastKnown map[string]AgentFeatures
}

type HTTPStoreConfig struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger
}

func NewHTTPStore(cfg HTTPStoreConfig) (*HTTPStore, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("features: base url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &HTTPStore{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		client:    &http.Client{Timeout: timeout},
		log:       log,
		lastKnown: map[string]AgentFeatures{},
	}, nil
}

type agentFeaturesResponse struct {
	Plan     string        `json:"plan"`
	Features AgentFeatures `json:"features"`
}

func (s *HTTPStore) AgentFeatures(ctx context.Context, agentID string) AgentFeatures {
	var out agentFeaturesResponse
	err := s.getJSON(ctx, "/agents/"+agentID+"/features", &out)
	if err == nil {
		f := Normalize(out.Features)
		s.mu.Lock()
		s.lastKnown[agentID] = f
		s.mu.Unlock()
		return f
	}

	s.log.Warn("feature store unavailable, using fallback", "agent_id", agentID, "err", err)

	s.mu.RLock()
	f, ok := s.lastKnown[agentID]
	s.mu.RUnlock()
	if ok {
		return f
	}
	return Defaults()
}

func (s *HTTPStore) AssignedAgent(ctx context.Context, requestID string) (string, error) {
	var out struct {
		AgentID string `json:"agent_id"`
	}
	if err := s.getJSON(ctx, "/requests/"+requestID+"/agent", &out); err != nil {
		return "", fmt.Errorf("features: resolve assigned agent: %w", err)
	}
	if out.AgentID == "" {
		return "", ErrNoAgent
	}
	return out.AgentID, nil
}

func (s *HTTPStore) ProjectPlan(ctx context.Context, projectID string) (string, error) {
	var out struct {
		Plan string `json:"plan"`
	}
	if err := s.getJSON(ctx, "/projects/"+projectID+"/plan", &out); err != nil {
		return "", fmt.Errorf("features: resolve project plan: %w", err)
	}
	return out.Plan, nil
}

func (s *HTTPStore) ProjectAgents(ctx context.Context, projectID string) ([]string, error) {
	var out struct {
		AgentIDs []string `json:"agent_ids"`
	}
	if err := s.getJSON(ctx, "/projects/"+projectID+"/agents", &out); err != nil {
		return nil, fmt.Errorf("features: list project agents: %w", err)
	}
	return out.AgentIDs, nil
}

func (s *HTTPStore) UpdateAgentFeatures(ctx context.Context, agentID string, f AgentFeatures) error {
	payload, err := json.Marshal(agentFeaturesResponse{Features: f})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.baseURL+"/agents/"+agentID+"/features", strings.NewReader(string(payload)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("features: update agent %s: %w", agentID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("features: update agent %s: http %d", agentID, resp.StatusCode)
	}

	s.mu.Lock()
	s.lastKnown[agentID] = Normalize(f)
	s.mu.Unlock()
	return nil
}

func (s *HTTPStore) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
