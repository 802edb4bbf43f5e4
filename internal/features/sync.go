package features

import (
	"context"
	"log/slog"
)

// SyncResult reports the per-agent outcome of a project sync.
type SyncResult struct {
	ProjectID string   `json:"project_id"`
	Synced    []string `json:"synced"`
	Failed    []string `json:"failed"`
}

// Syncer pushes a project's call capabilities down to every agent in the
// project. A partial failure is not an error: callers get the per-agent
// breakdown and the failed agents keep their previous records.
type Syncer struct {
	Updater Updater
	Logger  *slog.Logger
}

func (s *Syncer) SyncToAgents(ctx context.Context, projectID string, target AgentFeatures) (SyncResult, error) {
	res := SyncResult{ProjectID: projectID, Synced: []string{}, Failed: []string{}}

	agents, err := s.Updater.ProjectAgents(ctx, projectID)
	if err != nil {
		return res, err
	}

	target = Normalize(target)
	for _, agentID := range agents {
		if err := s.Updater.UpdateAgentFeatures(ctx, agentID, target); err != nil {
			s.log().Warn("agent feature sync failed", "project_id", projectID, "agent_id", agentID, "err", err)
			res.Failed = append(res.Failed, agentID)
			continue
		}
		res.Synced = append(res.Synced, agentID)
	}
	return res, nil
}

func (s *Syncer) log() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
