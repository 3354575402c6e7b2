package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	// uriScheme is the custom URI scheme for rmsync resources.
	uriScheme = "rmsync://"

	// runsResourceLimit is the number of runs listed by rmsync://runs.
	runsResourceLimit = 20
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "runs",
		Name:        "runs",
		Description: "Recent sync and backfill runs, newest first",
		MIMEType:    "application/json",
	}, s.handleRunsResource)
}

// runInfo is one entry of the runs resource.
type runInfo struct {
	ID        string `json:"id"`
	Target    string `json:"target"`
	Kind      string `json:"kind"`
	StartedAt string `json:"started_at"`
	EndedAt   string `json:"ended_at,omitempty"`
	Queued    int    `json:"queued"`
	Synced    int    `json:"synced"`
	Failed    int    `json:"failed"`
}

// handleRunsResource returns the recent run history.
func (s *Server) handleRunsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	runs, err := s.ports.Sync.Runs(ctx, runsResourceLimit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	infos := make([]runInfo, len(runs))
	for i, r := range runs {
		infos[i] = runInfo{
			ID:        r.ID,
			Target:    r.TargetName,
			Kind:      string(r.Kind),
			StartedAt: formatTime(r.StartedAt),
			EndedAt:   formatTime(r.EndedAt),
			Queued:    r.Queued,
			Synced:    r.Synced,
			Failed:    r.Failed,
		}
	}

	data, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling runs: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}
