// Package gardener implements the run steward.
// It observes a clipwright learner via its HTTP API, triages the health of
// the game bridge and table saves, decides on at most one control action
// per cycle and acts via the admin control endpoints.
package gardener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RunSnapshot holds all data collected during an observation cycle.
type RunSnapshot struct {
	Status      RunStatus        `json:"status"`
	Checkpoints []CheckpointInfo `json:"checkpoints"`
	// CheckpointLog is false when the learner keeps no history database.
	CheckpointLog bool `json:"checkpoint_log"`
}

// RunStatus mirrors GET /api/v1/status.
type RunStatus struct {
	Name             string `json:"name"`
	Iteration        uint64 `json:"iteration"`
	Running          bool   `json:"running"`
	Paused           bool   `json:"paused"`
	TickDelayMS      int64  `json:"tick_delay_ms"`
	CheckpointEvery  uint64 `json:"checkpoint_every"`
	DroppedSnapshots uint64 `json:"dropped_snapshots"`
	ObserverFailures uint64 `json:"observer_failures"`
	RejectedActions  uint64 `json:"rejected_actions"`
	RunID            string `json:"run_id"`
	DemandLevel      string `json:"demand_level"`
}

// CheckpointInfo mirrors items from GET /api/v1/checkpoints.
type CheckpointInfo struct {
	RunID     string `json:"run_id"`
	Iteration uint64 `json:"iteration"`
	OK        bool   `json:"ok"`
	Error     string `json:"error"`
}

// Observer fetches run state from the API.
type Observer struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewObserver creates an Observer targeting the given API base URL.
func NewObserver(baseURL string) *Observer {
	return &Observer{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Observe fetches status and recent checkpoints. A learner running without
// a history database has no checkpoint log; that is not an error.
func (o *Observer) Observe(ctx context.Context) (*RunSnapshot, error) {
	snap := &RunSnapshot{}

	if err := o.fetchJSON(ctx, "/api/v1/status", &snap.Status); err != nil {
		return nil, fmt.Errorf("fetch status: %w", err)
	}
	err := o.fetchJSON(ctx, "/api/v1/checkpoints?limit=5", &snap.Checkpoints)
	var se *statusError
	switch {
	case err == nil:
		snap.CheckpointLog = true
	case errors.As(err, &se) && se.code == http.StatusServiceUnavailable:
	default:
		return nil, fmt.Errorf("fetch checkpoints: %w", err)
	}

	return snap, nil
}

type statusError struct {
	path string
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("GET %s returned %d: %s", e.path, e.code, e.body)
}

// fetchJSON GETs a path and decodes the JSON response into target.
func (o *Observer) fetchJSON(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := o.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &statusError{path: path, code: resp.StatusCode, body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
