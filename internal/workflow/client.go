// internal/workflow/client.go
// Package workflow provides a client for the discovery scheduler's REST API.
// It triggers discovery runs for published datasets and reports their state.
package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/geostac/geostac-ingest-go/internal/model"
)

// Client for the discovery scheduler, an Airflow-compatible REST API.
// One scheduler DAG handles all discovery runs; each trigger becomes a
// dag run whose id doubles as the tracking id.
type Client struct {
	base  string       // Base URL of the scheduler API
	dagID string       // DAG that performs discovery
	token string       // Bearer token, empty disables the header
	hc    *http.Client // HTTP client with custom configuration
}

// New creates a scheduler client with the specified base URL, DAG id and
// bearer token. It configures appropriate timeouts for scheduler requests.
// Parameters:
//   - baseURL: Base URL of the scheduler API
//   - dagID: DAG id to trigger and query
//   - token: Bearer token for the Authorization header, may be empty
// Returns:
//   - *Client: Initialized scheduler client
func New(baseURL, dagID, token string) *Client {
	// Configure HTTP transport with connection timeouts
	transport := &http.Transport{
		DialContext: (&net.Dialer{Timeout: 2 * time.Second}).DialContext,
	}

	return &Client{
		base:  baseURL,
		dagID: dagID,
		token: token,
		hc:    &http.Client{Transport: transport, Timeout: 3 * time.Second},
	}
}

// triggerRequest is the dag-run creation payload.
type triggerRequest struct {
	DagRunID string              `json:"dag_run_id"`
	Conf     model.DiscoveryItem `json:"conf"`
}

// runResponse is the subset of a dag-run document the client reads.
type runResponse struct {
	State string `json:"state"`
}

// Trigger starts one discovery run for the given item and returns its
// tracking id and initial state.
// Parameters:
//   - ctx: Context for the request
//   - item: Discovery item passed to the run as its configuration
// Returns:
//   - model.WorkflowExecution: Tracking id and initial state
//   - error: Non-nil when the scheduler rejects the run
func (c *Client) Trigger(ctx context.Context, item model.DiscoveryItem) (model.WorkflowExecution, error) {
	runID := "ingest-" + uuid.NewString()

	body, err := json.Marshal(triggerRequest{DagRunID: runID, Conf: item})
	if err != nil {
		return model.WorkflowExecution{}, err
	}

	endpoint := fmt.Sprintf("%s/api/v1/dags/%s/dagRuns", c.base, c.dagID)
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(body))
	if err != nil {
		return model.WorkflowExecution{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.hc.Do(req)
	if err != nil {
		return model.WorkflowExecution{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return model.WorkflowExecution{}, fmt.Errorf("workflow trigger failed: %s", resp.Status)
	}

	var run runResponse
	if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
		return model.WorkflowExecution{}, err
	}
	state, err := mapRunState(run.State)
	if err != nil {
		return model.WorkflowExecution{}, err
	}
	return model.WorkflowExecution{ID: runID, Status: state}, nil
}

// Status reports the current state of a discovery run. A tracking id the
// scheduler has no record of maps to the nonexistent state, not an error.
// Parameters:
//   - ctx: Context for the request
//   - runID: Tracking id returned by Trigger
// Returns:
//   - model.WorkflowExecution: Tracking id and mapped run state
//   - error: Non-nil on transport failures or unrecognized states
func (c *Client) Status(ctx context.Context, runID string) (model.WorkflowExecution, error) {
	endpoint := fmt.Sprintf("%s/api/v1/dags/%s/dagRuns/%s", c.base, c.dagID, url.PathEscape(runID))
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return model.WorkflowExecution{}, err
	}
	c.authorize(req)

	resp, err := c.hc.Do(req)
	if err != nil {
		return model.WorkflowExecution{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var run runResponse
		if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
			return model.WorkflowExecution{}, err
		}
		state, err := mapRunState(run.State)
		if err != nil {
			return model.WorkflowExecution{}, err
		}
		return model.WorkflowExecution{ID: runID, Status: state}, nil
	case http.StatusNotFound:
		return model.WorkflowExecution{ID: runID, Status: model.WorkflowNonexistent}, nil
	default:
		return model.WorkflowExecution{}, fmt.Errorf("workflow status failed: %s", resp.Status)
	}
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// mapRunState converts a scheduler run state to a workflow state.
// Scheduler states differ slightly from ingestion statuses. An empty
// state means the run was accepted but not yet reported on.
func mapRunState(s string) (model.WorkflowState, error) {
	switch s {
	case "success":
		return model.WorkflowSucceeded, nil
	case "failed":
		return model.WorkflowFailed, nil
	case "running":
		return model.WorkflowStarted, nil
	case "queued":
		return model.WorkflowQueued, nil
	case "":
		return model.WorkflowStarted, nil
	default:
		return "", fmt.Errorf("unrecognized run state %q", s)
	}
}
