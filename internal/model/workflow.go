// internal/model/workflow.go
package model

// WorkflowState is the observed state of one discovery-workflow run. It
// extends the ingestion status set with a sentinel for runs the scheduler
// has no record of.
type WorkflowState string

const (
	WorkflowQueued      WorkflowState = "queued"
	WorkflowStarted     WorkflowState = "started"
	WorkflowSucceeded   WorkflowState = "succeeded"
	WorkflowFailed      WorkflowState = "failed"
	WorkflowCancelled   WorkflowState = "cancelled"
	WorkflowNonexistent WorkflowState = "nonexistent"
)

// WorkflowExecution is the tracking handle returned when a discovery
// workflow is triggered, and the shape of subsequent status queries.
type WorkflowExecution struct {
	ID     string        `json:"id"`     // Tracking id assigned at trigger time
	Status WorkflowState `json:"status"` // Most recently observed run state
}
