package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypePayoutExecute JobType = "payout_execute"
	JobTypeEventCleanup  JobType = "event_cleanup"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents a background job
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

// PayoutExecuteJobPayload identifies the payout request to drive to a
// terminal state. The orchestrator owns the attempt/retry cycle inside the
// job, so payout jobs carry MaxRetries 0 at the queue level: re-running a
// half-finished payout job would race the sequential-attempt guarantee.
type PayoutExecuteJobPayload struct {
	PayoutRequestID uint `json:"payout_request_id"`
}

// ToMap converts the payload to a map for storage
func (p PayoutExecuteJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"payout_request_id": p.PayoutRequestID,
	}
}

// PayoutExecuteJobPayloadFromMap creates a payload from a map
func PayoutExecuteJobPayloadFromMap(data map[string]interface{}) (*PayoutExecuteJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload PayoutExecuteJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// EventCleanupJobPayload prunes the event log down to the retention window.
type EventCleanupJobPayload struct {
	OlderThanMinutes int `json:"older_than_minutes"`
}

// ToMap converts the payload to a map for storage
func (p EventCleanupJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"older_than_minutes": p.OlderThanMinutes,
	}
}

// EventCleanupJobPayloadFromMap creates a payload from a map
func EventCleanupJobPayloadFromMap(data map[string]interface{}) (*EventCleanupJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload EventCleanupJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed updates the job status to failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

// MarkAsRetrying updates the job status to retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}
