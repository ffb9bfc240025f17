package jobqueue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobType(t *testing.T) {
	tests := []struct {
		name     string
		jobType  JobType
		expected string
	}{
		{"Payout Execute", JobTypePayoutExecute, "payout_execute"},
		{"Event Cleanup", JobTypeEventCleanup, "event_cleanup"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(tt.jobType))
		})
	}
}

func TestJobStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   JobStatus
		expected string
	}{
		{"Pending", JobStatusPending, "pending"},
		{"Processing", JobStatusProcessing, "processing"},
		{"Completed", JobStatusCompleted, "completed"},
		{"Failed", JobStatusFailed, "failed"},
		{"Retrying", JobStatusRetrying, "retrying"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(tt.status))
		})
	}
}

func TestJob_IsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		job       *Job
		retryable bool
	}{
		{
			name:      "Failed job with retries remaining",
			job:       &Job{Status: JobStatusFailed, RetryCount: 1, MaxRetries: 3},
			retryable: true,
		},
		{
			name:      "Failed job with retries exhausted",
			job:       &Job{Status: JobStatusFailed, RetryCount: 3, MaxRetries: 3},
			retryable: false,
		},
		{
			name:      "Failed payout job never retries at queue level",
			job:       &Job{Type: JobTypePayoutExecute, Status: JobStatusFailed, RetryCount: 1, MaxRetries: 0},
			retryable: false,
		},
		{
			name:      "Completed job is not retryable",
			job:       &Job{Status: JobStatusCompleted, RetryCount: 0, MaxRetries: 3},
			retryable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, tt.job.IsRetryable())
		})
	}
}

func TestJobStateTransitions(t *testing.T) {
	job := &Job{Status: JobStatusPending}

	job.MarkAsProcessing()
	assert.Equal(t, JobStatusProcessing, job.Status)
	assert.NotNil(t, job.ProcessedAt)

	job.MarkAsFailed("provider down")
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "provider down", job.ErrorMsg)
	assert.Equal(t, 1, job.RetryCount)

	job.MarkAsRetrying()
	assert.Equal(t, JobStatusRetrying, job.Status)

	job.MarkAsCompleted()
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.NotNil(t, job.CompletedAt)
	assert.Empty(t, job.ErrorMsg)
}

func TestPayoutExecuteJobPayloadRoundTrip(t *testing.T) {
	payload := PayoutExecuteJobPayload{PayoutRequestID: 42}

	restored, err := PayoutExecuteJobPayloadFromMap(payload.ToMap())
	require.NoError(t, err)
	assert.Equal(t, uint(42), restored.PayoutRequestID)
}

func TestEventCleanupJobPayloadRoundTrip(t *testing.T) {
	payload := EventCleanupJobPayload{OlderThanMinutes: 1440}

	restored, err := EventCleanupJobPayloadFromMap(payload.ToMap())
	require.NoError(t, err)
	assert.Equal(t, 1440, restored.OlderThanMinutes)
}
