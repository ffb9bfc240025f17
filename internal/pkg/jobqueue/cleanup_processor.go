package jobqueue

import (
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/JakayaMrisho/SurveyPesa/internal/pkg/eventlog"
)

// processEventCleanupJob prunes notification events past the retention window.
func (q *Queue) processEventCleanupJob(job *Job) error {
	payload, err := EventCleanupJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid event cleanup payload: %w", err)
	}
	if q.deps.Events == nil {
		return fmt.Errorf("event cleanup not configured")
	}

	minutes := payload.OlderThanMinutes
	if minutes <= 0 {
		minutes = eventlog.DefaultRetentionMinutes
	}

	deleted := q.deps.Events.Cleanup(minutes)
	log.Infof("[JobQueue] Event cleanup removed %d events older than %d minutes", deleted, minutes)
	return nil
}
