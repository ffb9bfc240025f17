package jobqueue

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/JakayaMrisho/SurveyPesa/app/repository"
	"github.com/JakayaMrisho/SurveyPesa/internal/pkg/eventlog"
	"github.com/JakayaMrisho/SurveyPesa/internal/pkg/payout"
)

// Deps are the collaborators the job processors need. The queue stays a dumb
// transport; all domain behavior lives behind these.
type Deps struct {
	Orchestrator *payout.Orchestrator
	Payouts      repository.PayoutRepository
	Events       *eventlog.Service
}

// processPayoutExecuteJob loads the payout request and hands it to the
// orchestrator. A request already in a terminal state is a no-op, so a job
// recovered by the sweeper after a crash-during-finalize cannot double-pay.
func (q *Queue) processPayoutExecuteJob(ctx context.Context, job *Job) error {
	payload, err := PayoutExecuteJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid payout job payload: %w", err)
	}
	if q.deps.Orchestrator == nil || q.deps.Payouts == nil {
		return fmt.Errorf("payout processing not configured")
	}

	req, err := q.deps.Payouts.GetByID(payload.PayoutRequestID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			log.Warnf("[JobQueue] Payout request %d no longer exists, dropping job", payload.PayoutRequestID)
			return nil
		}
		return fmt.Errorf("load payout request %d: %w", payload.PayoutRequestID, err)
	}

	if req.IsTerminal() {
		log.Infof("[JobQueue] Payout request %d already %s, skipping", req.ID, req.Status)
		return nil
	}

	return q.deps.Orchestrator.Execute(ctx, req)
}
