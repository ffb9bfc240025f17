package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/JakayaMrisho/SurveyPesa/app/models"
)

type gormPayoutRepository struct {
	db *gorm.DB
}

// NewPayoutRepository creates a payout repository backed by GORM.
func NewPayoutRepository(db *gorm.DB) PayoutRepository {
	return &gormPayoutRepository{db: db}
}

func (r *gormPayoutRepository) InitiatePending(req *models.PayoutRequest) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		// Lock any non-FAILED request for this response to serialize
		// duplicate triggers.
		var existing models.PayoutRequest
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("response_id = ? AND status <> ?", req.ResponseID, models.PayoutStatusFailed).
			First(&existing).Error
		if err == nil {
			return ErrDuplicatePayout
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		// Reserve the amount with a single conditional read-modify-write so
		// concurrent initiates against one survey cannot over-commit.
		res := tx.Exec(
			`UPDATE surveys
			    SET amount_disbursed = amount_disbursed + ?
			  WHERE id = ?
			    AND deleted_at IS NULL
			    AND (total_budget IS NULL OR amount_disbursed + ? <= total_budget)`,
			req.Amount, req.SurveyID, req.Amount,
		)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrBudgetExceeded
		}

		req.Status = models.PayoutStatusPending
		req.Attempt = 1
		return tx.Create(req).Error
	})
}

func (r *gormPayoutRepository) GetByID(id uint) (*models.PayoutRequest, error) {
	var req models.PayoutRequest
	if err := r.db.First(&req, id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *gormPayoutRepository) GetByResponseID(responseID uint) (*models.PayoutRequest, error) {
	var req models.PayoutRequest
	err := r.db.Where("response_id = ?", responseID).
		Order("id DESC").
		First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *gormPayoutRepository) IncrementAttempt(id uint, attempt int, lastError string) error {
	return r.db.Model(&models.PayoutRequest{}).
		Where("id = ? AND status = ?", id, models.PayoutStatusPending).
		Updates(map[string]interface{}{
			"attempt":    attempt,
			"last_error": lastError,
		}).Error
}

func (r *gormPayoutRepository) MarkSuccessful(id uint, providerRef string) error {
	now := time.Now()
	res := r.db.Model(&models.PayoutRequest{}).
		Where("id = ? AND status = ?", id, models.PayoutStatusPending).
		Updates(map[string]interface{}{
			"status":             models.PayoutStatusSuccessful,
			"provider_reference": providerRef,
			"last_error":         "",
			"completed_at":       &now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *gormPayoutRepository) MarkFailedAndRelease(req *models.PayoutRequest, lastError string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		res := tx.Model(&models.PayoutRequest{}).
			Where("id = ? AND status = ?", req.ID, models.PayoutStatusPending).
			Updates(map[string]interface{}{
				"status":       models.PayoutStatusFailed,
				"last_error":   lastError,
				"completed_at": &now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Already terminal; do not touch the budget a second time.
			return gorm.ErrRecordNotFound
		}

		// Compensate the optimistic reservation in the same transaction as
		// the terminal status write.
		return tx.Exec(
			`UPDATE surveys SET amount_disbursed = amount_disbursed - ? WHERE id = ?`,
			req.Amount, req.SurveyID,
		).Error
	})
}
