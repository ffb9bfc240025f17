package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/JakayaMrisho/SurveyPesa/app/models"
)

type gormWebhookRepository struct {
	db *gorm.DB
}

// NewWebhookRepository creates a webhook registration repository backed by GORM.
func NewWebhookRepository(db *gorm.DB) WebhookRepository {
	return &gormWebhookRepository{db: db}
}

func (r *gormWebhookRepository) Create(reg *models.WebhookRegistration) error {
	return r.db.Create(reg).Error
}

func (r *gormWebhookRepository) GetByID(id uint) (*models.WebhookRegistration, error) {
	var reg models.WebhookRegistration
	if err := r.db.First(&reg, id).Error; err != nil {
		return nil, err
	}
	return &reg, nil
}

func (r *gormWebhookRepository) ListBySurvey(surveyID uint) ([]models.WebhookRegistration, error) {
	var regs []models.WebhookRegistration
	err := r.db.Where("survey_id = ?", surveyID).Find(&regs).Error
	return regs, err
}

func (r *gormWebhookRepository) ListActiveBySurvey(surveyID uint) ([]models.WebhookRegistration, error) {
	var regs []models.WebhookRegistration
	err := r.db.Where("survey_id = ? AND is_active = ?", surveyID, true).Find(&regs).Error
	return regs, err
}

func (r *gormWebhookRepository) RecordSuccess(id uint, status int, firedAt time.Time) error {
	return r.db.Model(&models.WebhookRegistration{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"consecutive_failures": 0,
			"last_status":          status,
			"last_fired_at":        firedAt,
		}).Error
}

func (r *gormWebhookRepository) RecordFailure(id uint, status int, firedAt time.Time, threshold int) (bool, error) {
	// is_active is assigned before the counter increment so the IF sees the
	// pre-increment value; MySQL evaluates SET clauses left to right.
	err := r.db.Exec(
		`UPDATE webhook_registrations
		    SET is_active = IF(consecutive_failures + 1 >= ?, FALSE, is_active),
		        consecutive_failures = consecutive_failures + 1,
		        last_status = ?,
		        last_fired_at = ?
		  WHERE id = ?`,
		threshold, status, firedAt, id,
	).Error
	if err != nil {
		return false, err
	}

	var reg models.WebhookRegistration
	if err := r.db.Select("is_active").First(&reg, id).Error; err != nil {
		return false, err
	}
	return !reg.IsActive, nil
}

func (r *gormWebhookRepository) Activate(id uint) error {
	return r.db.Model(&models.WebhookRegistration{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_active":            true,
			"consecutive_failures": 0,
		}).Error
}
