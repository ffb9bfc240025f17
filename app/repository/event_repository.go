package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/JakayaMrisho/SurveyPesa/app/models"
)

type gormEventRepository struct {
	db *gorm.DB
}

// NewEventRepository creates an event log repository backed by GORM.
func NewEventRepository(db *gorm.DB) EventRepository {
	return &gormEventRepository{db: db}
}

func (r *gormEventRepository) Append(recipientID uint, eventType string, payload string) (*models.Event, error) {
	var ev *models.Event
	err := r.db.Transaction(func(tx *gorm.DB) error {
		// The cursor upsert takes a row lock, serializing concurrent
		// publishers to the same recipient so sequences stay gapless.
		if err := tx.Exec(
			`INSERT INTO event_cursors (recipient_id, last_sequence)
			 VALUES (?, 1)
			 ON DUPLICATE KEY UPDATE last_sequence = last_sequence + 1`,
			recipientID,
		).Error; err != nil {
			return err
		}

		var cursor models.EventCursor
		if err := tx.Where("recipient_id = ?", recipientID).First(&cursor).Error; err != nil {
			return err
		}

		e := models.Event{
			RecipientID: recipientID,
			Type:        eventType,
			Payload:     payload,
			Sequence:    cursor.LastSequence,
		}
		if err := tx.Create(&e).Error; err != nil {
			return err
		}
		ev = &e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}

func (r *gormEventRepository) ListByRecipient(recipientID uint, afterSequence uint64, limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	var events []models.Event
	err := r.db.Where("recipient_id = ? AND sequence > ?", recipientID, afterSequence).
		Order("sequence ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (r *gormEventRepository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	res := r.db.Where("created_at < ?", cutoff).Delete(&models.Event{})
	return res.RowsAffected, res.Error
}
