package models

import (
	"time"

	"gorm.io/gorm"
)

// SurveyResponse records one completed response. It is written synchronously
// on submission; payout and notification fan-out happen afterwards and never
// mutate it.
type SurveyResponse struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	SurveyID       uint           `gorm:"not null;index" json:"survey_id"`
	Survey         Survey         `gorm:"foreignKey:SurveyID" json:"survey,omitempty"`
	RespondentID   uint           `gorm:"not null;index" json:"respondent_id"`
	Respondent     User           `gorm:"foreignKey:RespondentID" json:"respondent,omitempty"`
	RewardEligible bool           `gorm:"default:false" json:"reward_eligible"`
	RewardAmount   int64          `gorm:"not null;default:0" json:"reward_amount"`
	SubmittedAt    time.Time      `gorm:"autoCreateTime" json:"submitted_at"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}
