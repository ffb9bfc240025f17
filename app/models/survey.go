package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	SurveyStatusDraft  = "draft"
	SurveyStatusActive = "active"
	SurveyStatusClosed = "closed"
)

// Survey is the owning campaign for responses and payouts. Budget fields are
// in the smallest currency unit; TotalBudget == nil means unlimited.
// AmountDisbursed includes optimistic reservations for PENDING payouts and is
// only ever changed through the atomic reserve/release statements in the
// survey repository.
type Survey struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	OwnerID         uint           `gorm:"not null;index" json:"owner_id"`
	Owner           User           `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
	Title           string         `gorm:"type:varchar(200);not null" json:"title" validate:"required,min=3,max=200"`
	Status          string         `gorm:"type:varchar(20);default:'draft';index" json:"status" validate:"oneof=draft active closed"`
	RewardAmount    int64          `gorm:"not null;default:0" json:"reward_amount" validate:"gte=0"`
	Currency        string         `gorm:"type:varchar(3);default:'UGX'" json:"currency"`
	TotalBudget     *int64         `gorm:"default:null" json:"total_budget,omitempty"`
	AmountDisbursed int64          `gorm:"not null;default:0" json:"amount_disbursed"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

// HasBudgetFor reports whether amount still fits into the remaining budget.
// Callers must not use this as the reservation itself; the repository's
// conditional UPDATE is the authoritative check.
func (s *Survey) HasBudgetFor(amount int64) bool {
	if s.TotalBudget == nil {
		return true
	}
	return s.AmountDisbursed+amount <= *s.TotalBudget
}

// RemainingBudget returns the unreserved budget, or nil when unlimited.
func (s *Survey) RemainingBudget() *int64 {
	if s.TotalBudget == nil {
		return nil
	}
	rest := *s.TotalBudget - s.AmountDisbursed
	if rest < 0 {
		rest = 0
	}
	return &rest
}

// IsAcceptingResponses reports whether new responses may earn rewards.
func (s *Survey) IsAcceptingResponses() bool {
	return s.Status == SurveyStatusActive
}
