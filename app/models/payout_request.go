package models

import (
	"time"
)

// Payout statuses. SUCCESSFUL and FAILED are terminal; a request never
// transitions out of them.
const (
	PayoutStatusPending    = "PENDING"
	PayoutStatusSuccessful = "SUCCESSFUL"
	PayoutStatusFailed     = "FAILED"
)

// PayoutRequest is one disbursement bundle for a reward-eligible response.
// The idempotency reference is issued once and reused across every retry so
// the provider can recognize duplicate submissions. Rows are kept forever
// for audit and only mutated by the payout orchestrator.
type PayoutRequest struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	ResponseID           uint       `gorm:"not null;index" json:"response_id"`
	SurveyID             uint       `gorm:"not null;index" json:"survey_id"`
	RespondentID         uint       `gorm:"not null;index" json:"respondent_id"`
	RecipientPhone       string     `gorm:"type:varchar(20);not null" json:"recipient_phone"`
	Provider             string     `gorm:"type:varchar(20);not null" json:"provider"`
	Amount               int64      `gorm:"not null" json:"amount"`
	Currency             string     `gorm:"type:varchar(3);default:'UGX'" json:"currency"`
	IdempotencyReference string     `gorm:"type:varchar(64);not null;uniqueIndex" json:"idempotency_reference"`
	Attempt              int        `gorm:"not null;default:1" json:"attempt"`
	Status               string     `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	ProviderReference    string     `gorm:"type:varchar(100);default:''" json:"provider_reference"`
	LastError            string     `gorm:"type:text" json:"last_error,omitempty"`
	CompletedAt          *time.Time `gorm:"type:timestamp;default:null" json:"completed_at,omitempty"`
	CreatedAt            time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsTerminal reports whether the request reached a final state.
func (p *PayoutRequest) IsTerminal() bool {
	return p.Status == PayoutStatusSuccessful || p.Status == PayoutStatusFailed
}

// MarkSuccessful sets the terminal success state with the provider's
// settlement reference.
func (p *PayoutRequest) MarkSuccessful(providerRef string) {
	now := time.Now()
	p.Status = PayoutStatusSuccessful
	p.ProviderReference = providerRef
	p.LastError = ""
	p.CompletedAt = &now
}

// MarkFailed sets the terminal failure state with the last attempt's error.
func (p *PayoutRequest) MarkFailed(errMsg string) {
	now := time.Now()
	p.Status = PayoutStatusFailed
	p.LastError = errMsg
	p.CompletedAt = &now
}
