package models

import (
	"time"
)

// Event is one append-only row in the per-recipient notification log.
// Sequence is assigned by the store (never by the caller) and is strictly
// increasing per recipient, so a resuming client can ask for everything
// after a sequence number. Rows are never mutated and only removed by
// age-based pruning.
type Event struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	RecipientID uint      `gorm:"not null;index:ux_events_recipient_sequence,unique,priority:1" json:"recipient_id"`
	Type        string    `gorm:"type:varchar(100);not null;index" json:"type"`
	Payload     string    `gorm:"type:longtext;not null" json:"payload"`
	Sequence    uint64    `gorm:"not null;index:ux_events_recipient_sequence,unique,priority:2" json:"sequence"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// EventCursor holds the last issued sequence number per recipient. It is
// bumped with an atomic upsert in the same transaction as the event insert,
// which is what keeps sequences gapless under concurrent publishers.
type EventCursor struct {
	RecipientID  uint   `gorm:"primaryKey" json:"recipient_id"`
	LastSequence uint64 `gorm:"not null;default:0" json:"last_sequence"`
}
