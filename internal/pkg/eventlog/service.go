// Package eventlog is the internal per-recipient notification bus: a
// durable, ordered, append-only record of "something happened", decoupled
// from whatever transport delivers it to clients.
package eventlog

import (
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/JakayaMrisho/SurveyPesa/app/models"
	"github.com/JakayaMrisho/SurveyPesa/app/repository"
)

// DefaultRetentionMinutes is the pruning cutoff used when the caller does
// not pass one.
const DefaultRetentionMinutes = 24 * 60

// PublishedEvent is the caller-visible result of a successful append.
type PublishedEvent struct {
	ID       uint   `json:"id"`
	Sequence uint64 `json:"sequence"`
}

// Service appends to and reads from the event log. Publishing is always
// best-effort relative to the primary action it accompanies: append failures
// are logged and swallowed, never surfaced.
type Service struct {
	events repository.EventRepository
}

func NewService(events repository.EventRepository) *Service {
	return &Service{events: events}
}

// Publish appends one event for one recipient. Returns nil when the write
// fails or the payload cannot be encoded; the caller must not treat nil as
// an error.
func (s *Service) Publish(recipientID uint, eventType string, payload interface{}) *PublishedEvent {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Errorf("[EventLog] Dropping event %s for recipient %d: payload not encodable: %v", eventType, recipientID, err)
		return nil
	}

	ev, err := s.events.Append(recipientID, eventType, string(raw))
	if err != nil {
		log.Errorf("[EventLog] Failed to append event %s for recipient %d: %v", eventType, recipientID, err)
		return nil
	}
	return &PublishedEvent{ID: ev.ID, Sequence: ev.Sequence}
}

// PublishToMany appends the same event for several recipients. Partial
// failures are logged per recipient and never affect the others or the
// primary action.
func (s *Service) PublishToMany(recipientIDs []uint, eventType string, payload interface{}) []*PublishedEvent {
	published := make([]*PublishedEvent, 0, len(recipientIDs))
	seen := make(map[uint]struct{}, len(recipientIDs))
	for _, id := range recipientIDs {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if ev := s.Publish(id, eventType, payload); ev != nil {
			published = append(published, ev)
		}
	}
	return published
}

// GetEventsForRecipient returns the recipient's events after the given
// sequence number, oldest first.
func (s *Service) GetEventsForRecipient(recipientID uint, afterSequence uint64, limit int) ([]models.Event, error) {
	return s.events.ListByRecipient(recipientID, afterSequence, limit)
}

// Cleanup deletes events older than the cutoff. It runs opportunistically
// (on subscriber connections and from the background queue) so the log
// self-trims without a dedicated scheduler.
func (s *Service) Cleanup(olderThanMinutes int) int64 {
	if olderThanMinutes <= 0 {
		olderThanMinutes = DefaultRetentionMinutes
	}
	cutoff := time.Now().Add(-time.Duration(olderThanMinutes) * time.Minute)

	deleted, err := s.events.DeleteOlderThan(cutoff)
	if err != nil {
		log.Errorf("[EventLog] Cleanup failed: %v", err)
		return 0
	}
	if deleted > 0 {
		log.Infof("[EventLog] Pruned %d events older than %d minutes", deleted, olderThanMinutes)
	}
	return deleted
}
