package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// WebhookLastStatus sentinels for deliveries that never produced an HTTP
// status code.
const (
	WebhookStatusTimeout      = 408
	WebhookStatusNetworkError = 0
)

// WebhookRegistration is an externally registered endpoint subscribed to
// events of one survey. The dispatcher is the only writer of the delivery
// bookkeeping fields; owners create registrations and may re-enable them
// after auto-deactivation.
type WebhookRegistration struct {
	ID                  uint           `gorm:"primaryKey" json:"id"`
	SurveyID            uint           `gorm:"not null;index" json:"survey_id"`
	EndpointURL         string         `gorm:"type:varchar(500);not null" json:"endpoint_url" validate:"required,url"`
	Secret              string         `gorm:"type:varchar(200);default:''" json:"-"`
	SubscribedEvents    string         `gorm:"type:text;not null" json:"subscribed_events"`
	IsActive            bool           `gorm:"default:true;index" json:"is_active"`
	LastFiredAt         *time.Time     `gorm:"type:timestamp;default:null" json:"last_fired_at,omitempty"`
	LastStatus          int            `gorm:"default:0" json:"last_status"`
	ConsecutiveFailures int            `gorm:"default:0" json:"consecutive_failures"`
	CreatedAt           time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt           gorm.DeletedAt `gorm:"index" json:"-"`
}

// SubscribesTo reports whether the registration wants the given dot-notation
// event type. SubscribedEvents is stored as a comma-separated list; "*"
// subscribes to everything.
func (w *WebhookRegistration) SubscribesTo(eventType string) bool {
	want := strings.TrimSpace(eventType)
	if want == "" {
		return false
	}
	for _, raw := range strings.Split(w.SubscribedEvents, ",") {
		sub := strings.TrimSpace(raw)
		if sub == "*" || sub == want {
			return true
		}
	}
	return false
}

// SetSubscribedEvents normalizes and stores the subscribed event type set.
func (w *WebhookRegistration) SetSubscribedEvents(types []string) {
	cleaned := make([]string, 0, len(types))
	seen := make(map[string]struct{}, len(types))
	for _, t := range types {
		s := strings.TrimSpace(t)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		cleaned = append(cleaned, s)
	}
	w.SubscribedEvents = strings.Join(cleaned, ",")
}

// HasSecret reports whether deliveries to this registration are signed.
func (w *WebhookRegistration) HasSecret() bool {
	return strings.TrimSpace(w.Secret) != ""
}
