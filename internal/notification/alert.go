package notification

import (
	"time"

	"voicelog-backend/internal/reminder/domain"
)

// EventReminderAlert is the only event type the engine emits
const EventReminderAlert = "reminder_alert"

// Alert is the wire payload sent to live clients, push subscribers and the broker
type Alert struct {
	Type     string        `json:"type"`
	Reminder AlertReminder `json:"reminder"`
}

type AlertReminder struct {
	ID           string    `json:"id"`
	Text         string    `json:"text"`
	DueAt        time.Time `json:"dueAt"`
	VoiceEnabled bool      `json:"voiceEnabled"`
	RepeatCount  int       `json:"repeatCount"`
}

// NewAlert builds the payload for r
func NewAlert(r *domain.Reminder) Alert {
	return Alert{
		Type: EventReminderAlert,
		Reminder: AlertReminder{
			ID:           r.ID,
			Text:         r.Text,
			DueAt:        r.DueAt,
			VoiceEnabled: r.VoiceEnabled,
			RepeatCount:  r.RepeatCount,
		},
	}
}
