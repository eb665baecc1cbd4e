package models

import "time"

// Event types published to the registration topic.
const (
	EventTypeRegistrationCompleted = "REGISTRATION_COMPLETED"
	EventTypePaymentFailed         = "PAYMENT_FAILED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// EmailRecipient is one confirmation email target.
type EmailRecipient struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// TeamTableRow is one line of the team confirmation email.
type TeamTableRow struct {
	TeamID    string `json:"team_id"`
	EventName string `json:"event_name"`
	TeamSize  string `json:"team_size"`
}

// RegistrationCompletedEvent is published after a registration commits.
// The email worker consumes it to send confirmation mail post-commit.
type RegistrationCompletedEvent struct {
	BaseEvent
	Kind            string            `json:"kind"`
	OrderID         string            `json:"order_id,omitempty"`
	RegistrationIDs []string          `json:"registration_ids"`
	Recipients      []EmailRecipient  `json:"recipients"`
	MergeData       map[string]string `json:"merge_data,omitempty"`
	TeamTable       []TeamTableRow    `json:"team_table,omitempty"`
}

// PaymentFailedEvent is published when a payment or its registration side
// effect reaches the failed terminal state.
type PaymentFailedEvent struct {
	BaseEvent
	Kind      string `json:"kind"`
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id,omitempty"`
	Reason    string `json:"reason"`
}
