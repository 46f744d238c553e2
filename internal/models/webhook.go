package models

import "time"

// Webhook delivery statuses. Transitions are forward-only:
// pending -> delivered or failed.
const (
	WebhookPending   = "pending"
	WebhookDelivered = "delivered"
	WebhookFailed    = "failed"
)

// WebhookDeliveryAttempt tracks one outbound decision notification. It is
// independent state about communicating a decision; its failure never alters
// the decision itself. The record is never deleted, only transitioned.
type WebhookDeliveryAttempt struct {
	ID            string     `json:"id"`
	EventType     string     `json:"event_type"`
	Payload       []byte     `json:"payload"`
	TargetURL     string     `json:"target_url"`
	Status        string     `json:"status"`
	Attempts      int        `json:"attempts"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
