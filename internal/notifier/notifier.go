package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/meridianpay/decision-service/internal/metrics"
	"github.com/meridianpay/decision-service/internal/models"
)

// deliveryStore persists webhook delivery state between attempts.
type deliveryStore interface {
	CreateWebhookAttempt(ctx context.Context, attempt *models.WebhookDeliveryAttempt) error
	UpdateWebhookAttempt(ctx context.Context, attempt *models.WebhookDeliveryAttempt) error
}

// DecisionEvent is the payload delivered to the downstream ledger.
type DecisionEvent struct {
	EventType        string    `json:"event_type"`
	DecisionID       string    `json:"decision_id"`
	UserID           string    `json:"user_id"`
	Approved         bool      `json:"approved"`
	CreditLimitCents int64     `json:"credit_limit_cents"`
	CreatedAt        time.Time `json:"created_at"`
}

// Notifier delivers decision events to the downstream ledger with bounded
// retries and durable pending-state tracking. Delivery failure is recorded,
// never propagated to the decision that triggered it.
type Notifier struct {
	store     deliveryStore
	targetURL string
	secret    string
	client    *http.Client
	log       *logrus.Logger

	maxAttempts int
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

// NewNotifier initializes a notifier for the given ledger webhook target.
// The secret signs a per-delivery bearer token so the receiver can
// authenticate the call.
func NewNotifier(store deliveryStore, targetURL, secret string, log *logrus.Logger) *Notifier {
	return &Notifier{
		store:     store,
		targetURL: targetURL,
		secret:    secret,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		log:         log,
		maxAttempts: 3,
		baseBackoff: 200 * time.Millisecond,
		maxBackoff:  2 * time.Second,
	}
}

// NotifyDecision creates a durable delivery record for the decision and runs
// the retry loop. The record's id doubles as the delivery identifier sent on
// every attempt, so the receiver can deduplicate retried deliveries.
func (n *Notifier) NotifyDecision(ctx context.Context, decision *models.Decision) (*models.WebhookDeliveryAttempt, error) {
	event := DecisionEvent{
		EventType:        "decision.created",
		DecisionID:       decision.ID,
		UserID:           decision.UserID,
		Approved:         decision.Approved,
		CreditLimitCents: decision.CreditLimitCents,
		CreatedAt:        decision.CreatedAt,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to encode decision event: %w", err)
	}

	attempt := &models.WebhookDeliveryAttempt{
		ID:        uuid.NewString(),
		EventType: event.EventType,
		Payload:   payload,
		TargetURL: n.targetURL,
		Status:    models.WebhookPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := n.store.CreateWebhookAttempt(ctx, attempt); err != nil {
		return nil, err
	}

	n.Deliver(ctx, attempt)
	return attempt, nil
}

// Deliver runs the bounded retry loop for a pending delivery record until it
// is delivered or its attempt budget is exhausted. Also used by the
// background sweep to re-drive deliveries left pending.
func (n *Notifier) Deliver(ctx context.Context, attempt *models.WebhookDeliveryAttempt) {
	for attempt.Status == models.WebhookPending && attempt.Attempts < n.maxAttempts {
		if attempt.Attempts > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(n.backoff(attempt.Attempts)):
			}
		}

		delivered := n.attemptOnce(ctx, attempt)

		now := time.Now().UTC()
		attempt.Attempts++
		attempt.LastAttemptAt = &now
		if delivered {
			attempt.Status = models.WebhookDelivered
		} else if attempt.Attempts >= n.maxAttempts {
			attempt.Status = models.WebhookFailed
		}

		if err := n.store.UpdateWebhookAttempt(ctx, attempt); err != nil {
			n.log.Errorf("Failed to record webhook attempt %s: %v", attempt.ID, err)
		}
	}

	metrics.WebhookDeliveries.WithLabelValues(attempt.Status).Inc()
	if attempt.Status == models.WebhookFailed {
		n.log.WithFields(logrus.Fields{
			"delivery_id": attempt.ID,
			"attempts":    attempt.Attempts,
		}).Error("Webhook delivery exhausted retries")
	}
}

// attemptOnce performs a single outbound call. Only a confirmed 2xx response
// counts as delivered.
func (n *Notifier) attemptOnce(ctx context.Context, attempt *models.WebhookDeliveryAttempt) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, attempt.TargetURL, bytes.NewReader(attempt.Payload))
	if err != nil {
		n.log.Errorf("Failed to build webhook request: %v", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Delivery-ID", attempt.ID)

	token, err := n.signDelivery(attempt)
	if err != nil {
		n.log.Errorf("Failed to sign webhook delivery: %v", err)
		return false
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := n.client.Do(req)
	if err != nil {
		n.log.WithField("delivery_id", attempt.ID).Warnf("Webhook attempt failed: %v", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		n.log.WithFields(logrus.Fields{
			"delivery_id": attempt.ID,
			"status_code": resp.StatusCode,
		}).Warn("Webhook attempt rejected")
		return false
	}
	return true
}

// signDelivery issues a short-lived token bound to the delivery id, so the
// receiver can both authenticate the sender and deduplicate retries.
func (n *Notifier) signDelivery(attempt *models.WebhookDeliveryAttempt) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"delivery_id": attempt.ID,
		"event_type":  attempt.EventType,
		"exp":         time.Now().Add(5 * time.Minute).Unix(),
	})
	signed, err := token.SignedString([]byte(n.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign delivery token: %w", err)
	}
	return signed, nil
}

func (n *Notifier) backoff(attempts int) time.Duration {
	d := n.baseBackoff << (attempts - 1)
	if d > n.maxBackoff {
		d = n.maxBackoff
	}
	return d
}

// MaxAttempts exposes the retry budget for the pending-delivery sweep.
func (n *Notifier) MaxAttempts() int {
	return n.maxAttempts
}
