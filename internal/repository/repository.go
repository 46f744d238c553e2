package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/meridianpay/decision-service/internal/models"
)

// ErrNotFound is returned when a lookup matches no rows.
var ErrNotFound = errors.New("not found")

// Repository provides database operations
type Repository struct {
	db *sql.DB
}

// NewRepository initializes a new repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// SaveDecision persists a decision and, when present, its repayment plan and
// installments as one transaction. A partial write must never leave an
// approved decision without its plan, so any failure rolls back the whole
// unit.
func (r *Repository) SaveDecision(ctx context.Context, decision *models.Decision, plan *models.RepaymentPlan) error {
	breakdown, err := json.Marshal(decision.Breakdown)
	if err != nil {
		return fmt.Errorf("failed to encode score breakdown: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO decisions (id, user_id, requested_cents, approved, credit_limit_cents,
			amount_granted_cents, score, band, breakdown, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		decision.ID, decision.UserID, decision.RequestedCents, decision.Approved,
		decision.CreditLimitCents, decision.AmountGrantedCents, decision.Breakdown.Total,
		string(decision.Band), breakdown, decision.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert decision: %w", err)
	}

	if plan != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO repayment_plans (id, decision_id, user_id, total_cents, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
			plan.ID, plan.DecisionID, plan.UserID, plan.TotalCents, plan.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert plan: %w", err)
		}

		for _, inst := range plan.Installments {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO installments (id, plan_id, due_date, amount_cents, status)
				VALUES ($1, $2, $3, $4, $5)`,
				inst.ID, inst.PlanID, inst.DueDate, inst.AmountCents, inst.Status)
			if err != nil {
				return fmt.Errorf("failed to insert installment: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit decision: %w", err)
	}
	return nil
}

// GetPlan retrieves a repayment plan with its installments ordered by due
// date.
func (r *Repository) GetPlan(ctx context.Context, planID string) (*models.RepaymentPlan, error) {
	plan := &models.RepaymentPlan{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, decision_id, user_id, total_cents, created_at
		FROM repayment_plans
		WHERE id = $1`, planID).
		Scan(&plan.ID, &plan.DecisionID, &plan.UserID, &plan.TotalCents, &plan.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find plan: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, plan_id, due_date, amount_cents, status
		FROM installments
		WHERE plan_id = $1
		ORDER BY due_date`, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to list installments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var inst models.Installment
		if err := rows.Scan(&inst.ID, &inst.PlanID, &inst.DueDate, &inst.AmountCents, &inst.Status); err != nil {
			return nil, fmt.Errorf("failed to scan installment: %w", err)
		}
		plan.Installments = append(plan.Installments, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate installments: %w", err)
	}
	return plan, nil
}

// GetDecisionHistory returns all decisions for a user, newest first.
func (r *Repository) GetDecisionHistory(ctx context.Context, userID string) ([]models.Decision, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, requested_cents, approved, credit_limit_cents,
			amount_granted_cents, band, breakdown, created_at
		FROM decisions
		WHERE user_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	defer rows.Close()

	var decisions []models.Decision
	for rows.Next() {
		var d models.Decision
		var breakdown []byte
		if err := rows.Scan(&d.ID, &d.UserID, &d.RequestedCents, &d.Approved, &d.CreditLimitCents,
			&d.AmountGrantedCents, &d.Band, &breakdown, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		if err := json.Unmarshal(breakdown, &d.Breakdown); err != nil {
			return nil, fmt.Errorf("failed to decode score breakdown: %w", err)
		}
		decisions = append(decisions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate decisions: %w", err)
	}
	return decisions, nil
}

// CreateWebhookAttempt inserts a new delivery record in pending status.
func (r *Repository) CreateWebhookAttempt(ctx context.Context, attempt *models.WebhookDeliveryAttempt) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO webhook_deliveries (id, event_type, payload, target_url, status, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		attempt.ID, attempt.EventType, attempt.Payload, attempt.TargetURL,
		attempt.Status, attempt.Attempts, attempt.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert webhook delivery: %w", err)
	}
	return nil
}

// UpdateWebhookAttempt records the result of one delivery attempt. Records
// are only ever transitioned forward, never deleted.
func (r *Repository) UpdateWebhookAttempt(ctx context.Context, attempt *models.WebhookDeliveryAttempt) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE webhook_deliveries
		SET status = $2, attempts = $3, last_attempt_at = $4
		WHERE id = $1`,
		attempt.ID, attempt.Status, attempt.Attempts, attempt.LastAttemptAt)
	if err != nil {
		return fmt.Errorf("failed to update webhook delivery: %w", err)
	}
	return nil
}

// ListPendingWebhooks returns deliveries still pending with attempts left in
// their budget, oldest first.
func (r *Repository) ListPendingWebhooks(ctx context.Context, maxAttempts int) ([]models.WebhookDeliveryAttempt, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, event_type, payload, target_url, status, attempts, last_attempt_at, created_at
		FROM webhook_deliveries
		WHERE status = $1 AND attempts < $2
		ORDER BY created_at`, models.WebhookPending, maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending webhooks: %w", err)
	}
	defer rows.Close()

	var attempts []models.WebhookDeliveryAttempt
	for rows.Next() {
		var a models.WebhookDeliveryAttempt
		if err := rows.Scan(&a.ID, &a.EventType, &a.Payload, &a.TargetURL,
			&a.Status, &a.Attempts, &a.LastAttemptAt, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan webhook delivery: %w", err)
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate webhook deliveries: %w", err)
	}
	return attempts, nil
}

// MarkInstallmentsPending moves scheduled installments coming due by the
// given date into pending. Forward-only transition.
func (r *Repository) MarkInstallmentsPending(ctx context.Context, dueBy time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE installments
		SET status = $1
		WHERE status = $2 AND due_date <= $3`,
		models.InstallmentPending, models.InstallmentScheduled, dueBy)
	if err != nil {
		return 0, fmt.Errorf("failed to mark installments pending: %w", err)
	}
	return res.RowsAffected()
}

// MarkInstallmentsMissed moves pending installments past their due date into
// missed. Forward-only transition.
func (r *Repository) MarkInstallmentsMissed(ctx context.Context, asOf time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE installments
		SET status = $1
		WHERE status = $2 AND due_date < $3`,
		models.InstallmentMissed, models.InstallmentPending, asOf)
	if err != nil {
		return 0, fmt.Errorf("failed to mark installments missed: %w", err)
	}
	return res.RowsAffected()
}

// DueInstallment is one upcoming repayment for the operations digest.
type DueInstallment struct {
	UserID      string
	PlanID      string
	DueDate     time.Time
	AmountCents int64
	Status      string
}

// ListInstallmentsDueBy returns unpaid installments due on or before the
// given date, joined with their plan for the owning user.
func (r *Repository) ListInstallmentsDueBy(ctx context.Context, dueBy time.Time) ([]DueInstallment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.user_id, i.plan_id, i.due_date, i.amount_cents, i.status
		FROM installments i
		JOIN repayment_plans p ON p.id = i.plan_id
		WHERE i.status IN ($1, $2) AND i.due_date <= $3
		ORDER BY i.due_date`,
		models.InstallmentScheduled, models.InstallmentPending, dueBy)
	if err != nil {
		return nil, fmt.Errorf("failed to list due installments: %w", err)
	}
	defer rows.Close()

	var due []DueInstallment
	for rows.Next() {
		var d DueInstallment
		if err := rows.Scan(&d.UserID, &d.PlanID, &d.DueDate, &d.AmountCents, &d.Status); err != nil {
			return nil, fmt.Errorf("failed to scan due installment: %w", err)
		}
		due = append(due, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate due installments: %w", err)
	}
	return due, nil
}
