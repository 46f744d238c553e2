package models

import "time"

// Installment statuses. Transitions are forward-only:
// scheduled -> pending -> paid or missed.
const (
	InstallmentScheduled = "scheduled"
	InstallmentPending   = "pending"
	InstallmentPaid      = "paid"
	InstallmentMissed    = "missed"
)

// Installment is a single scheduled repayment within a plan.
type Installment struct {
	ID          string    `json:"id"`
	PlanID      string    `json:"plan_id"`
	DueDate     time.Time `json:"due_date"`
	AmountCents int64     `json:"amount_cents"`
	Status      string    `json:"status"`
}

// RepaymentPlan is created only for approved decisions with a positive
// granted amount. Installment amounts always sum exactly to TotalCents and
// due dates strictly increase.
type RepaymentPlan struct {
	ID           string        `json:"id"`
	DecisionID   string        `json:"decision_id"`
	UserID       string        `json:"user_id"`
	TotalCents   int64         `json:"total_cents"`
	CreatedAt    time.Time     `json:"created_at"`
	Installments []Installment `json:"installments"`
}
