package scoring

import (
	"time"

	"github.com/google/uuid"
	"github.com/meridianpay/decision-service/internal/models"
)

// BuildPlan splits a granted amount into nearly-equal installments due every
// cfg.PlanIntervalDays starting from now. Integer division leaves a
// remainder; it is added to the final installment so the amounts always sum
// exactly to the granted amount. Only called for approved decisions with a
// positive granted amount.
func BuildPlan(decisionID, userID string, grantedCents int64, now time.Time, cfg Config) models.RepaymentPlan {
	plan := models.RepaymentPlan{
		ID:         uuid.NewString(),
		DecisionID: decisionID,
		UserID:     userID,
		TotalCents: grantedCents,
		CreatedAt:  now,
	}

	n := cfg.PlanInstallments
	base := grantedCents / int64(n)
	remainder := grantedCents % int64(n)

	start := truncateDay(now)
	for i := 0; i < n; i++ {
		amount := base
		if i == n-1 {
			amount += remainder
		}
		plan.Installments = append(plan.Installments, models.Installment{
			ID:          uuid.NewString(),
			PlanID:      plan.ID,
			DueDate:     start.AddDate(0, 0, cfg.PlanIntervalDays*(i+1)),
			AmountCents: amount,
			Status:      models.InstallmentScheduled,
		})
	}

	return plan
}
