package models

import "time"

// Band is one of the seven risk tiers a score maps to.
type Band string

const (
	BandDenied   Band = "denied"
	BandEntry    Band = "entry"
	BandBasic    Band = "basic"
	BandStandard Band = "standard"
	BandEnhanced Band = "enhanced"
	BandPremium  Band = "premium"
	BandMaximum  Band = "maximum"
)

// Decision is the permanent audit record of one approve/deny outcome.
// Approved is true exactly when Band != BandDenied; CreditLimitCents is the
// band's limit when approved and 0 otherwise. Never mutated after creation.
type Decision struct {
	ID                 string         `json:"id"`
	UserID             string         `json:"user_id"`
	RequestedCents     int64          `json:"requested_cents"`
	Approved           bool           `json:"approved"`
	CreditLimitCents   int64          `json:"credit_limit_cents"`
	AmountGrantedCents int64          `json:"amount_granted_cents"`
	Band               Band           `json:"band"`
	Breakdown          ScoreBreakdown `json:"score_breakdown"`
	CreatedAt          time.Time      `json:"created_at"`
}
