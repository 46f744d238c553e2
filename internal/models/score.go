package models

// ScoreComponent is one scored signal: the points it contributed and the raw
// metric that produced them.
type ScoreComponent struct {
	Points int     `json:"points"`
	Metric float64 `json:"metric"`
}

// ScoreBreakdown is the full derivation of one risk score. It is computed
// once per decision request and embedded in the decision record for audit.
// Total is always clamp(sum of the five components, 0, 100).
type ScoreBreakdown struct {
	AvgDailyBalance  ScoreComponent `json:"avg_daily_balance"`
	IncomeRatio      ScoreComponent `json:"income_ratio"`
	NSFCount         ScoreComponent `json:"nsf_count"`
	IncomeRegularity ScoreComponent `json:"income_regularity"`
	ThinFilePenalty  ScoreComponent `json:"thin_file_penalty"`

	// Raw metrics carried for audit and support tooling.
	NegativeBalanceDays int `json:"negative_balance_days"`
	TransactionCount    int `json:"transaction_count"`

	Total int `json:"total"`
}

// AvgDailyBalanceDollars converts the balance metric to dollars for API
// responses.
func (b ScoreBreakdown) AvgDailyBalanceDollars() float64 {
	return b.AvgDailyBalance.Metric / 100
}
