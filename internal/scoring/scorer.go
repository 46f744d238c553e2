package scoring

import (
	"math"
	"sort"
	"time"

	"github.com/meridianpay/decision-service/internal/models"
)

// ratioCap bounds the reported income ratio. A history with credits and no
// debits has no meaningful quotient, so it is reported at the cap and scored
// at the top ratio tier.
const ratioCap = 99.99

// Score computes the risk score breakdown for a transaction history. It is a
// pure function: no I/O, no mutable state, deterministic for a given history,
// reference time and config.
//
// An empty history (or one with no events inside the analysis window) short-
// circuits to a zero total with every component at its minimum, so that a
// legitimately empty file scores deterministically instead of tripping over
// undefined ratios.
func Score(history []models.TransactionEvent, now time.Time, cfg Config) models.ScoreBreakdown {
	events := filterWindow(history, now, cfg.WindowDays)
	if len(events) == 0 {
		return models.ScoreBreakdown{
			ThinFilePenalty: models.ScoreComponent{Points: cfg.ThinFileFloorPenalty, Metric: 0},
			Total:           0,
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})

	running := reconstructRunningBalances(events)

	avgBalance := avgDailyBalance(events, running)
	ratio := incomeRatio(events)
	nsf := countNSFEvents(events, running)
	regularity := incomeRegularity(events, cfg.IncomeFloorCents)

	breakdown := models.ScoreBreakdown{
		AvgDailyBalance:     models.ScoreComponent{Points: scoreBalance(avgBalance, cfg), Metric: avgBalance},
		IncomeRatio:         models.ScoreComponent{Points: scoreRatio(events, cfg), Metric: ratio},
		NSFCount:            models.ScoreComponent{Points: scoreNSF(nsf, cfg), Metric: float64(nsf)},
		IncomeRegularity:    models.ScoreComponent{Points: scoreRegularity(regularity, cfg), Metric: regularity},
		ThinFilePenalty:     models.ScoreComponent{Points: thinFilePenalty(len(events), cfg), Metric: float64(len(events))},
		NegativeBalanceDays: countNegativeBalanceDays(events, running),
		TransactionCount:    len(events),
	}

	sum := breakdown.AvgDailyBalance.Points +
		breakdown.IncomeRatio.Points +
		breakdown.NSFCount.Points +
		breakdown.IncomeRegularity.Points +
		breakdown.ThinFilePenalty.Points
	breakdown.Total = clamp(sum, 0, 100)

	return breakdown
}

// filterWindow keeps events whose timestamp falls inside the trailing
// analysis window.
func filterWindow(history []models.TransactionEvent, now time.Time, windowDays int) []models.TransactionEvent {
	cutoff := now.AddDate(0, 0, -windowDays)
	out := make([]models.TransactionEvent, 0, len(history))
	for _, ev := range history {
		if !ev.Timestamp.Before(cutoff) {
			out = append(out, ev)
		}
	}
	return out
}

// reconstructRunningBalances derives the balance after each event. When the
// provider reports balance_after it anchors the series; otherwise the balance
// is the prior running balance plus the signed amount. Index i holds the
// balance immediately after events[i].
func reconstructRunningBalances(events []models.TransactionEvent) []int64 {
	running := make([]int64, len(events))
	var balance int64
	for i, ev := range events {
		if ev.BalanceAfterCents != nil {
			balance = *ev.BalanceAfterCents
		} else {
			balance += ev.AmountCents
		}
		running[i] = balance
	}
	return running
}

// avgDailyBalance computes the mean of one balance per calendar day between
// the first and last event, carrying the last known closing balance across
// days with no transactions. The day array is built once per request and
// discarded after scoring.
func avgDailyBalance(events []models.TransactionEvent, running []int64) float64 {
	closing := make(map[string]int64)
	for i, ev := range events {
		closing[dayKey(ev.Timestamp)] = running[i]
	}

	start := truncateDay(events[0].Timestamp)
	end := truncateDay(events[len(events)-1].Timestamp)

	var total int64
	var days int64
	last := running[0]
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if bal, ok := closing[dayKey(d)]; ok {
			last = bal
		}
		total += last
		days++
	}
	if days == 0 {
		return 0
	}
	return float64(total) / float64(days)
}

// incomeRatio reports total credits over total debits, rounded to two
// decimals and capped. With zero debits the ratio is reported at the cap.
func incomeRatio(events []models.TransactionEvent) float64 {
	credits, debits := sumFlows(events)
	if debits == 0 {
		if credits == 0 {
			return 0
		}
		return ratioCap
	}
	ratio := float64(credits) / float64(debits)
	if ratio > ratioCap {
		return ratioCap
	}
	return math.Round(ratio*100) / 100
}

func sumFlows(events []models.TransactionEvent) (credits, debits int64) {
	for _, ev := range events {
		if ev.AmountCents > 0 {
			credits += ev.AmountCents
		} else {
			debits += -ev.AmountCents
		}
	}
	return credits, debits
}

// countNSFEvents counts overdraft occurrences: events the provider flagged
// as NSF, plus debits whose running balance crosses from non-negative to
// negative. A single event is counted at most once.
func countNSFEvents(events []models.TransactionEvent, running []int64) int {
	count := 0
	var prev int64
	for i, ev := range events {
		switch {
		case ev.NSF:
			count++
		case ev.AmountCents < 0 && i > 0 && prev >= 0 && running[i] < 0:
			count++
		}
		prev = running[i]
	}
	return count
}

// countNegativeBalanceDays counts distinct calendar days on which any event
// left the balance negative. Tracked for audit; not scored.
func countNegativeBalanceDays(events []models.TransactionEvent, running []int64) int {
	days := make(map[string]struct{})
	for i, ev := range events {
		if running[i] < 0 {
			days[dayKey(ev.Timestamp)] = struct{}{}
		}
	}
	return len(days)
}

// incomeRegularity measures how predictable qualifying deposits are, as
// 1 - coefficient_of_variation of the day gaps between deposit dates,
// clamped to [0,1]. Fewer than two qualifying deposit dates yields 0: an
// undefined pattern is treated as irregular, not skipped.
func incomeRegularity(events []models.TransactionEvent, floorCents int64) float64 {
	seen := make(map[string]struct{})
	var dates []time.Time
	for _, ev := range events {
		if ev.AmountCents < floorCents {
			continue
		}
		key := dayKey(ev.Timestamp)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		dates = append(dates, truncateDay(ev.Timestamp))
	}
	if len(dates) < 2 {
		return 0
	}

	gaps := make([]float64, 0, len(dates)-1)
	for i := 1; i < len(dates); i++ {
		gaps = append(gaps, dates[i].Sub(dates[i-1]).Hours()/24)
	}

	var sum float64
	for _, g := range gaps {
		sum += g
	}
	mean := sum / float64(len(gaps))
	if mean == 0 {
		return 1
	}

	var variance float64
	for _, g := range gaps {
		variance += (g - mean) * (g - mean)
	}
	variance /= float64(len(gaps))
	cv := math.Sqrt(variance) / mean

	regularity := 1 - cv
	if regularity < 0 {
		regularity = 0
	}
	if regularity > 1 {
		regularity = 1
	}
	return math.Round(regularity*100) / 100
}

func scoreBalance(avgCents float64, cfg Config) int {
	for _, tier := range cfg.BalanceTiers {
		if avgCents >= float64(tier.MinCents) {
			return tier.Points
		}
	}
	return 0
}

// scoreRatio awards income-ratio points. Zero total debits means there is no
// spending to threaten repayment, so it scores at the top tier rather than
// dividing by zero.
func scoreRatio(events []models.TransactionEvent, cfg Config) int {
	credits, debits := sumFlows(events)
	if debits == 0 {
		if len(cfg.RatioTiers) == 0 {
			return 0
		}
		return cfg.RatioTiers[0].Points
	}
	ratio := float64(credits) / float64(debits)
	for _, tier := range cfg.RatioTiers {
		if ratio >= tier.MinRatio {
			return tier.Points
		}
	}
	return 0
}

func scoreNSF(count int, cfg Config) int {
	for _, tier := range cfg.NSFTiers {
		if count <= tier.MaxCount {
			return tier.Points
		}
	}
	return 0
}

func scoreRegularity(regularity float64, cfg Config) int {
	for _, tier := range cfg.RegularityTiers {
		if regularity >= tier.MinRatio {
			return tier.Points
		}
	}
	return 0
}

func thinFilePenalty(count int, cfg Config) int {
	for _, tier := range cfg.ThinFileTiers {
		if count >= tier.MinCount {
			return tier.Penalty
		}
	}
	return cfg.ThinFileFloorPenalty
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
