package scoring

import "github.com/meridianpay/decision-service/internal/models"

// AmountTier maps a minimum amount in cents to awarded points.
type AmountTier struct {
	MinCents int64
	Points   int
}

// RatioTier maps a minimum ratio to awarded points.
type RatioTier struct {
	MinRatio float64
	Points   int
}

// CountTier maps a maximum event count to awarded points.
type CountTier struct {
	MaxCount int
	Points   int
}

// BandTier maps a minimum score to a credit band and its limit.
type BandTier struct {
	MinScore   int
	Band       models.Band
	LimitCents int64
}

// Config holds every scoring and limit-mapping threshold. It is loaded once
// at process start and passed explicitly into the scorer and mapper, so
// tests can run alternate threshold sets without shared state. Tier slices
// are checked in order; the first matching tier wins.
type Config struct {
	WindowDays int

	// Minimum credit amount for a deposit to count toward income
	// regularity. Excludes incidental transfers.
	IncomeFloorCents int64

	BalanceTiers    []AmountTier
	RatioTiers      []RatioTier
	NSFTiers        []CountTier
	RegularityTiers []RatioTier
	ThinFileTiers   []struct {
		MinCount int
		Penalty  int
	}
	ThinFileFloorPenalty int

	Bands []BandTier

	PlanInstallments int
	PlanIntervalDays int
}

// DefaultConfig returns the production thresholds. Calibrated for a zero-fee
// product where every default is unrecovered loss.
func DefaultConfig() Config {
	return Config{
		WindowDays:       90,
		IncomeFloorCents: 5000, // $50

		BalanceTiers: []AmountTier{
			{MinCents: 100000, Points: 30}, // >= $1000 average
			{MinCents: 50000, Points: 25},
			{MinCents: 10000, Points: 15},
			{MinCents: 0, Points: 10},
		},
		RatioTiers: []RatioTier{
			{MinRatio: 1.3, Points: 30},
			{MinRatio: 1.1, Points: 25},
			{MinRatio: 1.0, Points: 15},
			{MinRatio: 0.8, Points: 5},
		},
		NSFTiers: []CountTier{
			{MaxCount: 0, Points: 25},
			{MaxCount: 2, Points: 15},
			{MaxCount: 4, Points: 5},
		},
		RegularityTiers: []RatioTier{
			{MinRatio: 0.8, Points: 15},
			{MinRatio: 0.5, Points: 10},
			{MinRatio: 0.3, Points: 5},
		},
		ThinFileTiers: []struct {
			MinCount int
			Penalty  int
		}{
			{MinCount: 30, Penalty: 0},
			{MinCount: 20, Penalty: -10},
			{MinCount: 10, Penalty: -20},
		},
		ThinFileFloorPenalty: -30,

		Bands: []BandTier{
			{MinScore: 85, Band: models.BandMaximum, LimitCents: 60000},
			{MinScore: 75, Band: models.BandPremium, LimitCents: 50000},
			{MinScore: 65, Band: models.BandEnhanced, LimitCents: 40000},
			{MinScore: 55, Band: models.BandStandard, LimitCents: 30000},
			{MinScore: 40, Band: models.BandBasic, LimitCents: 20000},
			{MinScore: 20, Band: models.BandEntry, LimitCents: 10000},
			{MinScore: 0, Band: models.BandDenied, LimitCents: 0},
		},

		PlanInstallments: 2,
		PlanIntervalDays: 14,
	}
}
