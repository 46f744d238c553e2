package scoring

import "github.com/meridianpay/decision-service/internal/models"

// MapScoreToBand maps a risk score to its credit band and limit. Bands are
// half-open intervals inclusive on the lower bound; the score is clamped to
// [0,100] first, which closes the final interval at 100.
func MapScoreToBand(score int, cfg Config) (models.Band, int64) {
	score = clamp(score, 0, 100)
	for _, tier := range cfg.Bands {
		if score >= tier.MinScore {
			return tier.Band, tier.LimitCents
		}
	}
	return models.BandDenied, 0
}

// AmountGranted returns the amount to grant: the service never grants more
// than the user requested, even when the band's limit is higher.
func AmountGranted(limitCents, requestedCents int64) int64 {
	if requestedCents < limitCents {
		return requestedCents
	}
	return limitCents
}
