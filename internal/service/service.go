package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/meridianpay/decision-service/internal/integrations/bank"
	"github.com/meridianpay/decision-service/internal/metrics"
	"github.com/meridianpay/decision-service/internal/models"
	"github.com/meridianpay/decision-service/internal/scoring"
)

// ErrInvalidRequest marks a malformed decision request. It is rejected
// before any scoring and no decision record is created.
var ErrInvalidRequest = errors.New("invalid decision request")

type historyClient interface {
	GetTransactions(ctx context.Context, userID string, windowDays int) ([]models.TransactionEvent, error)
}

type decisionStore interface {
	SaveDecision(ctx context.Context, decision *models.Decision, plan *models.RepaymentPlan) error
	GetPlan(ctx context.Context, planID string) (*models.RepaymentPlan, error)
	GetDecisionHistory(ctx context.Context, userID string) ([]models.Decision, error)
}

type decisionNotifier interface {
	NotifyDecision(ctx context.Context, decision *models.Decision) (*models.WebhookDeliveryAttempt, error)
}

// DecisionRequest is the inbound request for a credit decision.
type DecisionRequest struct {
	UserID               string `json:"user_id"`
	AmountCentsRequested int64  `json:"amount_cents_requested"`
}

// DecisionFactors is the user/support-safe view of the score breakdown
// returned in the API response. A fixed record type, so every consumer has a
// stable contract.
type DecisionFactors struct {
	RiskScore              int     `json:"risk_score"`
	AvgDailyBalanceDollars float64 `json:"avg_daily_balance_dollars"`
	IncomeRatio            float64 `json:"income_ratio"`
	NSFCount               int     `json:"nsf_count"`
	CreditBand             string  `json:"credit_band"`
}

// DecisionResponse is the caller-visible outcome of one decision request.
type DecisionResponse struct {
	Approved           bool            `json:"approved"`
	CreditLimitCents   int64           `json:"credit_limit_cents"`
	AmountGrantedCents int64           `json:"amount_granted_cents"`
	PlanID             string          `json:"plan_id,omitempty"`
	DecisionFactors    DecisionFactors `json:"decision_factors"`
}

// Service orchestrates the decision pipeline: fetch history, score, map to a
// band, persist decision and plan atomically, then hand off notification.
// Notification runs detached; its outcome never reverses a persisted
// decision.
type Service struct {
	client   historyClient
	repo     decisionStore
	notifier decisionNotifier
	log      *logrus.Logger
	cfg      scoring.Config

	// Tracks detached notification goroutines so shutdown and tests can
	// wait for them.
	notifyWG sync.WaitGroup
}

// NewService initializes a new service
func NewService(client historyClient, repo decisionStore, notifier decisionNotifier, log *logrus.Logger, cfg scoring.Config) *Service {
	return &Service{
		client:   client,
		repo:     repo,
		notifier: notifier,
		log:      log,
		cfg:      cfg,
	}
}

// Decide makes a credit decision for a user. Upstream data failures and
// persistence failures are fatal to the request; once the decision is
// persisted the response is returned regardless of notification outcome.
func (s *Service) Decide(ctx context.Context, req DecisionRequest) (*DecisionResponse, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("%w: user_id must not be empty", ErrInvalidRequest)
	}
	if req.AmountCentsRequested <= 0 {
		return nil, fmt.Errorf("%w: amount_cents_requested must be positive", ErrInvalidRequest)
	}

	metrics.RequestedAmount.Observe(float64(req.AmountCentsRequested))

	timer := prometheus.NewTimer(metrics.BankFetchDuration)
	events, err := s.client.GetTransactions(ctx, req.UserID, s.cfg.WindowDays)
	timer.ObserveDuration()
	if err != nil {
		var ferr *bank.FetchError
		if errors.As(err, &ferr) {
			metrics.BankFetchFailures.WithLabelValues(string(ferr.Kind)).Inc()
		}
		// A failed fetch is not a thin file: no score is fabricated.
		return nil, fmt.Errorf("transaction history unavailable: %w", err)
	}

	now := time.Now().UTC()
	breakdown := scoring.Score(events, now, s.cfg)
	band, limit := scoring.MapScoreToBand(breakdown.Total, s.cfg)
	approved := band != models.BandDenied

	var granted int64
	if approved {
		granted = scoring.AmountGranted(limit, req.AmountCentsRequested)
	}

	decision := &models.Decision{
		ID:                 uuid.NewString(),
		UserID:             req.UserID,
		RequestedCents:     req.AmountCentsRequested,
		Approved:           approved,
		CreditLimitCents:   limitIfApproved(approved, limit),
		AmountGrantedCents: granted,
		Band:               band,
		Breakdown:          breakdown,
		CreatedAt:          now,
	}

	var plan *models.RepaymentPlan
	if approved && granted > 0 {
		p := scoring.BuildPlan(decision.ID, req.UserID, granted, now, s.cfg)
		plan = &p
	}

	if err := s.repo.SaveDecision(ctx, decision, plan); err != nil {
		return nil, fmt.Errorf("failed to persist decision: %w", err)
	}

	metrics.DecisionsTotal.WithLabelValues(outcome(approved), string(band)).Inc()
	if approved {
		metrics.AmountGrantedTotal.Add(float64(granted))
	}

	s.log.WithFields(logrus.Fields{
		"decision_id": decision.ID,
		"user_id":     req.UserID,
		"approved":    approved,
		"band":        band,
		"score":       breakdown.Total,
		"granted":     granted,
	}).Info("Decision made")

	// Detached on purpose: the decision is already durable, and a client
	// disconnect must not abandon or roll back the notification state.
	s.notifyWG.Add(1)
	go func() {
		defer s.notifyWG.Done()
		if _, err := s.notifier.NotifyDecision(context.Background(), decision); err != nil {
			s.log.Errorf("Failed to start webhook delivery for decision %s: %v", decision.ID, err)
		}
	}()

	resp := &DecisionResponse{
		Approved:           approved,
		CreditLimitCents:   decision.CreditLimitCents,
		AmountGrantedCents: granted,
		DecisionFactors: DecisionFactors{
			RiskScore:              breakdown.Total,
			AvgDailyBalanceDollars: breakdown.AvgDailyBalanceDollars(),
			IncomeRatio:            breakdown.IncomeRatio.Metric,
			NSFCount:               int(breakdown.NSFCount.Metric),
			CreditBand:             string(band),
		},
	}
	if plan != nil {
		resp.PlanID = plan.ID
	}
	return resp, nil
}

// GetPlan fetches a repayment plan with its installments.
func (s *Service) GetPlan(ctx context.Context, planID string) (*models.RepaymentPlan, error) {
	return s.repo.GetPlan(ctx, planID)
}

// GetDecisionHistory returns all past decisions for a user, newest first.
func (s *Service) GetDecisionHistory(ctx context.Context, userID string) ([]models.Decision, error) {
	return s.repo.GetDecisionHistory(ctx, userID)
}

// WaitForNotifications blocks until in-flight webhook handoffs finish. Used
// on shutdown.
func (s *Service) WaitForNotifications() {
	s.notifyWG.Wait()
}

func limitIfApproved(approved bool, limit int64) int64 {
	if !approved {
		return 0
	}
	return limit
}

func outcome(approved bool) string {
	if approved {
		return "approved"
	}
	return "denied"
}
