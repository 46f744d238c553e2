package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/meridianpay/decision-service/internal/integrations/bank"
	"github.com/meridianpay/decision-service/internal/models"
	"github.com/meridianpay/decision-service/internal/scoring"
)

type fakeHistory struct {
	events []models.TransactionEvent
	err    error
	calls  int
}

func (f *fakeHistory) GetTransactions(ctx context.Context, userID string, windowDays int) ([]models.TransactionEvent, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}

type fakeRepo struct {
	saveErr  error
	decision *models.Decision
	plan     *models.RepaymentPlan

	plans   map[string]*models.RepaymentPlan
	history []models.Decision
}

func (f *fakeRepo) SaveDecision(ctx context.Context, decision *models.Decision, plan *models.RepaymentPlan) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.decision = decision
	f.plan = plan
	return nil
}

func (f *fakeRepo) GetPlan(ctx context.Context, planID string) (*models.RepaymentPlan, error) {
	if p, ok := f.plans[planID]; ok {
		return p, nil
	}
	return nil, errors.New("not found")
}

func (f *fakeRepo) GetDecisionHistory(ctx context.Context, userID string) ([]models.Decision, error) {
	return f.history, nil
}

type fakeNotifier struct {
	mu        sync.Mutex
	decisions []*models.Decision
	err       error
	block     chan struct{}
}

func (f *fakeNotifier) NotifyDecision(ctx context.Context, decision *models.Decision) (*models.WebhookDeliveryAttempt, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decisions = append(f.decisions, decision)
	if f.err != nil {
		return nil, f.err
	}
	return &models.WebhookDeliveryAttempt{ID: "delivery-1", Status: models.WebhookDelivered}, nil
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.decisions)
}

func newTestService(client historyClient, repo decisionStore, notifier decisionNotifier) *Service {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return NewService(client, repo, notifier, log, scoring.DefaultConfig())
}

func cents(v int64) *int64 { return &v }

// thinFileHistory yields three events inside the window: high balances and a
// strong credit-to-debit ratio, but too few events to escape the thin-file
// penalty and only one qualifying deposit.
func thinFileHistory() []models.TransactionEvent {
	now := time.Now().UTC()
	return []models.TransactionEvent{
		{Timestamp: now.AddDate(0, 0, -10), AmountCents: 70000, BalanceAfterCents: cents(200000)},
		{Timestamp: now.AddDate(0, 0, -5), AmountCents: -1000, BalanceAfterCents: cents(199000)},
		{Timestamp: now.AddDate(0, 0, -2), AmountCents: -1000, BalanceAfterCents: cents(198000)},
	}
}

func TestDecideRejectsMalformedRequests(t *testing.T) {
	tests := []struct {
		name string
		req  DecisionRequest
	}{
		{"empty user id", DecisionRequest{UserID: "", AmountCentsRequested: 5000}},
		{"zero amount", DecisionRequest{UserID: "user-1", AmountCentsRequested: 0}},
		{"negative amount", DecisionRequest{UserID: "user-1", AmountCentsRequested: -100}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeHistory{}
			repo := &fakeRepo{}
			svc := newTestService(client, repo, &fakeNotifier{})

			_, err := svc.Decide(context.Background(), tt.req)
			if !errors.Is(err, ErrInvalidRequest) {
				t.Fatalf("error = %v, want ErrInvalidRequest", err)
			}
			if client.calls != 0 {
				t.Error("provider should not be called for a malformed request")
			}
			if repo.decision != nil {
				t.Error("no decision record should be created for a malformed request")
			}
		})
	}
}

func TestDecideFetchFailureIsFatal(t *testing.T) {
	client := &fakeHistory{err: &bank.FetchError{Kind: bank.KindNotFound, Detail: "user not found"}}
	repo := &fakeRepo{}
	notifier := &fakeNotifier{}
	svc := newTestService(client, repo, notifier)

	_, err := svc.Decide(context.Background(), DecisionRequest{UserID: "ghost", AmountCentsRequested: 5000})

	var ferr *bank.FetchError
	if !errors.As(err, &ferr) || ferr.Kind != bank.KindNotFound {
		t.Fatalf("error = %v, want wrapped *FetchError with kind not_found", err)
	}
	if repo.decision != nil {
		t.Error("no decision may be persisted when history is unavailable")
	}
	svc.WaitForNotifications()
	if notifier.count() != 0 {
		t.Error("no notification may be sent when history is unavailable")
	}
}

func TestDecideApprovalPersistsPlanAndNotifies(t *testing.T) {
	client := &fakeHistory{events: thinFileHistory()}
	repo := &fakeRepo{}
	notifier := &fakeNotifier{}
	svc := newTestService(client, repo, notifier)

	resp, err := svc.Decide(context.Background(), DecisionRequest{UserID: "user-1", AmountCentsRequested: 5000})
	if err != nil {
		t.Fatalf("Decide returned error: %v", err)
	}

	if !resp.Approved {
		t.Fatal("expected approval")
	}
	if resp.DecisionFactors.RiskScore != 55 {
		t.Fatalf("risk score = %d, want 55", resp.DecisionFactors.RiskScore)
	}
	if resp.DecisionFactors.CreditBand != string(models.BandStandard) {
		t.Fatalf("band = %s, want %s", resp.DecisionFactors.CreditBand, models.BandStandard)
	}
	if resp.CreditLimitCents != 30000 {
		t.Fatalf("limit = %d, want 30000", resp.CreditLimitCents)
	}
	if resp.AmountGrantedCents != 5000 {
		t.Fatalf("granted = %d, want the requested 5000 (under the limit)", resp.AmountGrantedCents)
	}
	if resp.PlanID == "" {
		t.Fatal("approved decision must carry a plan id")
	}

	if repo.decision == nil || repo.plan == nil {
		t.Fatal("decision and plan must be persisted together")
	}
	if repo.plan.ID != resp.PlanID {
		t.Fatalf("persisted plan id %s does not match response %s", repo.plan.ID, resp.PlanID)
	}
	if len(repo.plan.Installments) != 2 {
		t.Fatalf("plan has %d installments, want 2", len(repo.plan.Installments))
	}
	if repo.plan.Installments[0].AmountCents != 2500 || repo.plan.Installments[1].AmountCents != 2500 {
		t.Fatalf("installments = %d/%d cents, want 2500/2500",
			repo.plan.Installments[0].AmountCents, repo.plan.Installments[1].AmountCents)
	}

	svc.WaitForNotifications()
	if notifier.count() != 1 {
		t.Fatalf("notifier called %d times, want 1", notifier.count())
	}
}

func TestDecideDenialSkipsPlanButStillNotifies(t *testing.T) {
	client := &fakeHistory{events: nil} // empty history scores zero
	repo := &fakeRepo{}
	notifier := &fakeNotifier{}
	svc := newTestService(client, repo, notifier)

	resp, err := svc.Decide(context.Background(), DecisionRequest{UserID: "user-1", AmountCentsRequested: 5000})
	if err != nil {
		t.Fatalf("Decide returned error: %v", err)
	}

	if resp.Approved {
		t.Fatal("empty history must be denied")
	}
	if resp.CreditLimitCents != 0 || resp.AmountGrantedCents != 0 {
		t.Fatalf("denied response carries money: limit=%d granted=%d", resp.CreditLimitCents, resp.AmountGrantedCents)
	}
	if resp.PlanID != "" {
		t.Fatal("denied decision must not carry a plan")
	}
	if repo.decision == nil {
		t.Fatal("denied decisions are persisted for the audit trail")
	}
	if repo.plan != nil {
		t.Fatal("no plan may be persisted for a denial")
	}

	svc.WaitForNotifications()
	if notifier.count() != 1 {
		t.Fatal("denials are notified downstream like approvals")
	}
}

func TestDecidePersistenceFailureIsFatal(t *testing.T) {
	client := &fakeHistory{events: thinFileHistory()}
	repo := &fakeRepo{saveErr: errors.New("connection reset")}
	notifier := &fakeNotifier{}
	svc := newTestService(client, repo, notifier)

	_, err := svc.Decide(context.Background(), DecisionRequest{UserID: "user-1", AmountCentsRequested: 5000})
	if err == nil {
		t.Fatal("expected persistence failure to fail the request")
	}
	svc.WaitForNotifications()
	if notifier.count() != 0 {
		t.Error("unpersisted decision must not be notified")
	}
}

func TestDecideReturnsBeforeNotificationCompletes(t *testing.T) {
	client := &fakeHistory{events: thinFileHistory()}
	notifier := &fakeNotifier{block: make(chan struct{})}
	svc := newTestService(client, &fakeRepo{}, notifier)

	done := make(chan struct{})
	go func() {
		if _, err := svc.Decide(context.Background(), DecisionRequest{UserID: "user-1", AmountCentsRequested: 5000}); err != nil {
			t.Errorf("Decide returned error: %v", err)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Decide blocked on webhook delivery")
	}

	close(notifier.block)
	svc.WaitForNotifications()
	if notifier.count() != 1 {
		t.Fatal("notification must still run to completion after the response")
	}
}

func TestDecideNotifierFailureDoesNotAffectDecision(t *testing.T) {
	client := &fakeHistory{events: thinFileHistory()}
	repo := &fakeRepo{}
	notifier := &fakeNotifier{err: errors.New("ledger unreachable")}
	svc := newTestService(client, repo, notifier)

	resp, err := svc.Decide(context.Background(), DecisionRequest{UserID: "user-1", AmountCentsRequested: 5000})
	if err != nil {
		t.Fatalf("Decide returned error: %v", err)
	}
	if !resp.Approved {
		t.Fatal("notification failure must not change the decision outcome")
	}
	svc.WaitForNotifications()
	if repo.decision == nil {
		t.Fatal("decision must remain persisted despite notification failure")
	}
}
