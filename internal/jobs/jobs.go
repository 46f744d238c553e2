package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/meridianpay/decision-service/internal/metrics"
	"github.com/meridianpay/decision-service/internal/models"
	"github.com/meridianpay/decision-service/internal/notifier"
	"github.com/meridianpay/decision-service/internal/repository"
	"github.com/meridianpay/decision-service/internal/utils/email"
)

// Runner owns the background maintenance jobs: re-driving pending webhook
// deliveries, moving installments through their forward-only lifecycle, and
// the daily operations reminder digest.
type Runner struct {
	repo          *repository.Repository
	notifier      *notifier.Notifier
	sender        *email.Sender
	log           *logrus.Logger
	reminderAhead int

	cron *cron.Cron
}

// NewRunner initializes the job runner. The email sender may be nil when
// SMTP is not configured; the reminder job is skipped in that case.
func NewRunner(repo *repository.Repository, n *notifier.Notifier, sender *email.Sender, log *logrus.Logger, reminderAhead int) *Runner {
	return &Runner{
		repo:          repo,
		notifier:      n,
		sender:        sender,
		log:           log,
		reminderAhead: reminderAhead,
		cron:          cron.New(),
	}
}

// Start registers and starts the cron schedule.
func (r *Runner) Start() error {
	if _, err := r.cron.AddFunc("@every 1m", r.RetryPendingWebhooks); err != nil {
		return err
	}
	if _, err := r.cron.AddFunc("@daily", r.SweepInstallments); err != nil {
		return err
	}
	if r.sender != nil {
		if _, err := r.cron.AddFunc("@daily", r.SendReminderDigest); err != nil {
			return err
		}
	}
	r.cron.Start()
	return nil
}

// Stop halts the schedule and waits for running jobs.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
}

// RetryPendingWebhooks re-drives deliveries left pending with attempts
// remaining in their budget, e.g. after a crash mid-delivery.
func (r *Runner) RetryPendingWebhooks() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	metrics.WebhookPendingSweeps.Inc()

	pending, err := r.repo.ListPendingWebhooks(ctx, r.notifier.MaxAttempts())
	if err != nil {
		r.log.Errorf("Failed to list pending webhooks: %v", err)
		return
	}

	delivered := 0
	for i := range pending {
		attempt := pending[i]
		r.notifier.Deliver(ctx, &attempt)
		if attempt.Status == models.WebhookDelivered {
			delivered++
		}
	}

	if len(pending) > 0 {
		r.log.WithFields(logrus.Fields{
			"total":     len(pending),
			"delivered": delivered,
		}).Info("Pending webhooks retried")
	}
}

// SweepInstallments advances installment statuses: scheduled installments
// coming due move to pending, pending ones past due move to missed.
func (r *Runner) SweepInstallments() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	now := time.Now().UTC()

	pending, err := r.repo.MarkInstallmentsPending(ctx, now.AddDate(0, 0, r.reminderAhead))
	if err != nil {
		r.log.Errorf("Failed to mark installments pending: %v", err)
		return
	}
	missed, err := r.repo.MarkInstallmentsMissed(ctx, now)
	if err != nil {
		r.log.Errorf("Failed to mark installments missed: %v", err)
		return
	}

	if pending > 0 || missed > 0 {
		r.log.WithFields(logrus.Fields{
			"pending": pending,
			"missed":  missed,
		}).Info("Installment sweep completed")
	}
}

// SendReminderDigest emails operations a digest of installments coming due.
func (r *Runner) SendReminderDigest() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	due, err := r.repo.ListInstallmentsDueBy(ctx, time.Now().UTC().AddDate(0, 0, r.reminderAhead))
	if err != nil {
		r.log.Errorf("Failed to list due installments: %v", err)
		return
	}
	if len(due) == 0 {
		return
	}

	if err := r.sender.SendInstallmentDigest(due); err != nil {
		r.log.Errorf("Failed to send reminder digest: %v", err)
	}
}
