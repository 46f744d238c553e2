package email

import (
	"fmt"
	"net/smtp"

	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"

	"github.com/meridianpay/decision-service/internal/config"
	"github.com/meridianpay/decision-service/internal/repository"
)

// Sender handles sending emails via SMTP
type Sender struct {
	cfg    *config.Config
	logger *logrus.Logger
}

// NewSender creates a new email sender
func NewSender(cfg *config.Config, logger *logrus.Logger) *Sender {
	return &Sender{
		cfg:    cfg,
		logger: logger,
	}
}

// SendInstallmentDigest sends operations a digest of installments coming due.
func (s *Sender) SendInstallmentDigest(due []repository.DueInstallment) error {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{s.cfg.OpsEmail}
	e.Subject = fmt.Sprintf("Installments due: %d upcoming", len(due))

	body := "Upcoming installments:\n\n"
	for _, d := range due {
		body += fmt.Sprintf(
			"- user %s, plan %s: %.2f USD due %s (%s)\n",
			d.UserID, d.PlanID, float64(d.AmountCents)/100,
			d.DueDate.Format("2006-01-02"), d.Status,
		)
	}
	body += "\nDecision Service"
	e.Text = []byte(body)

	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	auth := smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	if err := e.Send(addr, auth); err != nil {
		s.logger.Errorf("Failed to send digest to %s: %v", s.cfg.OpsEmail, err)
		return fmt.Errorf("failed to send digest: %w", err)
	}

	s.logger.Infof("Email sent to %s: %s", s.cfg.OpsEmail, e.Subject)
	return nil
}
