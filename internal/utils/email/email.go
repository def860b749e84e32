package email

import (
	"fmt"
	"net/smtp"
	"time"

	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/bank-client/internal/config"
	"github.com/Dan9191/bank-client/internal/transaction"
)

// Sender handles sending receipts via SMTP
type Sender struct {
	cfg    *config.Config
	logger *logrus.Logger
	send   func(e *email.Email, addr string, auth smtp.Auth) error
}

// NewSender creates a new receipt sender
func NewSender(cfg *config.Config, logger *logrus.Logger) *Sender {
	return &Sender{
		cfg:    cfg,
		logger: logger,
		send: func(e *email.Email, addr string, auth smtp.Auth) error {
			return e.Send(addr, auth)
		},
	}
}

// Receipt builds the receipt e-mail for a settled operation
func (s *Sender) Receipt(to, name string, res *transaction.Result, at time.Time) *email.Email {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{to}

	var title string
	switch res.Op {
	case transaction.OpDeposit:
		title = "Deposit"
	case transaction.OpWithdraw:
		title = "Withdrawal"
	default:
		title = "Transfer"
	}
	e.Subject = fmt.Sprintf("%s Receipt", title)

	body := fmt.Sprintf("Dear %s,\n\n", name)
	body += fmt.Sprintf("%s of $%s completed.\n", title, res.Amount.StringFixed(2))
	if res.Account != nil {
		body += fmt.Sprintf("Account: %s (%s)\nCurrent balance: $%s\n",
			res.Account.AccountNumber, res.Account.AccountType, res.Account.Balance.StringFixed(2))
	}
	body += fmt.Sprintf("Transaction time: %s\n", at.Format("2006-01-02 15:04:05"))
	body += "\nBest regards,\nBank Client"
	e.Text = []byte(body)
	return e
}

// SendReceipt e-mails a receipt for a settled operation
func (s *Sender) SendReceipt(to, name string, res *transaction.Result) error {
	e := s.Receipt(to, name, res, time.Now())

	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	var auth smtp.Auth
	if s.cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	}
	if err := s.send(e, addr, auth); err != nil {
		s.logger.Errorf("Failed to send %s to %s: %v", e.Subject, to, err)
		return fmt.Errorf("failed to send receipt: %w", err)
	}

	s.logger.Infof("Email sent to %s: %s", to, e.Subject)
	return nil
}
