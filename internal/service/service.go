package service

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/bank-client/internal/apiclient"
	"github.com/Dan9191/bank-client/internal/apierr"
	"github.com/Dan9191/bank-client/internal/models"
	"github.com/Dan9191/bank-client/internal/session"
	"github.com/Dan9191/bank-client/internal/validation"
)

// Local form errors
var (
	ErrFieldsMissing    = apierr.Validation("Please fill in all fields.")
	ErrPasswordMismatch = apierr.Validation("Passwords do not match.")
	ErrInvalidEmail     = apierr.Validation("Email is not valid")
	ErrWeakPassword     = apierr.Validation("Password does not meet the requirements.")
	ErrInvalidName      = apierr.Validation("Name may contain letters and spaces only.")
	ErrAccountType      = apierr.Validation("Account type must be Savings or Checking.")
	ErrAdminOnly        = &apierr.Error{Kind: apierr.KindUnauthorized, Message: "Administrator access required."}
)

// Ledger is the part of the API client the service uses
type Ledger interface {
	UpdateProfile(ctx context.Context, in apiclient.ProfileUpdate) (*models.Profile, error)
	CreateAccount(ctx context.Context, accountType string) (*models.Account, error)
	Summary(ctx context.Context) (*models.Summary, error)
	AllAccounts(ctx context.Context) ([]models.Account, error)
	SetAccountStatus(ctx context.Context, id string, active bool) (string, error)
}

// Service handles the client's form-level logic on top of the session
// manager and the ledger API
type Service struct {
	ledger   Ledger
	sessions *session.Manager
	log      *logrus.Logger
}

// NewService initializes a new service
func NewService(ledger Ledger, sessions *session.Manager, log *logrus.Logger) *Service {
	return &Service{ledger: ledger, sessions: sessions, log: log}
}

// RegisterForm is the registration input
type RegisterForm struct {
	Name            string
	Email           string
	Password        string
	ConfirmPassword string
}

// Register checks the form and registers through the session manager
func (s *Service) Register(ctx context.Context, f RegisterForm) error {
	if f.Password != f.ConfirmPassword {
		return ErrPasswordMismatch
	}
	if strings.TrimSpace(f.Name) == "" || strings.TrimSpace(f.Email) == "" || f.Password == "" {
		return ErrFieldsMissing
	}
	if !validation.NameRules.Valid(f.Name) {
		return ErrInvalidName
	}
	if !validation.EmailRules.Valid(f.Email) {
		return ErrInvalidEmail
	}
	if !validation.PasswordRules.Valid(f.Password) {
		return ErrWeakPassword
	}
	return s.sessions.Register(ctx, strings.TrimSpace(f.Name), strings.TrimSpace(f.Email), f.Password)
}

// Login checks the email and logs in through the session manager
func (s *Service) Login(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return ErrFieldsMissing
	}
	if !validation.EmailRules.Valid(email) {
		return ErrInvalidEmail
	}
	return s.sessions.Login(ctx, email, password)
}

// ProfileForm is the profile update input. A blank Password keeps the
// current password.
type ProfileForm struct {
	Name            string
	Email           string
	Password        string
	ConfirmPassword string
}

// UpdateProfile sends the profile update and rewrites the session identity
func (s *Service) UpdateProfile(ctx context.Context, f ProfileForm) (string, error) {
	if _, ok := s.sessions.Token(); !ok {
		return "", session.ErrNotAuthenticated
	}
	if f.Password != "" && f.Password != f.ConfirmPassword {
		return "", ErrPasswordMismatch
	}
	if !validation.EmailRules.Valid(f.Email) {
		return "", ErrInvalidEmail
	}
	if f.Password != "" && !validation.PasswordRules.Valid(f.Password) {
		return "", ErrWeakPassword
	}

	p, err := s.ledger.UpdateProfile(ctx, apiclient.ProfileUpdate{Name: f.Name, Email: f.Email, Password: f.Password})
	if err != nil {
		return "", apierr.Normalize(err, "Update failed.")
	}
	if err := s.sessions.UpdateIdentity(p.Name, p.Email); err != nil {
		s.log.WithError(err).Error("Failed to update stored session")
		return "", apierr.Normalize(err, "Update failed.")
	}
	return "Profile updated successfully.", nil
}

// CreateAccount opens a Savings or Checking account
func (s *Service) CreateAccount(ctx context.Context, accountType string) (*models.Account, string, error) {
	if _, ok := s.sessions.Token(); !ok {
		return nil, "", apierr.Validation("Authentication required to create an account.")
	}
	if !models.ValidAccountType(accountType) {
		return nil, "", ErrAccountType
	}
	a, err := s.ledger.CreateAccount(ctx, accountType)
	if err != nil {
		return nil, "", apierr.Normalize(err, "Account creation failed.")
	}
	s.log.WithField("account", a.AccountNumber).Info("Account created")
	return a, "Success! New " + a.AccountType + " account (" + a.AccountNumber + ") created.", nil
}

// Dashboard is the summary plus its derived totals
type Dashboard struct {
	Summary *models.Summary
	Total   decimal.Decimal
}

// Dashboard fetches the account and transaction summary
func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	if _, ok := s.sessions.Token(); !ok {
		return nil, session.ErrNotAuthenticated
	}
	sum, err := s.ledger.Summary(ctx)
	if err != nil {
		return nil, apierr.Normalize(err, "Failed to fetch dashboard data.")
	}
	return &Dashboard{Summary: sum, Total: models.TotalBalance(sum.Accounts)}, nil
}

// AllAccounts lists every account for an administrator
func (s *Service) AllAccounts(ctx context.Context) ([]models.Account, error) {
	if err := s.requireAdmin(); err != nil {
		return nil, err
	}
	accounts, err := s.ledger.AllAccounts(ctx)
	if err != nil {
		return nil, apierr.Normalize(err, "Failed to load accounts.")
	}
	return accounts, nil
}

// SetAccountStatus activates or deactivates an account as an administrator
func (s *Service) SetAccountStatus(ctx context.Context, id string, active bool) (string, error) {
	if err := s.requireAdmin(); err != nil {
		return "", err
	}
	msg, err := s.ledger.SetAccountStatus(ctx, id, active)
	if err != nil {
		return "", apierr.Normalize(err, "Failed to toggle account status.")
	}
	return msg, nil
}

func (s *Service) requireAdmin() error {
	sess := s.sessions.Session()
	if !sess.Valid() {
		return session.ErrNotAuthenticated
	}
	if !sess.IsAdmin {
		return ErrAdminOnly
	}
	return nil
}
