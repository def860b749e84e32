package ledgerstub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/Dan9191/bank-client/internal/config"
	"github.com/Dan9191/bank-client/internal/models"
	"github.com/Dan9191/bank-client/internal/utils"
)

// summaryLimit caps the transactions returned with the dashboard
const summaryLimit = 10

// Service handles the ledger's business logic
type Service struct {
	repo   Repository
	log    *logrus.Logger
	config *config.LedgerConfig
}

// NewService initializes a new ledger service
func NewService(repo Repository, log *logrus.Logger, cfg *config.LedgerConfig) *Service {
	return &Service{repo: repo, log: log, config: cfg}
}

// AuthResult is a user together with a freshly issued token
type AuthResult struct {
	User  *models.User
	Token string
}

// Register creates a new user with hashed password and signs them in
func (s *Service) Register(ctx context.Context, name, email, password string) (*AuthResult, error) {
	name, email = strings.TrimSpace(name), strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" || password == "" {
		return nil, ErrMissingFields
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hashedPassword),
		IsAdmin:      strings.EqualFold(email, s.config.AdminEmail),
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	token, err := s.issueToken(user.ID)
	if err != nil {
		return nil, err
	}
	s.log.Infof("User registered: %s", user.Email)
	return &AuthResult{User: user, Token: token}, nil
}

// Login authenticates a user and returns a JWT token
func (s *Service) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.repo.FindUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := s.issueToken(user.ID)
	if err != nil {
		return nil, err
	}
	s.log.Infof("User logged in: %s", user.Email)
	return &AuthResult{User: user, Token: token}, nil
}

func (s *Service) issueToken(userID string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.config.TokenTTL)),
	})
	tokenString, err := token.SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return tokenString, nil
}

// ParseToken verifies an HS256 token and returns its subject
func (s *Service) ParseToken(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return []byte(s.config.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// User loads the user behind an authenticated request
func (s *Service) User(ctx context.Context, userID string) (*models.User, error) {
	return s.repo.FindUserByID(ctx, userID)
}

// UpdateProfile changes name and email, and the password when given
func (s *Service) UpdateProfile(ctx context.Context, userID, name, email, password string) (*models.User, error) {
	user, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if name = strings.TrimSpace(name); name != "" {
		user.Name = name
	}
	if email = strings.ToLower(strings.TrimSpace(email)); email != "" {
		user.Email = email
	}
	if password != "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		user.PasswordHash = string(hashed)
	}
	if err := s.repo.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	s.log.WithField("user_id", userID).Info("Profile updated")
	return user, nil
}

// CreateAccount opens a zero-balance account for the user
func (s *Service) CreateAccount(ctx context.Context, userID, accountType string) (*models.Account, error) {
	if !models.ValidAccountType(accountType) {
		return nil, ErrInvalidAccountType
	}
	number, err := utils.GenerateAccountNumber("40", 10)
	if err != nil {
		return nil, err
	}
	account := &models.Account{
		AccountNumber: number,
		AccountType:   accountType,
		Balance:       decimal.Zero,
		IsActive:      true,
		Owner:         &models.AccountOwner{ID: userID},
	}
	if err := s.repo.CreateAccount(ctx, account); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"user_id": userID, "account": number}).Info("Account created")
	return account, nil
}

// Accounts lists the user's accounts
func (s *Service) Accounts(ctx context.Context, userID string) ([]models.Account, error) {
	return s.repo.AccountsByUser(ctx, userID)
}

// AllAccounts lists every account for an administrator
func (s *Service) AllAccounts(ctx context.Context, userID string) ([]models.Account, error) {
	if err := s.requireAdmin(ctx, userID); err != nil {
		return nil, err
	}
	return s.repo.AllAccounts(ctx)
}

// SetAccountStatus toggles an account for an administrator
func (s *Service) SetAccountStatus(ctx context.Context, userID, accountID string, active bool) error {
	if err := s.requireAdmin(ctx, userID); err != nil {
		return err
	}
	return s.repo.SetAccountStatus(ctx, accountID, active)
}

func (s *Service) requireAdmin(ctx context.Context, userID string) error {
	user, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.IsAdmin {
		return ErrForbidden
	}
	return nil
}

// Deposit credits an account and returns its new balance
func (s *Service) Deposit(ctx context.Context, userID, accountNumber string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	balances, err := s.repo.Post(ctx, userID, []Leg{
		{AccountNumber: accountNumber, Delta: amount, Type: models.TransactionDeposit, Description: "Deposit"},
	})
	if err != nil {
		return decimal.Zero, err
	}
	return balances[accountNumber], nil
}

// Withdraw debits an account and returns its new balance
func (s *Service) Withdraw(ctx context.Context, userID, accountNumber string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	balances, err := s.repo.Post(ctx, userID, []Leg{
		{AccountNumber: accountNumber, Delta: amount.Neg(), Type: models.TransactionWithdraw, Description: "Withdrawal"},
	})
	if err != nil {
		return decimal.Zero, err
	}
	return balances[accountNumber], nil
}

// Transfer moves funds between two of the user's accounts
func (s *Service) Transfer(ctx context.Context, userID, from, to string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if from == to {
		return ErrSameAccount
	}
	_, err := s.repo.Post(ctx, userID, []Leg{
		{AccountNumber: from, Delta: amount.Neg(), Type: models.TransactionTransferDebit, Description: "Transfer to " + to},
		{AccountNumber: to, Delta: amount, Type: models.TransactionTransferCredit, Description: "Transfer from " + from},
	})
	return err
}

// Summary returns the user's accounts and latest transactions
func (s *Service) Summary(ctx context.Context, userID string) (*models.Summary, error) {
	accounts, err := s.repo.AccountsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	txns, err := s.repo.RecentTransactions(ctx, userID, summaryLimit)
	if err != nil {
		return nil, err
	}
	return &models.Summary{Accounts: accounts, Transactions: txns}, nil
}

// IsDomainError reports whether err carries a message meant for the client
func IsDomainError(err error) bool {
	for _, target := range []error{
		ErrEmailTaken, ErrUserNotFound, ErrInvalidCredentials, ErrAccountNotFound,
		ErrAccountInactive, ErrInsufficientFunds, ErrInvalidAmount, ErrSameAccount,
		ErrInvalidAccountType, ErrMissingFields, ErrForbidden, ErrMissingToken, ErrInvalidToken,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
