// Package ledgerstub is a development fake of the remote ledger service. It
// serves the same REST surface the client consumes, backed by an in-memory
// or Postgres repository, so the client can be exercised end to end.
package ledgerstub

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/Dan9191/bank-client/internal/models"
)

// Domain errors. Their text is sent to clients as the response message.
var (
	ErrEmailTaken          = errors.New("User already exists")
	ErrUserNotFound        = errors.New("User not found")
	ErrInvalidCredentials  = errors.New("Invalid email or password")
	ErrAccountNotFound     = errors.New("Account not found")
	ErrAccountInactive     = errors.New("Account is inactive")
	ErrInsufficientFunds   = errors.New("Insufficient funds")
	ErrInvalidAmount       = errors.New("Amount must be greater than zero")
	ErrSameAccount         = errors.New("Cannot transfer to the same account")
	ErrInvalidAccountType  = errors.New("Invalid account type")
	ErrMissingFields       = errors.New("Please add all fields")
	ErrForbidden           = errors.New("Not authorized as an admin")
	ErrMissingToken        = errors.New("Not authorized, no token")
	ErrInvalidToken        = errors.New("Not authorized, token failed")
)

// Leg is one balance change of a posting
type Leg struct {
	AccountNumber string
	Delta         decimal.Decimal
	Type          string
	Description   string
}

// Repository provides ledger storage. Post applies all legs atomically: every
// account must belong to userID, be active and stay non-negative, otherwise
// nothing changes.
type Repository interface {
	CreateUser(ctx context.Context, user *models.User) error
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindUserByID(ctx context.Context, id string) (*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
	CreateAccount(ctx context.Context, account *models.Account) error
	AccountsByUser(ctx context.Context, userID string) ([]models.Account, error)
	AllAccounts(ctx context.Context) ([]models.Account, error)
	SetAccountStatus(ctx context.Context, id string, active bool) error
	Post(ctx context.Context, userID string, legs []Leg) (map[string]decimal.Decimal, error)
	RecentTransactions(ctx context.Context, userID string, limit int) ([]models.TransactionRecord, error)
}
