package transaction

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/Dan9191/bank-client/internal/models"
)

// ErrNegativeBalance is returned when the ledger reports a balance below zero
var ErrNegativeBalance = errors.New("ledger reported a negative balance")

// ApplyBalance returns a copy of accounts where the account with id carries
// the authoritative balance. The input slice is never modified; an unknown
// id yields an unchanged copy.
func ApplyBalance(accounts []models.Account, id string, balance decimal.Decimal) ([]models.Account, error) {
	if balance.IsNegative() {
		return nil, ErrNegativeBalance
	}
	out := make([]models.Account, len(accounts))
	copy(out, accounts)
	for i := range out {
		if out[i].ID == id {
			out[i].Balance = balance
		}
	}
	return out, nil
}

// Sources are the accounts that may be picked as the debited or credited
// account of an operation
func Sources(accounts []models.Account) []models.Account {
	var out []models.Account
	for _, a := range accounts {
		if a.IsActive {
			out = append(out, a)
		}
	}
	return out
}

// Destinations are the active accounts other than sourceID
func Destinations(accounts []models.Account, sourceID string) []models.Account {
	var out []models.Account
	for _, a := range accounts {
		if a.IsActive && a.ID != sourceID {
			out = append(out, a)
		}
	}
	return out
}
