package models

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Account types accepted by the ledger
const (
	AccountTypeSavings  = "Savings"
	AccountTypeChecking = "Checking"
)

// Account represents a balance-bearing ledger account owned by a user
type Account struct {
	ID            string          `json:"_id"`
	AccountNumber string          `json:"accountNumber"`
	AccountType   string          `json:"accountType"`
	Balance       decimal.Decimal `json:"balance"`
	IsActive      bool            `json:"isActive"`
	Owner         *AccountOwner   `json:"userId,omitempty"`
}

// AccountOwner is the user an account belongs to. The ledger sends either
// the bare user id or, on the admin listing, an embedded user document.
type AccountOwner struct {
	ID    string `json:"_id,omitempty"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// UnmarshalJSON accepts both `"<id>"` and `{"_id":..,"name":..,"email":..}`.
func (o *AccountOwner) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &o.ID)
	}
	type plain AccountOwner
	return json.Unmarshal(data, (*plain)(o))
}

// ValidAccountType reports whether t names an account type the ledger accepts
func ValidAccountType(t string) bool {
	return t == AccountTypeSavings || t == AccountTypeChecking
}

// FindAccount returns the account with the given id
func FindAccount(accounts []Account, id string) (Account, bool) {
	for _, a := range accounts {
		if a.ID == id {
			return a, true
		}
	}
	return Account{}, false
}

// TotalBalance sums the balances of accounts
func TotalBalance(accounts []Account) decimal.Decimal {
	total := decimal.Zero
	for _, a := range accounts {
		total = total.Add(a.Balance)
	}
	return total
}
