package models

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction types reported by the ledger
const (
	TransactionDeposit        = "deposit"
	TransactionWithdraw       = "withdraw"
	TransactionTransferDebit  = "transfer-debit"
	TransactionTransferCredit = "transfer-credit"
)

// TransactionRecord is a read-only summary of a posted transaction
type TransactionRecord struct {
	Type        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Account     AccountRef      `json:"accountId"`
	Timestamp   time.Time       `json:"createdAt"`
}

// Credit reports whether the record increased the account balance
func (t TransactionRecord) Credit() bool {
	return t.Type == TransactionDeposit || t.Type == TransactionTransferCredit
}

// AccountRef identifies the account a transaction was posted to. The ledger
// populates it on the summary endpoint and sends the bare id elsewhere.
type AccountRef struct {
	ID            string `json:"_id,omitempty"`
	AccountNumber string `json:"accountNumber,omitempty"`
	AccountType   string `json:"accountType,omitempty"`
}

// UnmarshalJSON accepts both a bare id string and a populated reference.
func (r *AccountRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &r.ID)
	}
	type plain AccountRef
	return json.Unmarshal(data, (*plain)(r))
}

// BalanceResult is the ledger's answer to a deposit or withdrawal.
// NewBalance is invalid when the ledger omitted it.
type BalanceResult struct {
	Success    bool                `json:"success"`
	NewBalance decimal.NullDecimal `json:"newBalance"`
	Message    string          `json:"message,omitempty"`
}

// TransferResult is the ledger's answer to a transfer
type TransferResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Summary is the dashboard payload
type Summary struct {
	Accounts     []Account           `json:"accounts"`
	Transactions []TransactionRecord `json:"transactions"`
}
