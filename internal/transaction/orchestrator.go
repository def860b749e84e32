// Package transaction sequences money-movement requests. Every operation
// checks its preconditions against a snapshot of the fetched accounts before
// a request is built, so a failed check never reaches the network.
package transaction

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/bank-client/internal/apierr"
	"github.com/Dan9191/bank-client/internal/models"
	"github.com/Dan9191/bank-client/internal/validation"
)

// Op names a money-movement operation
type Op string

const (
	OpDeposit  Op = "deposit"
	OpWithdraw Op = "withdraw"
	OpTransfer Op = "transfer"
)

// Local rejections
var (
	ErrInvalidAmount        = apierr.Validation("Please enter a valid amount greater than zero.")
	ErrSameAccount          = apierr.Validation("Source and destination accounts must be different.")
	ErrInsufficientFunds    = apierr.Validation("Insufficient funds. Withdrawal amount exceeds account balance.")
	ErrInsufficientTransfer = apierr.Validation("Insufficient funds. Transfer amount exceeds source account balance.")
	ErrInvalidAccount       = apierr.Validation("Invalid Account Selected")
	ErrInvalidTransferPair  = apierr.Validation("Invalid source or destination account selected.")
	ErrInFlight             = apierr.Validation("Another transaction is still being processed.")
	ErrNotAuthenticated     = &apierr.Error{Kind: apierr.KindUnauthorized, Message: "Not logged in."}
)

// Gateway is the slice of the ledger API the orchestrator drives
type Gateway interface {
	Accounts(ctx context.Context) ([]models.Account, error)
	Deposit(ctx context.Context, accountNumber string, amount decimal.Decimal) (*models.BalanceResult, error)
	Withdraw(ctx context.Context, accountNumber string, amount decimal.Decimal) (*models.BalanceResult, error)
	Transfer(ctx context.Context, fromAccountNumber, toAccountNumber string, amount decimal.Decimal) (*models.TransferResult, error)
}

// Session supplies the credential state and accepts authorization failures
type Session interface {
	Token() (string, bool)
	Invalidate(reason string)
}

// Result describes a settled operation
type Result struct {
	Op      Op
	Amount  decimal.Decimal
	Message string
	// Account is the reconciled source account for deposit and withdraw
	Account *models.Account
	// Refetch asks the caller to reload the accounts before showing balances
	Refetch bool
}

// Orchestrator coordinates deposit, withdraw and transfer flows
type Orchestrator struct {
	gw      Gateway
	session Session
	log     *logrus.Logger

	mu       sync.Mutex
	accounts []models.Account
	busy     atomic.Bool
}

// NewOrchestrator creates an orchestrator with an empty account list
func NewOrchestrator(gw Gateway, session Session, log *logrus.Logger) *Orchestrator {
	return &Orchestrator{gw: gw, session: session, log: log}
}

// Refresh replaces the held accounts with the ledger's current list
func (o *Orchestrator) Refresh(ctx context.Context) error {
	if _, ok := o.session.Token(); !ok {
		return ErrNotAuthenticated
	}
	accounts, err := o.gw.Accounts(ctx)
	if err != nil {
		o.invalidateOn(err)
		return apierr.Normalize(err, "Failed to load accounts. Please try again.")
	}
	o.SetAccounts(accounts)
	return nil
}

// SetAccounts replaces the held accounts
func (o *Orchestrator) SetAccounts(accounts []models.Account) {
	cp := make([]models.Account, len(accounts))
	copy(cp, accounts)
	o.mu.Lock()
	o.accounts = cp
	o.mu.Unlock()
}

// Accounts returns a copy of the held accounts
func (o *Orchestrator) Accounts() []models.Account {
	o.mu.Lock()
	defer o.mu.Unlock()
	cp := make([]models.Account, len(o.accounts))
	copy(cp, o.accounts)
	return cp
}

// Sources lists the accounts selectable for an operation
func (o *Orchestrator) Sources() []models.Account {
	return Sources(o.Accounts())
}

// Destinations lists the accounts selectable as a transfer target
func (o *Orchestrator) Destinations(sourceID string) []models.Account {
	return Destinations(o.Accounts(), sourceID)
}

// ParseAmount validates a user-typed amount: a finite number with at most
// two decimals, greater than zero
func ParseAmount(input string) (decimal.Decimal, error) {
	if !validation.AmountRules.Valid(input) {
		return decimal.Zero, ErrInvalidAmount
	}
	amt, err := validation.ParseNumber(input)
	if err != nil || !amt.IsPositive() || !amt.Equal(amt.Round(2)) {
		return decimal.Zero, ErrInvalidAmount
	}
	return amt, nil
}

// Deposit credits accountID with amount
func (o *Orchestrator) Deposit(ctx context.Context, accountID, amount string) (*Result, error) {
	return o.single(ctx, OpDeposit, accountID, amount)
}

// Withdraw debits accountID by amount
func (o *Orchestrator) Withdraw(ctx context.Context, accountID, amount string) (*Result, error) {
	return o.single(ctx, OpWithdraw, accountID, amount)
}

func (o *Orchestrator) single(ctx context.Context, op Op, accountID, input string) (*Result, error) {
	release, err := o.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	amt, err := ParseAmount(input)
	if err != nil {
		return nil, err
	}
	acct, ok := models.FindAccount(o.Sources(), accountID)
	if !ok {
		return nil, ErrInvalidAccount
	}
	if op == OpWithdraw && amt.GreaterThan(acct.Balance) {
		return nil, ErrInsufficientFunds
	}

	log := o.log.WithFields(logrus.Fields{"op": op, "account": acct.AccountNumber})
	var res *models.BalanceResult
	if op == OpDeposit {
		res, err = o.gw.Deposit(ctx, acct.AccountNumber, amt)
	} else {
		res, err = o.gw.Withdraw(ctx, acct.AccountNumber, amt)
	}
	fallback := fmt.Sprintf("Transaction failed: %s.", op)
	if err != nil {
		o.invalidateOn(err)
		norm := apierr.Normalize(err, fallback)
		log.WithField("kind", norm.Kind).Warn(norm.Message)
		return nil, norm
	}

	verb := "Deposit"
	if op == OpWithdraw {
		verb = "Withdrawal"
	}
	out := &Result{Op: op, Amount: amt}
	if !res.NewBalance.Valid {
		log.Warn("Ledger reply carries no balance")
		out.Refetch = true
		out.Message = verb + " successful!"
		log.Info(out.Message)
		return out, nil
	}

	balance := res.NewBalance.Decimal
	o.mu.Lock()
	next, rerr := ApplyBalance(o.accounts, acct.ID, balance)
	if rerr == nil {
		o.accounts = next
	}
	o.mu.Unlock()
	if rerr != nil {
		log.WithError(rerr).Error("Refusing ledger balance")
		out.Refetch = true
	} else {
		acct.Balance = balance
		out.Account = &acct
	}

	out.Message = fmt.Sprintf("%s successful! New balance: $%s", verb, balance.StringFixed(2))
	log.Info(out.Message)
	return out, nil
}

// Transfer moves amount from sourceID to destID. Balances are not adjusted
// locally; the result asks the caller to refetch.
func (o *Orchestrator) Transfer(ctx context.Context, sourceID, destID, input string) (*Result, error) {
	release, err := o.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	amt, err := ParseAmount(input)
	if err != nil {
		return nil, err
	}
	if sourceID == destID {
		return nil, ErrSameAccount
	}
	accounts := o.Accounts()
	src, ok := models.FindAccount(Sources(accounts), sourceID)
	if !ok {
		return nil, ErrInvalidTransferPair
	}
	if amt.GreaterThan(src.Balance) {
		return nil, ErrInsufficientTransfer
	}
	dst, ok := models.FindAccount(Destinations(accounts, sourceID), destID)
	if !ok {
		return nil, ErrInvalidTransferPair
	}

	log := o.log.WithFields(logrus.Fields{"op": OpTransfer, "from": src.AccountNumber, "to": dst.AccountNumber})
	if _, err := o.gw.Transfer(ctx, src.AccountNumber, dst.AccountNumber, amt); err != nil {
		o.invalidateOn(err)
		norm := apierr.Normalize(err, "Transfer failed.")
		log.WithField("kind", norm.Kind).Warn(norm.Message)
		return nil, norm
	}

	out := &Result{
		Op:      OpTransfer,
		Amount:  amt,
		Message: fmt.Sprintf("Transfer successful! $%s moved.", amt.StringFixed(2)),
		Refetch: true,
	}
	log.Info(out.Message)
	return out, nil
}

// acquire enforces single flight and requires an authenticated session
func (o *Orchestrator) acquire() (func(), error) {
	if _, ok := o.session.Token(); !ok {
		return nil, ErrNotAuthenticated
	}
	if !o.busy.CompareAndSwap(false, true) {
		return nil, ErrInFlight
	}
	return func() { o.busy.Store(false) }, nil
}

func (o *Orchestrator) invalidateOn(err error) {
	if apierr.IsUnauthorized(err) {
		o.session.Invalidate("unauthorized")
	}
}
