package transaction

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dan9191/bank-client/internal/apierr"
	"github.com/Dan9191/bank-client/internal/models"
)

type call struct {
	op     string
	from   string
	to     string
	amount string
}

type fakeGateway struct {
	mu         sync.Mutex
	calls      []call
	newBalance decimal.Decimal
	noBalance  bool
	err        error
	block      chan struct{}
	entered    chan struct{}
}

func (g *fakeGateway) record(c call) {
	g.mu.Lock()
	g.calls = append(g.calls, c)
	g.mu.Unlock()
	if g.entered != nil {
		close(g.entered)
	}
	if g.block != nil {
		<-g.block
	}
}

func (g *fakeGateway) Calls() []call {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]call(nil), g.calls...)
}

func (g *fakeGateway) Accounts(ctx context.Context) ([]models.Account, error) {
	g.record(call{op: "accounts"})
	return nil, g.err
}

func (g *fakeGateway) Deposit(ctx context.Context, number string, amt decimal.Decimal) (*models.BalanceResult, error) {
	g.record(call{op: "deposit", from: number, amount: amt.StringFixed(2)})
	if g.err != nil {
		return nil, g.err
	}
	return g.balanceResult(), nil
}

func (g *fakeGateway) Withdraw(ctx context.Context, number string, amt decimal.Decimal) (*models.BalanceResult, error) {
	g.record(call{op: "withdraw", from: number, amount: amt.StringFixed(2)})
	if g.err != nil {
		return nil, g.err
	}
	return g.balanceResult(), nil
}

func (g *fakeGateway) balanceResult() *models.BalanceResult {
	if g.noBalance {
		return &models.BalanceResult{Success: true}
	}
	return &models.BalanceResult{Success: true, NewBalance: decimal.NewNullDecimal(g.newBalance)}
}

func (g *fakeGateway) Transfer(ctx context.Context, from, to string, amt decimal.Decimal) (*models.TransferResult, error) {
	g.record(call{op: "transfer", from: from, to: to, amount: amt.StringFixed(2)})
	if g.err != nil {
		return nil, g.err
	}
	return &models.TransferResult{Success: true}, nil
}

type fakeSession struct {
	mu          sync.Mutex
	token       string
	invalidated int
}

func (s *fakeSession) Token() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.token != ""
}

func (s *fakeSession) Invalidate(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.invalidated++
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func fixture() []models.Account {
	return []models.Account{
		{ID: "a1", AccountNumber: "1001", AccountType: models.AccountTypeSavings, Balance: dec("50"), IsActive: true},
		{ID: "a2", AccountNumber: "1002", AccountType: models.AccountTypeChecking, Balance: dec("200.50"), IsActive: true},
		{ID: "a3", AccountNumber: "1003", AccountType: models.AccountTypeChecking, Balance: dec("10"), IsActive: false},
	}
}

func newOrchestrator(gw *fakeGateway) (*Orchestrator, *fakeSession) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	sess := &fakeSession{token: "t1"}
	o := NewOrchestrator(gw, sess, log)
	o.SetAccounts(fixture())
	return o, sess
}

func TestDeposit_RejectsNonPositiveAmount(t *testing.T) {
	t.Parallel()

	for _, amount := range []string{"-5", "0", "", "abc", "NaN", "Infinity", "0.001", "1.005"} {
		gw := &fakeGateway{}
		o, _ := newOrchestrator(gw)

		_, err := o.Deposit(context.Background(), "a1", amount)
		require.ErrorIs(t, err, ErrInvalidAmount, "amount %q", amount)
		assert.Contains(t, err.Error(), "valid amount greater than zero")
		assert.Empty(t, gw.Calls(), "amount %q", amount)
	}
}

func TestDeposit_ReconcilesBalance(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{newBalance: dec("75.25")}
	o, _ := newOrchestrator(gw)

	res, err := o.Deposit(context.Background(), "a1", "25.25")
	require.NoError(t, err)

	assert.Equal(t, []call{{op: "deposit", from: "1001", amount: "25.25"}}, gw.Calls())
	assert.Equal(t, "Deposit successful! New balance: $75.25", res.Message)
	assert.False(t, res.Refetch)
	require.NotNil(t, res.Account)
	assert.True(t, res.Account.Balance.Equal(dec("75.25")))

	accounts := o.Accounts()
	assert.True(t, accounts[0].Balance.Equal(dec("75.25")))
	assert.True(t, accounts[1].Balance.Equal(dec("200.50")), "other accounts untouched")
}

func TestDeposit_UnknownAccount(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{}
	o, _ := newOrchestrator(gw)

	_, err := o.Deposit(context.Background(), "missing", "10")
	assert.ErrorIs(t, err, ErrInvalidAccount)
	assert.Empty(t, gw.Calls())
}

func TestWithdraw_BalanceBoundary(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{newBalance: decimal.Zero}
	o, _ := newOrchestrator(gw)

	for _, amount := range []string{"50.01", "51", "1000000"} {
		_, err := o.Withdraw(context.Background(), "a1", amount)
		require.ErrorIs(t, err, ErrInsufficientFunds, "amount %s", amount)
	}
	assert.Empty(t, gw.Calls())

	res, err := o.Withdraw(context.Background(), "a1", "50")
	require.NoError(t, err)
	assert.Equal(t, "Withdrawal successful! New balance: $0.00", res.Message)
	assert.True(t, o.Accounts()[0].Balance.IsZero())
}

func TestWithdraw_AmountsAboveBalanceAlwaysRejected(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{}
	o, _ := newOrchestrator(gw)

	for _, acct := range fixture() {
		for _, step := range []string{"0.01", "0.02", "1", "99.99", "12345.67"} {
			amount := acct.Balance.Add(dec(step)).StringFixed(2)

			_, err := o.Withdraw(context.Background(), acct.ID, amount)
			assert.ErrorIs(t, err, ErrInsufficientFunds, "%s amount %s", acct.ID, amount)

			for _, other := range fixture() {
				if other.ID == acct.ID {
					continue
				}
				_, err := o.Transfer(context.Background(), acct.ID, other.ID, amount)
				assert.ErrorIs(t, err, ErrInsufficientTransfer, "%s->%s amount %s", acct.ID, other.ID, amount)
			}
		}
	}
	assert.Empty(t, gw.Calls())
}

func TestTransfer_InsufficientFunds(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{}
	o, _ := newOrchestrator(gw)

	_, err := o.Transfer(context.Background(), "a1", "a2", "100")
	require.ErrorIs(t, err, ErrInsufficientTransfer)
	assert.Equal(t, "Insufficient funds. Transfer amount exceeds source account balance.", err.Error())
	assert.Empty(t, gw.Calls())
}

func TestTransfer_SameAccountRejected(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{}
	o, _ := newOrchestrator(gw)

	for _, amount := range []string{"1", "50", "5000", "-3", ""} {
		_, err := o.Transfer(context.Background(), "a2", "a2", amount)
		assert.Error(t, err, "amount %q", amount)
	}
	_, err := o.Transfer(context.Background(), "a2", "a2", "1")
	assert.ErrorIs(t, err, ErrSameAccount)
	assert.Empty(t, gw.Calls())
}

func TestTransfer_DefersReconciliation(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{}
	o, _ := newOrchestrator(gw)
	before := o.Accounts()

	res, err := o.Transfer(context.Background(), "a2", "a1", "100")
	require.NoError(t, err)

	assert.Equal(t, []call{{op: "transfer", from: "1002", to: "1001", amount: "100.00"}}, gw.Calls())
	assert.Equal(t, "Transfer successful! $100.00 moved.", res.Message)
	assert.True(t, res.Refetch)
	assert.Nil(t, res.Account)
	assert.Equal(t, before, o.Accounts())
}

func TestTransfer_UnknownDestination(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{}
	o, _ := newOrchestrator(gw)

	_, err := o.Transfer(context.Background(), "a2", "nope", "1")
	assert.ErrorIs(t, err, ErrInvalidTransferPair)
	assert.Empty(t, gw.Calls())
}

func TestOperation_ErrorClassification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name        string
		err         error
		run         func(*Orchestrator) error
		want        string
		invalidated bool
	}{
		{
			name: "server message verbatim",
			err:  apierr.FromStatus("withdraw", http.StatusBadRequest, "Insufficient funds"),
			run: func(o *Orchestrator) error {
				_, err := o.Withdraw(context.Background(), "a2", "10")
				return err
			},
			want: "Insufficient funds",
		},
		{
			name: "transport fallback",
			err:  apierr.Transport("withdraw", errors.New("i/o timeout")),
			run: func(o *Orchestrator) error {
				_, err := o.Withdraw(context.Background(), "a2", "10")
				return err
			},
			want: "Transaction failed: withdraw.",
		},
		{
			name: "deposit fallback",
			err:  apierr.FromStatus("deposit", http.StatusBadRequest, ""),
			run: func(o *Orchestrator) error {
				_, err := o.Deposit(context.Background(), "a2", "10")
				return err
			},
			want: "Transaction failed: deposit.",
		},
		{
			name: "transfer fallback",
			err:  apierr.Transport("transfer", errors.New("reset")),
			run: func(o *Orchestrator) error {
				_, err := o.Transfer(context.Background(), "a2", "a1", "10")
				return err
			},
			want: "Transfer failed.",
		},
		{
			name: "expired credential",
			err:  apierr.FromStatus("deposit", http.StatusUnauthorized, "Not authorized, token failed"),
			run: func(o *Orchestrator) error {
				_, err := o.Deposit(context.Background(), "a1", "10")
				return err
			},
			want:        "Not authorized, token failed",
			invalidated: true,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			gw := &fakeGateway{err: tc.err}
			o, sess := newOrchestrator(gw)
			before := o.Accounts()

			err := tc.run(o)
			require.Error(t, err)
			assert.Equal(t, tc.want, err.Error())
			assert.Equal(t, tc.invalidated, sess.invalidated == 1)
			assert.Equal(t, before, o.Accounts(), "failed operations must not touch balances")
		})
	}
}

func TestOperation_RequiresSession(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{}
	o, sess := newOrchestrator(gw)
	sess.Invalidate("test")

	_, err := o.Deposit(context.Background(), "a1", "10")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.ErrorIs(t, o.Refresh(context.Background()), ErrNotAuthenticated)
	assert.Empty(t, gw.Calls())
}

func TestOperation_SingleFlight(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{newBalance: dec("60"), block: make(chan struct{}), entered: make(chan struct{})}
	o, _ := newOrchestrator(gw)

	done := make(chan error, 1)
	go func() {
		_, err := o.Deposit(context.Background(), "a1", "10")
		done <- err
	}()
	<-gw.entered

	_, err := o.Transfer(context.Background(), "a2", "a1", "5")
	assert.ErrorIs(t, err, ErrInFlight)

	close(gw.block)
	require.NoError(t, <-done)
	assert.Len(t, gw.Calls(), 1)
}

func TestDeposit_NegativeLedgerBalanceForcesRefetch(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{newBalance: dec("-1")}
	o, _ := newOrchestrator(gw)
	before := o.Accounts()

	res, err := o.Deposit(context.Background(), "a1", "1")
	require.NoError(t, err)
	assert.True(t, res.Refetch)
	assert.Nil(t, res.Account)
	assert.Equal(t, before, o.Accounts())
}

func TestInactiveAccountsAreNotSelectable(t *testing.T) {
	t.Parallel()

	o, _ := newOrchestrator(&fakeGateway{})

	ids := func(accts []models.Account) []string {
		var out []string
		for _, a := range accts {
			out = append(out, a.ID)
		}
		return out
	}
	assert.Equal(t, []string{"a1", "a2"}, ids(o.Sources()))
	assert.Equal(t, []string{"a2"}, ids(o.Destinations("a1")))
	assert.Len(t, o.Accounts(), 3, "inactive accounts stay listed")
}

func TestRefresh(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{err: apierr.FromStatus("accounts", http.StatusUnauthorized, "")}
	o, sess := newOrchestrator(gw)

	err := o.Refresh(context.Background())
	require.Error(t, err)
	assert.Equal(t, "Failed to load accounts. Please try again.", err.Error())
	assert.Equal(t, 1, sess.invalidated)
}

func TestApplyBalance_IsPure(t *testing.T) {
	t.Parallel()

	in := fixture()
	out, err := ApplyBalance(in, "a2", dec("1.00"))
	require.NoError(t, err)

	assert.True(t, in[1].Balance.Equal(dec("200.50")), "input untouched")
	assert.True(t, out[1].Balance.Equal(dec("1.00")))
	assert.True(t, out[0].Balance.Equal(in[0].Balance))

	same, err := ApplyBalance(in, "missing", dec("9"))
	require.NoError(t, err)
	assert.Equal(t, in, same)

	_, err = ApplyBalance(in, "a1", dec("-0.01"))
	assert.ErrorIs(t, err, ErrNegativeBalance)
}

func TestDeposit_MissingLedgerBalanceForcesRefetch(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{noBalance: true}
	o, _ := newOrchestrator(gw)
	before := o.Accounts()

	res, err := o.Deposit(context.Background(), "a2", "10")
	require.NoError(t, err)
	assert.True(t, res.Refetch)
	assert.Nil(t, res.Account)
	assert.Equal(t, "Deposit successful!", res.Message)
	assert.Equal(t, before, o.Accounts())
}

func TestInactiveAccountsAreRejectedBeforeAnyRequest(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{newBalance: dec("1")}
	o, _ := newOrchestrator(gw)
	ctx := context.Background()

	_, err := o.Withdraw(ctx, "a3", "1")
	assert.Equal(t, ErrInvalidAccount, err)
	_, err = o.Deposit(ctx, "a3", "1")
	assert.Equal(t, ErrInvalidAccount, err)
	_, err = o.Transfer(ctx, "a3", "a1", "1")
	assert.Equal(t, ErrInvalidTransferPair, err)
	_, err = o.Transfer(ctx, "a2", "a3", "1")
	assert.Equal(t, ErrInvalidTransferPair, err)
	assert.Empty(t, gw.Calls())
}

func TestParseAmount_ExponentNotationIsRejectedPromptly(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"1e999999999", "1e-999999999", "1E2"} {
		done := make(chan error, 1)
		go func() {
			_, err := ParseAmount(in)
			done <- err
		}()
		select {
		case err := <-done:
			assert.Equal(t, ErrInvalidAmount, err, "input %q", in)
		case <-time.After(5 * time.Second):
			t.Fatalf("ParseAmount(%q) did not return", in)
		}
	}

	gw := &fakeGateway{}
	o, _ := newOrchestrator(gw)
	_, err := o.Deposit(context.Background(), "a1", "1e999999999")
	assert.Equal(t, ErrInvalidAmount, err)
	assert.Empty(t, gw.Calls())
}
