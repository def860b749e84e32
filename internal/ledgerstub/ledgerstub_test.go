package ledgerstub

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dan9191/bank-client/internal/config"
	"github.com/Dan9191/bank-client/internal/models"
)

func newTestService(t *testing.T) (*Service, *MemoryRepository) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	repo := NewMemoryRepository()
	cfg := &config.LedgerConfig{JWTSecret: "test-secret", TokenTTL: time.Hour, AdminEmail: "admin@bank.local"}
	return NewService(repo, log, cfg), repo
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.Register(ctx, "Ann", "Ann@Example.com", "secret!pw")
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", res.User.Email)
	assert.False(t, res.User.IsAdmin)

	subject, err := svc.ParseToken(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, subject)

	_, err = svc.Register(ctx, "Ann", "ann@example.com", "other!pw")
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, err = svc.Login(ctx, "ann@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	login, err := svc.Login(ctx, "ann@example.com", "secret!pw")
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, login.User.ID)

	admin, err := svc.Register(ctx, "Root", "admin@bank.local", "secret!pw")
	require.NoError(t, err)
	assert.True(t, admin.User.IsAdmin)
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	svc, _ := newTestService(t)
	other := NewService(NewMemoryRepository(), svc.log, &config.LedgerConfig{JWTSecret: "other", TokenTTL: time.Hour})

	res, err := other.Register(context.Background(), "Ann", "ann@example.com", "secret!pw")
	require.NoError(t, err)

	_, err = svc.ParseToken(res.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPostings(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "Ann", "ann@example.com", "secret!pw")
	require.NoError(t, err)
	uid := user.User.ID
	a, err := svc.CreateAccount(ctx, uid, models.AccountTypeChecking)
	require.NoError(t, err)
	b, err := svc.CreateAccount(ctx, uid, models.AccountTypeSavings)
	require.NoError(t, err)
	assert.Len(t, a.AccountNumber, 10)

	_, err = svc.CreateAccount(ctx, uid, "Brokerage")
	assert.ErrorIs(t, err, ErrInvalidAccountType)

	bal, err := svc.Deposit(ctx, uid, a.AccountNumber, decimal.RequireFromString("100"))
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.RequireFromString("100")))

	_, err = svc.Withdraw(ctx, uid, a.AccountNumber, decimal.RequireFromString("150"))
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	bal, err = svc.Withdraw(ctx, uid, a.AccountNumber, decimal.RequireFromString("30.25"))
	require.NoError(t, err)
	assert.Equal(t, "69.75", bal.StringFixed(2))

	// a failing transfer leaves both balances untouched
	err = svc.Transfer(ctx, uid, a.AccountNumber, b.AccountNumber, decimal.RequireFromString("70"))
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	require.NoError(t, svc.Transfer(ctx, uid, a.AccountNumber, b.AccountNumber, decimal.RequireFromString("19.75")))
	assert.ErrorIs(t, svc.Transfer(ctx, uid, a.AccountNumber, a.AccountNumber, decimal.NewFromInt(1)), ErrSameAccount)

	accounts, err := repo.AccountsByUser(ctx, uid)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "50.00", accounts[0].Balance.StringFixed(2))
	assert.Equal(t, "19.75", accounts[1].Balance.StringFixed(2))

	sum, err := svc.Summary(ctx, uid)
	require.NoError(t, err)
	require.Len(t, sum.Transactions, 4)
	assert.ElementsMatch(t,
		[]string{models.TransactionTransferDebit, models.TransactionTransferCredit},
		[]string{sum.Transactions[0].Type, sum.Transactions[1].Type})
	assert.Equal(t, models.TransactionDeposit, sum.Transactions[3].Type)
}

func TestPostRejectsForeignAndInactiveAccounts(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	ann, err := svc.Register(ctx, "Ann", "ann@example.com", "secret!pw")
	require.NoError(t, err)
	bob, err := svc.Register(ctx, "Bob", "bob@example.com", "secret!pw")
	require.NoError(t, err)
	admin, err := svc.Register(ctx, "Root", "admin@bank.local", "secret!pw")
	require.NoError(t, err)

	acct, err := svc.CreateAccount(ctx, ann.User.ID, models.AccountTypeSavings)
	require.NoError(t, err)

	_, err = svc.Deposit(ctx, bob.User.ID, acct.AccountNumber, decimal.NewFromInt(5))
	assert.ErrorIs(t, err, ErrAccountNotFound)

	assert.ErrorIs(t, svc.SetAccountStatus(ctx, ann.User.ID, acct.ID, false), ErrForbidden)
	require.NoError(t, svc.SetAccountStatus(ctx, admin.User.ID, acct.ID, false))

	_, err = svc.Deposit(ctx, ann.User.ID, acct.AccountNumber, decimal.NewFromInt(5))
	assert.ErrorIs(t, err, ErrAccountInactive)

	all, err := svc.AllAccounts(ctx, admin.User.ID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "ann@example.com", all[0].Owner.Email)
}

func TestRouter(t *testing.T) {
	svc, _ := newTestService(t)
	srv := httptest.NewServer(NewRouter(svc, svc.log))
	defer srv.Close()

	call := func(method, path, token string, body any) (*http.Response, map[string]any) {
		var buf bytes.Buffer
		if body != nil {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
		req, err := http.NewRequest(method, srv.URL+path, &buf)
		require.NoError(t, err)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		var out map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&out)
		return resp, out
	}

	resp, out := call(http.MethodPost, "/api/users", "", map[string]string{
		"name": "Ann", "email": "ann@example.com", "password": "secret!pw",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	token, _ := out["token"].(string)
	require.NotEmpty(t, token)
	assert.NotEmpty(t, out["_id"])

	resp, out = call(http.MethodGet, "/api/transactions/summary", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Not authorized, no token", out["message"])

	resp, out = call(http.MethodGet, "/api/transactions/summary", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Not authorized, token failed", out["message"])

	resp, _ = call(http.MethodGet, "/api/accounts/all", token, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, out = call(http.MethodPost, "/api/accounts", token, map[string]string{"accountType": "Savings"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	number, _ := out["accountNumber"].(string)

	resp, out = call(http.MethodPost, "/api/transactions/withdraw", token, map[string]any{
		"accountNumber": number, "amount": json.Number("5.00"),
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Insufficient funds", out["message"])

	resp, out = call(http.MethodPost, "/api/transactions/deposit", token, map[string]any{
		"accountNumber": number, "amount": json.Number("12.50"),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "12.5", out["newBalance"])
}
