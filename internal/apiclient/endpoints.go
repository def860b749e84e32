package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/Dan9191/bank-client/internal/models"
)

// authPayload is the user document returned by register and login. Older
// ledger builds send the id as `_id`.
type authPayload struct {
	ID      string `json:"id"`
	MongoID string `json:"_id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Token   string `json:"token"`
	IsAdmin bool   `json:"isAdmin"`
}

func (p authPayload) session() *models.Session {
	id := p.ID
	if id == "" {
		id = p.MongoID
	}
	return &models.Session{UserID: id, Name: p.Name, Email: p.Email, Token: p.Token, IsAdmin: p.IsAdmin}
}

// amount renders a decimal as a JSON number with two decimals
func amount(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}

// Register creates a user: POST /users
func (c *Client) Register(ctx context.Context, name, email, password string) (*models.Session, error) {
	var out authPayload
	in := map[string]string{"name": name, "email": email, "password": password}
	if err := c.do(ctx, "register", http.MethodPost, "/users", false, in, &out); err != nil {
		return nil, err
	}
	return out.session(), nil
}

// Login authenticates: POST /users/login
func (c *Client) Login(ctx context.Context, email, password string) (*models.Session, error) {
	var out authPayload
	in := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, "login", http.MethodPost, "/users/login", false, in, &out); err != nil {
		return nil, err
	}
	return out.session(), nil
}

// ProfileUpdate is the body of PUT /users/profile. An empty Password keeps
// the current one.
type ProfileUpdate struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password,omitempty"`
}

// UpdateProfile changes the caller's name, email and optionally password
func (c *Client) UpdateProfile(ctx context.Context, in ProfileUpdate) (*models.Profile, error) {
	var out models.Profile
	if err := c.do(ctx, "update profile", http.MethodPut, "/users/profile", true, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Accounts lists the caller's accounts: GET /accounts
func (c *Client) Accounts(ctx context.Context) ([]models.Account, error) {
	var out []models.Account
	if err := c.do(ctx, "accounts", http.MethodGet, "/accounts", true, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AllAccounts lists every account with its owner: GET /accounts/all
func (c *Client) AllAccounts(ctx context.Context) ([]models.Account, error) {
	var out []models.Account
	if err := c.do(ctx, "all accounts", http.MethodGet, "/accounts/all", true, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateAccount opens an account: POST /accounts
func (c *Client) CreateAccount(ctx context.Context, accountType string) (*models.Account, error) {
	var out models.Account
	in := map[string]string{"accountType": accountType}
	if err := c.do(ctx, "create account", http.MethodPost, "/accounts", true, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetAccountStatus toggles an account: PUT /accounts/status/:id
func (c *Client) SetAccountStatus(ctx context.Context, id string, active bool) (string, error) {
	var out messageBody
	in := map[string]bool{"isActive": active}
	if err := c.do(ctx, "account status", http.MethodPut, "/accounts/status/"+url.PathEscape(id), true, in, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

type movement struct {
	AccountNumber string      `json:"accountNumber"`
	Amount        json.Number `json:"amount"`
}

// Deposit credits an account: POST /transactions/deposit
func (c *Client) Deposit(ctx context.Context, accountNumber string, amt decimal.Decimal) (*models.BalanceResult, error) {
	var out models.BalanceResult
	in := movement{AccountNumber: accountNumber, Amount: amount(amt)}
	if err := c.do(ctx, "deposit", http.MethodPost, "/transactions/deposit", true, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Withdraw debits an account: POST /transactions/withdraw
func (c *Client) Withdraw(ctx context.Context, accountNumber string, amt decimal.Decimal) (*models.BalanceResult, error) {
	var out models.BalanceResult
	in := movement{AccountNumber: accountNumber, Amount: amount(amt)}
	if err := c.do(ctx, "withdraw", http.MethodPost, "/transactions/withdraw", true, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Transfer moves funds between accounts: POST /transactions/transfer
func (c *Client) Transfer(ctx context.Context, fromAccountNumber, toAccountNumber string, amt decimal.Decimal) (*models.TransferResult, error) {
	var out models.TransferResult
	in := struct {
		From   string      `json:"fromAccountNumber"`
		To     string      `json:"toAccountNumber"`
		Amount json.Number `json:"amount"`
	}{fromAccountNumber, toAccountNumber, amount(amt)}
	if err := c.do(ctx, "transfer", http.MethodPost, "/transactions/transfer", true, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Summary fetches the dashboard: GET /transactions/summary
func (c *Client) Summary(ctx context.Context) (*models.Summary, error) {
	var out models.Summary
	if err := c.do(ctx, "summary", http.MethodGet, "/transactions/summary", true, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
