package ledgerstub

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/Dan9191/bank-client/internal/models"
)

const schema = `
CREATE SCHEMA IF NOT EXISTS bank;
CREATE TABLE IF NOT EXISTS bank.users (
	id            BIGSERIAL PRIMARY KEY,
	name          TEXT NOT NULL,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	is_admin      BOOLEAN NOT NULL DEFAULT FALSE,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS bank.accounts (
	id             BIGSERIAL PRIMARY KEY,
	user_id        BIGINT NOT NULL REFERENCES bank.users(id),
	account_number TEXT NOT NULL UNIQUE,
	account_type   TEXT NOT NULL,
	balance        NUMERIC(14,2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
	is_active      BOOLEAN NOT NULL DEFAULT TRUE,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS bank.transactions (
	id          BIGSERIAL PRIMARY KEY,
	account_id  BIGINT NOT NULL REFERENCES bank.accounts(id),
	type        TEXT NOT NULL,
	amount      NUMERIC(14,2) NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);`

// uniqueViolation is the Postgres error code for a duplicate key
const uniqueViolation = "23505"

// PostgresRepository provides database operations
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository initializes a new repository
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Migrate creates the bank schema when it is missing
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// CreateUser creates a new user in the database
func (r *PostgresRepository) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO bank.users (name, email, password_hash, is_admin)
		VALUES ($1, $2, $3, $4)
		RETURNING id::text, created_at`
	err := r.db.QueryRowContext(ctx, query, user.Name, user.Email, user.PasswordHash, user.IsAdmin).
		Scan(&user.ID, &user.CreatedAt)
	if isUniqueViolation(err) {
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// FindUserByEmail retrieves a user by email
func (r *PostgresRepository) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findUser(ctx, "email = $1", email)
}

// FindUserByID retrieves a user by id
func (r *PostgresRepository) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	return r.findUser(ctx, "id::text = $1", id)
}

func (r *PostgresRepository) findUser(ctx context.Context, where string, arg any) (*models.User, error) {
	user := &models.User{}
	query := `
		SELECT id::text, name, email, password_hash, is_admin, created_at
		FROM bank.users
		WHERE ` + where
	err := r.db.QueryRowContext(ctx, query, arg).
		Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.IsAdmin, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// UpdateUser rewrites a user's name, email, password hash and admin flag
func (r *PostgresRepository) UpdateUser(ctx context.Context, user *models.User) error {
	query := `
		UPDATE bank.users
		SET name = $2, email = $3, password_hash = $4, is_admin = $5
		WHERE id::text = $1`
	res, err := r.db.ExecContext(ctx, query, user.ID, user.Name, user.Email, user.PasswordHash, user.IsAdmin)
	if isUniqueViolation(err) {
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// CreateAccount creates a new account in the database
func (r *PostgresRepository) CreateAccount(ctx context.Context, account *models.Account) error {
	if account.Owner == nil {
		return ErrUserNotFound
	}
	query := `
		INSERT INTO bank.accounts (user_id, account_number, account_type, balance, is_active)
		VALUES ($1::bigint, $2, $3, $4, $5)
		RETURNING id::text`
	err := r.db.QueryRowContext(ctx, query, account.Owner.ID, account.AccountNumber, account.AccountType, account.Balance, account.IsActive).
		Scan(&account.ID)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// AccountsByUser lists a user's accounts in creation order
func (r *PostgresRepository) AccountsByUser(ctx context.Context, userID string) ([]models.Account, error) {
	query := `
		SELECT id::text, account_number, account_type, balance, is_active, user_id::text
		FROM bank.accounts
		WHERE user_id::text = $1
		ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	accounts := []models.Account{}
	for rows.Next() {
		var a models.Account
		owner := &models.AccountOwner{}
		if err := rows.Scan(&a.ID, &a.AccountNumber, &a.AccountType, &a.Balance, &a.IsActive, &owner.ID); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		a.Owner = owner
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// AllAccounts lists every account with its owner
func (r *PostgresRepository) AllAccounts(ctx context.Context) ([]models.Account, error) {
	query := `
		SELECT a.id::text, a.account_number, a.account_type, a.balance, a.is_active,
		       u.id::text, u.name, u.email
		FROM bank.accounts a
		JOIN bank.users u ON u.id = a.user_id
		ORDER BY a.id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	accounts := []models.Account{}
	for rows.Next() {
		var a models.Account
		owner := &models.AccountOwner{}
		if err := rows.Scan(&a.ID, &a.AccountNumber, &a.AccountType, &a.Balance, &a.IsActive,
			&owner.ID, &owner.Name, &owner.Email); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		a.Owner = owner
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// SetAccountStatus activates or deactivates an account
func (r *PostgresRepository) SetAccountStatus(ctx context.Context, id string, active bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE bank.accounts SET is_active = $2 WHERE id::text = $1`, id, active)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// Post applies the legs in one transaction, locking each account row
func (r *PostgresRepository) Post(ctx context.Context, userID string, legs []Leg) (map[string]decimal.Decimal, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	type locked struct {
		id      string
		balance decimal.Decimal
	}
	accounts := make(map[string]*locked, len(legs))
	for _, leg := range legs {
		a, ok := accounts[leg.AccountNumber]
		if !ok {
			var (
				owner  string
				active bool
			)
			a = &locked{}
			err := tx.QueryRowContext(ctx, `
				SELECT id::text, user_id::text, balance, is_active
				FROM bank.accounts
				WHERE account_number = $1
				FOR UPDATE`, leg.AccountNumber).
				Scan(&a.id, &owner, &a.balance, &active)
			if errors.Is(err, sql.ErrNoRows) || (err == nil && owner != userID) {
				return nil, ErrAccountNotFound
			}
			if err != nil {
				return nil, fmt.Errorf("failed to lock account: %w", err)
			}
			if !active {
				return nil, ErrAccountInactive
			}
			accounts[leg.AccountNumber] = a
		}
		a.balance = a.balance.Add(leg.Delta)
		if a.balance.IsNegative() {
			return nil, ErrInsufficientFunds
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO bank.transactions (account_id, type, amount, description)
			VALUES ($1::bigint, $2, $3, $4)`, a.id, leg.Type, leg.Delta.Abs(), leg.Description)
		if err != nil {
			return nil, fmt.Errorf("failed to record transaction: %w", err)
		}
	}

	balances := make(map[string]decimal.Decimal, len(accounts))
	for number, a := range accounts {
		if _, err := tx.ExecContext(ctx, `UPDATE bank.accounts SET balance = $2 WHERE id::text = $1`, a.id, a.balance); err != nil {
			return nil, fmt.Errorf("failed to update balance: %w", err)
		}
		balances[number] = a.balance
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return balances, nil
}

// RecentTransactions lists a user's latest postings, newest first
func (r *PostgresRepository) RecentTransactions(ctx context.Context, userID string, limit int) ([]models.TransactionRecord, error) {
	query := `
		SELECT t.type, t.amount, t.description, t.created_at,
		       a.id::text, a.account_number, a.account_type
		FROM bank.transactions t
		JOIN bank.accounts a ON a.id = t.account_id
		WHERE a.user_id::text = $1
		ORDER BY t.created_at DESC, t.id DESC
		LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	out := []models.TransactionRecord{}
	for rows.Next() {
		var t models.TransactionRecord
		if err := rows.Scan(&t.Type, &t.Amount, &t.Description, &t.Timestamp,
			&t.Account.ID, &t.Account.AccountNumber, &t.Account.AccountType); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
