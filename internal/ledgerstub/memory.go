package ledgerstub

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Dan9191/bank-client/internal/models"
)

type memoryTxn struct {
	accountID string
	record    models.TransactionRecord
}

// MemoryRepository keeps the ledger in process memory
type MemoryRepository struct {
	mu       sync.Mutex
	nextID   int64
	users    map[string]*models.User
	accounts map[string]*models.Account
	order    []string
	txns     []memoryTxn
}

// NewMemoryRepository initializes an empty in-memory ledger
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:    make(map[string]*models.User),
		accounts: make(map[string]*models.Account),
	}
}

func (r *MemoryRepository) newID() string {
	r.nextID++
	return strconv.FormatInt(r.nextID, 10)
}

func (r *MemoryRepository) CreateUser(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return ErrEmailTaken
		}
	}
	user.ID = r.newID()
	user.CreatedAt = time.Now().UTC()
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *MemoryRepository) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *MemoryRepository) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *MemoryRepository) UpdateUser(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return ErrUserNotFound
	}
	for _, u := range r.users {
		if u.Email == user.Email && u.ID != user.ID {
			return ErrEmailTaken
		}
	}
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *MemoryRepository) CreateAccount(ctx context.Context, account *models.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account.ID = r.newID()
	cp := *account
	r.accounts[account.ID] = &cp
	r.order = append(r.order, account.ID)
	return nil
}

func (r *MemoryRepository) AccountsByUser(ctx context.Context, userID string) ([]models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Account{}
	for _, id := range r.order {
		a := r.accounts[id]
		if a.Owner != nil && a.Owner.ID == userID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *MemoryRepository) AllAccounts(ctx context.Context) ([]models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Account{}
	for _, id := range r.order {
		a := *r.accounts[id]
		if a.Owner != nil {
			if u, ok := r.users[a.Owner.ID]; ok {
				a.Owner = &models.AccountOwner{ID: u.ID, Name: u.Name, Email: u.Email}
			}
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *MemoryRepository) SetAccountStatus(ctx context.Context, id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	a.IsActive = active
	return nil
}

func (r *MemoryRepository) Post(ctx context.Context, userID string, legs []Leg) (map[string]decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	byNumber := make(map[string]*models.Account, len(legs))
	balances := make(map[string]decimal.Decimal, len(legs))
	for _, leg := range legs {
		a, ok := byNumber[leg.AccountNumber]
		if !ok {
			if a = r.findByNumber(leg.AccountNumber); a == nil || a.Owner == nil || a.Owner.ID != userID {
				return nil, ErrAccountNotFound
			}
			if !a.IsActive {
				return nil, ErrAccountInactive
			}
			byNumber[leg.AccountNumber] = a
			balances[leg.AccountNumber] = a.Balance
		}
		next := balances[leg.AccountNumber].Add(leg.Delta)
		if next.IsNegative() {
			return nil, ErrInsufficientFunds
		}
		balances[leg.AccountNumber] = next
	}

	now := time.Now().UTC()
	for _, leg := range legs {
		a := byNumber[leg.AccountNumber]
		r.txns = append(r.txns, memoryTxn{accountID: a.ID, record: models.TransactionRecord{
			Type:        leg.Type,
			Amount:      leg.Delta.Abs(),
			Description: leg.Description,
			Timestamp:   now,
		}})
	}
	for number, balance := range balances {
		byNumber[number].Balance = balance
	}
	return balances, nil
}

func (r *MemoryRepository) RecentTransactions(ctx context.Context, userID string, limit int) ([]models.TransactionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.TransactionRecord{}
	for i := len(r.txns) - 1; i >= 0 && len(out) < limit; i-- {
		t := r.txns[i]
		a := r.accounts[t.accountID]
		if a.Owner == nil || a.Owner.ID != userID {
			continue
		}
		rec := t.record
		rec.Account = models.AccountRef{ID: a.ID, AccountNumber: a.AccountNumber, AccountType: a.AccountType}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func (r *MemoryRepository) findByNumber(number string) *models.Account {
	for _, a := range r.accounts {
		if a.AccountNumber == number {
			return a
		}
	}
	return nil
}
