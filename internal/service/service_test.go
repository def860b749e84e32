package service

import (
	"context"
	"io"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dan9191/bank-client/internal/apiclient"
	"github.com/Dan9191/bank-client/internal/apierr"
	"github.com/Dan9191/bank-client/internal/models"
	"github.com/Dan9191/bank-client/internal/session"
)

type fakeAuth struct {
	calls int
}

func (f *fakeAuth) Register(ctx context.Context, name, email, password string) (*models.Session, error) {
	f.calls++
	return &models.Session{UserID: "u1", Name: name, Email: email, Token: "t1"}, nil
}

func (f *fakeAuth) Login(ctx context.Context, email, password string) (*models.Session, error) {
	f.calls++
	return &models.Session{UserID: "u1", Name: "Ann", Email: email, Token: "t1"}, nil
}

type fakeLedger struct {
	profileIn apiclient.ProfileUpdate
	calls     int
	err       error
	summary   *models.Summary
}

func (f *fakeLedger) UpdateProfile(ctx context.Context, in apiclient.ProfileUpdate) (*models.Profile, error) {
	f.calls++
	f.profileIn = in
	if f.err != nil {
		return nil, f.err
	}
	return &models.Profile{ID: "u1", Name: in.Name, Email: in.Email}, nil
}

func (f *fakeLedger) CreateAccount(ctx context.Context, accountType string) (*models.Account, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &models.Account{ID: "a1", AccountNumber: "4012345678", AccountType: accountType, IsActive: true}, nil
}

func (f *fakeLedger) Summary(ctx context.Context) (*models.Summary, error) {
	f.calls++
	return f.summary, f.err
}

func (f *fakeLedger) AllAccounts(ctx context.Context) ([]models.Account, error) {
	f.calls++
	return nil, f.err
}

func (f *fakeLedger) SetAccountStatus(ctx context.Context, id string, active bool) (string, error) {
	f.calls++
	return "Account activated", f.err
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newService(seed *models.Session) (*Service, *fakeLedger, *fakeAuth, *session.Manager) {
	auth := &fakeAuth{}
	mgr := session.NewManager(auth, session.NewMemoryStore(seed), quietLogger())
	ledger := &fakeLedger{}
	return NewService(ledger, mgr, quietLogger()), ledger, auth, mgr
}

var ann = &models.Session{UserID: "u1", Name: "Ann", Email: "ann@example.com", Token: "t1"}

func TestRegister_FormChecks(t *testing.T) {
	tests := []struct {
		name string
		form RegisterForm
		want error
	}{
		{"mismatch", RegisterForm{"Ann", "ann@example.com", "secret!pw", "secret!px"}, ErrPasswordMismatch},
		{"missing", RegisterForm{"", "ann@example.com", "secret!pw", "secret!pw"}, ErrFieldsMissing},
		{"bad name", RegisterForm{"Ann2", "ann@example.com", "secret!pw", "secret!pw"}, ErrInvalidName},
		{"bad email", RegisterForm{"Ann", "ann@example", "secret!pw", "secret!pw"}, ErrInvalidEmail},
		{"weak password", RegisterForm{"Ann", "ann@example.com", "short!", "short!"}, ErrWeakPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, auth, _ := newService(nil)
			err := svc.Register(context.Background(), tt.form)
			assert.Equal(t, tt.want, err)
			assert.Zero(t, auth.calls)
		})
	}
}

func TestRegister_Success(t *testing.T) {
	svc, _, auth, mgr := newService(nil)
	err := svc.Register(context.Background(), RegisterForm{" Ann Lee ", "ann@example.com", "secret!pw", "secret!pw"})
	require.NoError(t, err)
	assert.Equal(t, 1, auth.calls)
	assert.Equal(t, "Ann Lee", mgr.Session().Name)
}

func TestLogin_RejectsMalformedEmailLocally(t *testing.T) {
	svc, _, auth, _ := newService(nil)
	assert.Equal(t, ErrInvalidEmail, svc.Login(context.Background(), "nope", "pw"))
	assert.Equal(t, ErrFieldsMissing, svc.Login(context.Background(), "", "pw"))
	assert.Equal(t, ErrFieldsMissing, svc.Login(context.Background(), "   ", "pw"))
	assert.Zero(t, auth.calls)
}

func TestLogin_TrimsEmail(t *testing.T) {
	svc, _, auth, mgr := newService(nil)
	require.NoError(t, svc.Login(context.Background(), "  ann@example.com ", "pw"))
	assert.Equal(t, 1, auth.calls)
	assert.Equal(t, "ann@example.com", mgr.Session().Email)
}

func TestUpdateProfile(t *testing.T) {
	svc, ledger, _, mgr := newService(ann)

	var events []session.Event
	mgr.Subscribe(func(e session.Event) { events = append(events, e) })

	msg, err := svc.UpdateProfile(context.Background(), ProfileForm{Name: "Ann B", Email: "annb@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "Profile updated successfully.", msg)
	assert.Empty(t, ledger.profileIn.Password)
	assert.Equal(t, "Ann B", mgr.Session().Name)
	assert.Equal(t, "annb@example.com", mgr.Session().Email)
	assert.Equal(t, "t1", mgr.Session().Token)
	require.Len(t, events, 1)
	assert.Equal(t, session.ReasonProfile, events[0].Reason)

	_, err = svc.UpdateProfile(context.Background(), ProfileForm{Name: "Ann", Email: "ann@example.com", Password: "secret!pw", ConfirmPassword: "other"})
	assert.Equal(t, ErrPasswordMismatch, err)
	assert.Equal(t, 1, ledger.calls)
}

func TestUpdateProfile_LedgerFailureKeepsIdentity(t *testing.T) {
	svc, ledger, _, mgr := newService(ann)
	ledger.err = &apierr.Error{Kind: apierr.KindRejected, Status: 400}

	_, err := svc.UpdateProfile(context.Background(), ProfileForm{Name: "X", Email: "x@example.com"})
	require.Error(t, err)
	assert.Equal(t, "Update failed.", apierr.Normalize(err, "").Message)
	assert.Equal(t, "Ann", mgr.Session().Name)
}

func TestCreateAccount(t *testing.T) {
	svc, ledger, _, _ := newService(ann)

	_, _, err := svc.CreateAccount(context.Background(), "Brokerage")
	assert.Equal(t, ErrAccountType, err)
	assert.Zero(t, ledger.calls)

	a, msg, err := svc.CreateAccount(context.Background(), models.AccountTypeSavings)
	require.NoError(t, err)
	assert.Equal(t, "a1", a.ID)
	assert.Equal(t, "Success! New Savings account (4012345678) created.", msg)
}

func TestCreateAccount_RequiresSession(t *testing.T) {
	svc, ledger, _, _ := newService(nil)
	_, _, err := svc.CreateAccount(context.Background(), models.AccountTypeSavings)
	require.Error(t, err)
	assert.Equal(t, "Authentication required to create an account.", apierr.Normalize(err, "").Message)
	assert.Zero(t, ledger.calls)
}

func TestDashboard(t *testing.T) {
	svc, ledger, _, _ := newService(ann)
	ledger.summary = &models.Summary{Accounts: []models.Account{
		{ID: "a1", Balance: decimal.RequireFromString("10.50")},
		{ID: "a2", Balance: decimal.RequireFromString("4.25")},
	}}

	d, err := svc.Dashboard(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "14.75", d.Total.StringFixed(2))
}

func TestAdminOperations(t *testing.T) {
	svc, ledger, _, _ := newService(ann)
	_, err := svc.AllAccounts(context.Background())
	assert.Equal(t, ErrAdminOnly, err)
	_, err = svc.SetAccountStatus(context.Background(), "a1", true)
	assert.Equal(t, ErrAdminOnly, err)
	assert.Zero(t, ledger.calls)

	admin := ann.Clone()
	admin.IsAdmin = true
	svc, ledger, _, _ = newService(admin)
	msg, err := svc.SetAccountStatus(context.Background(), "a1", true)
	require.NoError(t, err)
	assert.Equal(t, "Account activated", msg)
	assert.Equal(t, 1, ledger.calls)
}
