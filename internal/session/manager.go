// Package session owns the authentication lifecycle of the client. A single
// Manager holds the active session, mirrors it to a durable Store on every
// transition into or out of the authenticated state, and notifies
// subscribers of each transition.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Dan9191/bank-client/internal/apierr"
	"github.com/Dan9191/bank-client/internal/models"
)

// Status is a state of the authentication state machine
type Status uint8

const (
	StatusAnonymous Status = iota
	StatusPending
	StatusAuthenticated
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusAuthenticated:
		return "authenticated"
	case StatusFailed:
		return "failed"
	default:
		return "anonymous"
	}
}

// Transition reasons carried by events
const (
	ReasonRegister     = "register"
	ReasonLogin        = "login"
	ReasonLogout       = "logout"
	ReasonProfile      = "profile"
	ReasonUnauthorized = "unauthorized"
	ReasonExpired      = "expired"
)

// Fallback messages when the ledger gives no reason
const (
	msgRegisterFailed = "Registration failed."
	msgLoginFailed    = "Login failed."
)

// ErrInFlight is returned when Register or Login is invoked while a previous
// call has not settled
var ErrInFlight = errors.New("authentication already in progress")

// ErrNotAuthenticated is returned by operations that need a session
var ErrNotAuthenticated = &apierr.Error{Kind: apierr.KindUnauthorized, Message: "Not logged in."}

// State is a snapshot of the manager
type State struct {
	Session   *models.Session
	Status    Status
	LastError string
}

// Event describes one transition
type Event struct {
	From    Status
	To      Status
	Reason  string
	Session *models.Session
}

// Authenticator issues register and login requests to the ledger
type Authenticator interface {
	Register(ctx context.Context, name, email, password string) (*models.Session, error)
	Login(ctx context.Context, email, password string) (*models.Session, error)
}

type subscriber struct {
	id int
	fn func(Event)
}

// Manager is the session state machine
type Manager struct {
	auth  Authenticator
	store Store
	log   *logrus.Logger

	mu      sync.Mutex
	state   State
	attempt uint64
	subs    []subscriber
	nextSub int
}

// NewManager restores the session from store. A missing, unreadable or
// credential-less record starts the manager anonymous and is cleared.
func NewManager(auth Authenticator, store Store, log *logrus.Logger) *Manager {
	m := &Manager{auth: auth, store: store, log: log}

	s, err := store.Load()
	switch {
	case err != nil:
		log.WithError(err).Warn("Discarding unreadable session record")
		if err := store.Clear(); err != nil {
			log.WithError(err).Error("Failed to clear session record")
		}
	case s.Valid():
		m.state = State{Session: s, Status: StatusAuthenticated}
		log.WithField("user", s.Email).Debug("Session restored")
	case s != nil:
		log.Warn("Discarding session record without credential")
		if err := store.Clear(); err != nil {
			log.WithError(err).Error("Failed to clear session record")
		}
	}
	return m
}

// State returns a copy of the current state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.state
	st.Session = st.Session.Clone()
	return st
}

// Session returns a copy of the active session, nil when anonymous
func (m *Manager) Session() *models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Session.Clone()
}

// Token returns the credential of the active session
func (m *Manager) Token() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Status != StatusAuthenticated {
		return "", false
	}
	return m.state.Session.Token, true
}

// Subscribe registers fn for every transition and returns a function that
// removes it. Subscribers run synchronously, outside the manager's lock.
func (m *Manager) Subscribe(fn func(Event)) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSub++
	id := m.nextSub
	m.subs = append(m.subs, subscriber{id: id, fn: fn})
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, s := range m.subs {
			if s.id == id {
				m.subs = append(m.subs[:i:i], m.subs[i+1:]...)
				return
			}
		}
	}
}

// Register creates a user and authenticates as it
func (m *Manager) Register(ctx context.Context, name, email, password string) error {
	return m.authenticate(ReasonRegister, msgRegisterFailed, func() (*models.Session, error) {
		return m.auth.Register(ctx, name, email, password)
	})
}

// Login authenticates with email and password
func (m *Manager) Login(ctx context.Context, email, password string) error {
	return m.authenticate(ReasonLogin, msgLoginFailed, func() (*models.Session, error) {
		return m.auth.Login(ctx, email, password)
	})
}

func (m *Manager) authenticate(reason, fallback string, call func() (*models.Session, error)) error {
	m.mu.Lock()
	if m.state.Status == StatusPending {
		m.mu.Unlock()
		return ErrInFlight
	}
	events := []Event{{From: m.state.Status, To: StatusPending, Reason: reason}}
	m.clearStoreLocked()
	m.state = State{Status: StatusPending}
	m.attempt++
	attempt := m.attempt
	m.mu.Unlock()
	m.notify(events)

	s, err := call()
	if err == nil && !s.Valid() {
		err = errors.New("ledger returned no credential")
	}

	m.mu.Lock()
	if m.attempt != attempt || m.state.Status != StatusPending {
		// Logout ran while the request was in flight; the result is stale.
		m.mu.Unlock()
		m.log.WithField("op", reason).Debug("Discarding stale authentication result")
		return apierr.Normalize(errors.New("session reset while authenticating"), fallback)
	}
	if err == nil {
		if err = m.store.Save(s); err != nil {
			m.log.WithError(err).Error("Failed to persist session")
		}
	}
	if err != nil {
		norm := apierr.Normalize(err, fallback)
		m.state = State{Status: StatusAnonymous, LastError: norm.Message}
		m.mu.Unlock()
		m.log.WithFields(logrus.Fields{"op": reason, "kind": norm.Kind}).Warn(norm.Message)
		m.notify([]Event{
			{From: StatusPending, To: StatusFailed, Reason: reason},
			{From: StatusFailed, To: StatusAnonymous, Reason: reason},
		})
		return norm
	}
	m.state = State{Session: s.Clone(), Status: StatusAuthenticated}
	m.mu.Unlock()
	m.log.WithFields(logrus.Fields{"op": reason, "user": s.Email}).Info("Authenticated")
	m.notify([]Event{{From: StatusPending, To: StatusAuthenticated, Reason: reason, Session: s.Clone()}})
	return nil
}

// Logout destroys the session in memory and on disk
func (m *Manager) Logout() error {
	return m.reset(ReasonLogout, true)
}

// Invalidate ends an authenticated session after the ledger rejected its
// credential. It is a no-op in any other state.
func (m *Manager) Invalidate(reason string) {
	if reason == "" {
		reason = ReasonUnauthorized
	}
	if err := m.reset(reason, false); err != nil {
		m.log.WithError(err).Error("Failed to clear session record")
	}
}

func (m *Manager) reset(reason string, always bool) error {
	m.mu.Lock()
	from := m.state.Status
	if !always && from != StatusAuthenticated {
		m.mu.Unlock()
		return nil
	}
	err := m.store.Clear()
	m.state = State{Status: StatusAnonymous}
	m.attempt++
	m.mu.Unlock()

	m.log.WithField("reason", reason).Info("Session ended")
	if from != StatusAnonymous {
		m.notify([]Event{{From: from, To: StatusAnonymous, Reason: reason}})
	}
	return err
}

// UpdateIdentity replaces the display name and email of the active session
func (m *Manager) UpdateIdentity(name, email string) error {
	m.mu.Lock()
	if m.state.Status != StatusAuthenticated {
		m.mu.Unlock()
		return ErrNotAuthenticated
	}
	next := m.state.Session.Clone()
	next.Name, next.Email = name, email
	if err := m.store.Save(next); err != nil {
		m.mu.Unlock()
		return err
	}
	m.state.Session = next
	m.mu.Unlock()

	m.notify([]Event{{From: StatusAuthenticated, To: StatusAuthenticated, Reason: ReasonProfile, Session: next.Clone()}})
	return nil
}

func (m *Manager) clearStoreLocked() {
	if m.state.Session == nil {
		return
	}
	if err := m.store.Clear(); err != nil {
		m.log.WithError(err).Error("Failed to clear session record")
	}
}

func (m *Manager) notify(events []Event) {
	m.mu.Lock()
	subs := make([]subscriber, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	for _, e := range events {
		for _, s := range subs {
			s.fn(e)
		}
	}
}
