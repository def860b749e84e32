package ledgerstub

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/bank-client/internal/models"
)

// Handler serves the ledger REST endpoints
type Handler struct {
	svc *Service
	log *logrus.Logger
}

// NewHandler initializes a new handler
func NewHandler(svc *Service, log *logrus.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

type userResponse struct {
	ID      string `json:"_id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"isAdmin"`
	Token   string `json:"token,omitempty"`
}

func newUserResponse(u *models.User, token string) userResponse {
	return userResponse{ID: u.ID, Name: u.Name, Email: u.Email, IsAdmin: u.IsAdmin, Token: token}
}

type messageResponse struct {
	Message string `json:"message"`
}

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !h.decode(w, r, &in) {
		return
	}
	res, err := h.svc.Register(r.Context(), in.Name, in.Email, in.Password)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newUserResponse(res.User, res.Token))
}

// Login handles user authentication
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !h.decode(w, r, &in) {
		return
	}
	res, err := h.svc.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(res.User, res.Token))
}

// UpdateProfile handles name, email and password changes
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !h.decode(w, r, &in) {
		return
	}
	userID, _ := UserID(r.Context())
	user, err := h.svc.UpdateProfile(r.Context(), userID, in.Name, in.Email, in.Password)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.Profile{ID: user.ID, Name: user.Name, Email: user.Email})
}

// Accounts lists the caller's accounts
func (h *Handler) Accounts(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	accounts, err := h.svc.Accounts(r.Context(), userID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

// AllAccounts lists every account for an administrator
func (h *Handler) AllAccounts(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	accounts, err := h.svc.AllAccounts(r.Context(), userID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

// CreateAccount handles account creation
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var in struct {
		AccountType string `json:"accountType"`
	}
	if !h.decode(w, r, &in) {
		return
	}
	userID, _ := UserID(r.Context())
	account, err := h.svc.CreateAccount(r.Context(), userID, in.AccountType)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

// SetAccountStatus activates or deactivates an account
func (h *Handler) SetAccountStatus(w http.ResponseWriter, r *http.Request) {
	var in struct {
		IsActive bool `json:"isActive"`
	}
	if !h.decode(w, r, &in) {
		return
	}
	userID, _ := UserID(r.Context())
	if err := h.svc.SetAccountStatus(r.Context(), userID, mux.Vars(r)["id"], in.IsActive); err != nil {
		h.fail(w, err)
		return
	}
	msg := "Account deactivated"
	if in.IsActive {
		msg = "Account activated"
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: msg})
}

type movementRequest struct {
	AccountNumber string          `json:"accountNumber"`
	Amount        decimal.Decimal `json:"amount"`
}

// Deposit credits an account
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	var in movementRequest
	if !h.decode(w, r, &in) {
		return
	}
	userID, _ := UserID(r.Context())
	balance, err := h.svc.Deposit(r.Context(), userID, in.AccountNumber, in.Amount)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.BalanceResult{Success: true, NewBalance: decimal.NewNullDecimal(balance)})
}

// Withdraw debits an account
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var in movementRequest
	if !h.decode(w, r, &in) {
		return
	}
	userID, _ := UserID(r.Context())
	balance, err := h.svc.Withdraw(r.Context(), userID, in.AccountNumber, in.Amount)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.BalanceResult{Success: true, NewBalance: decimal.NewNullDecimal(balance)})
}

// Transfer moves funds between the caller's accounts
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	var in struct {
		From   string          `json:"fromAccountNumber"`
		To     string          `json:"toAccountNumber"`
		Amount decimal.Decimal `json:"amount"`
	}
	if !h.decode(w, r, &in) {
		return
	}
	userID, _ := UserID(r.Context())
	if err := h.svc.Transfer(r.Context(), userID, in.From, in.To, in.Amount); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.TransferResult{Success: true, Message: "Transfer successful"})
}

// Summary returns the caller's dashboard
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	sum, err := h.svc.Summary(r.Context(), userID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.WithError(err).Error("Request failed")
		writeError(w, status, "Server error")
		return
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrMissingToken), errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrAccountNotFound):
		return http.StatusNotFound
	case IsDomainError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, messageResponse{Message: msg})
}
