package ledgerstub

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// NewRouter mounts the ledger endpoints under /api
func NewRouter(svc *Service, log *logrus.Logger) http.Handler {
	h := NewHandler(svc, log)

	r := mux.NewRouter()
	r.Use(LoggingMiddleware(log))
	api := r.PathPrefix("/api").Subrouter()

	// Public routes
	api.HandleFunc("/users", h.Register).Methods(http.MethodPost)
	api.HandleFunc("/users/login", h.Login).Methods(http.MethodPost)

	// Protected routes
	auth := api.NewRoute().Subrouter()
	auth.Use(AuthMiddleware(svc))
	auth.HandleFunc("/users/profile", h.UpdateProfile).Methods(http.MethodPut)
	auth.HandleFunc("/accounts", h.Accounts).Methods(http.MethodGet)
	auth.HandleFunc("/accounts", h.CreateAccount).Methods(http.MethodPost)
	auth.HandleFunc("/accounts/all", h.AllAccounts).Methods(http.MethodGet)
	auth.HandleFunc("/accounts/status/{id}", h.SetAccountStatus).Methods(http.MethodPut)
	auth.HandleFunc("/transactions/deposit", h.Deposit).Methods(http.MethodPost)
	auth.HandleFunc("/transactions/withdraw", h.Withdraw).Methods(http.MethodPost)
	auth.HandleFunc("/transactions/transfer", h.Transfer).Methods(http.MethodPost)
	auth.HandleFunc("/transactions/summary", h.Summary).Methods(http.MethodGet)

	return r
}
