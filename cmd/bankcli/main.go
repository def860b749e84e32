package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/Dan9191/bank-client/internal/apiclient"
	"github.com/Dan9191/bank-client/internal/apierr"
	"github.com/Dan9191/bank-client/internal/config"
	"github.com/Dan9191/bank-client/internal/service"
	"github.com/Dan9191/bank-client/internal/session"
	"github.com/Dan9191/bank-client/internal/transaction"
	"github.com/Dan9191/bank-client/internal/utils"
	"github.com/Dan9191/bank-client/internal/utils/email"
)

const usage = `Usage: bankcli [global flags] <command> [flags]

Commands:
  register        create a user and log in
  login           log in with email and password
  logout          end the session
  whoami          show the active session
  accounts        list your accounts
  dashboard       show accounts, total balance and recent transactions
  open-account    open a Savings or Checking account
  deposit         deposit into an account
  withdraw        withdraw from an account
  transfer        move funds between two of your accounts
  profile         update name, email or password
  admin-accounts  list every account, or toggle one (administrators)
  statement       export the dashboard as an XML statement
  watch           refresh the dashboard on a schedule

Global flags:
`

// app holds the wired client components shared by all commands
type app struct {
	cfg      *config.Config
	log      *logrus.Logger
	client   *apiclient.Client
	sessions *session.Manager
	svc      *service.Service
	orch     *transaction.Orchestrator
	receipts *email.Sender
}

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	flag.CommandLine.SetInterspersed(false)
	flag.StringVar(&cfg.APIBaseURL, "api", cfg.APIBaseURL, "ledger API base URL")
	flag.StringVar(&cfg.SessionFile, "session-file", cfg.SessionFile, "path of the session record")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}

	logLevel, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to start: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.run(ctx, args[0], args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			flag.Usage()
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, apierr.Normalize(err, "Something went wrong.").Message)
		os.Exit(1)
	}
}

func newApp(cfg *config.Config, logger *logrus.Logger) (*app, error) {
	var key *[32]byte
	if cfg.SessionKey != "" {
		k, err := utils.ParseKey(cfg.SessionKey)
		if err != nil {
			return nil, fmt.Errorf("BANK_SESSION_KEY is invalid: %w", err)
		}
		key = k
	}

	// Initialize layers
	client := apiclient.NewClient(cfg, logger)
	store := session.NewFileStore(cfg.SessionFile, key)
	logger.WithFields(logrus.Fields{"path": store.Path(), "sealed": key != nil}).Debug("Session record")
	mgr := session.NewManager(client, store, logger)
	client.UseCredentials(mgr)

	mgr.Subscribe(func(e session.Event) {
		if e.To == session.StatusAnonymous && (e.Reason == session.ReasonUnauthorized || e.Reason == session.ReasonExpired) {
			fmt.Fprintln(os.Stderr, "Session expired. Please log in again.")
		}
	})

	a := &app{
		cfg:      cfg,
		log:      logger,
		client:   client,
		sessions: mgr,
		svc:      service.NewService(client, mgr, logger),
		orch:     transaction.NewOrchestrator(client, mgr, logger),
	}
	if cfg.ReceiptsEnabled() {
		a.receipts = email.NewSender(cfg, logger)
	}
	return a, nil
}

var errUsage = errors.New("usage")

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "register":
		return a.register(ctx, args)
	case "login":
		return a.login(ctx, args)
	case "logout":
		return a.logout()
	case "whoami":
		return a.whoami()
	case "accounts":
		return a.accounts(ctx)
	case "dashboard":
		return a.dashboard(ctx)
	case "open-account":
		return a.openAccount(ctx, args)
	case "deposit":
		return a.single(ctx, transaction.OpDeposit, args)
	case "withdraw":
		return a.single(ctx, transaction.OpWithdraw, args)
	case "transfer":
		return a.transfer(ctx, args)
	case "profile":
		return a.profile(ctx, args)
	case "admin-accounts":
		return a.adminAccounts(ctx, args)
	case "statement":
		return a.statement(ctx, args)
	case "watch":
		return a.watch(ctx)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		return errUsage
	}
}
