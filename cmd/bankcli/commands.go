package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/robfig/cron/v3"
	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/Dan9191/bank-client/internal/models"
	"github.com/Dan9191/bank-client/internal/service"
	"github.com/Dan9191/bank-client/internal/session"
	"github.com/Dan9191/bank-client/internal/statement"
	"github.com/Dan9191/bank-client/internal/transaction"
	"github.com/Dan9191/bank-client/internal/validation"
)

var stdin = bufio.NewReader(os.Stdin)

// prompt reads a line, hiding the input when stdin is a terminal
func prompt(label string, secret bool) (string, error) {
	fmt.Fprint(os.Stderr, label)
	fd := int(os.Stdin.Fd())
	if secret && term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(raw), nil
	}
	line, err := stdin.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newFlagSet(name string) *flag.FlagSet {
	return flag.NewFlagSet(name, flag.ContinueOnError)
}

func (a *app) register(ctx context.Context, args []string) error {
	fs := newFlagSet("register")
	name := fs.String("name", "", "display name")
	addr := fs.String("email", "", "email address")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	password, err := prompt("Password: ", true)
	if err != nil {
		return err
	}
	confirm, err := prompt("Confirm password: ", true)
	if err != nil {
		return err
	}

	form := service.RegisterForm{Name: *name, Email: *addr, Password: password, ConfirmPassword: confirm}
	if err := a.svc.Register(ctx, form); err != nil {
		if errors.Is(err, service.ErrWeakPassword) {
			printFailures(os.Stderr, password)
		}
		return err
	}
	fmt.Printf("Welcome, %s!\n", a.sessions.Session().Name)
	return nil
}

// printFailures lists the password rules the candidate does not meet
func printFailures(w io.Writer, password string) {
	for _, r := range validation.PasswordRules.Failures(password) {
		fmt.Fprintf(w, "  - %s\n", r.Description)
	}
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := newFlagSet("login")
	addr := fs.String("email", "", "email address")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	password, err := prompt("Password: ", true)
	if err != nil {
		return err
	}
	if err := a.svc.Login(ctx, *addr, password); err != nil {
		return err
	}
	fmt.Printf("Logged in as %s.\n", a.sessions.Session().Email)
	return nil
}

func (a *app) logout() error {
	if err := a.sessions.Logout(); err != nil {
		return err
	}
	fmt.Println("Logged out.")
	return nil
}

func (a *app) whoami() error {
	s := a.sessions.Session()
	if !s.Valid() {
		fmt.Println("Not logged in.")
		return nil
	}
	role := "customer"
	if s.IsAdmin {
		role = "administrator"
	}
	fmt.Printf("%s <%s> (%s)\n", s.Name, s.Email, role)
	if exp, ok := session.TokenExpiry(s.Token); ok {
		fmt.Printf("Session valid until %s\n", exp.Local().Format(time.RFC1123))
	}
	return nil
}

func (a *app) accounts(ctx context.Context) error {
	if err := a.orch.Refresh(ctx); err != nil {
		return err
	}
	printAccounts(os.Stdout, a.orch.Accounts(), false)
	return nil
}

func printAccounts(out io.Writer, accounts []models.Account, withOwner bool) {
	if len(accounts) == 0 {
		fmt.Fprintln(out, "No accounts.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	header := "ID\tNUMBER\tTYPE\tBALANCE\tSTATUS"
	if withOwner {
		header += "\tOWNER"
	}
	fmt.Fprintln(w, header)
	for _, acct := range accounts {
		status := "active"
		if !acct.IsActive {
			status = "inactive"
		}
		line := fmt.Sprintf("%s\t%s\t%s\t$%s\t%s", acct.ID, acct.AccountNumber, acct.AccountType, acct.Balance.StringFixed(2), status)
		if withOwner && acct.Owner != nil {
			line += fmt.Sprintf("\t%s <%s>", acct.Owner.Name, acct.Owner.Email)
		}
		fmt.Fprintln(w, line)
	}
	w.Flush()
}

func (a *app) dashboard(ctx context.Context) error {
	d, err := a.svc.Dashboard(ctx)
	if err != nil {
		return err
	}
	a.orch.SetAccounts(d.Summary.Accounts)
	printAccounts(os.Stdout, d.Summary.Accounts, false)
	fmt.Printf("\nTotal balance: $%s\n", d.Total.StringFixed(2))

	if len(d.Summary.Transactions) == 0 {
		return nil
	}
	fmt.Println("\nRecent transactions:")
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, t := range d.Summary.Transactions {
		sign := "-"
		if t.Credit() {
			sign = "+"
		}
		fmt.Fprintf(w, "%s\t%s\t%s$%s\t%s\n", t.Timestamp.Local().Format("2006-01-02 15:04"), t.Account.AccountNumber, sign, t.Amount.StringFixed(2), t.Description)
	}
	w.Flush()
	return nil
}

func (a *app) openAccount(ctx context.Context, args []string) error {
	fs := newFlagSet("open-account")
	accountType := fs.String("type", models.AccountTypeSavings, "Savings or Checking")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	_, msg, err := a.svc.CreateAccount(ctx, *accountType)
	if err != nil {
		return err
	}
	fmt.Println(msg)
	return nil
}

// resolve finds an account by id or number among the candidates
func resolve(candidates []models.Account, ref string) (string, bool) {
	for _, acct := range candidates {
		if acct.ID == ref || acct.AccountNumber == ref {
			return acct.ID, true
		}
	}
	return "", false
}

func (a *app) single(ctx context.Context, op transaction.Op, args []string) error {
	fs := newFlagSet(string(op))
	account := fs.String("account", "", "account id or number")
	amount := fs.String("amount", "", "amount, e.g. 25.00")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if err := a.orch.Refresh(ctx); err != nil {
		return err
	}
	id, ok := resolve(a.orch.Sources(), *account)
	if !ok {
		return transaction.ErrInvalidAccount
	}

	var (
		res *transaction.Result
		err error
	)
	if op == transaction.OpDeposit {
		res, err = a.orch.Deposit(ctx, id, *amount)
	} else {
		res, err = a.orch.Withdraw(ctx, id, *amount)
	}
	if err != nil {
		return err
	}
	return a.settled(ctx, res)
}

func (a *app) transfer(ctx context.Context, args []string) error {
	fs := newFlagSet("transfer")
	from := fs.String("from", "", "source account id or number")
	to := fs.String("to", "", "destination account id or number")
	amount := fs.String("amount", "", "amount, e.g. 25.00")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if err := a.orch.Refresh(ctx); err != nil {
		return err
	}
	srcID, ok := resolve(a.orch.Sources(), *from)
	if !ok {
		return transaction.ErrInvalidTransferPair
	}
	destID, ok := resolve(a.orch.Destinations(srcID), *to)
	if !ok {
		// The source itself is not a destination; let the orchestrator
		// report it as the same account.
		if self, _ := resolve(a.orch.Sources(), *to); self != srcID {
			return transaction.ErrInvalidTransferPair
		}
		destID = srcID
	}
	res, err := a.orch.Transfer(ctx, srcID, destID, *amount)
	if err != nil {
		return err
	}
	return a.settled(ctx, res)
}

// settled reports a completed operation, reloads balances when asked and
// sends the optional receipt
func (a *app) settled(ctx context.Context, res *transaction.Result) error {
	fmt.Println(res.Message)
	if res.Refetch {
		if err := a.orch.Refresh(ctx); err != nil {
			a.log.WithError(err).Warn("Failed to reload accounts")
		} else {
			printAccounts(os.Stdout, a.orch.Accounts(), false)
		}
	}
	if a.receipts != nil {
		if s := a.sessions.Session(); s.Valid() {
			if err := a.receipts.SendReceipt(s.Email, s.Name, res); err != nil {
				a.log.WithError(err).Warn("Receipt not sent")
			}
		}
	}
	return nil
}

func (a *app) profile(ctx context.Context, args []string) error {
	current := a.sessions.Session()
	if !current.Valid() {
		return session.ErrNotAuthenticated
	}
	fs := newFlagSet("profile")
	name := fs.String("name", current.Name, "display name")
	addr := fs.String("email", current.Email, "email address")
	changePassword := fs.Bool("change-password", false, "prompt for a new password")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	form := service.ProfileForm{Name: *name, Email: *addr}
	if *changePassword {
		var err error
		if form.Password, err = prompt("New password: ", true); err != nil {
			return err
		}
		if form.ConfirmPassword, err = prompt("Confirm new password: ", true); err != nil {
			return err
		}
	}
	msg, err := a.svc.UpdateProfile(ctx, form)
	if err != nil {
		if errors.Is(err, service.ErrWeakPassword) {
			printFailures(os.Stderr, form.Password)
		}
		return err
	}
	fmt.Println(msg)
	return nil
}

func (a *app) adminAccounts(ctx context.Context, args []string) error {
	fs := newFlagSet("admin-accounts")
	activate := fs.String("activate", "", "account id to activate")
	deactivate := fs.String("deactivate", "", "account id to deactivate")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	if *activate != "" || *deactivate != "" {
		id, active := *activate, true
		if id == "" {
			id, active = *deactivate, false
		}
		msg, err := a.svc.SetAccountStatus(ctx, id, active)
		if err != nil {
			return err
		}
		fmt.Println(msg)
	}

	accounts, err := a.svc.AllAccounts(ctx)
	if err != nil {
		return err
	}
	printAccounts(os.Stdout, accounts, true)
	return nil
}

func (a *app) statement(ctx context.Context, args []string) error {
	fs := newFlagSet("statement")
	out := fs.StringP("output", "o", "", "file to write, stdout when empty")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	d, err := a.svc.Dashboard(ctx)
	if err != nil {
		return err
	}
	s := a.sessions.Session()
	holder := statement.Holder{}
	if s != nil {
		holder = statement.Holder{Name: s.Name, Email: s.Email}
	}

	if *out == "" {
		return statement.Write(os.Stdout, holder, d.Summary, time.Now())
	}
	if err := statement.WriteFile(*out, holder, d.Summary, time.Now()); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Statement written to %s\n", *out)
	return nil
}

// watch refreshes the dashboard on WATCH_SCHEDULE until interrupted or the
// session ends
func (a *app) watch(ctx context.Context) error {
	if _, ok := a.sessions.Token(); !ok {
		return session.ErrNotAuthenticated
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	unsubscribe := a.sessions.Subscribe(func(e session.Event) {
		if e.To == session.StatusAnonymous {
			cancel()
		}
	})
	defer unsubscribe()

	tick := func() {
		token, ok := a.sessions.Token()
		if !ok {
			return
		}
		if session.Expired(token, time.Now()) {
			a.sessions.Invalidate(session.ReasonExpired)
			return
		}
		d, err := a.svc.Dashboard(ctx)
		if err != nil {
			a.log.WithError(err).Warn("Dashboard refresh failed")
			return
		}
		fmt.Printf("%s  %d accounts, total balance $%s\n",
			time.Now().Format("15:04:05"), len(d.Summary.Accounts), d.Total.StringFixed(2))
	}

	c := cron.New()
	if _, err := c.AddFunc(a.cfg.WatchSchedule, tick); err != nil {
		return fmt.Errorf("WATCH_SCHEDULE is invalid: %w", err)
	}
	tick()
	c.Start()
	a.log.WithField("schedule", a.cfg.WatchSchedule).Info("Watching dashboard")

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
