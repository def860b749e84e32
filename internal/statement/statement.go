// Package statement renders a dashboard summary as an XML statement.
package statement

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"

	"github.com/Dan9191/bank-client/internal/models"
)

// Holder identifies whose statement it is
type Holder struct {
	Name  string
	Email string
}

// Build creates the statement document
func Build(h Holder, sum *models.Summary, generated time.Time) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("Statement")
	root.CreateAttr("generated", generated.UTC().Format(time.RFC3339))

	holder := root.CreateElement("Holder")
	holder.CreateElement("Name").SetText(h.Name)
	holder.CreateElement("Email").SetText(h.Email)

	accounts := root.CreateElement("Accounts")
	for _, a := range sum.Accounts {
		el := accounts.CreateElement("Account")
		el.CreateAttr("id", a.ID)
		el.CreateAttr("number", a.AccountNumber)
		el.CreateAttr("type", a.AccountType)
		el.CreateAttr("active", fmt.Sprintf("%t", a.IsActive))
		el.CreateElement("Balance").SetText(a.Balance.StringFixed(2))
	}
	accounts.CreateAttr("total", models.TotalBalance(sum.Accounts).StringFixed(2))

	txns := root.CreateElement("Transactions")
	for _, t := range sum.Transactions {
		el := txns.CreateElement("Transaction")
		el.CreateAttr("type", t.Type)
		el.CreateAttr("account", t.Account.AccountNumber)
		if !t.Timestamp.IsZero() {
			el.CreateAttr("at", t.Timestamp.UTC().Format(time.RFC3339))
		}
		amount := t.Amount
		if !t.Credit() {
			amount = amount.Neg()
		}
		el.CreateElement("Amount").SetText(amount.StringFixed(2))
		if t.Description != "" {
			el.CreateElement("Description").SetText(t.Description)
		}
	}

	doc.Indent(2)
	return doc
}

// Write renders the statement to w
func Write(w io.Writer, h Holder, sum *models.Summary, generated time.Time) error {
	if _, err := Build(h, sum, generated).WriteTo(w); err != nil {
		return fmt.Errorf("failed to write statement: %w", err)
	}
	return nil
}

// ErrTotalMismatch is returned when a statement's total is not the sum of
// the balances it lists
var ErrTotalMismatch = errors.New("statement total does not match its balances")

// WriteFile renders the statement to path, then reads the file back and
// verifies it
func WriteFile(path string, h Holder, sum *models.Summary, generated time.Time) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := Write(f, h, sum, generated); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read back %s: %w", path, err)
	}
	return Verify(raw)
}

// Verify checks that the listed total equals the sum of the listed balances
func Verify(raw []byte) error {
	listed, computed, err := Totals(raw)
	if err != nil {
		return err
	}
	if !listed.Equal(computed) {
		return fmt.Errorf("%w: listed %s, balances sum to %s", ErrTotalMismatch, listed.StringFixed(2), computed.StringFixed(2))
	}
	return nil
}

// Totals recomputes the account total of a statement, so an exported file
// can be checked against the balances it lists
func Totals(raw []byte) (listed, computed decimal.Decimal, err error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to parse statement: %w", err)
	}
	accounts := doc.FindElement("//Accounts")
	if accounts == nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("no accounts found in statement")
	}
	listed, err = decimal.NewFromString(accounts.SelectAttrValue("total", ""))
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to parse total: %w", err)
	}
	computed = decimal.Zero
	for _, b := range accounts.FindElements("./Account/Balance") {
		v, err := decimal.NewFromString(b.Text())
		if err != nil {
			return decimal.Zero, decimal.Zero, fmt.Errorf("failed to parse balance: %w", err)
		}
		computed = computed.Add(v)
	}
	return listed, computed, nil
}
