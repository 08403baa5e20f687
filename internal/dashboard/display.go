package dashboard

import (
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"rentendash/internal/aggregator"
	"rentendash/pkg/logging"
)

const (
	// maxDetailRows caps positions and transactions shown per account.
	maxDetailRows = 10
)

// Display renders the financial summary to a terminal.
type Display struct {
	out       io.Writer
	useColors bool
}

// New creates a display writing to stdout.
func New(useColors bool) *Display {
	return NewWithWriter(os.Stdout, useColors)
}

// NewWithWriter creates a display writing to the given writer.
func NewWithWriter(out io.Writer, useColors bool) *Display {
	logging.Info("Dashboard", "Console display initialized")
	return &Display{out: out, useColors: useColors}
}

// Show renders the complete dashboard: overall summary, per-bank
// summaries, account details and a footer timestamp.
func (d *Display) Show(summary aggregator.FinancialSummary) {
	d.printHeader()
	d.printOverallSummary(summary)
	d.printBankSummaries(summary.BankSummaries)
	d.printAccountDetails(summary.BankSummaries)
	d.printFooter(summary)
}

func (d *Display) printHeader() {
	fmt.Fprintln(d.out, d.color(text.Colors{text.FgCyan, text.Bold}, "RENTENDASH - Financial Overview"))
	fmt.Fprintln(d.out)
}

func (d *Display) printOverallSummary(summary aggregator.FinancialSummary) {
	t := d.newTable()
	t.SetTitle("Overall Financial Summary")
	t.AppendRows([]table.Row{
		{"Total Balance", d.money(summary.TotalBalance, summary.Currency)},
		{"Connected Banks", summary.TotalBanks},
		{"Total Accounts", summary.TotalAccounts},
		{"Last Updated", summary.LastUpdated.Format("2006-01-02 15:04:05")},
	})
	t.Render()
}

func (d *Display) printBankSummaries(banks []aggregator.BankSummary) {
	if len(banks) == 0 {
		fmt.Fprintln(d.out, d.color(text.Colors{text.FgYellow}, "No bank data available"))
		return
	}

	t := d.newTable()
	t.SetTitle("Bank Summaries")
	t.AppendHeader(table.Row{"Bank", "Status", "Accounts", "Balance"})
	for _, bank := range banks {
		status := d.color(text.Colors{text.FgGreen}, "connected")
		if bank.TotalAccounts == 0 {
			status = d.color(text.Colors{text.FgRed}, "no accounts")
		}
		t.AppendRow(table.Row{bank.BankName, status, bank.TotalAccounts, d.money(bank.TotalBalance, bank.Currency)})
	}
	t.Render()
}

func (d *Display) printAccountDetails(banks []aggregator.BankSummary) {
	for _, bank := range banks {
		if len(bank.AccountSummaries) == 0 {
			continue
		}

		t := d.newTable()
		t.SetTitle("Accounts - " + bank.BankName)
		t.AppendHeader(table.Row{"Account", "Type", "Balance", "Transactions"})
		for _, acc := range bank.AccountSummaries {
			t.AppendRow(table.Row{acc.AccountName, acc.AccountType, d.money(acc.Balance, acc.Currency), acc.TransactionCount})
		}
		t.Render()

		for _, acc := range bank.AccountSummaries {
			if acc.Source == nil {
				continue
			}
			d.printPositions(acc)
			d.printTransactions(acc)
		}
	}
}

func (d *Display) printPositions(acc aggregator.AccountSummary) {
	positions := acc.Source.Positions
	if len(positions) == 0 {
		return
	}
	if len(positions) > maxDetailRows {
		positions = positions[:maxDetailRows]
	}

	t := d.newTable()
	t.SetTitle("Positions - " + acc.AccountName)
	t.AppendHeader(table.Row{"Security", "ISIN/WKN", "Qty", "Price", "Value"})
	for _, pos := range positions {
		price := "-"
		if pos.Price != nil {
			price = fmt.Sprintf("%.2f %s", *pos.Price, pos.Currency)
		}
		value := "-"
		if v, ok := pos.Value(); ok {
			value = d.money(v, pos.Currency)
		}
		id := pos.ISIN
		if id == "" {
			id = pos.WKN
		}
		t.AppendRow(table.Row{pos.Name, id, fmt.Sprintf("%g", pos.Quantity), price, value})
	}
	t.Render()
}

func (d *Display) printTransactions(acc aggregator.AccountSummary) {
	transactions := acc.Source.Transactions
	if len(transactions) == 0 {
		return
	}
	if len(transactions) > maxDetailRows {
		transactions = transactions[:maxDetailRows]
	}

	t := d.newTable()
	t.SetTitle("Recent Transactions - " + acc.AccountName)
	t.AppendHeader(table.Row{"Date", "Description", "Type", "Amount"})
	for _, tx := range transactions {
		desc := tx.SecurityName
		if desc == "" {
			desc = tx.Description
		}
		if tx.Quantity != 0 {
			desc = fmt.Sprintf("%s x%g", desc, tx.Quantity)
		}
		t.AppendRow(table.Row{tx.Date.Format("2006-01-02"), desc, tx.Type, d.money(tx.Amount, tx.Currency)})
	}
	t.Render()
}

func (d *Display) printFooter(summary aggregator.FinancialSummary) {
	fmt.Fprintln(d.out)
	fmt.Fprintln(d.out, d.color(text.Colors{text.Faint},
		fmt.Sprintf("Dashboard generated at %s", summary.LastUpdated.Format("2006-01-02 15:04:05"))))
}

func (d *Display) newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(d.out)
	t.SetStyle(table.StyleRounded)
	return t
}

// money formats an amount, green for non-negative and red for negative.
func (d *Display) money(amount float64, currency string) string {
	s := fmt.Sprintf("%.2f %s", amount, currency)
	if amount < 0 {
		return d.color(text.Colors{text.FgRed}, s)
	}
	return d.color(text.Colors{text.FgGreen}, s)
}

func (d *Display) color(c text.Colors, s string) string {
	if !d.useColors {
		return s
	}
	return c.Sprint(s)
}
