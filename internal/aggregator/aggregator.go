package aggregator

import (
	"sort"
	"time"

	"rentendash/internal/bank"
	"rentendash/pkg/logging"
)

// AccountSummary condenses one account for display, keeping a reference
// to the full account for detail rendering.
type AccountSummary struct {
	BankName            string
	AccountID           string
	AccountName         string
	AccountType         string
	Balance             float64
	Currency            string
	TransactionCount    int
	LastTransactionDate time.Time

	Source *bank.Account
}

// BankSummary condenses the accounts of one bank.
type BankSummary struct {
	BankName         string
	TotalAccounts    int
	TotalBalance     float64
	Currency         string
	AccountSummaries []AccountSummary
}

// FinancialSummary is the overall picture across all banks. Balances
// are summed in EUR, the base currency of the sandbox.
type FinancialSummary struct {
	TotalBalance     float64
	Currency         string
	TotalAccounts    int
	TotalBanks       int
	BankSummaries    []BankSummary
	CategorySpending map[string]float64
	MonthlySpending  map[string]float64
	LastUpdated      time.Time
}

// Aggregator condenses raw bank data into display-ready summaries.
type Aggregator struct{}

func New() *Aggregator {
	logging.Info("Aggregator", "Data aggregator initialized")
	return &Aggregator{}
}

// Aggregate builds the financial summary from the per-bank account map.
// Banks with no accounts are skipped; the map is walked in sorted key
// order so the output is deterministic.
func (a *Aggregator) Aggregate(accounts map[string][]bank.Account) FinancialSummary {
	logging.Info("Aggregator", "Starting data aggregation...")

	keys := make([]string, 0, len(accounts))
	for key := range accounts {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var (
		bankSummaries []BankSummary
		totalBalance  float64
		totalAccounts int
	)
	for _, key := range keys {
		if len(accounts[key]) == 0 {
			logging.Warn("Aggregator", "No accounts found for %s", key)
			continue
		}

		summary := bankSummary(key, accounts[key])
		bankSummaries = append(bankSummaries, summary)
		totalBalance += summary.TotalBalance
		totalAccounts += summary.TotalAccounts
	}

	result := FinancialSummary{
		TotalBalance:     totalBalance,
		Currency:         "EUR",
		TotalAccounts:    totalAccounts,
		TotalBanks:       len(bankSummaries),
		BankSummaries:    bankSummaries,
		CategorySpending: map[string]float64{},
		MonthlySpending:  map[string]float64{},
		LastUpdated:      time.Now(),
	}

	logging.Info("Aggregator", "Aggregation complete: %d accounts across %d banks", result.TotalAccounts, result.TotalBanks)
	return result
}

func bankSummary(key string, accounts []bank.Account) BankSummary {
	summaries := make([]AccountSummary, 0, len(accounts))
	var total float64

	for i := range accounts {
		acc := &accounts[i]
		summary := AccountSummary{
			BankName:         acc.BankName,
			AccountID:        acc.ID,
			AccountName:      acc.Name,
			AccountType:      acc.Type,
			Balance:          acc.Balance,
			Currency:         acc.Currency,
			TransactionCount: len(acc.Transactions),
			Source:           acc,
		}
		if len(acc.Transactions) > 0 {
			summary.LastTransactionDate = acc.Transactions[0].Date
		}
		summaries = append(summaries, summary)
		total += acc.Balance
	}

	logging.Info("Aggregator", "Created summary for %s: %d accounts, total balance: %.2f", key, len(accounts), total)
	return BankSummary{
		BankName:         key,
		TotalAccounts:    len(accounts),
		TotalBalance:     total,
		Currency:         accounts[0].Currency,
		AccountSummaries: summaries,
	}
}
