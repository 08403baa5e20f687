package aggregator

import (
	"math"
	"sort"
	"time"

	"rentendash/internal/bank"
	"rentendash/pkg/logging"
)

// TransactionAnalysis summarizes cash flow over a set of transactions.
// Negative amounts count as spending, positive as income; category and
// monthly breakdowns use absolute amounts.
type TransactionAnalysis struct {
	TotalTransactions  int
	TotalSpent         float64
	TotalReceived      float64
	NetFlow            float64
	Categories         map[string]float64
	MonthlyBreakdown   map[string]float64
	AverageTransaction float64
}

// CategoryTotal is one category's absolute spending.
type CategoryTotal struct {
	Category string
	Amount   float64
}

// Expense describes a single outgoing transaction.
type Expense struct {
	Amount      float64
	Description string
	Date        time.Time
	Category    string
}

// SpendingReport holds spending insights over a look-back window.
type SpendingReport struct {
	PeriodDays       int
	TotalSpending    float64
	TransactionCount int
	DailyAverage     float64
	TopCategories    []CategoryTotal
	LargestExpense   *Expense
}

// AggregateTransactions analyzes the given transactions. An empty input
// yields a zero analysis with non-nil maps.
func (a *Aggregator) AggregateTransactions(transactions []bank.Transaction) TransactionAnalysis {
	analysis := TransactionAnalysis{
		Categories:       map[string]float64{},
		MonthlyBreakdown: map[string]float64{},
	}
	if len(transactions) == 0 {
		return analysis
	}

	for _, tx := range transactions {
		if tx.Amount < 0 {
			analysis.TotalSpent += -tx.Amount
		} else {
			analysis.TotalReceived += tx.Amount
		}
		analysis.Categories[tx.Category] += math.Abs(tx.Amount)
		analysis.MonthlyBreakdown[tx.Date.Format("2006-01")] += math.Abs(tx.Amount)
	}

	analysis.TotalTransactions = len(transactions)
	analysis.NetFlow = analysis.TotalReceived - analysis.TotalSpent
	analysis.AverageTransaction = (analysis.TotalSpent + analysis.TotalReceived) / float64(len(transactions))

	logging.Info("Aggregator", "Transaction analysis complete: %d transactions processed", len(transactions))
	return analysis
}

// SpendingInsights analyzes expenses within the last daysBack days:
// total and daily-average spending, the top five categories and the
// largest single expense.
func (a *Aggregator) SpendingInsights(transactions []bank.Transaction, daysBack int) SpendingReport {
	report := SpendingReport{PeriodDays: daysBack}

	cutoff := time.Now().AddDate(0, 0, -daysBack)
	var expenses []bank.Transaction
	for _, tx := range transactions {
		if tx.Amount < 0 && !tx.Date.Before(cutoff) {
			expenses = append(expenses, tx)
		}
	}
	if len(expenses) == 0 {
		return report
	}

	byCategory := map[string]float64{}
	largest := expenses[0]
	for _, tx := range expenses {
		report.TotalSpending += -tx.Amount
		byCategory[tx.Category] += -tx.Amount
		if -tx.Amount > -largest.Amount {
			largest = tx
		}
	}

	report.TransactionCount = len(expenses)
	report.DailyAverage = report.TotalSpending / float64(daysBack)

	for category, amount := range byCategory {
		report.TopCategories = append(report.TopCategories, CategoryTotal{Category: category, Amount: amount})
	}
	sort.Slice(report.TopCategories, func(i, j int) bool {
		if report.TopCategories[i].Amount != report.TopCategories[j].Amount {
			return report.TopCategories[i].Amount > report.TopCategories[j].Amount
		}
		return report.TopCategories[i].Category < report.TopCategories[j].Category
	})
	if len(report.TopCategories) > 5 {
		report.TopCategories = report.TopCategories[:5]
	}

	report.LargestExpense = &Expense{
		Amount:      -largest.Amount,
		Description: largest.Description,
		Date:        largest.Date,
		Category:    largest.Category,
	}

	logging.Info("Aggregator", "Generated spending insights for %d days: %.2f EUR spent", daysBack, report.TotalSpending)
	return report
}
