package aggregator

import (
	"sort"
	"time"
)

// Trend direction of a net worth series.
type Trend string

const (
	TrendIncreasing       Trend = "increasing"
	TrendDecreasing       Trend = "decreasing"
	TrendStable           Trend = "stable"
	TrendInsufficientData Trend = "insufficient_data"
)

// TrendReport describes the net worth change between the oldest and
// newest summary of a series.
type TrendReport struct {
	Trend            Trend
	Change           float64
	ChangePercentage float64
	FirstBalance     float64
	LastBalance      float64
	DataPoints       int
	Start            time.Time
	End              time.Time
}

// NetWorthTrend compares total balances across historical summaries.
// Fewer than two data points yield an insufficient-data report.
func (a *Aggregator) NetWorthTrend(history []FinancialSummary) TrendReport {
	if len(history) < 2 {
		return TrendReport{Trend: TrendInsufficientData, DataPoints: len(history)}
	}

	sorted := make([]FinancialSummary, len(history))
	copy(sorted, history)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].LastUpdated.Before(sorted[j].LastUpdated)
	})

	first := sorted[0]
	last := sorted[len(sorted)-1]
	change := last.TotalBalance - first.TotalBalance

	report := TrendReport{
		Change:       change,
		FirstBalance: first.TotalBalance,
		LastBalance:  last.TotalBalance,
		DataPoints:   len(history),
		Start:        first.LastUpdated,
		End:          last.LastUpdated,
	}
	if first.TotalBalance != 0 {
		report.ChangePercentage = change / first.TotalBalance * 100
	}

	switch {
	case change > 0:
		report.Trend = TrendIncreasing
	case change < 0:
		report.Trend = TrendDecreasing
	default:
		report.Trend = TrendStable
	}
	return report
}
