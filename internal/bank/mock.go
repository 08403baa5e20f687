package bank

import (
	"time"

	"github.com/google/uuid"

	"rentendash/pkg/logging"
)

// mockAccounts fabricates account data so the dashboard keeps working
// when the bank API is unreachable or returns no accounts.
func (c *Connector) mockAccounts(key string) []Account {
	logging.Warn("Bank", "SIMULATION: Using mock data for %s - NOT FOR PRODUCTION", key)

	now := time.Now()
	accounts := []Account{
		{
			ID:          key + "_checking_" + uuid.NewString()[:8],
			Number:      "****1234",
			Name:        "Primary Checking",
			Type:        "checking",
			Balance:     2547.83,
			Currency:    "EUR",
			BankName:    key,
			LastUpdated: now,
		},
		{
			ID:          key + "_savings_" + uuid.NewString()[:8],
			Number:      "****5678",
			Name:        "Savings Account",
			Type:        "savings",
			Balance:     15420.91,
			Currency:    "EUR",
			BankName:    key,
			LastUpdated: now,
		},
	}

	logging.Info("Bank", "Generated %d mock accounts for %s", len(accounts), key)
	return accounts
}
