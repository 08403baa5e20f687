package bank

import "time"

// Account is a bank account with its retrieved detail data.
type Account struct {
	ID       string
	Number   string
	Name     string
	Type     string
	Balance  float64
	Currency string

	// BankName is the config key of the bank this account belongs to,
	// used for reverse lookups into the banks map. It is not the token
	// identity.
	BankName string

	LastUpdated  time.Time
	Positions    []Position
	Transactions []Transaction
}

// Transaction is a single booking on an account. The securities fields
// are populated for depot transactions and left zero otherwise.
type Transaction struct {
	ID          string
	AccountID   string
	Amount      float64
	Currency    string
	Description string
	Date        time.Time
	Category    string
	Type        string

	SecurityName  string
	ISIN          string
	Quantity      float64
	Price         *float64
	PriceCurrency string
}

// Position is a single portfolio holding.
type Position struct {
	Name     string
	ISIN     string
	WKN      string
	Quantity float64

	// Price is the current price per unit, nil when the API does not
	// report one.
	Price    *float64
	Currency string
}

// Value returns the position's market value, or false when no current
// price is known.
func (p Position) Value() (float64, bool) {
	if p.Price == nil {
		return 0, false
	}
	return *p.Price * p.Quantity, true
}
