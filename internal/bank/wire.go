package bank

// Wire types for the Commerzbank Securities Sandbox API (v4). Monetary
// values and quantities arrive as {amount, currency} pairs; security
// identity lives in a nested masterdata block.

type monetaryAmount struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

type accountsResponse struct {
	SecuritiesAccountIDs []wireAccountID `json:"securitiesAccountIds"`
}

type wireAccountID struct {
	PseudonymizedAccountID string `json:"pseudonymizedAccountId"`
	SecuritiesAccountID    string `json:"securitiesAccountId"`
}

// id returns the identifier to use for follow-up API calls, preferring
// the pseudonymized form.
func (a wireAccountID) id() string {
	if a.PseudonymizedAccountID != "" {
		return a.PseudonymizedAccountID
	}
	return a.SecuritiesAccountID
}

type portfolioResponse struct {
	TotalValue *monetaryAmount `json:"totalValue"`
	Positions  []wirePosition  `json:"positions"`
}

type wirePosition struct {
	Quantity     *monetaryAmount `json:"quantity"`
	CurrentPrice *monetaryAmount `json:"currentPrice"`
	Masterdata   *wireMasterdata `json:"masterdata"`
}

type wireMasterdata struct {
	SecuritiesMasterdata securitiesMasterdata `json:"securitiesMasterdata"`
}

type securitiesMasterdata struct {
	Name string `json:"name"`
	ISIN string `json:"isin"`
	WKN  string `json:"wkn"`
}

type transactionsResponse struct {
	Transactions []wireTransaction `json:"transactions"`
}

type wireTransaction struct {
	TransactionID   string                `json:"transactionId"`
	Masterdata      *securitiesMasterdata `json:"masterdata"`
	Size            *monetaryAmount       `json:"size"`
	Price           *monetaryAmount       `json:"price"`
	ActualAmount    *monetaryAmount       `json:"actualAmount"`
	TransactionType *wireTransactionType  `json:"transactionType"`
	TradingDate     string                `json:"tradingDate"`
	BookingDate     string                `json:"bookingDate"`
}

type wireTransactionType struct {
	Name string `json:"name"`
}

// date returns the transaction's best-known date string, preferring the
// trading date over the booking date.
func (t wireTransaction) date() string {
	if t.TradingDate != "" {
		return t.TradingDate
	}
	return t.BookingDate
}
