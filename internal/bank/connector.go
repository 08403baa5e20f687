package bank

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"rentendash/internal/config"
	"rentendash/internal/oauth"
	"rentendash/pkg/logging"
)

const (
	// transactionDaysBack is the default transaction history window.
	transactionDaysBack = 30

	// transactionLimit caps the number of transactions fetched per account.
	transactionLimit = 25
)

// Connector retrieves account, portfolio and transaction data from the
// configured banks. Authentication is delegated to the OAuth manager; a
// bank whose API is unreachable degrades to mock data rather than
// failing the whole dashboard.
type Connector struct {
	mgr     *oauth.Manager
	banks   map[string]config.BankConfig
	app     config.AppConfig
	timeout time.Duration
}

// NewConnector creates a connector over the given banks, keyed by their
// config key.
func NewConnector(mgr *oauth.Manager, banks map[string]config.BankConfig, app config.AppConfig) *Connector {
	logging.Info("Bank", "Bank connector initialized with %d bank(s)", len(banks))
	return &Connector{
		mgr:     mgr,
		banks:   banks,
		app:     app,
		timeout: 30 * time.Second,
	}
}

// ConnectAll authenticates against every configured bank and retrieves
// its accounts. A failing bank contributes an empty slice and the rest
// continue; the error is logged, not returned.
func (c *Connector) ConnectAll(ctx context.Context) map[string][]Account {
	logging.Info("Bank", "Connecting to all configured banks...")

	all := make(map[string][]Account, len(c.banks))
	for key, bank := range c.banks {
		logging.Info("Bank", "Connecting to %s...", key)

		if err := c.ensureValidToken(ctx, key, bank); err != nil {
			logging.Error("Bank", err, "Failed to authenticate with %s", key)
			all[key] = nil
			continue
		}

		accounts, err := c.fetchAccounts(ctx, key, bank)
		if err != nil {
			logging.Error("Bank", err, "Failed to connect to %s", key)
			all[key] = nil
			continue
		}
		all[key] = accounts
		logging.Info("Bank", "Successfully connected to %s, found %d accounts", key, len(accounts))
	}

	total := 0
	for _, accounts := range all {
		total += len(accounts)
	}
	logging.Info("Bank", "Connected to %d banks, total accounts: %d", len(all), total)
	return all
}

// FetchTransactions retrieves the transaction history for one account,
// looking back the given number of days.
func (c *Connector) FetchTransactions(ctx context.Context, account Account, daysBack int) ([]Transaction, error) {
	bank, ok := c.banks[account.BankName]
	if !ok {
		return nil, fmt.Errorf("no bank configuration found for account %s", account.ID)
	}

	client, err := c.httpClient(ctx, bank)
	if err != nil {
		return nil, err
	}
	return c.fetchTransactions(ctx, client, bank, account.ID, daysBack, transactionLimit)
}

// ensureValidToken makes sure the bank's token identity holds usable
// credentials before any API call. The token identity is the bank's
// Name, not the config key.
func (c *Connector) ensureValidToken(ctx context.Context, key string, bank config.BankConfig) error {
	if c.mgr.IsTokenValid(bank.Name) {
		return nil
	}
	logging.Info("Bank", "No valid token found for %s (bank %q), initiating OAuth flow...", bank.Name, key)
	return c.mgr.EnsureAuthenticated(ctx, bank, c.app)
}

// httpClient builds a bearer-injecting HTTP client from the stored
// token record for the bank's identity.
func (c *Connector) httpClient(ctx context.Context, bank config.BankConfig) (*http.Client, error) {
	rec, err := c.mgr.Store().Record(bank.Name)
	if err != nil {
		return nil, fmt.Errorf("no valid token for %s: %w", bank.Name, err)
	}

	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(rec.OAuth2Token()))
	client.Timeout = c.timeout
	return client, nil
}

func (c *Connector) fetchAccounts(ctx context.Context, key string, bank config.BankConfig) ([]Account, error) {
	client, err := c.httpClient(ctx, bank)
	if err != nil {
		return nil, err
	}

	var resp accountsResponse
	if err := getJSON(ctx, client, bank.APIBaseURL+"/accounts", nil, &resp); err != nil {
		logging.Warn("Bank", "Accounts API unavailable for %s (%v), using mock data", key, err)
		return c.mockAccounts(key), nil
	}

	var accounts []Account
	for _, id := range resp.SecuritiesAccountIDs {
		accountID := id.id()
		if accountID == "" {
			continue
		}

		balance := 0.0
		currency := "EUR"
		var positions []Position

		var portfolio portfolioResponse
		params := url.Values{"effectiveDate": {time.Now().Format("2006-01-02")}}
		portfolioURL := fmt.Sprintf("%s/accounts/%s/portfolio", bank.APIBaseURL, accountID)
		if err := getJSON(ctx, client, portfolioURL, params, &portfolio); err != nil {
			logging.Warn("Bank", "Portfolio fetch failed for %s: %v", accountID, err)
		} else {
			if portfolio.TotalValue != nil {
				balance = portfolio.TotalValue.Amount
				if portfolio.TotalValue.Currency != "" {
					currency = portfolio.TotalValue.Currency
				}
			}
			for _, pos := range portfolio.Positions {
				positions = append(positions, parsePosition(pos))
			}
			logging.Info("Bank", "Account %s: parsed %d positions from portfolio", accountID, len(positions))
		}

		account := Account{
			ID:          accountID,
			Number:      firstNonEmpty(id.SecuritiesAccountID, accountID),
			Name:        "Securities " + accountID,
			Type:        "securities",
			Balance:     balance,
			Currency:    currency,
			BankName:    key,
			LastUpdated: time.Now(),
			Positions:   positions,
		}

		txs, err := c.fetchTransactions(ctx, client, bank, accountID, transactionDaysBack, transactionLimit)
		if err != nil {
			logging.Warn("Bank", "Transactions fetch failed for %s: %v", accountID, err)
		} else {
			account.Transactions = txs
			logging.Info("Bank", "Account %s: fetched %d recent transactions", accountID, len(txs))
		}

		accounts = append(accounts, account)
	}

	if len(accounts) == 0 {
		return c.mockAccounts(key), nil
	}
	return accounts, nil
}

func (c *Connector) fetchTransactions(ctx context.Context, client *http.Client, bank config.BankConfig, accountID string, daysBack, limit int) ([]Transaction, error) {
	end := time.Now()
	start := end.AddDate(0, 0, -daysBack)

	params := url.Values{
		"fromTradingDate": {start.Format("2006-01-02")},
		"toTradingDate":   {end.Format("2006-01-02")},
		"limit":           {fmt.Sprint(limit)},
	}

	var resp transactionsResponse
	txURL := fmt.Sprintf("%s/accounts/%s/transactions", bank.APIBaseURL, accountID)
	if err := getJSON(ctx, client, txURL, params, &resp); err != nil {
		return nil, err
	}

	txs := make([]Transaction, 0, len(resp.Transactions))
	for _, wt := range resp.Transactions {
		txs = append(txs, parseTransaction(accountID, wt))
	}
	return txs, nil
}

func parsePosition(pos wirePosition) Position {
	var md securitiesMasterdata
	if pos.Masterdata != nil {
		md = pos.Masterdata.SecuritiesMasterdata
	}

	p := Position{
		Name:     firstNonEmpty(md.Name, "Security"),
		ISIN:     md.ISIN,
		WKN:      md.WKN,
		Currency: "EUR",
	}
	if pos.Quantity != nil {
		p.Quantity = pos.Quantity.Amount
	}
	if pos.CurrentPrice != nil {
		price := pos.CurrentPrice.Amount
		p.Price = &price
		if pos.CurrentPrice.Currency != "" {
			p.Currency = pos.CurrentPrice.Currency
		}
	}
	return p
}

func parseTransaction(accountID string, wt wireTransaction) Transaction {
	tx := Transaction{
		ID:            wt.TransactionID,
		AccountID:     accountID,
		Category:      "securities",
		Type:          "transaction",
		Date:          parseDate(wt.date()),
		PriceCurrency: "EUR",
	}

	if wt.Masterdata != nil {
		tx.SecurityName = wt.Masterdata.Name
		tx.ISIN = wt.Masterdata.ISIN
		tx.Description = wt.Masterdata.Name
	}
	if wt.TransactionType != nil && wt.TransactionType.Name != "" {
		tx.Type = wt.TransactionType.Name
	}
	if wt.Size != nil {
		tx.Quantity = wt.Size.Amount
	}
	if wt.Price != nil {
		price := wt.Price.Amount
		tx.Price = &price
		if wt.Price.Currency != "" {
			tx.PriceCurrency = wt.Price.Currency
		}
	}

	tx.Currency = tx.PriceCurrency
	if wt.ActualAmount != nil {
		tx.Amount = wt.ActualAmount.Amount
		if wt.ActualAmount.Currency != "" {
			tx.Currency = wt.ActualAmount.Currency
		}
	}
	return tx
}

// parseDate accepts both date-only and full timestamp forms; an
// unparseable value falls back to the current time.
func parseDate(s string) time.Time {
	if s == "" {
		return time.Now()
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t
	}
	return time.Now()
}

// getJSON performs a GET against a bank API endpoint and decodes the
// JSON response. A non-200 status is an error.
func getJSON(ctx context.Context, client *http.Client, rawURL string, params url.Values, out any) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, u.Path)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
