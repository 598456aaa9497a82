// Package price quotes native coin amounts in a fiat currency using the
// CoinGecko simple price API.
package price

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultBaseURL is the public CoinGecko API.
const DefaultBaseURL = "https://api.coingecko.com/api/v3"

// ErrNoPrice is returned when the API has no price for a coin or currency.
var ErrNoPrice = errors.New("price not available")

// coinIDs maps a native currency symbol to its CoinGecko id.
var coinIDs = map[string]string{
	"ETH": "ethereum",
	"POL": "polygon-ecosystem-token",
}

// Quoter fetches spot prices.
type Quoter struct {
	client  *http.Client
	baseURL string
	fiat    string
}

// Option configures a Quoter.
type Option func(*Quoter)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(q *Quoter) { q.client = hc }
}

// WithBaseURL points the quoter at another API root.
func WithBaseURL(u string) Option {
	return func(q *Quoter) { q.baseURL = strings.TrimRight(u, "/") }
}

// NewQuoter creates a quoter for the given fiat currency, "usd" if empty.
func NewQuoter(fiat string, opts ...Option) *Quoter {
	if fiat == "" {
		fiat = "usd"
	}
	q := &Quoter{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: DefaultBaseURL,
		fiat:    strings.ToLower(fiat),
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Fiat returns the lower-case currency code quotes are in.
func (q *Quoter) Fiat() string { return q.fiat }

// Price returns the price of one coin of the given symbol.
func (q *Quoter) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	id, ok := coinIDs[strings.ToUpper(symbol)]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: unknown coin %s", ErrNoPrice, symbol)
	}

	u := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=%s",
		q.baseURL, url.QueryEscape(id), url.QueryEscape(q.fiat))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return decimal.Zero, err
	}
	resp, err := q.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetching price: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("fetching price: HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, fmt.Errorf("reading price response: %w", err)
	}

	// {"ethereum":{"usd":1234.56}}
	var raw map[string]map[string]decimal.Decimal
	if err := json.Unmarshal(body, &raw); err != nil {
		return decimal.Zero, fmt.Errorf("parsing price response: %w", err)
	}
	p, ok := raw[id][q.fiat]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s in %s", ErrNoPrice, symbol, q.fiat)
	}
	return p, nil
}

// Value converts a decimal coin amount such as "1.5" at price, rounded to
// cents.
func Value(amount string, price decimal.Decimal) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	return d.Mul(price).Round(2), nil
}

// Format renders a fiat value with its currency code, e.g. "3702.00 USD".
func Format(v decimal.Decimal, fiat string) string {
	return v.StringFixed(2) + " " + strings.ToUpper(fiat)
}
