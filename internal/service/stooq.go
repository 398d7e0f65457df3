package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const defaultStooqBaseURL = "https://stooq.com"

var (
	ErrNoQuote = errors.New("stooq: no quote data")

	// ErrUnsupportedTicker covers 6-digit KRX tickers, which stooq cannot
	// serve; those securities take manual quotes only.
	ErrUnsupportedTicker = errors.New("stooq: unsupported ticker, set the price manually")
)

type cachedQuote struct {
	price   decimal.Decimal
	asOf    time.Time
	fetched time.Time
}

// StooqClient fetches closing prices from stooq's CSV quote endpoint, with a
// short TTL cache to keep repeated dashboard loads cheap.
type StooqClient struct {
	cli     *http.Client
	baseURL string
	ttl     time.Duration

	mu    sync.RWMutex
	cache map[string]cachedQuote
}

// NewStooqClient builds a client against baseURL; pass "" for the public
// stooq endpoint.
func NewStooqClient(baseURL string) *StooqClient {
	if baseURL == "" {
		baseURL = defaultStooqBaseURL
	}
	return &StooqClient{
		cli:     &http.Client{Timeout: 8 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		ttl:     60 * time.Second,
		cache:   make(map[string]cachedQuote),
	}
}

// NormalizeSymbol maps a ticker to a stooq symbol: bare US tickers get a
// ".US" suffix, 6-digit numeric tickers are rejected.
func NormalizeSymbol(ticker string) (string, error) {
	t := strings.ToUpper(strings.TrimSpace(ticker))
	if t == "" {
		return "", ErrNoQuote
	}
	if len(t) == 6 && isDigits(t) {
		return "", ErrUnsupportedTicker
	}
	if !strings.Contains(t, ".") {
		t += ".US"
	}
	return t, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (c *StooqClient) GetPrice(ctx context.Context, ticker string) (decimal.Decimal, time.Time, error) {
	symbol, err := NormalizeSymbol(ticker)
	if err != nil {
		return decimal.Zero, time.Time{}, err
	}

	c.mu.RLock()
	if q, ok := c.cache[symbol]; ok && time.Since(q.fetched) < c.ttl {
		c.mu.RUnlock()
		return q.price, q.asOf, nil
	}
	c.mu.RUnlock()

	url := fmt.Sprintf("%s/q/l/?s=%s&f=sd2t2ohlcv&h&e=csv", c.baseURL, strings.ToLower(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, time.Time{}, err
	}
	req.Header.Set("User-Agent", "stockfarm/1.0")

	resp, err := c.cli.Do(req)
	if err != nil {
		return decimal.Zero, time.Time{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, time.Time{}, fmt.Errorf("stooq http %d", resp.StatusCode)
	}

	price, err := parseStooqCSV(resp.Body)
	if err != nil {
		return decimal.Zero, time.Time{}, err
	}

	asOf := time.Now().UTC().Truncate(time.Second)
	c.mu.Lock()
	c.cache[symbol] = cachedQuote{price: price, asOf: asOf, fetched: time.Now()}
	c.mu.Unlock()
	return price, asOf, nil
}

// parseStooqCSV reads the single data row of a stooq quote CSV and returns
// its Close column. Stooq reports "N/D" for unknown symbols.
func parseStooqCSV(r io.Reader) (decimal.Decimal, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return decimal.Zero, ErrNoQuote
	}
	closeIdx := -1
	for i, col := range header {
		if strings.EqualFold(col, "Close") {
			closeIdx = i
			break
		}
	}
	if closeIdx < 0 {
		return decimal.Zero, ErrNoQuote
	}
	row, err := reader.Read()
	if err != nil || closeIdx >= len(row) {
		return decimal.Zero, ErrNoQuote
	}
	raw := strings.TrimSpace(row[closeIdx])
	if raw == "" || strings.EqualFold(raw, "N/D") {
		return decimal.Zero, ErrNoQuote
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, ErrNoQuote
	}
	return price, nil
}
