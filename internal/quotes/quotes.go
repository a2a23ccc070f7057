// Package quotes fetches delayed stock quotes for the portfolio and
// watchlist views.
package quotes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"
)

type Quote struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	ChangePercent float64 `json:"changesPercentage"`
}

type Provider interface {
	// Quotes returns quotes keyed by upper-case symbol. Symbols the provider
	// does not know are absent from the map.
	Quotes(ctx context.Context, symbols []string) (map[string]Quote, error)
}

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("quote provider is not configured")

// FMP is a Financial Modeling Prep client. All symbols go out in one batched
// request, throttled to the configured per-minute budget.
type FMP struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
}

func NewFMP(baseURL, apiKey string, perMinute int, client *http.Client) *FMP {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	limit := rate.Inf
	burst := 1
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
		burst = max(1, perMinute/60)
	}
	return &FMP{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (f *FMP) Quotes(ctx context.Context, symbols []string) (map[string]Quote, error) {
	if f.apiKey == "" {
		return nil, ErrNotConfigured
	}
	wanted := normalize(symbols)
	out := make(map[string]Quote, len(wanted))
	if len(wanted) == 0 {
		return out, nil
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "quote rate limit")
	}

	endpoint := f.baseURL + "/quote/" + url.PathEscape(strings.Join(wanted, ",")) +
		"?apikey=" + url.QueryEscape(f.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetch quotes")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("fetch quotes: status %d", resp.StatusCode)
	}

	var items []Quote
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, errors.Wrap(err, "decode quotes")
	}
	for _, q := range items {
		if q.Symbol == "" {
			continue
		}
		q.Symbol = strings.ToUpper(q.Symbol)
		out[q.Symbol] = q
	}
	return out, nil
}

// normalize upper-cases, trims and de-duplicates symbols in sorted order.
func normalize(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	var out []string
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
