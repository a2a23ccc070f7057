// Package portfolio values the trade ledger against live quotes and manages
// the swing-trade watchlist.
package portfolio

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"ops-dashboard/internal/logger"
	"ops-dashboard/internal/quotes"
	"ops-dashboard/internal/store/kv"
)

// nearBuyBand is the distance from target, in percent, that counts as near
// the buy point.
const nearBuyBand = 5.0

type Service struct {
	store      kv.Store
	quotes     quotes.Provider
	tradesPath string
	loc        *time.Location
	now        func() time.Time
	log        *zap.SugaredLogger

	mu sync.Mutex // guards swing_trades.json writes
}

// New builds the service. tradesPath is the swing-trade file holding the
// watchlist and the catalyst calendar.
func New(store kv.Store, provider quotes.Provider, tradesPath string, loc *time.Location) *Service {
	return &Service{
		store:      store,
		quotes:     provider,
		tradesPath: tradesPath,
		loc:        loc,
		now:        time.Now,
		log:        logger.ComponentLogger("portfolio"),
	}
}

type Portfolio struct {
	UpdatedAt time.Time         `json:"updatedAt"`
	Summary   []CurrencySummary `json:"summary"`
	Holdings  []Holding         `json:"holdings"`
}

// Portfolio replays the stored transactions and marks open positions to
// market. Symbols without a quote are valued at zero.
func (s *Service) Portfolio(ctx context.Context) (Portfolio, error) {
	var txs []Transaction
	raw, err := s.store.Get(ctx, kv.KeyTransactions)
	switch {
	case errors.Is(err, kv.ErrNotFound):
	case err != nil:
		return Portfolio{}, errors.Wrap(err, "load transactions")
	default:
		txs, err = decodeTransactions(raw)
		if err != nil {
			return Portfolio{}, errors.Wrap(err, "decode transactions")
		}
	}

	lots := BuildLots(txs)
	symbols := make([]string, 0, len(lots))
	for _, l := range lots {
		symbols = append(symbols, l.Symbol)
	}
	qs, err := s.quotes.Quotes(ctx, symbols)
	if err != nil {
		return Portfolio{}, errors.Wrap(err, "quote holdings")
	}

	holdings, summary := value(lots, toPrices(qs))
	return Portfolio{UpdatedAt: s.now(), Summary: summary, Holdings: holdings}, nil
}

func toPrices(qs map[string]quotes.Quote) map[string]price {
	out := make(map[string]price, len(qs))
	for sym, q := range qs {
		out[sym] = price{last: q.Price, changePct: q.ChangePercent}
	}
	return out
}

type WatchItem struct {
	Symbol       string  `json:"symbol"`
	TargetPrice  float64 `json:"target_price,omitempty"`
	Reason       string  `json:"reason,omitempty"`
	CurrentPrice float64 `json:"currentPrice"`
	Distance     float64 `json:"distance"`
	NearBuyPoint bool    `json:"nearBuyPoint"`
}

type Catalyst struct {
	Symbol string `json:"symbol"`
	Date   string `json:"date"`
	Event  string `json:"event"`
	Notes  string `json:"notes,omitempty"`
}

type swingTrades struct {
	Watchlist []WatchItem `json:"watchlist"`
	Catalysts []Catalyst  `json:"catalyst_watch"`
}

func (s *Service) readTrades() (swingTrades, error) {
	var st swingTrades
	data, err := os.ReadFile(s.tradesPath)
	if os.IsNotExist(err) {
		return st, nil
	}
	if err != nil {
		return st, errors.Wrap(err, "read swing trades")
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, errors.Wrap(err, "decode swing trades")
	}
	return st, nil
}

// Watchlist enriches each watched symbol with its price and the distance to
// its target. A quote failure is logged and leaves prices at zero.
func (s *Service) Watchlist(ctx context.Context) ([]WatchItem, error) {
	st, err := s.readTrades()
	if err != nil {
		return nil, err
	}
	items := st.Watchlist
	if items == nil {
		return []WatchItem{}, nil
	}

	symbols := make([]string, 0, len(items))
	for _, it := range items {
		symbols = append(symbols, it.Symbol)
	}
	qs, err := s.quotes.Quotes(ctx, symbols)
	if err != nil {
		s.log.Warnw("Watchlist quotes unavailable", logger.FieldError, err)
	}

	for i := range items {
		items[i].CurrentPrice = qs[strings.ToUpper(items[i].Symbol)].Price
		items[i].Distance = 0
		if items[i].TargetPrice > 0 {
			items[i].Distance = (items[i].CurrentPrice - items[i].TargetPrice) / items[i].TargetPrice * 100
		}
		items[i].NearBuyPoint = items[i].Distance > -nearBuyBand && items[i].Distance < nearBuyBand
	}
	return items, nil
}

// Catalysts returns events dated today or later in the display zone,
// soonest first. Undated or unparseable events are dropped.
func (s *Service) Catalysts() ([]Catalyst, error) {
	st, err := s.readTrades()
	if err != nil {
		return nil, err
	}
	now := s.now().In(s.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)

	type dated struct {
		c  Catalyst
		at time.Time
	}
	var upcoming []dated
	for _, c := range st.Catalysts {
		at, ok := parseEventDate(c.Date, s.loc)
		if !ok || at.Before(today) {
			continue
		}
		upcoming = append(upcoming, dated{c, at})
	}
	sort.SliceStable(upcoming, func(i, j int) bool {
		return upcoming[i].at.Before(upcoming[j].at)
	})

	out := make([]Catalyst, 0, len(upcoming))
	for _, d := range upcoming {
		out = append(out, d.c)
	}
	return out, nil
}

func parseEventDate(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04:05", "2006/01/02"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// AddToWatchlist appends symbol unless it is already watched. Other fields of
// the swing-trade file are preserved.
func (s *Service) AddToWatchlist(symbol string) (string, bool, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return "", false, errors.New("symbol is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc := map[string]json.RawMessage{}
	if data, err := os.ReadFile(s.tradesPath); err == nil {
		if err := json.Unmarshal(data, &doc); err != nil {
			return "", false, errors.Wrap(err, "decode swing trades")
		}
	} else if !os.IsNotExist(err) {
		return "", false, errors.Wrap(err, "read swing trades")
	}

	var list []map[string]any
	if raw, ok := doc["watchlist"]; ok {
		_ = json.Unmarshal(raw, &list)
	}
	for _, item := range list {
		if sym, _ := item["symbol"].(string); strings.EqualFold(sym, symbol) {
			return symbol, false, nil
		}
	}
	list = append(list, map[string]any{
		"symbol": symbol,
		"reason": "Added from docs selection at " + s.now().UTC().Format(time.RFC3339),
	})

	raw, err := json.Marshal(list)
	if err != nil {
		return "", false, err
	}
	doc["watchlist"] = raw
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", false, err
	}
	if err := os.MkdirAll(filepath.Dir(s.tradesPath), 0755); err != nil {
		return "", false, errors.Wrap(err, "create swing trades dir")
	}
	if err := os.WriteFile(s.tradesPath, out, 0644); err != nil {
		return "", false, errors.Wrap(err, "write swing trades")
	}
	return symbol, true, nil
}
