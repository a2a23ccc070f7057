package portfolio

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// dustQty is the smallest position still reported as held.
const dustQty = 1e-6

// Number accepts JSON numbers and numeric strings; anything else is zero.
type Number float64

func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(bytes.TrimSpace(b), `"`)
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		*n = 0
		return nil
	}
	*n = Number(v)
	return nil
}

type Transaction struct {
	Symbol      string `json:"symbol"`
	Action      string `json:"action"` // BUY or SELL
	Quantity    Number `json:"quantity"`
	Price       Number `json:"price"`
	Date        string `json:"date"`
	TotalAmount Number `json:"totalAmount,omitempty"`
	Currency    string `json:"currency"`
	Market      string `json:"market,omitempty"`
}

// Lot is the running average-cost position for one symbol in one currency.
type Lot struct {
	Symbol   string
	Currency string
	Qty      float64
	Cost     float64
}

func (l Lot) AvgCost() float64 {
	if l.Qty <= 0 {
		return 0
	}
	return l.Cost / l.Qty
}

// BuildLots replays transactions in order. Buys add quantity and cost; sells
// remove min(qty, held) at the current average cost. Transactions without a
// symbol, a positive quantity or a positive price are ignored, as are
// positions left below dust.
func BuildLots(txs []Transaction) []Lot {
	lots := map[string]*Lot{}
	var order []string

	for _, tx := range txs {
		symbol := strings.ToUpper(strings.TrimSpace(tx.Symbol))
		qty, price := float64(tx.Quantity), float64(tx.Price)
		if symbol == "" || qty <= 0 || price <= 0 {
			continue
		}
		currency := strings.ToUpper(strings.TrimSpace(tx.Currency))
		if currency == "" {
			currency = "USD"
		}

		key := symbol + "__" + currency
		lot, ok := lots[key]
		if !ok {
			lot = &Lot{Symbol: symbol, Currency: currency}
			lots[key] = lot
			order = append(order, key)
		}

		switch strings.ToUpper(strings.TrimSpace(tx.Action)) {
		case "BUY":
			lot.Cost += qty * price
			lot.Qty += qty
		case "SELL":
			if lot.Qty > 0 {
				sell := min(qty, lot.Qty)
				lot.Cost -= lot.AvgCost() * sell
				lot.Qty -= sell
			}
		}
	}

	out := make([]Lot, 0, len(order))
	for _, key := range order {
		if lots[key].Qty > dustQty {
			out = append(out, *lots[key])
		}
	}
	return out
}

// decodeTransactions accepts a flat list or a list of lists, the latter being
// how several uploads of the ledger accumulate.
func decodeTransactions(raw []byte) ([]Transaction, error) {
	var nested []json.RawMessage
	if err := json.Unmarshal(raw, &nested); err != nil {
		return nil, err
	}
	var out []Transaction
	for _, item := range nested {
		item = bytes.TrimSpace(item)
		if len(item) > 0 && item[0] == '[' {
			var batch []Transaction
			if err := json.Unmarshal(item, &batch); err == nil {
				out = append(out, batch...)
			}
			continue
		}
		var tx Transaction
		if err := json.Unmarshal(item, &tx); err == nil {
			out = append(out, tx)
		}
	}
	return out, nil
}

type Holding struct {
	Symbol       string  `json:"symbol"`
	Qty          float64 `json:"qty"`
	AvgCost      float64 `json:"avgCost"`
	CurrentPrice float64 `json:"currentPrice"`
	Value        float64 `json:"value"`
	Cost         float64 `json:"cost"`
	PnL          float64 `json:"pnl"`
	PnLPct       float64 `json:"pnlPct"`
	DayChangePct float64 `json:"dayChangePct"`
	Currency     string  `json:"currency"`
}

type CurrencySummary struct {
	Currency    string  `json:"currency"`
	TotalValue  float64 `json:"totalValue"`
	TotalCost   float64 `json:"totalCost"`
	TotalPnL    float64 `json:"totalPnl"`
	TotalPnLPct float64 `json:"totalPnlPct"`
	DayPnL      float64 `json:"dayPnl"`
}

// price is what the valuation needs from a quote.
type price struct {
	last      float64
	changePct float64
}

// value marks lots to market, largest position first, and totals them per
// currency in order of first appearance.
func value(lots []Lot, prices map[string]price) ([]Holding, []CurrencySummary) {
	holdings := make([]Holding, 0, len(lots))
	for _, lot := range lots {
		p := prices[lot.Symbol]
		v := lot.Qty * p.last
		pnl := v - lot.Cost
		pnlPct := 0.0
		if lot.Cost > 0 {
			pnlPct = pnl / lot.Cost * 100
		}
		holdings = append(holdings, Holding{
			Symbol:       lot.Symbol,
			Qty:          roundTo(lot.Qty, 4),
			AvgCost:      lot.AvgCost(),
			CurrentPrice: p.last,
			Value:        v,
			Cost:         lot.Cost,
			PnL:          pnl,
			PnLPct:       pnlPct,
			DayChangePct: p.changePct,
			Currency:     lot.Currency,
		})
	}
	sort.SliceStable(holdings, func(i, j int) bool {
		return holdings[i].Value > holdings[j].Value
	})

	byCurrency := map[string]*CurrencySummary{}
	var order []string
	for _, h := range holdings {
		s, ok := byCurrency[h.Currency]
		if !ok {
			s = &CurrencySummary{Currency: h.Currency}
			byCurrency[h.Currency] = s
			order = append(order, h.Currency)
		}
		s.TotalValue += h.Value
		s.TotalCost += h.Cost
		s.TotalPnL += h.PnL
		s.DayPnL += h.Value * h.DayChangePct / 100
	}
	summary := make([]CurrencySummary, 0, len(order))
	for _, c := range order {
		s := *byCurrency[c]
		if s.TotalCost > 0 {
			s.TotalPnLPct = s.TotalPnL / s.TotalCost * 100
		}
		summary = append(summary, s)
	}
	return holdings, summary
}

func roundTo(v float64, places int) float64 {
	f, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', places, 64), 64)
	return f
}
