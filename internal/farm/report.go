package farm

import (
	"time"

	"github.com/shopspring/decimal"
)

// BatchView is one purchase batch as shown on the farm dashboard.
type BatchView struct {
	Stage          Stage            `json:"stage"`
	BuyAt          time.Time        `json:"buy_at"`
	BuyPrice       decimal.Decimal  `json:"buy_price"`
	Quantity       int              `json:"quantity"`
	DaysHeld       int              `json:"days_held"`
	PnL            *decimal.Decimal `json:"pnl,omitempty"`
	ReturnPct      *decimal.Decimal `json:"return_pct,omitempty"`
	DailyReturnPct *decimal.Decimal `json:"daily_return_pct,omitempty"`
	FirstLotID     int64            `json:"first_lot_id"`
	LastLotID      int64            `json:"last_lot_id"`
}

// LotView is one open share on the dashboard's per-crop detail.
type LotView struct {
	LotID     int64            `json:"lot_id"`
	Stage     Stage            `json:"stage"`
	BuyAt     time.Time        `json:"buy_at"`
	DaysHeld  int              `json:"days_held"`
	BuyPrice  decimal.Decimal  `json:"buy_price"`
	PnL       *decimal.Decimal `json:"pnl,omitempty"`
	ReturnPct *decimal.Decimal `json:"return_pct,omitempty"`
}

// ClosedLotView is one harvested share in the history listing.
type ClosedLotView struct {
	LotID     int64           `json:"lot_id"`
	BuyAt     time.Time       `json:"buy_at"`
	SellAt    time.Time       `json:"sell_at"`
	HoldDays  int             `json:"hold_days"`
	BuyPrice  decimal.Decimal `json:"buy_price"`
	SellPrice decimal.Decimal `json:"sell_price"`
	PnL       decimal.Decimal `json:"pnl"`
	ReturnPct decimal.Decimal `json:"return_pct"`
}

// Report is the full farm dashboard for one security.
type Report struct {
	Ticker       string           `json:"ticker"`
	Name         string           `json:"name"`
	OpenCount    int              `json:"open_count"`
	TotalCost    decimal.Decimal  `json:"total_cost"`
	Quote        *PriceQuote      `json:"quote,omitempty"`
	Unrealized   *decimal.Decimal `json:"unrealized,omitempty"`
	AvgBuyPrice  *decimal.Decimal `json:"avg_buy_price,omitempty"`
	AvgReturnPct *decimal.Decimal `json:"avg_return_pct,omitempty"`
	AvgStage     Stage            `json:"avg_stage"`
	Batches      []BatchView      `json:"batches"`
	Lots         []LotView        `json:"lots"`
}

// BuildReport renders open lots and batches against the current quote. A
// missing quote yields "no price" stages and omits every valuation field.
func BuildReport(sec Security, open []Lot, batches []Batch, quote *PriceQuote, now time.Time) Report {
	rep := Report{
		Ticker:    sec.Ticker,
		Name:      sec.Name,
		OpenCount: len(open),
		Quote:     quote,
		AvgStage:  StageFor(nil),
		Batches:   make([]BatchView, 0, len(batches)),
		Lots:      make([]LotView, 0, len(open)),
	}

	for _, l := range open {
		rep.TotalCost = rep.TotalCost.Add(l.BuyPrice)
	}

	if quote != nil && len(open) > 0 {
		value := quote.Price.Mul(decimal.NewFromInt(int64(len(open))))
		unrealized := value.Sub(rep.TotalCost)
		rep.Unrealized = &unrealized

		avg := rep.TotalCost.Div(decimal.NewFromInt(int64(len(open))))
		rep.AvgBuyPrice = &avg
		avgPct := ReturnPct(quote.Price, avg)
		rep.AvgReturnPct = &avgPct
		rep.AvgStage = StageFor(&avgPct)
	}

	for _, b := range batches {
		bv := BatchView{
			Stage:      StageFor(nil),
			BuyAt:      b.BuyAt,
			BuyPrice:   b.BuyPrice,
			Quantity:   b.Quantity,
			DaysHeld:   daysBetween(b.BuyAt, now),
			FirstLotID: b.FirstLotID,
			LastLotID:  b.LastLotID,
		}
		if quote != nil {
			pnl := quote.Price.Sub(b.BuyPrice).Mul(decimal.NewFromInt(int64(b.Quantity)))
			pct := ReturnPct(quote.Price, b.BuyPrice)
			daily := pct.Div(decimal.NewFromInt(int64(max(1, bv.DaysHeld))))
			bv.PnL, bv.ReturnPct, bv.DailyReturnPct = &pnl, &pct, &daily
			bv.Stage = StageFor(&pct)
		}
		rep.Batches = append(rep.Batches, bv)
	}

	for _, l := range open {
		lv := LotView{
			LotID:    l.ID,
			Stage:    StageFor(nil),
			BuyAt:    l.BuyAt,
			DaysHeld: daysBetween(l.BuyAt, now),
			BuyPrice: l.BuyPrice,
		}
		if quote != nil {
			pnl := quote.Price.Sub(l.BuyPrice)
			pct := ReturnPct(quote.Price, l.BuyPrice)
			lv.PnL, lv.ReturnPct = &pnl, &pct
			lv.Stage = StageFor(&pct)
		}
		rep.Lots = append(rep.Lots, lv)
	}

	return rep
}

// BuildClosedLotViews renders the harvested history, preserving the input
// order (most recently closed first).
func BuildClosedLotViews(closed []Lot) []ClosedLotView {
	views := make([]ClosedLotView, 0, len(closed))
	for _, l := range closed {
		if l.SellAt == nil || l.SellPrice == nil {
			continue
		}
		views = append(views, ClosedLotView{
			LotID:     l.ID,
			BuyAt:     l.BuyAt,
			SellAt:    *l.SellAt,
			HoldDays:  daysBetween(l.BuyAt, *l.SellAt),
			BuyPrice:  l.BuyPrice,
			SellPrice: *l.SellPrice,
			PnL:       l.SellPrice.Sub(l.BuyPrice),
			ReturnPct: ReturnPct(*l.SellPrice, l.BuyPrice),
		})
	}
	return views
}

// daysBetween counts calendar days between the dates of a and b.
func daysBetween(a, b time.Time) int {
	ad := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bd := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(bd.Sub(ad).Hours() / 24)
}
