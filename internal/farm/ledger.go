package farm

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Ledger owns the authoritative set of lots and transactions for one backing
// store. It validates commands and delegates persistence; it never retries.
type Ledger struct {
	store Store
	log   *logrus.Logger
}

func NewLedger(store Store, log *logrus.Logger) *Ledger {
	return &Ledger{store: store, log: log}
}

// RecordBuy appends one BUY transaction and creates quantity new OPEN lots,
// one per share, all at the given timestamp and price.
func (l *Ledger) RecordBuy(ctx context.Context, sec Security, at time.Time, price decimal.Decimal, quantity int, note string) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	return l.store.InsertBuy(ctx, sec.ID, at, price, quantity, note)
}

// RecordSell appends one SELL transaction for the selected lots and closes
// them at the given execution price. Ids that are no longer OPEN, or that
// belong to another security, are skipped rather than failed: the closing
// update is conditional, and the count of lots actually closed is returned
// so callers can detect a short fill.
func (l *Ledger) RecordSell(ctx context.Context, sec Security, lotIDs []int64, at time.Time, price decimal.Decimal, note string) (int, error) {
	if len(lotIDs) == 0 {
		return 0, ErrNoLotsSelected
	}
	closed, err := l.store.CloseLots(ctx, sec.ID, lotIDs, at, price, note)
	if err != nil {
		return 0, err
	}
	if closed < len(lotIDs) {
		l.log.Warnf("sell on %s closed %d of %d selected lots", sec.Ticker, closed, len(lotIDs))
	}
	return closed, nil
}

func (l *Ledger) OpenLots(ctx context.Context, sec Security) ([]Lot, error) {
	return l.store.OpenLots(ctx, sec.ID)
}

func (l *Ledger) OpenLotBatches(ctx context.Context, sec Security) ([]Batch, error) {
	return l.store.OpenLotBatches(ctx, sec.ID)
}

func (l *Ledger) OpenLotsInBatch(ctx context.Context, sec Security, buyAt time.Time, buyPrice decimal.Decimal) ([]Lot, error) {
	return l.store.OpenLotsInBatch(ctx, sec.ID, buyAt, buyPrice)
}

func (l *Ledger) ClosedLots(ctx context.Context, sec Security, limit int) ([]Lot, error) {
	return l.store.ClosedLots(ctx, sec.ID, limit)
}

func (l *Ledger) Transactions(ctx context.Context, ownerID string, securityID int64, limit int) ([]LedgerEntry, error) {
	return l.store.Transactions(ctx, ownerID, securityID, limit)
}

// Summary is the portfolio-wide P&L rollup: realized over CLOSED lots,
// unrealized over OPEN lots of priced securities, and the number of held
// securities excluded for lack of a quote.
type Summary struct {
	Realized      decimal.Decimal `json:"realized"`
	Unrealized    decimal.Decimal `json:"unrealized"`
	Total         decimal.Decimal `json:"total"`
	MissingQuotes int             `json:"missing_quotes"`
}

func (l *Ledger) Summary(ctx context.Context, ownerID string) (Summary, error) {
	realized, err := l.store.RealizedPnL(ctx, ownerID)
	if err != nil {
		return Summary{}, err
	}
	unrealized, err := l.store.UnrealizedPnL(ctx, ownerID)
	if err != nil {
		return Summary{}, err
	}
	missing, err := l.store.MissingQuoteCount(ctx, ownerID)
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		Realized:      realized,
		Unrealized:    unrealized,
		Total:         realized.Add(unrealized),
		MissingQuotes: missing,
	}, nil
}
