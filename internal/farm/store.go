package farm

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Store is the persistence collaborator behind the ledger. Any backend with
// per-row conditional updates and filtered scans can implement it.
//
// InsertBuy and CloseLots are all-or-nothing: a failed call leaves no
// transaction row and no lot mutation behind.
type Store interface {
	UpsertSecurity(ctx context.Context, ownerID, ticker, name string) (Security, error)
	SecurityByTicker(ctx context.Context, ownerID, ticker string) (Security, error)
	ListSecurities(ctx context.Context, ownerID string) ([]Security, error)
	AllSecurities(ctx context.Context) ([]Security, error)

	// InsertBuy appends one BUY transaction and creates quantity OPEN lots
	// sharing the given timestamp and price.
	InsertBuy(ctx context.Context, securityID int64, at time.Time, price decimal.Decimal, quantity int, note string) error

	// CloseLots appends one SELL transaction for len(lotIDs) shares and
	// conditionally closes the given lots. Ids that are not OPEN or belong to
	// another security are skipped; the number actually closed is returned.
	CloseLots(ctx context.Context, securityID int64, lotIDs []int64, at time.Time, price decimal.Decimal, note string) (int, error)

	// OpenLots returns OPEN lots ordered by (buy time asc, id asc), which is
	// the canonical FIFO order.
	OpenLots(ctx context.Context, securityID int64) ([]Lot, error)
	OpenLotBatches(ctx context.Context, securityID int64) ([]Batch, error)
	OpenLotsInBatch(ctx context.Context, securityID int64, buyAt time.Time, buyPrice decimal.Decimal) ([]Lot, error)

	// ClosedLots returns most recently closed lots first. limit <= 0 means no
	// cap.
	ClosedLots(ctx context.Context, securityID int64, limit int) ([]Lot, error)

	// Transactions lists audit rows newest first. securityID 0 spans every
	// security of the owner.
	Transactions(ctx context.Context, ownerID string, securityID int64, limit int) ([]LedgerEntry, error)

	SetQuote(ctx context.Context, securityID int64, price decimal.Decimal, asOf time.Time) error
	// Quote returns nil when the security has no current price.
	Quote(ctx context.Context, securityID int64) (*PriceQuote, error)

	RealizedPnL(ctx context.Context, ownerID string) (decimal.Decimal, error)
	// UnrealizedPnL sums over OPEN lots of securities that currently have a
	// quote; unpriced securities are excluded entirely.
	UnrealizedPnL(ctx context.Context, ownerID string) (decimal.Decimal, error)
	// MissingQuoteCount counts securities holding at least one OPEN lot but
	// no quote.
	MissingQuoteCount(ctx context.Context, ownerID string) (int, error)
}
