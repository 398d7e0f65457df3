package farm

import (
	"time"

	"github.com/shopspring/decimal"
)

type LotStatus string

const (
	LotOpen   LotStatus = "OPEN"
	LotClosed LotStatus = "CLOSED"
)

type TxType string

const (
	TxBuy  TxType = "BUY"
	TxSell TxType = "SELL"
)

// Security is a tradable ticker, unique per owner.
type Security struct {
	ID      int64  `db:"id" json:"id"`
	OwnerID string `db:"owner_id" json:"-"`
	Ticker  string `db:"ticker" json:"ticker"`
	Name    string `db:"name" json:"name"`
}

// Lot is one share bought at a specific time and price. A lot transitions
// OPEN -> CLOSED exactly once; buy fields never change after creation.
type Lot struct {
	ID         int64            `db:"id" json:"id"`
	SecurityID int64            `db:"security_id" json:"security_id"`
	BuyAt      time.Time        `db:"buy_datetime" json:"buy_at"`
	BuyPrice   decimal.Decimal  `db:"buy_price" json:"buy_price"`
	Status     LotStatus        `db:"status" json:"status"`
	SellAt     *time.Time       `db:"sell_datetime" json:"sell_at,omitempty"`
	SellPrice  *decimal.Decimal `db:"sell_price" json:"sell_price,omitempty"`
}

// Batch groups open lots sharing (buy time, buy price). Derived, never stored.
type Batch struct {
	BuyAt      time.Time       `db:"buy_datetime" json:"buy_at"`
	BuyPrice   decimal.Decimal `db:"buy_price" json:"buy_price"`
	Quantity   int             `db:"qty" json:"quantity"`
	FirstLotID int64           `db:"first_lot_id" json:"first_lot_id"`
	LastLotID  int64           `db:"last_lot_id" json:"last_lot_id"`
}

// LedgerEntry is one immutable BUY or SELL audit row. A BUY of quantity N
// creates N lots; a SELL of quantity N closes N lots at one execution price.
type LedgerEntry struct {
	ID         int64           `db:"id" json:"id"`
	SecurityID int64           `db:"security_id" json:"-"`
	Ticker     string          `db:"ticker" json:"ticker"`
	Name       string          `db:"name" json:"name"`
	Type       TxType          `db:"type" json:"type"`
	At         time.Time       `db:"datetime" json:"at"`
	Quantity   int             `db:"quantity" json:"quantity"`
	Price      decimal.Decimal `db:"price" json:"price"`
	Note       string          `db:"note" json:"note"`
}

// PriceQuote is the single current price held per security, overwritten on
// each update.
type PriceQuote struct {
	SecurityID int64           `db:"security_id" json:"security_id"`
	AsOf       time.Time       `db:"asof_datetime" json:"as_of"`
	Price      decimal.Decimal `db:"price" json:"price"`
}
