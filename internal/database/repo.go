package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"stockfarm/internal/auth"
	"stockfarm/internal/farm"
	"stockfarm/internal/guestbook"
)

// Repo is the Postgres store. Lot closing is a per-row conditional update
// inside one transaction, never a rewrite of the whole table.
type Repo struct {
	db  *sqlx.DB
	log *logrus.Logger
}

func New(db *sqlx.DB, log *logrus.Logger) *Repo {
	return &Repo{db: db, log: log}
}

/* ---- farm.Store: securities ---- */

func (r *Repo) UpsertSecurity(ctx context.Context, ownerID, ticker, name string) (farm.Security, error) {
	var s farm.Security
	q := `INSERT INTO securities (owner_id, ticker, name) VALUES ($1, $2, $3)
	      ON CONFLICT (owner_id, ticker) DO UPDATE SET
	          name = CASE WHEN EXCLUDED.name = '' THEN securities.name ELSE EXCLUDED.name END
	      RETURNING id, owner_id, ticker, name`
	if err := r.db.GetContext(ctx, &s, q, ownerID, ticker, name); err != nil {
		return farm.Security{}, err
	}
	return s, nil
}

func (r *Repo) SecurityByTicker(ctx context.Context, ownerID, ticker string) (farm.Security, error) {
	var s farm.Security
	err := r.db.GetContext(ctx, &s, `SELECT id, owner_id, ticker, name FROM securities WHERE owner_id = $1 AND ticker = $2`, ownerID, ticker)
	if errors.Is(err, sql.ErrNoRows) {
		return farm.Security{}, farm.ErrSecurityNotFound
	}
	if err != nil {
		return farm.Security{}, err
	}
	return s, nil
}

func (r *Repo) ListSecurities(ctx context.Context, ownerID string) ([]farm.Security, error) {
	res := []farm.Security{}
	err := r.db.SelectContext(ctx, &res, `SELECT id, owner_id, ticker, name FROM securities WHERE owner_id = $1 ORDER BY ticker ASC`, ownerID)
	return res, err
}

func (r *Repo) AllSecurities(ctx context.Context) ([]farm.Security, error) {
	res := []farm.Security{}
	err := r.db.SelectContext(ctx, &res, `SELECT id, owner_id, ticker, name FROM securities ORDER BY id ASC`)
	return res, err
}

/* ---- farm.Store: lots and transactions ---- */

func (r *Repo) InsertBuy(ctx context.Context, securityID int64, at time.Time, price decimal.Decimal, quantity int, note string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (security_id, type, datetime, quantity, price, note) VALUES ($1, 'BUY', $2, $3, $4::numeric, $5)`,
		securityID, at, quantity, price.String(), note); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO lots (security_id, buy_datetime, buy_price, status)
		 SELECT $1, $2, $3::numeric, 'OPEN' FROM generate_series(1, $4)`,
		securityID, at, price.String(), quantity); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Repo) CloseLots(ctx context.Context, securityID int64, lotIDs []int64, at time.Time, price decimal.Decimal, note string) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (security_id, type, datetime, quantity, price, note) VALUES ($1, 'SELL', $2, $3, $4::numeric, $5)`,
		securityID, at, len(lotIDs), price.String(), note); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE lots SET status = 'CLOSED', sell_datetime = $1, sell_price = $2::numeric
		 WHERE id = ANY($3) AND security_id = $4 AND status = 'OPEN'`,
		at, price.String(), pq.Array(lotIDs), securityID)
	if err != nil {
		return 0, err
	}
	closed, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(closed), nil
}

const lotColumns = `id, security_id, buy_datetime, buy_price, status, sell_datetime, sell_price`

func (r *Repo) OpenLots(ctx context.Context, securityID int64) ([]farm.Lot, error) {
	res := []farm.Lot{}
	err := r.db.SelectContext(ctx, &res,
		`SELECT `+lotColumns+` FROM lots WHERE security_id = $1 AND status = 'OPEN' ORDER BY buy_datetime ASC, id ASC`,
		securityID)
	return res, err
}

func (r *Repo) OpenLotBatches(ctx context.Context, securityID int64) ([]farm.Batch, error) {
	res := []farm.Batch{}
	err := r.db.SelectContext(ctx, &res,
		`SELECT buy_datetime, buy_price, COUNT(*) AS qty, MIN(id) AS first_lot_id, MAX(id) AS last_lot_id
		 FROM lots
		 WHERE security_id = $1 AND status = 'OPEN'
		 GROUP BY buy_datetime, buy_price
		 ORDER BY buy_datetime ASC, buy_price ASC`,
		securityID)
	return res, err
}

func (r *Repo) OpenLotsInBatch(ctx context.Context, securityID int64, buyAt time.Time, buyPrice decimal.Decimal) ([]farm.Lot, error) {
	res := []farm.Lot{}
	err := r.db.SelectContext(ctx, &res,
		`SELECT `+lotColumns+` FROM lots
		 WHERE security_id = $1 AND status = 'OPEN' AND buy_datetime = $2 AND buy_price = $3::numeric
		 ORDER BY id ASC`,
		securityID, buyAt, buyPrice.String())
	return res, err
}

func (r *Repo) ClosedLots(ctx context.Context, securityID int64, limit int) ([]farm.Lot, error) {
	res := []farm.Lot{}
	q := `SELECT ` + lotColumns + ` FROM lots WHERE security_id = $1 AND status = 'CLOSED' ORDER BY sell_datetime DESC, id DESC`
	if limit > 0 {
		return res, r.db.SelectContext(ctx, &res, q+` LIMIT $2`, securityID, limit)
	}
	return res, r.db.SelectContext(ctx, &res, q, securityID)
}

func (r *Repo) Transactions(ctx context.Context, ownerID string, securityID int64, limit int) ([]farm.LedgerEntry, error) {
	res := []farm.LedgerEntry{}
	q := `SELECT t.id, t.security_id, s.ticker, s.name, t.type, t.datetime, t.quantity, t.price, t.note
	      FROM transactions t
	      JOIN securities s ON s.id = t.security_id
	      WHERE s.owner_id = $1 AND ($2::bigint = 0 OR t.security_id = $2)
	      ORDER BY t.datetime DESC, t.id DESC`
	if limit > 0 {
		return res, r.db.SelectContext(ctx, &res, q+` LIMIT $3`, ownerID, securityID, limit)
	}
	return res, r.db.SelectContext(ctx, &res, q, ownerID, securityID)
}

/* ---- farm.Store: quotes and aggregates ---- */

func (r *Repo) SetQuote(ctx context.Context, securityID int64, price decimal.Decimal, asOf time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO prices (security_id, asof_datetime, price) VALUES ($1, $2, $3::numeric)
		 ON CONFLICT (security_id) DO UPDATE SET asof_datetime = EXCLUDED.asof_datetime, price = EXCLUDED.price`,
		securityID, asOf, price.String())
	return err
}

func (r *Repo) Quote(ctx context.Context, securityID int64) (*farm.PriceQuote, error) {
	var q farm.PriceQuote
	err := r.db.GetContext(ctx, &q, `SELECT security_id, asof_datetime, price FROM prices WHERE security_id = $1`, securityID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *Repo) RealizedPnL(ctx context.Context, ownerID string) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.db.GetContext(ctx, &sum,
		`SELECT COALESCE(SUM(l.sell_price - l.buy_price), 0) AS realized
		 FROM lots l
		 JOIN securities s ON s.id = l.security_id
		 WHERE s.owner_id = $1 AND l.status = 'CLOSED' AND l.sell_price IS NOT NULL`,
		ownerID)
	return sum, err
}

func (r *Repo) UnrealizedPnL(ctx context.Context, ownerID string) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.db.GetContext(ctx, &sum,
		`SELECT COALESCE(SUM(p.price - l.buy_price), 0) AS unrealized
		 FROM lots l
		 JOIN securities s ON s.id = l.security_id
		 JOIN prices p ON p.security_id = l.security_id
		 WHERE s.owner_id = $1 AND l.status = 'OPEN'`,
		ownerID)
	return sum, err
}

func (r *Repo) MissingQuoteCount(ctx context.Context, ownerID string) (int, error) {
	var cnt int
	err := r.db.GetContext(ctx, &cnt,
		`SELECT COUNT(*) FROM (
		     SELECT l.security_id
		     FROM lots l
		     JOIN securities s ON s.id = l.security_id
		     LEFT JOIN prices p ON p.security_id = l.security_id
		     WHERE s.owner_id = $1 AND l.status = 'OPEN'
		     GROUP BY l.security_id
		     HAVING MAX(CASE WHEN p.security_id IS NULL THEN 1 ELSE 0 END) = 1
		 ) AS unpriced`,
		ownerID)
	return cnt, err
}

/* ---- auth.UserStore ---- */

func (r *Repo) CreateUser(ctx context.Context, u auth.User) (auth.User, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, nickname, password_hash, created_at) VALUES ($1, $2, $3, $4)`,
		u.ID, u.Nickname, u.PasswordHash, u.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return auth.User{}, auth.ErrNicknameTaken
		}
		return auth.User{}, err
	}
	return u, nil
}

func (r *Repo) UserByNickname(ctx context.Context, nickname string) (auth.User, error) {
	var u auth.User
	err := r.db.GetContext(ctx, &u, `SELECT id, nickname, password_hash, created_at FROM users WHERE nickname = $1`, nickname)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrUserNotFound
	}
	return u, err
}

func (r *Repo) UserByID(ctx context.Context, id string) (auth.User, error) {
	var u auth.User
	err := r.db.GetContext(ctx, &u, `SELECT id, nickname, password_hash, created_at FROM users WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrUserNotFound
	}
	return u, err
}

func (r *Repo) ListNicknames(ctx context.Context) ([]string, error) {
	res := []string{}
	err := r.db.SelectContext(ctx, &res, `SELECT nickname FROM users ORDER BY nickname ASC`)
	return res, err
}

/* ---- guestbook.Store ---- */

func (r *Repo) AddMessage(ctx context.Context, m guestbook.Message) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO guestbook (id, farm_owner_id, sender_id, message, created_at) VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.FarmOwnerID, m.SenderID, m.Body, m.CreatedAt)
	return err
}

func (r *Repo) MessagesForFarm(ctx context.Context, farmOwnerID string) ([]guestbook.Message, error) {
	res := []guestbook.Message{}
	err := r.db.SelectContext(ctx, &res,
		`SELECT g.id, g.farm_owner_id, g.sender_id, u.nickname AS sender_nickname, g.message, g.created_at
		 FROM guestbook g
		 JOIN users u ON u.id = g.sender_id
		 WHERE g.farm_owner_id = $1
		 ORDER BY g.created_at DESC`,
		farmOwnerID)
	return res, err
}
