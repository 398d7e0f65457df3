package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"stockfarm/internal/auth"
	"stockfarm/internal/farm"
	"stockfarm/internal/guestbook"
)

// Memory is the embedded farm.Store, auth.UserStore and guestbook.Store used
// for tests and single-process runs. One mutex keeps every ledger operation
// all-or-nothing.
type Memory struct {
	mu         sync.RWMutex
	users      map[string]auth.User // by id
	byNickname map[string]string    // nickname -> id
	securities map[int64]farm.Security
	lots       map[int64]farm.Lot
	entries    []farm.LedgerEntry
	quotes     map[int64]farm.PriceQuote
	messages   []guestbook.Message

	nextSecurityID int64
	nextLotID      int64
	nextEntryID    int64
}

func NewMemory() *Memory {
	return &Memory{
		users:      make(map[string]auth.User),
		byNickname: make(map[string]string),
		securities: make(map[int64]farm.Security),
		lots:       make(map[int64]farm.Lot),
		quotes:     make(map[int64]farm.PriceQuote),
	}
}

/* ---- farm.Store: securities ---- */

func (m *Memory) UpsertSecurity(ctx context.Context, ownerID, ticker, name string) (farm.Security, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.securities {
		if s.OwnerID == ownerID && s.Ticker == ticker {
			if name != "" && s.Name != name {
				s.Name = name
				m.securities[id] = s
			}
			return s, nil
		}
	}
	m.nextSecurityID++
	s := farm.Security{ID: m.nextSecurityID, OwnerID: ownerID, Ticker: ticker, Name: name}
	m.securities[s.ID] = s
	return s, nil
}

func (m *Memory) SecurityByTicker(ctx context.Context, ownerID, ticker string) (farm.Security, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.securities {
		if s.OwnerID == ownerID && s.Ticker == ticker {
			return s, nil
		}
	}
	return farm.Security{}, farm.ErrSecurityNotFound
}

func (m *Memory) ListSecurities(ctx context.Context, ownerID string) ([]farm.Security, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []farm.Security{}
	for _, s := range m.securities {
		if s.OwnerID == ownerID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out, nil
}

func (m *Memory) AllSecurities(ctx context.Context) ([]farm.Security, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]farm.Security, 0, len(m.securities))
	for _, s := range m.securities {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

/* ---- farm.Store: lots and transactions ---- */

func (m *Memory) InsertBuy(ctx context.Context, securityID int64, at time.Time, price decimal.Decimal, quantity int, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sec, ok := m.securities[securityID]
	if !ok {
		return farm.ErrSecurityNotFound
	}
	m.nextEntryID++
	m.entries = append(m.entries, farm.LedgerEntry{
		ID:         m.nextEntryID,
		SecurityID: securityID,
		Ticker:     sec.Ticker,
		Name:       sec.Name,
		Type:       farm.TxBuy,
		At:         at,
		Quantity:   quantity,
		Price:      price,
		Note:       note,
	})
	for i := 0; i < quantity; i++ {
		m.nextLotID++
		m.lots[m.nextLotID] = farm.Lot{
			ID:         m.nextLotID,
			SecurityID: securityID,
			BuyAt:      at,
			BuyPrice:   price,
			Status:     farm.LotOpen,
		}
	}
	return nil
}

func (m *Memory) CloseLots(ctx context.Context, securityID int64, lotIDs []int64, at time.Time, price decimal.Decimal, note string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sec, ok := m.securities[securityID]
	if !ok {
		return 0, farm.ErrSecurityNotFound
	}
	m.nextEntryID++
	m.entries = append(m.entries, farm.LedgerEntry{
		ID:         m.nextEntryID,
		SecurityID: securityID,
		Ticker:     sec.Ticker,
		Name:       sec.Name,
		Type:       farm.TxSell,
		At:         at,
		Quantity:   len(lotIDs),
		Price:      price,
		Note:       note,
	})
	closed := 0
	for _, id := range lotIDs {
		l, ok := m.lots[id]
		if !ok || l.SecurityID != securityID || l.Status != farm.LotOpen {
			continue
		}
		ts := at
		p := price
		l.Status = farm.LotClosed
		l.SellAt = &ts
		l.SellPrice = &p
		m.lots[id] = l
		closed++
	}
	return closed, nil
}

func (m *Memory) OpenLots(ctx context.Context, securityID int64) ([]farm.Lot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.openLotsLocked(securityID), nil
}

func (m *Memory) openLotsLocked(securityID int64) []farm.Lot {
	out := []farm.Lot{}
	for _, l := range m.lots {
		if l.SecurityID == securityID && l.Status == farm.LotOpen {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].BuyAt.Equal(out[j].BuyAt) {
			return out[i].BuyAt.Before(out[j].BuyAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *Memory) OpenLotBatches(ctx context.Context, securityID int64) ([]farm.Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	batches := []farm.Batch{}
	for _, l := range m.openLotsLocked(securityID) {
		placed := false
		for i := range batches {
			if batches[i].BuyAt.Equal(l.BuyAt) && batches[i].BuyPrice.Equal(l.BuyPrice) {
				batches[i].Quantity++
				if l.ID < batches[i].FirstLotID {
					batches[i].FirstLotID = l.ID
				}
				if l.ID > batches[i].LastLotID {
					batches[i].LastLotID = l.ID
				}
				placed = true
				break
			}
		}
		if !placed {
			batches = append(batches, farm.Batch{
				BuyAt:      l.BuyAt,
				BuyPrice:   l.BuyPrice,
				Quantity:   1,
				FirstLotID: l.ID,
				LastLotID:  l.ID,
			})
		}
	}
	sort.Slice(batches, func(i, j int) bool {
		if !batches[i].BuyAt.Equal(batches[j].BuyAt) {
			return batches[i].BuyAt.Before(batches[j].BuyAt)
		}
		return batches[i].BuyPrice.LessThan(batches[j].BuyPrice)
	})
	return batches, nil
}

func (m *Memory) OpenLotsInBatch(ctx context.Context, securityID int64, buyAt time.Time, buyPrice decimal.Decimal) ([]farm.Lot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []farm.Lot{}
	for _, l := range m.openLotsLocked(securityID) {
		if l.BuyAt.Equal(buyAt) && l.BuyPrice.Equal(buyPrice) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) ClosedLots(ctx context.Context, securityID int64, limit int) ([]farm.Lot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []farm.Lot{}
	for _, l := range m.lots {
		if l.SecurityID == securityID && l.Status == farm.LotClosed {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SellAt.Equal(*out[j].SellAt) {
			return out[i].SellAt.After(*out[j].SellAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Transactions(ctx context.Context, ownerID string, securityID int64, limit int) ([]farm.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []farm.LedgerEntry{}
	for _, e := range m.entries {
		sec, ok := m.securities[e.SecurityID]
		if !ok || sec.OwnerID != ownerID {
			continue
		}
		if securityID != 0 && e.SecurityID != securityID {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].At.Equal(out[j].At) {
			return out[i].At.After(out[j].At)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

/* ---- farm.Store: quotes and aggregates ---- */

func (m *Memory) SetQuote(ctx context.Context, securityID int64, price decimal.Decimal, asOf time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.securities[securityID]; !ok {
		return farm.ErrSecurityNotFound
	}
	m.quotes[securityID] = farm.PriceQuote{SecurityID: securityID, AsOf: asOf, Price: price}
	return nil
}

func (m *Memory) Quote(ctx context.Context, securityID int64) (*farm.PriceQuote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.quotes[securityID]
	if !ok {
		return nil, nil
	}
	return &q, nil
}

func (m *Memory) RealizedPnL(ctx context.Context, ownerID string) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sum := decimal.Zero
	for _, l := range m.lots {
		if l.Status != farm.LotClosed || l.SellPrice == nil {
			continue
		}
		if sec, ok := m.securities[l.SecurityID]; !ok || sec.OwnerID != ownerID {
			continue
		}
		sum = sum.Add(l.SellPrice.Sub(l.BuyPrice))
	}
	return sum, nil
}

func (m *Memory) UnrealizedPnL(ctx context.Context, ownerID string) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sum := decimal.Zero
	for _, l := range m.lots {
		if l.Status != farm.LotOpen {
			continue
		}
		if sec, ok := m.securities[l.SecurityID]; !ok || sec.OwnerID != ownerID {
			continue
		}
		q, ok := m.quotes[l.SecurityID]
		if !ok {
			continue
		}
		sum = sum.Add(q.Price.Sub(l.BuyPrice))
	}
	return sum, nil
}

func (m *Memory) MissingQuoteCount(ctx context.Context, ownerID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	missing := map[int64]bool{}
	for _, l := range m.lots {
		if l.Status != farm.LotOpen {
			continue
		}
		if sec, ok := m.securities[l.SecurityID]; !ok || sec.OwnerID != ownerID {
			continue
		}
		if _, ok := m.quotes[l.SecurityID]; !ok {
			missing[l.SecurityID] = true
		}
	}
	return len(missing), nil
}

/* ---- auth.UserStore ---- */

func (m *Memory) CreateUser(ctx context.Context, u auth.User) (auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byNickname[u.Nickname]; ok {
		return auth.User{}, auth.ErrNicknameTaken
	}
	m.users[u.ID] = u
	m.byNickname[u.Nickname] = u.ID
	return u, nil
}

func (m *Memory) UserByNickname(ctx context.Context, nickname string) (auth.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byNickname[nickname]
	if !ok {
		return auth.User{}, auth.ErrUserNotFound
	}
	return m.users[id], nil
}

func (m *Memory) UserByID(ctx context.Context, id string) (auth.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return auth.User{}, auth.ErrUserNotFound
	}
	return u, nil
}

func (m *Memory) ListNicknames(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.byNickname))
	for n := range m.byNickname {
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}

/* ---- guestbook.Store ---- */

func (m *Memory) AddMessage(ctx context.Context, msg guestbook.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *Memory) MessagesForFarm(ctx context.Context, farmOwnerID string) ([]guestbook.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []guestbook.Message{}
	for _, msg := range m.messages {
		if msg.FarmOwnerID == farmOwnerID {
			out = append(out, msg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
