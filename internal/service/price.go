package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"stockfarm/internal/farm"
)

// PriceProvider supplies a current price for a ticker. Failures are never
// fatal to the caller: a holding without a price is simply excluded from
// valuation.
type PriceProvider interface {
	GetPrice(ctx context.Context, ticker string) (decimal.Decimal, time.Time, error)
}

// Updater periodically refreshes the stored quote of every known security.
type Updater struct {
	store    farm.Store
	provider PriceProvider
	log      *logrus.Logger
}

func NewUpdater(store farm.Store, provider PriceProvider, log *logrus.Logger) *Updater {
	return &Updater{store: store, provider: provider, log: log}
}

// RefreshAll fetches and stores a quote for every security. It returns the
// number of quotes updated; individual fetch failures are logged and skipped.
func (u *Updater) RefreshAll(ctx context.Context) int {
	secs, err := u.store.AllSecurities(ctx)
	if err != nil {
		u.log.Warnf("failed to list securities: %v", err)
		return 0
	}
	updated := 0
	for _, s := range secs {
		price, asOf, err := u.provider.GetPrice(ctx, s.Ticker)
		if err != nil {
			u.log.Warnf("price fetch for %s failed: %v", s.Ticker, err)
			continue
		}
		if err := u.store.SetQuote(ctx, s.ID, price, asOf); err != nil {
			u.log.Warnf("quote store for %s failed: %v", s.Ticker, err)
			continue
		}
		updated++
	}
	return updated
}

func (u *Updater) Start(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				u.log.Info("price updater stopping")
				return
			case <-ticker.C:
				u.RefreshAll(ctx)
			}
		}
	}()
}
