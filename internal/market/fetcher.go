// Package market reads account buying power and instrument trading limits,
// cache first, then from the broker.
package market

import (
	"context"
	"errors"
	"time"

	"seller-market/internal/cache"
	"seller-market/internal/interfaces"
	"seller-market/internal/logger"
	"seller-market/internal/types"
)

type Fetcher struct {
	store interfaces.CacheStore
	now   func() time.Time
}

type Option func(*Fetcher)

func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) { f.now = now }
}

func NewFetcher(store interfaces.CacheStore, opts ...Option) *Fetcher {
	f := &Fetcher{store: store, now: time.Now}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// BalanceKey is the buying power cache key of an account.
func BalanceKey(acct types.AccountContext) string {
	return cache.Key(acct.Credentials.Username, acct.Credentials.BrokerCode)
}

// LimitsKey is the market data cache key of an account's instrument.
func LimitsKey(acct types.AccountContext) string {
	return cache.Key(acct.Credentials.Username, acct.Credentials.BrokerCode, acct.ISIN)
}

// BuyingPower returns the account's available buying power. With useCache
// false the broker is always asked and the cache refreshed.
func (f *Fetcher) BuyingPower(ctx context.Context, brk interfaces.BrokerAPI, acct types.AccountContext, token string, useCache bool) (types.AccountBalance, error) {
	key := BalanceKey(acct)
	if useCache {
		if bal, ok := cache.GetJSON[types.AccountBalance](ctx, f.store, types.CategoryBuyingPower, key); ok {
			logger.Debug(ctx, "Buying power cache hit", "account", acct.Label(), "buying_power", bal.BuyingPower)
			return bal, nil
		}
	}

	bal, err := brk.TradingBook(ctx, token)
	if err != nil {
		return types.AccountBalance{}, unavailable(acct, types.StepBalance, err)
	}
	if bal.RetrievedAt.IsZero() {
		bal.RetrievedAt = f.now()
	}
	if err := cache.PutJSON(ctx, f.store, types.CategoryBuyingPower, key, bal); err != nil {
		logger.Warn(ctx, "Failed to cache buying power", "account", acct.Label(), "error", err)
	}
	logger.Info(ctx, "Buying power fetched", "account", acct.Label(), "buying_power", bal.BuyingPower)
	return bal, nil
}

// Limits returns the trading limits of the account's instrument.
func (f *Fetcher) Limits(ctx context.Context, brk interfaces.BrokerAPI, acct types.AccountContext, token string, useCache bool) (types.InstrumentLimits, error) {
	key := LimitsKey(acct)
	if useCache {
		if lim, ok := cache.GetJSON[types.InstrumentLimits](ctx, f.store, types.CategoryMarketData, key); ok {
			logger.Debug(ctx, "Instrument limits cache hit", "account", acct.Label(), "isin", acct.ISIN)
			return lim, nil
		}
	}

	lim, err := brk.InstrumentInfo(ctx, token, acct.ISIN)
	if err != nil {
		return types.InstrumentLimits{}, unavailable(acct, types.StepLimits, err)
	}
	if lim.ISIN == "" {
		lim.ISIN = acct.ISIN
	}
	if lim.FetchedAt.IsZero() {
		lim.FetchedAt = f.now()
	}
	if err := cache.PutJSON(ctx, f.store, types.CategoryMarketData, key, lim); err != nil {
		logger.Warn(ctx, "Failed to cache instrument limits", "account", acct.Label(), "isin", acct.ISIN, "error", err)
	}
	logger.Info(ctx, "Instrument limits fetched",
		"account", acct.Label(),
		"isin", lim.ISIN,
		"symbol", lim.Symbol,
		"max_price", lim.MaxPrice,
		"min_price", lim.MinPrice,
		"max_volume", lim.MaxVolume,
	)
	return lim, nil
}

func unavailable(acct types.AccountContext, step string, err error) error {
	de := &types.DataUnavailableError{
		Account: acct.Credentials.Username,
		Broker:  acct.Credentials.BrokerCode,
		Step:    step,
		Cause:   err,
	}
	var mf *types.MissingFieldError
	if errors.As(err, &mf) {
		de.Field = mf.Field
	}
	return de
}
