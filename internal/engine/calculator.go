package engine

import (
	"context"
	"errors"
	"strconv"
	"time"

	"seller-market/internal/cache"
	"seller-market/internal/interfaces"
	"seller-market/internal/logger"
	"seller-market/internal/types"
)

// calculator turns balance and limits into order parameters. The price is
// always the most aggressive one the instrument allows and the volume is
// always clamped to the per-order maximum.
type calculator struct {
	store interfaces.CacheStore
	risk  *riskManager
	now   func() time.Time
}

func newCalculator(store interfaces.CacheStore, now func() time.Time) *calculator {
	return &calculator{store: store, risk: newRiskManager(), now: now}
}

// priceFor picks maxPrice for buys and minPrice for sells.
func priceFor(side types.Side, lim types.InstrumentLimits) int64 {
	if side == types.SideSell {
		return lim.MinPrice
	}
	return lim.MaxPrice
}

// ParamsKey is the order_params cache key of an account's last computed
// parameters.
func ParamsKey(acct types.AccountContext) string {
	return cache.Key(acct.Credentials.Username, acct.Credentials.BrokerCode, acct.ISIN)
}

func volumeKey(acct types.AccountContext, side types.Side, price, buyingPower int64) string {
	return cache.Key(acct.Credentials.Username, acct.Credentials.BrokerCode, acct.ISIN,
		strconv.Itoa(int(side)), strconv.FormatInt(price, 10), strconv.FormatInt(buyingPower, 10))
}

func (c *calculator) compute(ctx context.Context, brk interfaces.BrokerAPI, acct types.AccountContext, token string,
	bal types.AccountBalance, lim types.InstrumentLimits, useCache bool) (types.OrderIntent, types.OrderParams, error) {

	price := priceFor(acct.Side, lim)
	if price <= 0 {
		field := "t.maxap"
		if acct.Side == types.SideSell {
			field = "t.minap"
		}
		return types.OrderIntent{}, types.OrderParams{}, &types.DataUnavailableError{
			Account: acct.Credentials.Username,
			Broker:  acct.Credentials.BrokerCode,
			Step:    types.StepCalculate,
			Field:   field,
			Cause:   errNonPositivePrice,
		}
	}

	// Nothing can be ordered; skip the broker round trip.
	if lim.MaxVolume <= 0 {
		return types.OrderIntent{}, types.OrderParams{}, c.risk.insufficient(ctx, acct, bal.BuyingPower, 0, lim.MaxVolume)
	}

	calculated, err := c.volume(ctx, brk, acct, token, price, bal.BuyingPower, useCache)
	if err != nil {
		return types.OrderIntent{}, types.OrderParams{}, err
	}

	final := c.risk.clamp(ctx, acct, calculated, lim.MaxVolume)
	if final <= 0 {
		return types.OrderIntent{}, types.OrderParams{}, c.risk.insufficient(ctx, acct, bal.BuyingPower, calculated, lim.MaxVolume)
	}

	intent := types.OrderIntent{
		ISIN:         acct.ISIN,
		Side:         acct.Side,
		Validity:     types.OrderValidityDay,
		AccountType:  types.OrderAccountNormal,
		Price:        price,
		Volume:       final,
		SerialNumber: acct.SerialNumber,
	}
	params := types.OrderParams{
		ISIN:             acct.ISIN,
		Side:             acct.Side,
		Price:            price,
		Volume:           final,
		CalculatedVolume: calculated,
		BuyingPower:      bal.BuyingPower,
		MaxAllowedVolume: lim.MaxVolume,
		ComputedAt:       c.now(),
	}
	if err := cache.PutJSON(ctx, c.store, types.CategoryOrderParams, ParamsKey(acct), params); err != nil {
		logger.Warn(ctx, "Failed to cache order params", "account", acct.Label(), "error", err)
	}

	logger.Info(ctx, "Order parameters computed",
		"account", acct.Label(),
		"isin", acct.ISIN,
		"side", acct.Side.String(),
		"price", price,
		"buying_power", bal.BuyingPower,
		"calculated_volume", calculated,
		"max_volume", lim.MaxVolume,
		"volume", final,
	)
	return intent, params, nil
}

// volume asks the broker how much the buying power affords at price. The
// answer is cached briefly per (account, instrument, side, price, amount).
func (c *calculator) volume(ctx context.Context, brk interfaces.BrokerAPI, acct types.AccountContext, token string,
	price, buyingPower int64, useCache bool) (int64, error) {

	key := volumeKey(acct, acct.Side, price, buyingPower)
	if useCache {
		if v, ok := cache.GetJSON[int64](ctx, c.store, types.CategoryOrderParams, key); ok {
			logger.Debug(ctx, "Calculated volume cache hit", "account", acct.Label(), "volume", v)
			return v, nil
		}
	}

	v, err := brk.CalculateVolume(ctx, token, types.VolumeQuery{
		ISIN:           acct.ISIN,
		Side:           acct.Side,
		TotalNetAmount: buyingPower,
		Price:          price,
	})
	if err != nil {
		de := &types.DataUnavailableError{
			Account: acct.Credentials.Username,
			Broker:  acct.Credentials.BrokerCode,
			Step:    types.StepCalculate,
			Cause:   err,
		}
		var mf *types.MissingFieldError
		if errors.As(err, &mf) {
			de.Field = mf.Field
		}
		return 0, de
	}
	if err := cache.PutJSON(ctx, c.store, types.CategoryOrderParams, key, v); err != nil {
		logger.Warn(ctx, "Failed to cache calculated volume", "account", acct.Label(), "error", err)
	}
	return v, nil
}
