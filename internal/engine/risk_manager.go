package engine

import (
	"context"
	"errors"

	"seller-market/internal/logger"
	"seller-market/internal/types"
)

var errNonPositivePrice = errors.New("instrument price limit is not positive")

// riskManager enforces the per-order volume ceiling and reports attempts
// that cannot trade.
type riskManager struct{}

func newRiskManager() *riskManager {
	return &riskManager{}
}

// clamp returns min(calculated, maxAllowed), logging when the broker's
// suggestion had to be cut.
func (rm *riskManager) clamp(ctx context.Context, acct types.AccountContext, calculated, maxAllowed int64) int64 {
	if calculated <= maxAllowed {
		return calculated
	}
	logger.Risk(ctx, acct.Label(), "VOLUME_CLAMPED",
		"isin", acct.ISIN,
		"calculated_volume", calculated,
		"max_volume", maxAllowed,
	)
	return maxAllowed
}

// insufficient builds the "no trade this round" error and logs it as a risk event.
func (rm *riskManager) insufficient(ctx context.Context, acct types.AccountContext, buyingPower, calculated, maxAllowed int64) error {
	logger.Risk(ctx, acct.Label(), "INSUFFICIENT_CAPACITY",
		"isin", acct.ISIN,
		"buying_power", buyingPower,
		"calculated_volume", calculated,
		"max_volume", maxAllowed,
	)
	return &types.InsufficientCapacityError{
		Account:          acct.Credentials.Username,
		Broker:           acct.Credentials.BrokerCode,
		ISIN:             acct.ISIN,
		BuyingPower:      buyingPower,
		CalculatedVolume: calculated,
		MaxAllowedVolume: maxAllowed,
	}
}
