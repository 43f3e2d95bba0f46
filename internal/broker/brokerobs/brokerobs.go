package brokerobs

import (
	"context"

	"seller-market/internal/interfaces"
	"seller-market/internal/logger"
	"seller-market/internal/trace"
	"seller-market/internal/types"
)

// observableBroker wraps a BrokerAPI with observability (logging & tracing)
type observableBroker struct {
	broker interfaces.BrokerAPI
	code   string
}

// Compile-time interface check
var _ interfaces.BrokerAPI = (*observableBroker)(nil)

// Wrap wraps a broker with observability middleware
func Wrap(broker interfaces.BrokerAPI) interfaces.BrokerAPI {
	return &observableBroker{
		broker: broker,
		code:   broker.Profile().Code,
	}
}

func (ob *observableBroker) Profile() types.BrokerProfile {
	return ob.broker.Profile()
}

// FetchCaptcha fetches a captcha challenge with observability
func (ob *observableBroker) FetchCaptcha(ctx context.Context) (types.Captcha, error) {
	ctx, span := trace.StartSpan(ctx, "broker.FetchCaptcha")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Fetching captcha", "broker", ob.code)

	c, err := ob.broker.FetchCaptcha(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch captcha", err, "broker", ob.code)
		return c, err
	}

	logger.DebugSkip(ctx, 1, "Captcha fetched", "broker", ob.code, "image_bytes", len(c.ImageBase64))
	return c, nil
}

// Login logs in with observability. The password is never logged.
func (ob *observableBroker) Login(ctx context.Context, req types.LoginRequest) (string, error) {
	ctx, span := trace.StartSpan(ctx, "broker.Login")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Logging in", "broker", ob.code, "username", req.Username)

	token, err := ob.broker.Login(ctx, req)
	if err != nil {
		logger.WarnSkip(ctx, 1, "Login rejected", "broker", ob.code, "username", req.Username, "error", err)
		return "", err
	}

	logger.InfoSkip(ctx, 1, "Login successful", "broker", ob.code, "username", req.Username)
	return token, nil
}

// TradingBook fetches buying power with observability
func (ob *observableBroker) TradingBook(ctx context.Context, token string) (types.AccountBalance, error) {
	ctx, span := trace.StartSpan(ctx, "broker.TradingBook")
	defer span.End()

	bal, err := ob.broker.TradingBook(ctx, token)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch trading book", err, "broker", ob.code)
		return bal, err
	}

	logger.DebugSkip(ctx, 1, "Trading book fetched", "broker", ob.code, "buying_power", bal.BuyingPower)
	return bal, nil
}

// InstrumentInfo fetches instrument limits with observability
func (ob *observableBroker) InstrumentInfo(ctx context.Context, token, isin string) (types.InstrumentLimits, error) {
	ctx, span := trace.StartSpan(ctx, "broker.InstrumentInfo")
	defer span.End()

	lim, err := ob.broker.InstrumentInfo(ctx, token, isin)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch instrument info", err, "broker", ob.code, "isin", isin)
		return lim, err
	}

	logger.DebugSkip(ctx, 1, "Instrument info fetched",
		"broker", ob.code,
		"isin", isin,
		"symbol", lim.Symbol,
		"min_price", lim.MinPrice,
		"max_price", lim.MaxPrice,
		"max_volume", lim.MaxVolume,
	)
	return lim, nil
}

// CalculateVolume queries the broker volume calculator with observability
func (ob *observableBroker) CalculateVolume(ctx context.Context, token string, q types.VolumeQuery) (int64, error) {
	ctx, span := trace.StartSpan(ctx, "broker.CalculateVolume")
	defer span.End()

	v, err := ob.broker.CalculateVolume(ctx, token, q)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to calculate volume", err,
			"broker", ob.code, "isin", q.ISIN, "price", q.Price)
		return 0, err
	}

	logger.DebugSkip(ctx, 1, "Volume calculated",
		"broker", ob.code,
		"isin", q.ISIN,
		"buying_power", q.TotalNetAmount,
		"price", q.Price,
		"volume", v,
	)
	return v, nil
}

// SubmitOrder places an order with observability
func (ob *observableBroker) SubmitOrder(ctx context.Context, token string, intent types.OrderIntent) (types.OrderAck, error) {
	ctx, span := trace.StartSpan(ctx, "broker.SubmitOrder")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Submitting order",
		"broker", ob.code,
		"isin", intent.ISIN,
		"side", intent.Side.String(),
		"price", intent.Price,
		"volume", intent.Volume,
		"edit", intent.IsEdit(),
	)

	ack, err := ob.broker.SubmitOrder(ctx, token, intent)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to submit order", err,
			"broker", ob.code,
			"isin", intent.ISIN,
			"volume", intent.Volume,
		)
		return ack, err
	}

	logger.InfoSkip(ctx, 1, "Order accepted",
		"broker", ob.code,
		"isin", intent.ISIN,
		"status", ack.StatusCode,
		"tracking_number", ack.TrackingNumber,
	)
	return ack, nil
}

// OpenOrders lists open orders with observability
func (ob *observableBroker) OpenOrders(ctx context.Context, token string) ([]types.OrderResult, error) {
	ctx, span := trace.StartSpan(ctx, "broker.OpenOrders")
	defer span.End()

	orders, err := ob.broker.OpenOrders(ctx, token)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch open orders", err, "broker", ob.code)
		return nil, err
	}

	logger.InfoSkip(ctx, 1, "Open orders fetched", "broker", ob.code, "count", len(orders))
	return orders, nil
}
