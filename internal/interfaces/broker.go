package interfaces

import (
	"context"

	"seller-market/internal/types"
)

// BrokerAPI is the wire contract of one broker's identity, trading and
// market-data endpoints. Implementations return *api.HTTPError for non-2xx
// responses and *types.MissingFieldError for incomplete payloads.
type BrokerAPI interface {
	Profile() types.BrokerProfile
	FetchCaptcha(ctx context.Context) (types.Captcha, error)
	Login(ctx context.Context, req types.LoginRequest) (string, error)
	TradingBook(ctx context.Context, token string) (types.AccountBalance, error)
	InstrumentInfo(ctx context.Context, token, isin string) (types.InstrumentLimits, error)
	CalculateVolume(ctx context.Context, token string, q types.VolumeQuery) (int64, error)
	SubmitOrder(ctx context.Context, token string, intent types.OrderIntent) (types.OrderAck, error)
	OpenOrders(ctx context.Context, token string) ([]types.OrderResult, error)
}
