// Package brokertest provides an in-memory BrokerAPI for tests.
package brokertest

import (
	"context"
	"sync"

	"seller-market/internal/interfaces"
	"seller-market/internal/types"
)

var _ interfaces.BrokerAPI = (*Fake)(nil)

// Fake is a scriptable BrokerAPI. Nil hooks fall back to canned answers: a
// fixed captcha, token "token", buying power 1,000,014,598, limits
// 3279..3601 with max volume 400,000, and volume = amount / price.
type Fake struct {
	ProfileValue types.BrokerProfile

	CaptchaFn    func(ctx context.Context) (types.Captcha, error)
	LoginFn      func(ctx context.Context, req types.LoginRequest) (string, error)
	BalanceFn    func(ctx context.Context, token string) (types.AccountBalance, error)
	LimitsFn     func(ctx context.Context, token, isin string) (types.InstrumentLimits, error)
	VolumeFn     func(ctx context.Context, token string, q types.VolumeQuery) (int64, error)
	SubmitFn     func(ctx context.Context, token string, intent types.OrderIntent) (types.OrderAck, error)
	OpenOrdersFn func(ctx context.Context, token string) ([]types.OrderResult, error)

	mu        sync.Mutex
	calls     map[string]int
	submitted []types.OrderIntent
	logins    []types.LoginRequest
}

// New returns a Fake for broker code.
func New(code string) *Fake {
	return &Fake{ProfileValue: types.BrokerProfile{
		Code: code,
		Name: code,
		Endpoints: types.Endpoints{
			Captcha: "https://identity-" + code + ".test/api/Captcha/GetCaptcha",
			Login:   "https://identity-" + code + ".test/api/v2/accounts/login",
		},
	}}
}

func (f *Fake) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[name]++
}

// Calls returns how many times method was invoked.
func (f *Fake) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// Submitted returns the intents passed to SubmitOrder.
func (f *Fake) Submitted() []types.OrderIntent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.OrderIntent(nil), f.submitted...)
}

// Logins returns the login requests received.
func (f *Fake) Logins() []types.LoginRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.LoginRequest(nil), f.logins...)
}

func (f *Fake) Profile() types.BrokerProfile { return f.ProfileValue }

func (f *Fake) FetchCaptcha(ctx context.Context) (types.Captcha, error) {
	f.record("FetchCaptcha")
	if f.CaptchaFn != nil {
		return f.CaptchaFn(ctx)
	}
	return types.Captcha{ImageBase64: "aW1n", Salt: "salt", Hash: "hash"}, nil
}

func (f *Fake) Login(ctx context.Context, req types.LoginRequest) (string, error) {
	f.record("Login")
	f.mu.Lock()
	f.logins = append(f.logins, req)
	f.mu.Unlock()
	if f.LoginFn != nil {
		return f.LoginFn(ctx, req)
	}
	return "token", nil
}

func (f *Fake) TradingBook(ctx context.Context, token string) (types.AccountBalance, error) {
	f.record("TradingBook")
	if f.BalanceFn != nil {
		return f.BalanceFn(ctx, token)
	}
	return types.AccountBalance{BuyingPower: 1_000_014_598}, nil
}

func (f *Fake) InstrumentInfo(ctx context.Context, token, isin string) (types.InstrumentLimits, error) {
	f.record("InstrumentInfo")
	if f.LimitsFn != nil {
		return f.LimitsFn(ctx, token, isin)
	}
	return types.InstrumentLimits{
		ISIN:      isin,
		Symbol:    "TEST",
		MaxPrice:  3601,
		MinPrice:  3279,
		MaxVolume: 400_000,
		MinVolume: 1,
	}, nil
}

func (f *Fake) CalculateVolume(ctx context.Context, token string, q types.VolumeQuery) (int64, error) {
	f.record("CalculateVolume")
	if f.VolumeFn != nil {
		return f.VolumeFn(ctx, token, q)
	}
	if q.Price <= 0 {
		return 0, nil
	}
	return q.TotalNetAmount / q.Price, nil
}

func (f *Fake) SubmitOrder(ctx context.Context, token string, intent types.OrderIntent) (types.OrderAck, error) {
	f.record("SubmitOrder")
	f.mu.Lock()
	f.submitted = append(f.submitted, intent)
	n := len(f.submitted)
	f.mu.Unlock()
	if f.SubmitFn != nil {
		return f.SubmitFn(ctx, token, intent)
	}
	return types.OrderAck{StatusCode: 200, TrackingNumber: int64(1000 + n)}, nil
}

func (f *Fake) OpenOrders(ctx context.Context, token string) ([]types.OrderResult, error) {
	f.record("OpenOrders")
	if f.OpenOrdersFn != nil {
		return f.OpenOrdersFn(ctx, token)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]types.OrderResult, 0, len(f.submitted))
	for i, in := range f.submitted {
		out = append(out, types.OrderResult{
			ISIN:           in.ISIN,
			TrackingNumber: int64(1001 + i),
			Side:           in.Side,
			Price:          in.Price,
			Volume:         in.Volume,
			RemainedVolume: in.Volume,
			StateDesc:      "queued",
			NetAmount:      in.Price * in.Volume,
		})
	}
	return out, nil
}

// Decoder is a scriptable CaptchaDecoder returning Answers in order and
// then repeating the last one.
type Decoder struct {
	mu      sync.Mutex
	Answers []string
	Err     error
	calls   int
}

func (d *Decoder) Decode(ctx context.Context, _ string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.Err != nil {
		return "", d.Err
	}
	if len(d.Answers) == 0 {
		return "12345", nil
	}
	i := d.calls - 1
	if i >= len(d.Answers) {
		i = len(d.Answers) - 1
	}
	return d.Answers[i], nil
}

func (d *Decoder) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}
