package ephoenix

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"seller-market/internal/api"
	"seller-market/internal/interfaces"
	"seller-market/internal/types"
)

var _ interfaces.BrokerAPI = (*Client)(nil)

// Client talks to one broker's ephoenix identity, trading and market-data
// services. It is safe for concurrent use.
type Client struct {
	profile types.BrokerProfile
	http    *api.Client
	now     func() time.Time
}

// New returns a client for profile. Options configure the underlying HTTP
// client; the default timeout is api.DefaultTimeout.
func New(profile types.BrokerProfile, opts ...api.ClientOption) *Client {
	var base []api.ClientOption
	for k, v := range api.BrowserHeaders() {
		base = append(base, api.WithHeader(k, v))
	}
	base = append(base, api.WithHeader("Accept", "application/json"))
	return &Client{
		profile: profile,
		http:    api.NewClient(append(base, opts...)...),
		now:     time.Now,
	}
}

func (c *Client) Profile() types.BrokerProfile { return c.profile }

// FetchCaptcha requests a new challenge image. No credentials are sent.
func (c *Client) FetchCaptcha(ctx context.Context) (types.Captcha, error) {
	resp, err := c.http.GET(ctx, c.profile.Endpoints.Captcha)
	if err != nil {
		return types.Captcha{}, err
	}
	var body captchaResponse
	if err := resp.ParseJSON(&body); err != nil {
		return types.Captcha{}, err
	}
	switch {
	case body.CaptchaByteData == "":
		return types.Captcha{}, &types.MissingFieldError{Field: "captchaByteData"}
	case body.HashedCaptcha == "":
		return types.Captcha{}, &types.MissingFieldError{Field: "hashedCaptcha"}
	}
	return types.Captcha{
		ImageBase64: body.CaptchaByteData,
		Salt:        body.Salt,
		Hash:        body.HashedCaptcha,
	}, nil
}

// Login exchanges credentials and a solved captcha for a bearer token. A
// success status without a token is reported as an *api.HTTPError carrying
// the body so callers can classify it like any other rejection.
func (c *Client) Login(ctx context.Context, req types.LoginRequest) (string, error) {
	resp, err := c.http.POST(ctx, c.profile.Endpoints.Login, loginRequest{
		LoginName: req.Username,
		Password:  req.Password,
		Captcha: captchaAnswer{
			Hash:  req.CaptchaHash,
			Salt:  req.CaptchaSalt,
			Value: req.CaptchaValue,
		},
	})
	if err != nil {
		return "", err
	}
	var body loginResponse
	if err := resp.ParseJSON(&body); err != nil || body.Token == "" {
		return "", &api.HTTPError{
			Method:     http.MethodPost,
			URL:        c.profile.Endpoints.Login,
			StatusCode: resp.StatusCode,
			Body:       resp.Body,
		}
	}
	return body.Token, nil
}

// TradingBook returns the account's buying power, floored to whole rials.
func (c *Client) TradingBook(ctx context.Context, token string) (types.AccountBalance, error) {
	req := api.NewRequest(http.MethodGet, c.profile.Endpoints.TradingBook).
		WithContext(ctx).
		WithBearer(token)
	resp, err := c.http.Do(req)
	if err != nil {
		return types.AccountBalance{}, err
	}
	var body tradingBookResponse
	if err := resp.ParseJSON(&body); err != nil {
		return types.AccountBalance{}, err
	}
	if !body.BuyingPower.Valid {
		return types.AccountBalance{}, &types.MissingFieldError{Field: "buyingPower"}
	}
	return types.AccountBalance{
		BuyingPower: body.BuyingPower.Decimal.Floor().IntPart(),
		RetrievedAt: c.now(),
	}, nil
}

// InstrumentInfo returns the session limits for isin. Prices are rounded
// inward (max down, min up) so a limit is never exceeded.
func (c *Client) InstrumentInfo(ctx context.Context, token, isin string) (types.InstrumentLimits, error) {
	req := api.NewRequest(http.MethodPost, c.profile.Endpoints.MarketData).
		WithContext(ctx).
		WithBearer(token).
		WithBody(instrumentsRequest{ISINList: []string{isin}})
	resp, err := c.http.Do(req)
	if err != nil {
		return types.InstrumentLimits{}, err
	}
	var entries []instrumentEntry
	if err := resp.ParseJSON(&entries); err != nil {
		return types.InstrumentLimits{}, err
	}
	if len(entries) == 0 {
		return types.InstrumentLimits{}, &types.MissingFieldError{Field: "instruments[0]"}
	}
	e := entries[0]
	if e.Info == nil {
		return types.InstrumentLimits{}, &types.MissingFieldError{Field: "i"}
	}
	if e.Trading == nil {
		return types.InstrumentLimits{}, &types.MissingFieldError{Field: "t"}
	}
	required := []struct {
		name string
		v    decimal.NullDecimal
	}{
		{"t.maxap", e.Trading.MaxPrice},
		{"t.minap", e.Trading.MinPrice},
		{"i.maxeq", e.Info.MaxVolume},
	}
	for _, f := range required {
		if !f.v.Valid {
			return types.InstrumentLimits{}, &types.MissingFieldError{Field: f.name}
		}
	}

	return types.InstrumentLimits{
		ISIN:      isin,
		Symbol:    e.Info.Symbol,
		Title:     e.Info.Title,
		MaxPrice:  e.Trading.MaxPrice.Decimal.Floor().IntPart(),
		MinPrice:  e.Trading.MinPrice.Decimal.Ceil().IntPart(),
		LastPrice: e.Trading.LastPrice.Decimal.Round(0).IntPart(),
		MaxVolume: e.Info.MaxVolume.Decimal.Floor().IntPart(),
		MinVolume: e.Info.MinVolume.Decimal.Ceil().IntPart(),
		FetchedAt: c.now(),
	}, nil
}

// CalculateVolume asks the broker how many shares q.TotalNetAmount buys at
// q.Price after the broker's own fees.
func (c *Client) CalculateVolume(ctx context.Context, token string, q types.VolumeQuery) (int64, error) {
	req := api.NewRequest(http.MethodPost, c.profile.Endpoints.CalcOrder).
		WithContext(ctx).
		WithBearer(token).
		WithBody(q)
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	var body calculateResponse
	if err := resp.ParseJSON(&body); err != nil {
		return 0, err
	}
	if !body.Volume.Valid {
		return 0, &types.MissingFieldError{Field: "volume"}
	}
	return body.Volume.Decimal.Floor().IntPart(), nil
}

// SubmitOrder posts intent to NewOrder, or to EditOrder when it carries a
// serial number.
func (c *Client) SubmitOrder(ctx context.Context, token string, intent types.OrderIntent) (types.OrderAck, error) {
	url := c.profile.Endpoints.NewOrder
	if intent.IsEdit() {
		url = c.profile.Endpoints.EditOrder
	}
	req := api.NewRequest(http.MethodPost, url).
		WithContext(ctx).
		WithBearer(token).
		WithBody(orderRequest{
			ISIN:         intent.ISIN,
			Side:         intent.Side,
			Validity:     intent.Validity,
			AccountType:  intent.AccountType,
			Price:        intent.Price,
			Volume:       intent.Volume,
			ValidityDate: intent.ValidityDate,
			SerialNumber: intent.SerialNumber,
		})
	resp, err := c.http.Do(req)
	if err != nil {
		return types.OrderAck{}, err
	}

	ack := types.OrderAck{StatusCode: resp.StatusCode}
	if json.Valid(resp.Body) {
		ack.Raw = resp.Body
	}
	var body orderResponse
	if resp.ParseJSON(&body) == nil {
		if body.TrackingNumber.Valid {
			ack.TrackingNumber = body.TrackingNumber.Decimal.IntPart()
		}
		if body.SerialNumber.Valid {
			ack.SerialNumber = body.SerialNumber.Decimal.IntPart()
		}
	}
	return ack, nil
}

// OpenOrders returns today's orders as the broker reports them.
func (c *Client) OpenOrders(ctx context.Context, token string) ([]types.OrderResult, error) {
	req := api.NewRequest(http.MethodGet, c.profile.Endpoints.OpenOrders+"?type=1").
		WithContext(ctx).
		WithBearer(token)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	var orders []openOrder
	if err := resp.ParseJSON(&orders); err != nil {
		return nil, fmt.Errorf("decoding open orders: %w", err)
	}
	out := make([]types.OrderResult, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.toResult())
	}
	return out, nil
}
