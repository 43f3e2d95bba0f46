package ephoenix

import (
	"github.com/shopspring/decimal"

	"seller-market/internal/types"
)

// Request and response bodies as the ephoenix services encode them. Numeric
// fields that must be present use decimal.NullDecimal so that an absent or
// null value can be told apart from zero.

type captchaResponse struct {
	CaptchaByteData string `json:"captchaByteData"`
	Salt            string `json:"salt"`
	HashedCaptcha   string `json:"hashedCaptcha"`
}

type captchaAnswer struct {
	Hash  string `json:"hash"`
	Salt  string `json:"salt"`
	Value string `json:"value"`
}

type loginRequest struct {
	LoginName string        `json:"loginName"`
	Password  string        `json:"password"`
	Captcha   captchaAnswer `json:"captcha"`
}

type loginResponse struct {
	Token string `json:"token"`
}

type tradingBookResponse struct {
	BuyingPower decimal.NullDecimal `json:"buyingPower"`
}

type instrumentsRequest struct {
	ISINList []string `json:"isinList"`
}

type instrumentInfo struct {
	Symbol    string              `json:"s"`
	Title     string              `json:"t"`
	MaxVolume decimal.NullDecimal `json:"maxeq"`
	MinVolume decimal.NullDecimal `json:"mineq"`
}

type instrumentTrading struct {
	MaxPrice  decimal.NullDecimal `json:"maxap"`
	MinPrice  decimal.NullDecimal `json:"minap"`
	LastPrice decimal.NullDecimal `json:"cup"`
}

type instrumentEntry struct {
	Info    *instrumentInfo    `json:"i"`
	Trading *instrumentTrading `json:"t"`
}

type calculateResponse struct {
	Volume decimal.NullDecimal `json:"volume"`
}

type orderRequest struct {
	ISIN         string     `json:"isin"`
	Side         types.Side `json:"side"`
	Validity     int        `json:"validity"`
	AccountType  int        `json:"accountType"`
	Price        int64      `json:"price"`
	Volume       int64      `json:"volume"`
	ValidityDate *string    `json:"validityDate"`
	SerialNumber int64      `json:"serialNumber"`
}

type orderResponse struct {
	TrackingNumber decimal.NullDecimal `json:"trackingNumber"`
	SerialNumber   decimal.NullDecimal `json:"serialNumber"`
}

type openOrder struct {
	ISIN             string          `json:"isin"`
	Symbol           string          `json:"symbol"`
	SymbolTitle      string          `json:"symbolTitle"`
	TrackingNumber   decimal.Decimal `json:"trackingNumber"`
	SerialNumber     decimal.Decimal `json:"serialNumber"`
	Created          string          `json:"created"`
	CreatedShamsi    string          `json:"createdShamsiDate"`
	OrderSide        int             `json:"orderSide"`
	Price            decimal.Decimal `json:"price"`
	Volume           decimal.Decimal `json:"volume"`
	RemainedVolume   decimal.Decimal `json:"remainedVolume"`
	ExecutedVolume   decimal.Decimal `json:"executedVolume"`
	State            int             `json:"state"`
	StateDescription string          `json:"stateDesc"`
	IsDone           bool            `json:"isDone"`
	NetAmount        decimal.Decimal `json:"netAmount"`
}

func (o openOrder) toResult() types.OrderResult {
	return types.OrderResult{
		ISIN:           o.ISIN,
		Symbol:         o.Symbol,
		SymbolTitle:    o.SymbolTitle,
		TrackingNumber: o.TrackingNumber.IntPart(),
		SerialNumber:   o.SerialNumber.IntPart(),
		Created:        o.Created,
		CreatedShamsi:  o.CreatedShamsi,
		Side:           types.Side(o.OrderSide),
		Price:          o.Price.Round(0).IntPart(),
		Volume:         o.Volume.IntPart(),
		RemainedVolume: o.RemainedVolume.IntPart(),
		ExecutedVolume: o.ExecutedVolume.IntPart(),
		State:          o.State,
		StateDesc:      o.StateDescription,
		IsDone:         o.IsDone,
		NetAmount:      o.NetAmount.Round(0).IntPart(),
	}
}
