package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Side is the order direction as the broker encodes it.
type Side int

const (
	SideBuy  Side = 1
	SideSell Side = 2
)

func (s Side) Valid() bool { return s == SideBuy || s == SideSell }

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return fmt.Sprintf("SIDE(%d)", int(s))
	}
}

// Fixed order fields sent with every intent.
const (
	OrderValidityDay   = 1
	OrderAccountNormal = 1
)

// SessionValidity is how long a bearer token is trusted after issuance.
const SessionValidity = time.Hour

// Credentials identify one trading account at one broker.
type Credentials struct {
	Username   string `json:"username"`
	Password   string `json:"-"`
	BrokerCode string `json:"broker_code"`
}

// AccountContext is the unit of concurrency: one configured account and the
// single instrument it trades.
type AccountContext struct {
	Name         string
	Credentials  Credentials
	ISIN         string
	Side         Side
	SerialNumber int64
}

// Label renders the account as username@broker for logs and reports.
func (a AccountContext) Label() string {
	return a.Credentials.Username + "@" + a.Credentials.BrokerCode
}

// SessionToken is a bearer credential and its issuance time.
type SessionToken struct {
	Value    string        `json:"token"`
	IssuedAt time.Time     `json:"issued_at"`
	ValidFor time.Duration `json:"valid_for"`
}

// ValidAt reports whether the token may still be used at now.
func (t SessionToken) ValidAt(now time.Time) bool {
	if t.Value == "" {
		return false
	}
	return now.Before(t.IssuedAt.Add(t.ValidFor))
}

// AccountBalance is the buying power of an account at retrieval time.
type AccountBalance struct {
	BuyingPower int64     `json:"buying_power"`
	RetrievedAt time.Time `json:"retrieved_at"`
}

// InstrumentLimits are the broker-imposed bounds for ordering one instrument
// during the current session.
type InstrumentLimits struct {
	ISIN      string    `json:"isin"`
	Symbol    string    `json:"symbol"`
	Title     string    `json:"title"`
	MaxPrice  int64     `json:"max_price"`
	MinPrice  int64     `json:"min_price"`
	LastPrice int64     `json:"last_price"`
	MaxVolume int64     `json:"max_volume"`
	MinVolume int64     `json:"min_volume"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Captcha is one challenge issued by the identity service.
type Captcha struct {
	ImageBase64 string
	Salt        string
	Hash        string
}

// LoginRequest is the credential and solved captcha sent to the login endpoint.
type LoginRequest struct {
	Username     string
	Password     string
	CaptchaHash  string
	CaptchaSalt  string
	CaptchaValue string
}

// VolumeQuery is the input of the broker's volume calculator.
type VolumeQuery struct {
	ISIN           string `json:"isin"`
	Side           Side   `json:"side"`
	TotalNetAmount int64  `json:"totalNetAmount"`
	Price          int64  `json:"price"`
}

// OrderIntent is the immutable order request built for one submission attempt.
type OrderIntent struct {
	ISIN         string  `json:"isin"`
	Side         Side    `json:"side"`
	Validity     int     `json:"validity"`
	AccountType  int     `json:"accountType"`
	Price        int64   `json:"price"`
	Volume       int64   `json:"volume"`
	ValidityDate *string `json:"validityDate"`
	SerialNumber int64   `json:"serialNumber"`
}

// IsEdit reports whether the intent modifies an existing order.
func (o OrderIntent) IsEdit() bool { return o.SerialNumber > 0 }

// Amount is the notional value of the intent.
func (o OrderIntent) Amount() int64 { return o.Price * o.Volume }

// OrderParams are the computed parameters kept in the order_params cache for
// inspection and pre-market warmup.
type OrderParams struct {
	ISIN             string    `json:"isin"`
	Side             Side      `json:"side"`
	Price            int64     `json:"price"`
	Volume           int64     `json:"volume"`
	CalculatedVolume int64     `json:"calculated_volume"`
	BuyingPower      int64     `json:"buying_power"`
	MaxAllowedVolume int64     `json:"max_allowed_volume"`
	ComputedAt       time.Time `json:"computed_at"`
}

// OrderAck is the broker's acknowledgement of a submitted order.
type OrderAck struct {
	StatusCode     int             `json:"status_code"`
	TrackingNumber int64           `json:"tracking_number,omitempty"`
	SerialNumber   int64           `json:"serial_number,omitempty"`
	Simulated      bool            `json:"simulated,omitempty"`
	Raw            json.RawMessage `json:"raw,omitempty"`
}

// OrderResult is one order as reported by the broker's open-orders query.
type OrderResult struct {
	ISIN           string `json:"isin"`
	Symbol         string `json:"symbol"`
	SymbolTitle    string `json:"symbol_title"`
	TrackingNumber int64  `json:"tracking_number"`
	SerialNumber   int64  `json:"serial_number"`
	Created        string `json:"created"`
	CreatedShamsi  string `json:"created_shamsi"`
	Side           Side   `json:"side"`
	Price          int64  `json:"price"`
	Volume         int64  `json:"volume"`
	RemainedVolume int64  `json:"remained_volume"`
	ExecutedVolume int64  `json:"executed_volume"`
	State          int    `json:"state"`
	StateDesc      string `json:"state_desc"`
	IsDone         bool   `json:"is_done"`
	NetAmount      int64  `json:"net_amount"`
}

func (r OrderResult) String() string {
	return fmt.Sprintf("Order %d: %s %d x %s @ %d - %s",
		r.TrackingNumber, r.Side, r.Volume, r.Symbol, r.Price, r.StateDesc)
}

// AttemptResult describes one pass of the order pipeline for an account.
type AttemptResult struct {
	AttemptID string        `json:"attempt_id"`
	Account   string        `json:"account"`
	Intent    OrderIntent   `json:"intent"`
	Ack       *OrderAck     `json:"ack,omitempty"`
	Submitted bool          `json:"submitted"`
	Duration  time.Duration `json:"duration"`
}

// Endpoints is the resolved URL set of one broker.
type Endpoints struct {
	Captcha     string `json:"captcha"`
	Login       string `json:"login"`
	NewOrder    string `json:"new_order"`
	EditOrder   string `json:"edit_order"`
	TradingBook string `json:"trading_book"`
	MarketData  string `json:"market_data"`
	CalcOrder   string `json:"calculate_order"`
	OpenOrders  string `json:"open_orders"`
}

// BrokerProfile is a registered broker and its endpoints.
type BrokerProfile struct {
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Endpoints Endpoints `json:"endpoints"`
}

// MissingFieldError reports a broker response without a field the caller
// cannot do without.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string { return "missing field " + e.Field }

// ReconcileOutcome is the per-account result of the finalize phase.
type ReconcileOutcome struct {
	Account     string        `json:"account"`
	Orders      []OrderResult `json:"orders"`
	RecordPath  string        `json:"record_path,omitempty"`
	SummaryPath string        `json:"summary_path,omitempty"`
	Err         error         `json:"-"`
}

// NormalizeBrokerCode is the canonical form of a broker code. Cache keys,
// session keys and registry lookups all use it.
func NormalizeBrokerCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}
