package types

import (
	"errors"
	"fmt"
)

// Steps of the per-account pipeline, used to attribute failures.
const (
	StepResolve   = "resolve"
	StepAuth      = "auth"
	StepCaptcha   = "captcha"
	StepBalance   = "buying_power"
	StepLimits    = "instrument_limits"
	StepCalculate = "calculate"
	StepSubmit    = "submit"
	StepReconcile = "reconcile"
	StepPersist   = "persist"
)

// ErrCaptchaRejected marks a login rejection attributable to a wrong captcha
// read. It is retried internally by the auth session and never surfaces on
// its own.
var ErrCaptchaRejected = errors.New("captcha rejected")

// UnknownBrokerError is returned for broker codes that are not registered.
type UnknownBrokerError struct {
	Code string
}

func (e *UnknownBrokerError) Error() string {
	return fmt.Sprintf("unknown broker code %q", e.Code)
}

// AuthenticationError is a terminal login failure for one account.
type AuthenticationError struct {
	Account  string
	Broker   string
	Step     string
	Attempts int
	Cause    error
}

func (e *AuthenticationError) Error() string {
	msg := fmt.Sprintf("authentication failed for %s@%s at %s", e.Account, e.Broker, e.Step)
	if e.Attempts > 0 {
		msg += fmt.Sprintf(" after %d attempt(s)", e.Attempts)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *AuthenticationError) Unwrap() error { return e.Cause }

// DataUnavailableError reports that buying power or instrument limits could
// not be obtained or were incomplete.
type DataUnavailableError struct {
	Account string
	Broker  string
	Step    string
	Field   string
	Cause   error
}

func (e *DataUnavailableError) Error() string {
	msg := fmt.Sprintf("%s unavailable for %s@%s", e.Step, e.Account, e.Broker)
	if e.Field != "" {
		msg += fmt.Sprintf(" (missing field %s)", e.Field)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *DataUnavailableError) Unwrap() error { return e.Cause }

// InsufficientCapacityError means the computed volume is not positive.
type InsufficientCapacityError struct {
	Account          string
	Broker           string
	ISIN             string
	BuyingPower      int64
	CalculatedVolume int64
	MaxAllowedVolume int64
}

func (e *InsufficientCapacityError) Error() string {
	return fmt.Sprintf("insufficient capacity for %s@%s on %s: buying power %d, calculated volume %d, max allowed %d",
		e.Account, e.Broker, e.ISIN, e.BuyingPower, e.CalculatedVolume, e.MaxAllowedVolume)
}

// OrderRejectedError carries the broker's explanation for a rejected order.
// StatusCode is 0 when the request got no response at all; such orders may
// still have reached the broker and are never resubmitted automatically.
type OrderRejectedError struct {
	Account    string
	Broker     string
	StatusCode int
	Code       string
	Message    string
	Body       string
	Cause      error
}

func (e *OrderRejectedError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("order submission for %s@%s got no response: %v", e.Account, e.Broker, e.Cause)
	}
	msg := fmt.Sprintf("order rejected for %s@%s: HTTP %d", e.Account, e.Broker, e.StatusCode)
	if e.Code != "" {
		msg += " code=" + e.Code
	}
	if e.Message != "" {
		msg += " " + e.Message
	}
	return msg
}

func (e *OrderRejectedError) Unwrap() error { return e.Cause }

// ReconciliationError reports a failed open-orders query or persistence for
// one account during finalize.
type ReconciliationError struct {
	Account string
	Broker  string
	Step    string
	Cause   error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("reconciliation failed for %s@%s at %s: %v", e.Account, e.Broker, e.Step, e.Cause)
}

func (e *ReconciliationError) Unwrap() error { return e.Cause }

// IsTerminal reports whether err should stop all further attempts for the
// account instead of only the current attempt.
func IsTerminal(err error) bool {
	var ub *UnknownBrokerError
	var ae *AuthenticationError
	return errors.As(err, &ub) || errors.As(err, &ae)
}

// StepOf extracts the pipeline step an error is attributed to.
func StepOf(err error) string {
	var (
		ub *UnknownBrokerError
		ae *AuthenticationError
		du *DataUnavailableError
		ic *InsufficientCapacityError
		or *OrderRejectedError
		re *ReconciliationError
	)
	switch {
	case errors.As(err, &ub):
		return StepResolve
	case errors.As(err, &ae):
		return ae.Step
	case errors.As(err, &du):
		return du.Step
	case errors.As(err, &ic):
		return StepCalculate
	case errors.As(err, &or):
		return StepSubmit
	case errors.As(err, &re):
		return re.Step
	}
	return ""
}
