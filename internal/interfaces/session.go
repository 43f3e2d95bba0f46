package interfaces

import (
	"context"

	"seller-market/internal/types"
)

// TokenSource hands out the bearer token of one account.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate(ctx context.Context) error
}

// SessionSource returns the token owner for an account.
type SessionSource interface {
	Session(acct types.AccountContext) (TokenSource, error)
}

// BrokerSource returns the client for a broker code, failing with
// *types.UnknownBrokerError for unregistered codes.
type BrokerSource interface {
	Broker(code string) (BrokerAPI, error)
}
