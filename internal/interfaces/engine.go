package interfaces

import (
	"context"

	"seller-market/internal/types"
)

// Engine runs one order attempt for an account: fetch, calculate, submit.
type Engine interface {
	Prepare(ctx context.Context, acct types.AccountContext, token string, useCache bool) (types.OrderIntent, error)
	Execute(ctx context.Context, acct types.AccountContext) (*types.AttemptResult, error)
}
