package interfaces

import (
	"context"
	"time"

	"seller-market/internal/types"
)

// Reconciler collects and persists the broker's view of orders at session end.
type Reconciler interface {
	Reconcile(ctx context.Context, accounts []types.AccountContext, day time.Time) ([]types.ReconcileOutcome, error)
}
