package eodobs

import (
	"context"
	"time"

	"seller-market/internal/interfaces"
	"seller-market/internal/logger"
	"seller-market/internal/trace"
	"seller-market/internal/types"
)

type observableReconciler struct {
	reconciler interfaces.Reconciler
}

var _ interfaces.Reconciler = (*observableReconciler)(nil)

func Wrap(reconciler interfaces.Reconciler) interfaces.Reconciler {
	return &observableReconciler{
		reconciler: reconciler,
	}
}

func (or *observableReconciler) Reconcile(ctx context.Context, accounts []types.AccountContext, day time.Time) ([]types.ReconcileOutcome, error) {
	ctx, span := trace.StartSpan(ctx, "eod.Reconcile")
	defer span.End()

	start := time.Now()

	logger.InfoSkip(ctx, 1, "Starting reconciliation",
		"date", day.Format("2006-01-02"),
		"accounts", len(accounts),
	)

	outcomes, err := or.reconciler.Reconcile(ctx, accounts, day)

	failed, orders := 0, 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
		orders += len(o.Orders)
	}
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Reconciliation completed with failures", err,
			"date", day.Format("2006-01-02"),
			"accounts", len(outcomes),
			"failed", failed,
			"orders", orders,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return outcomes, err
	}

	logger.InfoSkip(ctx, 1, "Reconciliation completed",
		"date", day.Format("2006-01-02"),
		"accounts", len(outcomes),
		"orders", orders,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return outcomes, nil
}
