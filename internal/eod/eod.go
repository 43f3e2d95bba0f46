// Package eod reconciles the broker's view of each account's orders once
// the trading session ends.
package eod

import (
	"context"
	"errors"
	"sync"
	"time"

	"seller-market/internal/cache"
	"seller-market/internal/interfaces"
	"seller-market/internal/logger"
	"seller-market/internal/tradelog"
	"seller-market/internal/types"
)

type reconciler struct {
	brokers  interfaces.BrokerSource
	sessions interfaces.SessionSource
	recorder *tradelog.Recorder
}

// Reconcile queries open orders for every distinct (username, broker) in
// accounts concurrently and persists each account on its own. A failing
// account is reported in its outcome and in the joined error but never
// stops the others.
func (r *reconciler) Reconcile(ctx context.Context, accounts []types.AccountContext, day time.Time) ([]types.ReconcileOutcome, error) {
	unique := dedupe(accounts)
	outcomes := make([]types.ReconcileOutcome, len(unique))

	var wg sync.WaitGroup
	for i, acct := range unique {
		wg.Add(1)
		go func(i int, acct types.AccountContext) {
			defer wg.Done()
			outcomes[i] = r.reconcileOne(ctx, acct, day)
		}(i, acct)
	}
	wg.Wait()

	var errs []error
	for _, o := range outcomes {
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
	}
	return outcomes, errors.Join(errs...)
}

func (r *reconciler) reconcileOne(ctx context.Context, acct types.AccountContext, day time.Time) types.ReconcileOutcome {
	out := types.ReconcileOutcome{Account: acct.Label()}
	fail := func(step string, err error) types.ReconcileOutcome {
		out.Err = &types.ReconciliationError{
			Account: acct.Credentials.Username,
			Broker:  acct.Credentials.BrokerCode,
			Step:    step,
			Cause:   err,
		}
		logger.ErrorWithErr(ctx, "Reconciliation failed", err,
			"account", acct.Credentials.Username,
			"broker", acct.Credentials.BrokerCode,
			"step", step,
		)
		return out
	}

	brk, err := r.brokers.Broker(acct.Credentials.BrokerCode)
	if err != nil {
		return fail(types.StepResolve, err)
	}
	sess, err := r.sessions.Session(acct)
	if err != nil {
		return fail(types.StepResolve, err)
	}
	token, err := sess.Token(ctx)
	if err != nil {
		return fail(types.StepAuth, err)
	}
	orders, err := brk.OpenOrders(ctx, token)
	if err != nil {
		return fail(types.StepReconcile, err)
	}
	out.Orders = orders

	path, err := r.recorder.AppendResults(acct, day, types.RunIDFrom(ctx), orders)
	if err != nil {
		return fail(types.StepPersist, err)
	}
	out.RecordPath = path

	s := Summarize(acct.Credentials.Username, acct.Credentials.BrokerCode, r.recorder.Day(day), orders)
	summary := r.recorder.SummaryPath(acct.Credentials.Username, acct.Credentials.BrokerCode, day)
	if err := writeSummaryCSV(summary, s, orders); err != nil {
		return fail(types.StepPersist, err)
	}
	out.SummaryPath = summary

	logger.Info(ctx, "Account reconciled",
		"account", acct.Label(),
		"orders", s.Orders,
		"total_volume", s.TotalVolume,
		"executed_volume", s.ExecutedVolume,
		"executed_fraction", s.ExecutedFraction.String(),
		"total_amount", s.TotalAmount,
		"record", path,
	)
	for _, o := range orders {
		logger.Debug(ctx, o.String(), "account", acct.Label())
	}
	return out
}

// dedupe keeps the first context of each (username, broker) pair.
func dedupe(accounts []types.AccountContext) []types.AccountContext {
	seen := make(map[string]bool, len(accounts))
	out := make([]types.AccountContext, 0, len(accounts))
	for _, a := range accounts {
		k := cache.Key(a.Credentials.Username, a.Credentials.BrokerCode)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, a)
	}
	return out
}
