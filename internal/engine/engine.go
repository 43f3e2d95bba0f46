// Package engine runs one order attempt for an account: resolve the broker,
// obtain a token, read balance and limits, compute the order and submit it.
package engine

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"seller-market/internal/api"
	"seller-market/internal/interfaces"
	"seller-market/internal/logger"
	"seller-market/internal/market"
	"seller-market/internal/tradelog"
	"seller-market/internal/types"
)

var _ interfaces.Engine = (*Engine)(nil)

type Config struct {
	// DryRun builds the full intent without sending it.
	DryRun bool
}

type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithFetcher replaces the default cache-backed fetcher.
func WithFetcher(f *market.Fetcher) Option {
	return func(e *Engine) { e.fetcher = f }
}

type Engine struct {
	cfg      Config
	brokers  interfaces.BrokerSource
	sessions interfaces.SessionSource
	store    interfaces.CacheStore
	fetcher  *market.Fetcher
	calc     *calculator
	exec     *orderExecutor
	now      func() time.Time
}

func newEngine(cfg Config, brokers interfaces.BrokerSource, sessions interfaces.SessionSource,
	store interfaces.CacheStore, recorder *tradelog.Recorder, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		brokers:  brokers,
		sessions: sessions,
		store:    store,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.fetcher == nil {
		e.fetcher = market.NewFetcher(store, market.WithClock(e.now))
	}
	e.calc = newCalculator(store, e.now)
	e.exec = newOrderExecutor(cfg.DryRun, recorder)
	return e
}

// Prepare computes the order intent for acct without submitting it.
func (e *Engine) Prepare(ctx context.Context, acct types.AccountContext, token string, useCache bool) (types.OrderIntent, error) {
	brk, err := e.brokers.Broker(acct.Credentials.BrokerCode)
	if err != nil {
		return types.OrderIntent{}, err
	}
	intent, _, err := e.prepare(ctx, brk, acct, token, useCache)
	return intent, err
}

func (e *Engine) prepare(ctx context.Context, brk interfaces.BrokerAPI, acct types.AccountContext, token string, useCache bool) (types.OrderIntent, types.OrderParams, error) {
	bal, err := e.fetcher.BuyingPower(ctx, brk, acct, token, useCache)
	if err != nil {
		return types.OrderIntent{}, types.OrderParams{}, err
	}
	lim, err := e.fetcher.Limits(ctx, brk, acct, token, useCache)
	if err != nil {
		return types.OrderIntent{}, types.OrderParams{}, err
	}
	return e.calc.compute(ctx, brk, acct, token, bal, lim, useCache)
}

// Execute runs a full attempt. The returned result is non-nil whenever the
// broker was resolved, so callers can see whether an order went out even
// when err is set.
func (e *Engine) Execute(ctx context.Context, acct types.AccountContext) (*types.AttemptResult, error) {
	start := e.now()
	res := &types.AttemptResult{AttemptID: uuid.NewString(), Account: acct.Label()}

	brk, err := e.brokers.Broker(acct.Credentials.BrokerCode)
	if err != nil {
		return res, err
	}
	sess, err := e.sessions.Session(acct)
	if err != nil {
		return res, err
	}
	token, err := sess.Token(ctx)
	if err != nil {
		return res, err
	}

	intent, _, err := e.prepare(ctx, brk, acct, token, true)
	if err != nil {
		if api.StatusOf(err) == http.StatusUnauthorized {
			if ierr := sess.Invalidate(ctx); ierr != nil {
				logger.Warn(ctx, "Failed to invalidate token", "account", acct.Label(), "error", ierr)
			}
		}
		res.Duration = e.now().Sub(start)
		return res, err
	}
	res.Intent = intent

	ack, sent, err := e.exec.submit(ctx, brk, sess, acct, token, intent, res.AttemptID)
	res.Ack = ack
	res.Submitted = sent
	res.Duration = e.now().Sub(start)
	return res, err
}
