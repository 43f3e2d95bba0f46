// Package orchestrator drives every configured account through repeated
// order attempts until the session ends, then reconciles the accounts that
// actually sent orders.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"seller-market/internal/interfaces"
	"seller-market/internal/logger"
	"seller-market/internal/types"
)

type Config struct {
	// RunDuration bounds when new attempts may start. In-flight attempts
	// are allowed to finish after it passes.
	RunDuration     time.Duration
	AttemptInterval time.Duration
	MaxAttempts     int
}

// AccountReport is the outcome of one account's execution context.
type AccountReport struct {
	Account     types.AccountContext `json:"-"`
	Label       string               `json:"account"`
	Attempts    int                  `json:"attempts"`
	Submissions int                  `json:"submissions"`
	Simulated   int                  `json:"simulated"`
	Stopped     bool                 `json:"stopped"`
	LastError   string               `json:"last_error,omitempty"`
	LastStep    string               `json:"last_step,omitempty"`
	Err         error                `json:"-"`
}

type Report struct {
	RunID      string                   `json:"run_id"`
	StartedAt  time.Time                `json:"started_at"`
	FinishedAt time.Time                `json:"finished_at"`
	Accounts   []AccountReport          `json:"accounts"`
	Reconciled []types.ReconcileOutcome `json:"reconciled,omitempty"`
}

// Submitted returns the accounts that sent at least one order.
func (r *Report) Submitted() []types.AccountContext {
	var out []types.AccountContext
	for _, a := range r.Accounts {
		if a.Submissions > 0 {
			out = append(out, a.Account)
		}
	}
	return out
}

type Option func(*Orchestrator)

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func WithRunID(id string) Option {
	return func(o *Orchestrator) { o.runID = id }
}

type Orchestrator struct {
	cfg        Config
	engine     interfaces.Engine
	reconciler interfaces.Reconciler
	now        func() time.Time
	runID      string
}

func New(cfg Config, engine interfaces.Engine, reconciler interfaces.Reconciler, opts ...Option) *Orchestrator {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	o := &Orchestrator{cfg: cfg, engine: engine, reconciler: reconciler, now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	if o.runID == "" {
		o.runID = uuid.NewString()
	}
	return o
}

func (o *Orchestrator) RunID() string { return o.runID }

// Run starts one goroutine per account and waits for all of them. It does
// not reconcile; call Finalize with the returned report.
func (o *Orchestrator) Run(ctx context.Context, accounts []types.AccountContext) *Report {
	ctx = types.WithRunID(ctx, o.runID)
	report := &Report{RunID: o.runID, StartedAt: o.now(), Accounts: make([]AccountReport, len(accounts))}

	// gate closes when no new attempts may begin; attempts themselves run
	// on ctx so an in-flight submission is not cut off by the deadline.
	gate, cancel := ctx, context.CancelFunc(func() {})
	if o.cfg.RunDuration > 0 {
		gate, cancel = context.WithTimeout(ctx, o.cfg.RunDuration)
	}
	defer cancel()

	logger.Info(ctx, "Trading session started",
		"run_id", o.runID,
		"accounts", len(accounts),
		"max_attempts", o.cfg.MaxAttempts,
		"attempt_interval", o.cfg.AttemptInterval.String(),
		"run_duration", o.cfg.RunDuration.String(),
	)

	var wg sync.WaitGroup
	for i, acct := range accounts {
		wg.Add(1)
		go func(i int, acct types.AccountContext) {
			defer wg.Done()
			report.Accounts[i] = o.runAccount(ctx, gate, acct)
		}(i, acct)
	}
	wg.Wait()

	report.FinishedAt = o.now()
	logger.Info(ctx, "Trading session finished",
		"run_id", o.runID,
		"duration_ms", report.FinishedAt.Sub(report.StartedAt).Milliseconds(),
		"accounts_with_orders", len(report.Submitted()),
	)
	return report
}

func (o *Orchestrator) runAccount(ctx, gate context.Context, acct types.AccountContext) AccountReport {
	rep := AccountReport{Account: acct, Label: acct.Label()}
	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		if gate.Err() != nil {
			logger.Info(ctx, "Session time is up, no new attempts", "account", acct.Label(), "attempts", rep.Attempts)
			break
		}

		res, err := o.engine.Execute(ctx, acct)
		rep.Attempts++
		if res != nil {
			if res.Submitted {
				rep.Submissions++
			}
			if res.Ack != nil && res.Ack.Simulated {
				rep.Simulated++
			}
		}
		if err != nil {
			rep.Err = err
			rep.LastError = err.Error()
			rep.LastStep = types.StepOf(err)
			if types.IsTerminal(err) {
				rep.Stopped = true
				logger.Error(ctx, "Account stopped",
					"account", acct.Credentials.Username,
					"broker", acct.Credentials.BrokerCode,
					"step", rep.LastStep,
					"error", err,
				)
				break
			}
		}

		if attempt < o.cfg.MaxAttempts && !wait(gate, o.cfg.AttemptInterval) {
			break
		}
	}
	return rep
}

// wait sleeps for d unless gate closes first.
func wait(gate context.Context, d time.Duration) bool {
	if d <= 0 {
		return gate.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-gate.Done():
		return false
	case <-t.C:
		return true
	}
}

// Finalize reconciles every account in report that sent at least one
// order. Failures are per account and already recorded in the outcomes.
func (o *Orchestrator) Finalize(ctx context.Context, report *Report) error {
	ctx = types.WithRunID(ctx, report.RunID)
	accounts := report.Submitted()
	if len(accounts) == 0 {
		logger.Info(ctx, "Nothing to reconcile", "run_id", report.RunID)
		return nil
	}
	outcomes, err := o.reconciler.Reconcile(ctx, accounts, report.StartedAt)
	report.Reconciled = outcomes
	return err
}
