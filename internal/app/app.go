// Package app wires the configured components together for the commands.
package app

import (
	"context"
	"fmt"

	"seller-market/internal/api"
	"seller-market/internal/auth"
	"seller-market/internal/broker"
	"seller-market/internal/broker/brokerobs"
	"seller-market/internal/broker/ephoenix"
	"seller-market/internal/cache"
	"seller-market/internal/captcha"
	"seller-market/internal/engine"
	"seller-market/internal/engine/engineobs"
	"seller-market/internal/eod"
	"seller-market/internal/eod/eodobs"
	"seller-market/internal/interfaces"
	"seller-market/internal/logger"
	"seller-market/internal/orchestrator"
	"seller-market/internal/ratelimit"
	"seller-market/internal/store"
	"seller-market/internal/tradelog"
	"seller-market/internal/types"
)

type App struct {
	Config     *store.Config
	Accounts   []types.AccountContext
	Cache      interfaces.CacheStore
	Registry   *broker.Registry
	Brokers    *broker.Pool
	Sessions   *auth.Pool
	Recorder   *tradelog.Recorder
	Engine     interfaces.Engine
	Reconciler interfaces.Reconciler
}

// Build constructs every component from cfg. The caller owns Close.
func Build(ctx context.Context, cfg *store.Config) (*App, error) {
	accounts, err := cfg.AccountContexts()
	if err != nil {
		return nil, err
	}

	cs, err := cache.New(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("opening %s cache: %w", cfg.Cache.Backend, err)
	}

	registry := broker.NewRegistry()
	for code, name := range cfg.Brokers {
		registry.Register(code, name)
	}
	for _, a := range accounts {
		if _, err := registry.Resolve(a.Credentials.BrokerCode); err != nil {
			cs.Close()
			return nil, err
		}
	}

	timeout := cfg.HTTP.Timeout.Std()
	brokers := broker.NewPool(registry, func(p types.BrokerProfile) interfaces.BrokerAPI {
		return brokerobs.Wrap(ephoenix.New(p, api.WithTimeout(timeout)))
	})

	decoder := captcha.NewOCRClient(cfg.OCR.URL, cfg.OCR.Path, cfg.OCR.Timeout.Std())
	sessions := auth.NewPool(brokers, decoder, cs, auth.Config{
		MaxCaptchaAttempts: cfg.Auth.CaptchaRetries,
		CaptchaDelay:       cfg.Auth.CaptchaDelay.Std(),
		CaptchaMarkers:     cfg.Auth.CaptchaMarkers,
	}, auth.WithLimiter(ratelimit.New(cfg.Auth.IdentityRPS, 1)))

	recorder := tradelog.NewRecorder(cfg.Results.Dir, tradelog.LoadLocation(cfg.Results.Timezone))

	eng := engineobs.Wrap(engine.New(engine.Config{DryRun: cfg.DryRun()}, brokers, sessions, cs, recorder))
	rec := eodobs.Wrap(eod.NewReconciler(brokers, sessions, recorder))

	logger.Info(ctx, "Components initialized",
		"mode", cfg.Mode,
		"cache_backend", cfg.Cache.Backend,
		"accounts", len(accounts),
		"brokers", registry.Codes(),
		"results_dir", cfg.Results.Dir,
	)

	return &App{
		Config:     cfg,
		Accounts:   accounts,
		Cache:      cs,
		Registry:   registry,
		Brokers:    brokers,
		Sessions:   sessions,
		Recorder:   recorder,
		Engine:     eng,
		Reconciler: rec,
	}, nil
}

// Orchestrator returns a session runner using the configured limits.
func (a *App) Orchestrator(opts ...orchestrator.Option) *orchestrator.Orchestrator {
	return orchestrator.New(orchestrator.Config{
		RunDuration:     a.Config.Session.RunDuration.Std(),
		AttemptInterval: a.Config.Session.AttemptInterval.Std(),
		MaxAttempts:     a.Config.Session.MaxAttempts,
	}, a.Engine, a.Reconciler, opts...)
}

func (a *App) Close() error {
	return a.Cache.Close()
}
