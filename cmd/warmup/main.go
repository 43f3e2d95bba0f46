// Command warmup fills the cache before the market opens: it sweeps expired
// entries, logs every account in and computes its order parameters from
// fresh data.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"seller-market/internal/app"
	"seller-market/internal/logger"
	"seller-market/internal/store"
	"seller-market/internal/types"
)

type result struct {
	acct   types.AccountContext
	intent types.OrderIntent
	err    error
}

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	_ = godotenv.Load()
	if err := logger.Init(); err != nil {
		log.Println(err)
		return 1
	}
	defer logger.Shutdown(context.Background())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := store.LoadConfig(*configPath)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", *configPath)
		return 1
	}
	if err := cfg.Cache.RequirePersistent(); err != nil {
		logger.ErrorWithErr(ctx, "Warmup needs a persistent cache", err)
		return 1
	}
	a, err := app.Build(ctx, cfg)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to initialize", err)
		return 1
	}
	defer a.Close()

	swept, err := a.Cache.SweepExpired(ctx)
	if err != nil {
		logger.Warn(ctx, "Sweep failed", "error", err)
	}
	logger.Info(ctx, "Expired cache entries removed", "count", swept)

	results := make([]result, len(a.Accounts))
	var wg sync.WaitGroup
	for i, acct := range a.Accounts {
		wg.Add(1)
		go func(i int, acct types.AccountContext) {
			defer wg.Done()
			results[i] = warm(ctx, a, acct)
		}(i, acct)
	}
	wg.Wait()

	failed := 0
	for _, r := range results {
		if r.err != nil {
			failed++
			fmt.Printf("FAIL %-28s %s: %v\n", r.acct.Label(), types.StepOf(r.err), r.err)
			continue
		}
		fmt.Printf("OK   %-28s %s %s %d x %d\n", r.acct.Label(), r.intent.ISIN, r.intent.Side, r.intent.Volume, r.intent.Price)
	}

	if stats, err := a.Cache.Stats(ctx); err == nil {
		fmt.Printf("\ncache (%s): %d entries, %d valid, %d expired\n",
			stats.Backend, stats.TotalEntries, stats.ValidEntries, stats.ExpiredEntries)
		for _, cat := range types.Categories {
			c := stats.PerCategory[cat]
			fmt.Printf("  %-14s %d valid / %d total\n", cat, c.Valid, c.Total)
		}
	}

	if failed > 0 {
		return 1
	}
	return 0
}

func warm(ctx context.Context, a *app.App, acct types.AccountContext) result {
	sess, err := a.Sessions.Session(acct)
	if err != nil {
		return result{acct: acct, err: err}
	}
	token, err := sess.Token(ctx)
	if err != nil {
		return result{acct: acct, err: err}
	}
	intent, err := a.Engine.Prepare(ctx, acct, token, false)
	return result{acct: acct, intent: intent, err: err}
}
