package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"seller-market/internal/app"
	"seller-market/internal/eod"
	"seller-market/internal/logger"
	"seller-market/internal/orchestrator"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to config file")
	finalizeTimeout := flag.Duration("finalize-timeout", 2*time.Minute, "time allowed for reconciliation after the session")
	flag.Parse()

	if err := initializeSystem(); err != nil {
		log.Println(err)
		return 1
	}
	defer shutdown(context.Background())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig(ctx, *configPath)
	if err != nil {
		return 1
	}

	a, err := app.Build(ctx, cfg)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to initialize", err)
		return 1
	}
	defer a.Close()

	compressOldLogs(ctx, a.Recorder, cfg.Results.CompressAfterDays)

	orch := a.Orchestrator()
	report := orch.Run(ctx, a.Accounts)
	if ctx.Err() != nil {
		logger.Warn(ctx, "Interrupted, reconciling what was sent", "run_id", report.RunID)
	}

	// Reconcile even after an interrupt so in-flight orders are recorded.
	fctx, fcancel := context.WithTimeout(context.Background(), *finalizeTimeout)
	defer fcancel()
	if err := orch.Finalize(fctx, report); err != nil {
		logger.Warn(fctx, "Reconciliation finished with failures", "error", err)
	}

	printReport(a, report)

	for _, acc := range report.Accounts {
		if acc.Stopped {
			return 1
		}
	}
	return 0
}

func printReport(a *app.App, report *orchestrator.Report) {
	day := a.Recorder.Day(report.StartedAt)
	for _, o := range report.Reconciled {
		if o.Err != nil {
			fmt.Printf("%s: reconciliation failed: %v\n\n", o.Account, o.Err)
			continue
		}
		for _, acc := range report.Accounts {
			if acc.Label != o.Account {
				continue
			}
			s := eod.Summarize(acc.Account.Credentials.Username, acc.Account.Credentials.BrokerCode, day, o.Orders)
			fmt.Println(s.Report())
			break
		}
	}
	b, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println(string(b))
}
