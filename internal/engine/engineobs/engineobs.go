package engineobs

import (
	"context"
	"errors"
	"time"

	"seller-market/internal/interfaces"
	"seller-market/internal/logger"
	"seller-market/internal/trace"
	"seller-market/internal/types"
)

type observableEngine struct {
	engine interfaces.Engine
}

var _ interfaces.Engine = (*observableEngine)(nil)

func Wrap(eng interfaces.Engine) interfaces.Engine {
	return &observableEngine{
		engine: eng,
	}
}

func (oe *observableEngine) Prepare(ctx context.Context, acct types.AccountContext, token string, useCache bool) (types.OrderIntent, error) {
	ctx, span := trace.StartSpan(ctx, "engine.Prepare")
	defer span.End()

	start := time.Now()
	intent, err := oe.engine.Prepare(ctx, acct, token, useCache)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Order preparation failed", err,
			"account", acct.Label(),
			"broker", acct.Credentials.BrokerCode,
			"step", types.StepOf(err),
			"use_cache", useCache,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return intent, err
	}

	logger.InfoSkip(ctx, 1, "Order prepared",
		"account", acct.Label(),
		"isin", intent.ISIN,
		"side", intent.Side.String(),
		"price", intent.Price,
		"volume", intent.Volume,
		"use_cache", useCache,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return intent, nil
}

func (oe *observableEngine) Execute(ctx context.Context, acct types.AccountContext) (*types.AttemptResult, error) {
	ctx, span := trace.StartSpan(ctx, "engine.Execute")
	defer span.End()

	start := time.Now()

	logger.DebugSkip(ctx, 1, "Starting order attempt",
		"account", acct.Label(),
		"isin", acct.ISIN,
		"side", acct.Side.String(),
	)

	result, err := oe.engine.Execute(ctx, acct)
	attemptID := ""
	submitted := false
	if result != nil {
		attemptID = result.AttemptID
		submitted = result.Submitted
	}
	if err != nil {
		args := []any{
			"account", acct.Label(),
			"broker", acct.Credentials.BrokerCode,
			"step", types.StepOf(err),
			"attempt_id", attemptID,
			"submitted", submitted,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		var capacity *types.InsufficientCapacityError
		if errors.As(err, &capacity) {
			logger.WarnSkip(ctx, 1, "No trade this round", append(args, "error", err)...)
		} else {
			logger.ErrorWithErrSkip(ctx, 1, "Order attempt failed", err, args...)
		}
		return result, err
	}

	logger.InfoSkip(ctx, 1, "Order attempt completed",
		"account", acct.Label(),
		"attempt_id", attemptID,
		"price", result.Intent.Price,
		"volume", result.Intent.Volume,
		"submitted", submitted,
		"simulated", result.Ack != nil && result.Ack.Simulated,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}
