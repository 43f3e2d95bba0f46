package engine

import (
	"context"
	"errors"
	"net/http"

	"seller-market/internal/api"
	"seller-market/internal/interfaces"
	"seller-market/internal/logger"
	"seller-market/internal/tradelog"
	"seller-market/internal/types"
)

// orderExecutor submits intents and appends every outcome to the
// submission log. It never resubmits.
type orderExecutor struct {
	dryRun   bool
	recorder *tradelog.Recorder
}

func newOrderExecutor(dryRun bool, recorder *tradelog.Recorder) *orderExecutor {
	return &orderExecutor{dryRun: dryRun, recorder: recorder}
}

// submit sends intent to the broker. sent reports whether a request left
// the process, which is true even when the broker rejected it or the
// response was lost.
func (oe *orderExecutor) submit(ctx context.Context, brk interfaces.BrokerAPI, sess interfaces.TokenSource,
	acct types.AccountContext, token string, intent types.OrderIntent, attemptID string) (ack *types.OrderAck, sent bool, err error) {

	entry := tradelog.Submission{
		RunID:        types.RunIDFrom(ctx),
		AttemptID:    attemptID,
		Account:      acct.Credentials.Username,
		Broker:       acct.Credentials.BrokerCode,
		ISIN:         intent.ISIN,
		Side:         intent.Side.String(),
		Price:        intent.Price,
		Volume:       intent.Volume,
		SerialNumber: intent.SerialNumber,
	}

	if oe.dryRun {
		ack = &types.OrderAck{StatusCode: http.StatusOK, SerialNumber: intent.SerialNumber, Simulated: true}
		entry.Simulated = true
		entry.StatusCode = ack.StatusCode
		oe.record(ctx, entry)
		logger.Order(ctx, acct.Label(), intent.ISIN, intent.Side.String(), intent.Price, intent.Volume,
			"attempt_id", attemptID, "dry_run", true)
		return ack, false, nil
	}

	res, err := brk.SubmitOrder(ctx, token, intent)
	if err != nil {
		rej := rejection(acct, err)
		if rej.StatusCode == http.StatusUnauthorized && sess != nil {
			if ierr := sess.Invalidate(ctx); ierr != nil {
				logger.Warn(ctx, "Failed to invalidate token", "account", acct.Label(), "error", ierr)
			}
		}
		entry.StatusCode = rej.StatusCode
		entry.Error = err.Error()
		entry.BrokerCode = rej.Code
		entry.BrokerMessage = rej.Message
		oe.record(ctx, entry)
		return nil, true, rej
	}

	entry.StatusCode = res.StatusCode
	entry.TrackingNumber = res.TrackingNumber
	oe.record(ctx, entry)
	logger.Order(ctx, acct.Label(), intent.ISIN, intent.Side.String(), intent.Price, intent.Volume,
		"attempt_id", attemptID,
		"status_code", res.StatusCode,
		"tracking_number", res.TrackingNumber,
		"edit", intent.IsEdit(),
	)
	return &res, true, nil
}

func (oe *orderExecutor) record(ctx context.Context, e tradelog.Submission) {
	if oe.recorder == nil {
		return
	}
	if err := oe.recorder.AppendSubmission(e); err != nil {
		logger.ErrorWithErr(ctx, "Failed to append submission log", err,
			"account", e.Account, "broker", e.Broker, "step", types.StepPersist)
	}
}

// rejection keeps the broker's code and message so callers can tell
// "market closed" from "insufficient funds".
func rejection(acct types.AccountContext, err error) *types.OrderRejectedError {
	rej := &types.OrderRejectedError{
		Account: acct.Credentials.Username,
		Broker:  acct.Credentials.BrokerCode,
		Cause:   err,
	}
	var he *api.HTTPError
	if errors.As(err, &he) {
		rej.StatusCode = he.StatusCode
		rej.Body = string(he.Body)
		rej.Code, rej.Message = api.BrokerMessage(he.Body)
	}
	return rej
}
