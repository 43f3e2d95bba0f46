package eod

import (
	"seller-market/internal/interfaces"
	"seller-market/internal/tradelog"
)

func NewReconciler(brokers interfaces.BrokerSource, sessions interfaces.SessionSource, recorder *tradelog.Recorder) interfaces.Reconciler {
	return &reconciler{brokers: brokers, sessions: sessions, recorder: recorder}
}
