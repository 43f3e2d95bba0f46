package engine

import (
	"seller-market/internal/interfaces"
	"seller-market/internal/tradelog"
)

func New(cfg Config, brokers interfaces.BrokerSource, sessions interfaces.SessionSource,
	store interfaces.CacheStore, recorder *tradelog.Recorder, opts ...Option) interfaces.Engine {
	return newEngine(cfg, brokers, sessions, store, recorder, opts...)
}
