package broker

import (
	"sync"

	"seller-market/internal/interfaces"
	"seller-market/internal/types"
)

var _ interfaces.BrokerSource = (*Pool)(nil)

// Factory builds a client for a resolved profile.
type Factory func(profile types.BrokerProfile) interfaces.BrokerAPI

// Pool resolves broker codes and keeps one client per code.
type Pool struct {
	registry *Registry
	factory  Factory

	mu      sync.Mutex
	clients map[string]interfaces.BrokerAPI
}

func NewPool(registry *Registry, factory Factory) *Pool {
	return &Pool{registry: registry, factory: factory, clients: make(map[string]interfaces.BrokerAPI)}
}

// Broker returns the client for code, building it on first use.
func (p *Pool) Broker(code string) (interfaces.BrokerAPI, error) {
	profile, err := p.registry.Resolve(code)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[profile.Code]; ok {
		return c, nil
	}
	c := p.factory(profile)
	p.clients[profile.Code] = c
	return c, nil
}
