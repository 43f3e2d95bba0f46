package auth

import (
	"sync"

	"seller-market/internal/cache"
	"seller-market/internal/interfaces"
	"seller-market/internal/types"
)

var _ interfaces.SessionSource = (*Pool)(nil)

// Pool keeps one Session per (username, broker) so concurrent attempts of
// the same account share a single login.
type Pool struct {
	brokers interfaces.BrokerSource
	decoder interfaces.CaptchaDecoder
	store   interfaces.CacheStore
	cfg     Config
	opts    []Option

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewPool(brokers interfaces.BrokerSource, decoder interfaces.CaptchaDecoder, store interfaces.CacheStore, cfg Config, opts ...Option) *Pool {
	return &Pool{
		brokers:  brokers,
		decoder:  decoder,
		store:    store,
		cfg:      cfg,
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// Session returns the session of acct, creating it on first use.
func (p *Pool) Session(acct types.AccountContext) (interfaces.TokenSource, error) {
	return p.Get(acct)
}

// Get is Session with the concrete type, for callers that inspect State.
func (p *Pool) Get(acct types.AccountContext) (*Session, error) {
	brk, err := p.brokers.Broker(acct.Credentials.BrokerCode)
	if err != nil {
		return nil, err
	}
	key := cache.Key(acct.Credentials.Username, brk.Profile().Code)

	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.sessions[key]; ok {
		return s, nil
	}
	creds := acct.Credentials
	creds.BrokerCode = brk.Profile().Code
	s := NewSession(creds, brk, p.decoder, p.store, p.cfg, p.opts...)
	p.sessions[key] = s
	return s, nil
}
