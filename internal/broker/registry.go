package broker

import (
	"sort"
	"strings"
	"sync"

	"seller-market/internal/types"
)

// Default host templates. {broker} is replaced by the broker code.
const (
	DefaultIdentityBase = "https://identity-{broker}.ephoenix.ir"
	DefaultAPIBase      = "https://api-{broker}.ephoenix.ir"
	DefaultMarketData   = "https://mdapi1.ephoenix.ir/api/v2/instruments/full"
)

const placeholder = "{broker}"

var builtin = map[string]string{
	"gs":      "Ghadir Shahr (Ganjine)",
	"shahr":   "Shahr",
	"bbi":     "Bourse Bazar Iran",
	"karamad": "Karamad",
	"tejarat": "Tejarat",
	"ebb":     "EBB",
}

// Registry maps broker codes to their endpoint sets.
type Registry struct {
	mu           sync.RWMutex
	names        map[string]string
	identityBase string
	apiBase      string
	marketData   string
}

type RegistryOption func(*Registry)

// WithHosts overrides the host templates, mostly for tests against a local
// server. Empty values keep the default.
func WithHosts(identityBase, apiBase, marketData string) RegistryOption {
	return func(r *Registry) {
		if identityBase != "" {
			r.identityBase = strings.TrimRight(identityBase, "/")
		}
		if apiBase != "" {
			r.apiBase = strings.TrimRight(apiBase, "/")
		}
		if marketData != "" {
			r.marketData = marketData
		}
	}
}

// NewRegistry returns a registry preloaded with the built-in brokers.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		names:        make(map[string]string, len(builtin)),
		identityBase: DefaultIdentityBase,
		apiBase:      DefaultAPIBase,
		marketData:   DefaultMarketData,
	}
	for code, name := range builtin {
		r.names[code] = name
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds or renames a broker code.
func (r *Registry) Register(code, name string) {
	code = normalize(code)
	if code == "" {
		return
	}
	if name == "" {
		name = code
	}
	r.mu.Lock()
	r.names[code] = name
	r.mu.Unlock()
}

// Resolve returns the profile for code or *types.UnknownBrokerError.
func (r *Registry) Resolve(code string) (types.BrokerProfile, error) {
	c := normalize(code)
	r.mu.RLock()
	name, ok := r.names[c]
	r.mu.RUnlock()
	if !ok {
		return types.BrokerProfile{}, &types.UnknownBrokerError{Code: code}
	}

	identity := strings.ReplaceAll(r.identityBase, placeholder, c)
	api := strings.ReplaceAll(r.apiBase, placeholder, c)
	return types.BrokerProfile{
		Code: c,
		Name: name,
		Endpoints: types.Endpoints{
			Captcha:     identity + "/api/Captcha/GetCaptcha",
			Login:       identity + "/api/v2/accounts/login",
			NewOrder:    api + "/api/v2/orders/NewOrder",
			EditOrder:   api + "/api/v2/orders/EditOrder",
			TradingBook: api + "/api/v2/tradingbook/GetLastTradingBook",
			CalcOrder:   api + "/api/v2/orders/CalculateOrderParam",
			OpenOrders:  api + "/api/v2/orders/GetOpenOrders",
			MarketData:  strings.ReplaceAll(r.marketData, placeholder, c),
		},
	}, nil
}

// Codes lists registered codes in sorted order.
func (r *Registry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.names))
	for c := range r.names {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func normalize(code string) string { return types.NormalizeBrokerCode(code) }
