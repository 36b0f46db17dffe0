package gateway

import (
	"strings"

	"github.com/smallbiznis/rigmarket/internal/gateway/domain"
)

// Registry resolves gateways by provider name. The first registered
// provider is the default for outbound calls.
type Registry struct {
	gateways        map[string]domain.Gateway
	defaultProvider string
}

func NewRegistry(gateways ...domain.Gateway) *Registry {
	registry := &Registry{gateways: map[string]domain.Gateway{}}
	for _, gw := range gateways {
		if gw == nil {
			continue
		}
		provider := normalizeProvider(gw.Provider())
		if provider == "" {
			continue
		}
		if registry.defaultProvider == "" {
			registry.defaultProvider = provider
		}
		registry.gateways[provider] = gw
	}
	return registry
}

func (r *Registry) ProviderExists(provider string) bool {
	if r == nil {
		return false
	}
	_, ok := r.gateways[normalizeProvider(provider)]
	return ok
}

func (r *Registry) Get(provider string) (domain.Gateway, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	gw, ok := r.gateways[normalizeProvider(provider)]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return gw, nil
}

// Default returns the gateway used for checkout, payment intents, payee
// accounts and transfers.
func (r *Registry) Default() (domain.Gateway, error) {
	if r == nil || r.defaultProvider == "" {
		return nil, domain.ErrProviderNotFound
	}
	return r.Get(r.defaultProvider)
}

func normalizeProvider(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
