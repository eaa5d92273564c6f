// Package adapters maps PAYMENT_PROVIDER names to settlement gateway
// factories.
package adapters

import (
	"fmt"
	"slices"
	"strings"

	"github.com/smallbiznis/tenantgate/internal/payment/domain"
)

type Registry struct {
	factories map[string]domain.AdapterFactory
}

// NewRegistry indexes factories by lower-cased provider name. Nil factories
// and blank names are skipped; a later factory replaces an earlier one.
func NewRegistry(factories ...domain.AdapterFactory) *Registry {
	r := &Registry{factories: make(map[string]domain.AdapterFactory, len(factories))}
	for _, f := range factories {
		if f == nil {
			continue
		}
		if name := providerKey(f.Provider()); name != "" {
			r.factories[name] = f
		}
	}
	return r
}

func (r *Registry) ProviderExists(provider string) bool {
	_, ok := r.lookup(provider)
	return ok
}

// Providers lists the registered provider names in sorted order.
func (r *Registry) Providers() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (r *Registry) NewGateway(provider string, cfg domain.AdapterConfig) (domain.Gateway, error) {
	f, ok := r.lookup(provider)
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %s)", domain.ErrProviderNotFound, provider, strings.Join(r.Providers(), ", "))
	}
	return f.NewGateway(cfg)
}

func (r *Registry) lookup(provider string) (domain.AdapterFactory, bool) {
	if r == nil {
		return nil, false
	}
	f, ok := r.factories[providerKey(provider)]
	return f, ok
}

func providerKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
