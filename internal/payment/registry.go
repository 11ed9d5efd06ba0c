package payment

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/callscript/internal/config"
)

// ErrGatewayNotRegistered is returned by [Registry.Create] when no factory
// has been registered under the requested gateway name.
var ErrGatewayNotRegistered = errors.New("payment: gateway not registered")

// Factory builds a gateway from the payment configuration section.
type Factory func(config.PaymentConfig) (Gateway, error)

// Registry maps gateway names to their constructors. It is safe for
// concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry holding the built-in "log" and
// "webhook" gateways.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("log", func(config.PaymentConfig) (Gateway, error) {
		return NewLogGateway(nil), nil
	})
	r.Register("webhook", func(c config.PaymentConfig) (Gateway, error) {
		if c.WebhookURL == "" {
			return nil, errors.New("payment: webhook gateway needs payment.webhook_url")
		}
		return NewWebhookGateway(c.WebhookURL, nil), nil
	})
	return r
}

// Register registers a gateway factory under name. Subsequent calls with the
// same name overwrite the previous registration.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Create instantiates the gateway registered under name.
// Returns [ErrGatewayNotRegistered] if no factory has been registered for it.
func (r *Registry) Create(name string, cfg config.PaymentConfig) (Gateway, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrGatewayNotRegistered, name)
	}
	return factory(cfg)
}

// Names returns the registered gateway names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
