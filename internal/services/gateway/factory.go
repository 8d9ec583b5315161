package gateway

import (
	"context"
	"fmt"
	"log/slog"

	"tiketi/internal/services/gateway/paystack"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct{}

// NewFactory creates a new gateway factory
func NewFactory() *DefaultFactory {
	return &DefaultFactory{}
}

// CreateGateway creates a gateway instance based on provider type and configuration
func (f *DefaultFactory) CreateGateway(ctx context.Context, provider Provider, config interface{}) (Gateway, error) {
	switch provider {
	case ProviderPaystack:
		cfg, ok := config.(*paystack.Config)
		if !ok {
			return nil, fmt.Errorf("invalid paystack config type, expected *paystack.Config")
		}
		return NewPaystackAdapter(ctx, cfg)

	case ProviderMpesa:
		cfg, ok := config.(*paystack.Config)
		if !ok {
			return nil, fmt.Errorf("invalid mpesa config type, expected *paystack.Config")
		}
		return NewMpesaAdapter(ctx, cfg)

	default:
		return nil, fmt.Errorf("unsupported payment provider: %s", provider)
	}
}

// GetSupportedProviders returns list of supported payment providers
func (f *DefaultFactory) GetSupportedProviders() []Provider {
	return []Provider{
		ProviderPaystack,
		ProviderMpesa,
	}
}

// Registry manages multiple gateway instances
type Registry struct {
	gateways map[Provider]Gateway
	factory  Factory
	primary  Provider
}

// NewRegistry creates a new gateway registry
func NewRegistry(factory Factory) *Registry {
	return &Registry{
		gateways: make(map[Provider]Gateway),
		factory:  factory,
	}
}

// Register creates and registers a gateway instance
func (r *Registry) Register(ctx context.Context, provider Provider, config interface{}) error {
	gw, err := r.factory.CreateGateway(ctx, provider, config)
	if err != nil {
		return fmt.Errorf("failed to create %s gateway: %w", provider, err)
	}

	r.gateways[provider] = gw

	// First registered gateway becomes primary
	if r.primary == "" {
		r.primary = provider
	}
	return nil
}

// Get returns a gateway instance by provider
func (r *Registry) Get(provider Provider) (Gateway, error) {
	gw, exists := r.gateways[provider]
	if !exists {
		return nil, fmt.Errorf("payment provider %s not registered", provider)
	}
	return gw, nil
}

// Primary returns the primary gateway instance
func (r *Registry) Primary() (Gateway, error) {
	if r.primary == "" {
		return nil, fmt.Errorf("no primary payment provider configured")
	}
	return r.Get(r.primary)
}

// Available returns the registered providers
func (r *Registry) Available() []Provider {
	providers := make([]Provider, 0, len(r.gateways))
	for provider := range r.gateways {
		providers = append(providers, provider)
	}
	return providers
}

// Close gracefully closes all gateway connections
func (r *Registry) Close(ctx context.Context) error {
	for provider, gw := range r.gateways {
		if err := gw.Close(ctx); err != nil {
			slog.Error("closing gateway", "provider", provider, "error", err)
		}
	}
	return nil
}
