// Package providers defines the uniform resource API siivo sweeps
// against, plus the provider registry.
package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/yairfalse/siivo/types"
)

// CloudProvider is the uniform resource API for all cloud providers
type CloudProvider interface {
	// ListClouds returns the clouds/regions this provider can sweep,
	// with capability markers for each resource kind.
	ListClouds(ctx context.Context) ([]types.Cloud, error)

	// ListVolumes returns all volume records in a cloud, already
	// normalized to the canonical record shape.
	ListVolumes(ctx context.Context, cloudID string) ([]types.Record, error)

	// ListSnapshots returns all snapshot records in a cloud
	ListSnapshots(ctx context.Context, cloudID string) ([]types.Record, error)

	// Delete removes a resource. Callers treat failure as non-fatal.
	Delete(ctx context.Context, rec types.Record) error

	// Name returns the provider name
	Name() string
}

// ProviderConfig holds provider configuration
type ProviderConfig struct {
	Regions        []string
	Profile        string
	RequestTimeout time.Duration
}

// ProviderFactory creates a provider instance
type ProviderFactory func(ctx context.Context, config ProviderConfig) (CloudProvider, error)

// Registry of available providers
var registry = make(map[string]ProviderFactory)

// RegisterProvider registers a new provider factory
func RegisterProvider(name string, factory ProviderFactory) {
	registry[name] = factory
}

// GetProvider creates a provider instance by name
func GetProvider(ctx context.Context, name string, config ProviderConfig) (CloudProvider, error) {
	factory, exists := registry[name]
	if !exists {
		return nil, fmt.Errorf("provider %s not found", name)
	}
	return factory(ctx, config)
}

// ListProviders returns available provider names
func ListProviders() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
