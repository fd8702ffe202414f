package vendors

import (
	"fmt"
	"net/http"
	"time"

	"github.com/oyunkod/oyunkod-backend/pkg/config"
	"github.com/oyunkod/oyunkod-backend/pkg/db/models"
	"github.com/oyunkod/oyunkod-backend/pkg/enums"
	apperrors "github.com/oyunkod/oyunkod-backend/pkg/errors"
)

// Registry maps provider types onto adapters. Internal integrations never
// resolve here; chain forwarding is a direct database operation.
type Registry struct {
	adapters  map[enums.ProviderType]Adapter
	simulator Adapter
}

// NewRegistry wires the real adapters with a shared HTTP client.
func NewRegistry(cfg config.VendorsConfig) *Registry {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	registry := &Registry{
		adapters:  make(map[enums.ProviderType]Adapter),
		simulator: NewSimulator(enums.ProviderTypeZnet),
	}
	registry.Register(NewZnetAdapter(client))
	registry.Register(NewApstoreAdapter(client))
	registry.Register(NewBarakatAdapter(client))
	return registry
}

// Register adds or replaces the adapter for its provider type.
func (r *Registry) Register(adapter Adapter) {
	if adapter == nil {
		return
	}
	r.adapters[adapter.Kind()] = adapter
}

// Resolve picks the adapter for an integration. With simulate on, znet
// traffic is served by the canned simulator and the real adapter is never
// touched.
func (r *Registry) Resolve(integration models.Integration, simulate bool) (Adapter, error) {
	if !integration.ProviderType.IsValid() {
		return nil, apperrors.New(apperrors.CodeMisconfigured, fmt.Sprintf("unknown provider type %q", integration.ProviderType))
	}
	if integration.ProviderType.IsInternal() {
		return nil, apperrors.New(apperrors.CodeMisconfigured, "internal integrations are not adapter-backed")
	}
	if simulate && integration.ProviderType == enums.ProviderTypeZnet {
		return r.simulator, nil
	}
	adapter, ok := r.adapters[integration.ProviderType]
	if !ok {
		return nil, apperrors.New(apperrors.CodeMisconfigured, fmt.Sprintf("no adapter registered for %q", integration.ProviderType))
	}
	return adapter, nil
}
