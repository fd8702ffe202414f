package vendors

import (
	"context"
	"testing"

	"github.com/oyunkod/oyunkod-backend/pkg/config"
	"github.com/oyunkod/oyunkod-backend/pkg/db/models"
	"github.com/oyunkod/oyunkod-backend/pkg/enums"
	apperrors "github.com/oyunkod/oyunkod-backend/pkg/errors"
)

func TestRegistryResolve(t *testing.T) {
	registry := NewRegistry(config.VendorsConfig{})

	adapter, err := registry.Resolve(models.Integration{ProviderType: enums.ProviderTypeZnet}, false)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if adapter.Kind() != enums.ProviderTypeZnet {
		t.Fatalf("unexpected adapter kind %s", adapter.Kind())
	}
}

func TestRegistryResolve_InternalIsNotAdapterBacked(t *testing.T) {
	registry := NewRegistry(config.VendorsConfig{})

	_, err := registry.Resolve(models.Integration{ProviderType: enums.ProviderTypeInternal}, false)
	if !apperrors.HasCode(err, apperrors.CodeMisconfigured) {
		t.Fatalf("expected misconfigured error, got %v", err)
	}
}

func TestRegistryResolve_UnknownProvider(t *testing.T) {
	registry := NewRegistry(config.VendorsConfig{})

	_, err := registry.Resolve(models.Integration{ProviderType: enums.ProviderType("mystery")}, false)
	if !apperrors.HasCode(err, apperrors.CodeMisconfigured) {
		t.Fatalf("expected misconfigured error, got %v", err)
	}
}

func TestRegistryResolve_SimulationSwapsZnet(t *testing.T) {
	registry := NewRegistry(config.VendorsConfig{})
	integration := models.Integration{ProviderType: enums.ProviderTypeZnet}

	adapter, err := registry.Resolve(integration, true)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}

	// The simulator never performs network I/O; a canned sent outcome
	// proves the real adapter was not chosen.
	result, err := adapter.PlaceOrder(context.Background(), integration, PlaceOrderRequest{Reference: "r1"})
	if err != nil {
		t.Fatalf("simulated PlaceOrder error: %v", err)
	}
	if result.ExternalOrderID != "SIM-r1" {
		t.Fatalf("expected simulated reference, got %q", result.ExternalOrderID)
	}

	status, err := adapter.FetchStatus(context.Background(), integration, "r1")
	if err != nil {
		t.Fatalf("simulated FetchStatus error: %v", err)
	}
	if status.Status != enums.NormalizedStatusProcessing {
		t.Fatalf("first poll should be processing, got %s", status.Status)
	}
	status, err = adapter.FetchStatus(context.Background(), integration, "r1")
	if err != nil {
		t.Fatalf("simulated FetchStatus error: %v", err)
	}
	if status.Status != enums.NormalizedStatusCompleted {
		t.Fatalf("second poll should complete, got %s", status.Status)
	}
}
