package vendors

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/oyunkod/oyunkod-backend/pkg/db/models"
	"github.com/oyunkod/oyunkod-backend/pkg/enums"
	apperrors "github.com/oyunkod/oyunkod-backend/pkg/errors"
)

// PlaceOrderRequest is the uniform submission payload. Reference carries
// our order id and is echoed back by every vendor.
type PlaceOrderRequest struct {
	ProviderPackageID string
	Quantity          int
	UserIdentifier    string
	ExtraField        string
	Reference         string
}

// PlaceOrderResult is the normalized submission outcome.
type PlaceOrderResult struct {
	ExternalOrderID string
	Status          enums.NormalizedStatus
	RawStatus       string
	Message         string
	PinCode         string
}

// StatusResult is the normalized answer to a status lookup.
type StatusResult struct {
	Status    enums.NormalizedStatus
	RawStatus string
	Message   string
	PinCode   string
}

// Balance is a vendor account position.
type Balance struct {
	Amount   decimal.Decimal
	Debt     decimal.Decimal
	Currency string
}

// Product is one row of a vendor catalog listing.
type Product struct {
	ExternalID string
	Name       string
	Category   string
	Cost       decimal.Decimal
	Currency   string
}

// Adapter is the capability set every vendor protocol is folded into.
// Adapters are pure: they never persist or log; callers own both.
type Adapter interface {
	Kind() enums.ProviderType
	ListProducts(ctx context.Context, integration models.Integration) ([]Product, error)
	PlaceOrder(ctx context.Context, integration models.Integration, req PlaceOrderRequest) (*PlaceOrderResult, error)
	FetchStatus(ctx context.Context, integration models.Integration, reference string) (*StatusResult, error)
	FetchBalance(ctx context.Context, integration models.Integration) (*Balance, error)
}

// credential pulls a required string out of the integration's opaque blob.
func credential(integration models.Integration, key string) (string, error) {
	raw, ok := integration.Credentials[key]
	if !ok {
		return "", apperrors.New(apperrors.CodeCredential, fmt.Sprintf("credential %q is missing", key))
	}
	value, ok := raw.(string)
	if !ok || strings.TrimSpace(value) == "" {
		return "", apperrors.New(apperrors.CodeCredential, fmt.Sprintf("credential %q is empty", key))
	}
	return strings.TrimSpace(value), nil
}

func baseURL(integration models.Integration) (string, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(integration.BaseURL), "/")
	if trimmed == "" {
		return "", apperrors.New(apperrors.CodeCredential, "integration base url is missing")
	}
	return trimmed, nil
}
