package vendors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oyunkod/oyunkod-backend/pkg/db/models"
	"github.com/oyunkod/oyunkod-backend/pkg/enums"
	apperrors "github.com/oyunkod/oyunkod-backend/pkg/errors"
)

const apstoreBodyReadLimit int64 = 256 * 1024

// apstoreAdapter speaks a JSON REST protocol authenticated with an
// X-Api-Key header.
type apstoreAdapter struct {
	httpClient *http.Client
}

// NewApstoreAdapter builds the apstore adapter.
func NewApstoreAdapter(client *http.Client) Adapter {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &apstoreAdapter{httpClient: client}
}

func (a *apstoreAdapter) Kind() enums.ProviderType {
	return enums.ProviderTypeApstore
}

func (a *apstoreAdapter) PlaceOrder(ctx context.Context, integration models.Integration, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	payload := map[string]any{
		"package_id":      req.ProviderPackageID,
		"quantity":        req.Quantity,
		"user_identifier": req.UserIdentifier,
		"reference":       req.Reference,
	}
	if req.ExtraField != "" {
		payload["extra_field"] = req.ExtraField
	}

	var resp struct {
		OrderID string `json:"order_id"`
		Status  string `json:"status"`
		Message string `json:"message"`
		Pin     string `json:"pin"`
	}
	if err := a.do(ctx, integration, http.MethodPost, "/api/v1/orders", payload, &resp); err != nil {
		return nil, err
	}
	if resp.OrderID == "" {
		return nil, apperrors.New(apperrors.CodeVendorReject, fallbackMessage(resp.Message, "vendor returned no order id"))
	}
	return &PlaceOrderResult{
		ExternalOrderID: resp.OrderID,
		Status:          apstoreNormalize(resp.Status),
		RawStatus:       resp.Status,
		Message:         resp.Message,
		PinCode:         resp.Pin,
	}, nil
}

func (a *apstoreAdapter) FetchStatus(ctx context.Context, integration models.Integration, reference string) (*StatusResult, error) {
	var resp struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Pin     string `json:"pin"`
	}
	path := "/api/v1/orders/" + url.PathEscape(reference)
	if err := a.do(ctx, integration, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &StatusResult{
		Status:    apstoreNormalize(resp.Status),
		RawStatus: resp.Status,
		Message:   resp.Message,
		PinCode:   resp.Pin,
	}, nil
}

func (a *apstoreAdapter) FetchBalance(ctx context.Context, integration models.Integration) (*Balance, error) {
	var resp struct {
		Balance  string `json:"balance"`
		Debt     string `json:"debt"`
		Currency string `json:"currency"`
	}
	if err := a.do(ctx, integration, http.MethodGet, "/api/v1/balance", nil, &resp); err != nil {
		return nil, err
	}
	amount, err := decimal.NewFromString(resp.Balance)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeVendorReject, err, "parse vendor balance")
	}
	balance := &Balance{Amount: amount, Currency: fallbackMessage(resp.Currency, "USD")}
	if resp.Debt != "" {
		if debt, err := decimal.NewFromString(resp.Debt); err == nil {
			balance.Debt = debt
		}
	}
	return balance, nil
}

func (a *apstoreAdapter) ListProducts(ctx context.Context, integration models.Integration) ([]Product, error) {
	var resp struct {
		Products []struct {
			ID       string `json:"id"`
			Name     string `json:"name"`
			Category string `json:"category"`
			Price    string `json:"price"`
			Currency string `json:"currency"`
		} `json:"products"`
	}
	if err := a.do(ctx, integration, http.MethodGet, "/api/v1/products", nil, &resp); err != nil {
		return nil, err
	}
	products := make([]Product, 0, len(resp.Products))
	for _, p := range resp.Products {
		cost, err := decimal.NewFromString(p.Price)
		if err != nil {
			continue
		}
		products = append(products, Product{
			ExternalID: p.ID,
			Name:       p.Name,
			Category:   p.Category,
			Cost:       cost,
			Currency:   fallbackMessage(p.Currency, "USD"),
		})
	}
	return products, nil
}

func (a *apstoreAdapter) do(ctx context.Context, integration models.Integration, method, path string, payload any, out any) error {
	base, err := baseURL(integration)
	if err != nil {
		return err
	}
	apiKey, err := credential(integration, "api_key")
	if err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeVendorNetwork, err, "marshal vendor request")
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, base+path, body)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeVendorNetwork, err, "build vendor request")
	}
	httpReq.Header.Set("X-Api-Key", apiKey)
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeVendorNetwork, err, "execute vendor request")
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, apstoreBodyReadLimit))
	if err != nil {
		return apperrors.Wrap(apperrors.CodeVendorNetwork, err, "read vendor response")
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return apperrors.New(apperrors.CodeCredential, "vendor rejected the api key")
	case resp.StatusCode >= 500:
		return apperrors.New(apperrors.CodeVendorNetwork, fmt.Sprintf("vendor status %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		return apperrors.New(apperrors.CodeVendorReject, fmt.Sprintf("vendor status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return apperrors.Wrap(apperrors.CodeVendorReject, err, "decode vendor response")
	}
	return nil
}

func apstoreNormalize(raw string) enums.NormalizedStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "accepted", "queued":
		return enums.NormalizedStatusSent
	case "pending", "processing", "in_progress":
		return enums.NormalizedStatusProcessing
	case "completed", "delivered":
		return enums.NormalizedStatusCompleted
	case "failed", "error":
		return enums.NormalizedStatusFailed
	case "rejected":
		return enums.NormalizedStatusRejected
	case "cancelled", "canceled":
		return enums.NormalizedStatusCancelled
	default:
		return enums.NormalizedStatusProcessing
	}
}

func fallbackMessage(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
