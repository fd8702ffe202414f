package vendors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oyunkod/oyunkod-backend/pkg/db/models"
	"github.com/oyunkod/oyunkod-backend/pkg/enums"
	apperrors "github.com/oyunkod/oyunkod-backend/pkg/errors"
)

const barakatBodyReadLimit int64 = 256 * 1024

// barakatAdapter speaks a bearer-token JSON protocol where order
// submission is a GET with path/query parameters.
type barakatAdapter struct {
	httpClient *http.Client
}

// NewBarakatAdapter builds the barakat adapter.
func NewBarakatAdapter(client *http.Client) Adapter {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &barakatAdapter{httpClient: client}
}

func (a *barakatAdapter) Kind() enums.ProviderType {
	return enums.ProviderTypeBarakat
}

func (a *barakatAdapter) PlaceOrder(ctx context.Context, integration models.Integration, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	params := url.Values{}
	params.Set("qty", strconv.Itoa(req.Quantity))
	params.Set("playerId", req.UserIdentifier)
	params.Set("order_uuid", req.Reference)
	if req.ExtraField != "" {
		params.Set("playerName", req.ExtraField)
	}
	path := fmt.Sprintf("/client/api/newOrder/%s/params?%s", url.PathEscape(req.ProviderPackageID), params.Encode())

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			OrderID json.Number `json:"order_id"`
			Status  string      `json:"status"`
		} `json:"data"`
		Message string `json:"message"`
	}
	if err := a.do(ctx, integration, path, &resp); err != nil {
		return nil, err
	}
	if !strings.EqualFold(resp.Status, "OK") {
		return nil, apperrors.New(apperrors.CodeVendorReject, fallbackMessage(resp.Message, "vendor rejected the order"))
	}
	externalID := resp.Data.OrderID.String()
	if externalID == "" {
		return nil, apperrors.New(apperrors.CodeVendorReject, "vendor returned no order id")
	}
	raw := fallbackMessage(resp.Data.Status, "wait")
	return &PlaceOrderResult{
		ExternalOrderID: externalID,
		Status:          barakatNormalize(raw),
		RawStatus:       raw,
		Message:         resp.Message,
	}, nil
}

func (a *barakatAdapter) FetchStatus(ctx context.Context, integration models.Integration, reference string) (*StatusResult, error) {
	path := "/client/api/check?orders=" + url.QueryEscape("["+reference+"]")

	var resp struct {
		Status string `json:"status"`
		Data   []struct {
			Status      string `json:"status"`
			ReplyAPI    string `json:"replay_api"`
			Description string `json:"desc"`
		} `json:"data"`
		Message string `json:"message"`
	}
	if err := a.do(ctx, integration, path, &resp); err != nil {
		return nil, err
	}
	if !strings.EqualFold(resp.Status, "OK") || len(resp.Data) == 0 {
		return nil, apperrors.New(apperrors.CodeVendorReject, fallbackMessage(resp.Message, "vendor returned no status"))
	}
	entry := resp.Data[0]
	result := &StatusResult{
		Status:    barakatNormalize(entry.Status),
		RawStatus: entry.Status,
		Message:   entry.Description,
	}
	if result.Status == enums.NormalizedStatusCompleted {
		result.PinCode = strings.TrimSpace(entry.ReplyAPI)
	}
	return result, nil
}

func (a *barakatAdapter) FetchBalance(ctx context.Context, integration models.Integration) (*Balance, error) {
	var resp struct {
		Balance string `json:"balance"`
		Debt    string `json:"debt"`
	}
	if err := a.do(ctx, integration, "/client/api/profile", &resp); err != nil {
		return nil, err
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(resp.Balance))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeVendorReject, err, "parse vendor balance")
	}
	balance := &Balance{Amount: amount, Currency: "USD"}
	if resp.Debt != "" {
		if debt, err := decimal.NewFromString(strings.TrimSpace(resp.Debt)); err == nil {
			balance.Debt = debt
		}
	}
	return balance, nil
}

func (a *barakatAdapter) ListProducts(ctx context.Context, integration models.Integration) ([]Product, error) {
	var resp []struct {
		ID           json.Number `json:"id"`
		Name         string      `json:"name"`
		CategoryName string      `json:"category_name"`
		Price        string      `json:"price"`
	}
	if err := a.do(ctx, integration, "/client/api/products", &resp); err != nil {
		return nil, err
	}
	products := make([]Product, 0, len(resp))
	for _, p := range resp {
		cost, err := decimal.NewFromString(strings.TrimSpace(p.Price))
		if err != nil {
			continue
		}
		products = append(products, Product{
			ExternalID: p.ID.String(),
			Name:       p.Name,
			Category:   p.CategoryName,
			Cost:       cost,
			Currency:   "USD",
		})
	}
	return products, nil
}

func (a *barakatAdapter) do(ctx context.Context, integration models.Integration, path string, out any) error {
	base, err := baseURL(integration)
	if err != nil {
		return err
	}
	token, err := credential(integration, "api_token")
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, base+path, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeVendorNetwork, err, "build vendor request")
	}
	httpReq.Header.Set("api-token", token)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeVendorNetwork, err, "execute vendor request")
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, barakatBodyReadLimit))
	if err != nil {
		return apperrors.Wrap(apperrors.CodeVendorNetwork, err, "read vendor response")
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return apperrors.New(apperrors.CodeCredential, "vendor rejected the api token")
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

func barakatNormalize(raw string) enums.NormalizedStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "wait", "accept":
		return enums.NormalizedStatusSent
	case "processing":
		return enums.NormalizedStatusProcessing
	case "ok", "completed":
		return enums.NormalizedStatusCompleted
	case "reject", "rejected":
		return enums.NormalizedStatusRejected
	case "cancel", "cancelled":
		return enums.NormalizedStatusCancelled
	case "error", "failed":
		return enums.NormalizedStatusFailed
	default:
		return enums.NormalizedStatusProcessing
	}
}
