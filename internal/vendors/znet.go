package vendors

import (
	"context"
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

const znetBodyReadLimit int64 = 64 * 1024

// znetAdapter speaks the query-string epin protocol: every operation is a
// GET with kod/sifre credentials and an islem verb, answered with a
// pipe-delimited line ("OK|..." or "NO|<message>").
type znetAdapter struct {
	httpClient *http.Client
}

// NewZnetAdapter builds the znet adapter.
func NewZnetAdapter(client *http.Client) Adapter {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &znetAdapter{httpClient: client}
}

func (a *znetAdapter) Kind() enums.ProviderType {
	return enums.ProviderTypeZnet
}

func (a *znetAdapter) PlaceOrder(ctx context.Context, integration models.Integration, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	params := url.Values{}
	params.Set("islem", "siparis")
	params.Set("oyun", req.ProviderPackageID)
	params.Set("adet", strconv.Itoa(req.Quantity))
	params.Set("kullanici", req.UserIdentifier)
	if req.ExtraField != "" {
		params.Set("ekbilgi", req.ExtraField)
	}
	params.Set("referans", req.Reference)

	fields, err := a.call(ctx, integration, params)
	if err != nil {
		return nil, err
	}
	if fields[0] != "OK" {
		return nil, apperrors.New(apperrors.CodeVendorReject, znetMessage(fields[1:]))
	}
	if len(fields) < 2 || fields[1] == "" {
		return nil, apperrors.New(apperrors.CodeVendorReject, "vendor returned no order reference")
	}
	return &PlaceOrderResult{
		ExternalOrderID: fields[1],
		Status:          enums.NormalizedStatusSent,
		RawStatus:       "siparis_alindi",
		Message:         znetMessage(fields[2:]),
	}, nil
}

func (a *znetAdapter) FetchStatus(ctx context.Context, integration models.Integration, reference string) (*StatusResult, error) {
	params := url.Values{}
	params.Set("islem", "durum")
	params.Set("referans", reference)

	fields, err := a.call(ctx, integration, params)
	if err != nil {
		return nil, err
	}
	if fields[0] != "OK" {
		return nil, apperrors.New(apperrors.CodeVendorReject, znetMessage(fields[1:]))
	}
	raw := ""
	if len(fields) > 1 {
		raw = strings.ToLower(fields[1])
	}
	result := &StatusResult{
		Status:    znetNormalize(raw),
		RawStatus: raw,
		Message:   znetMessage(fields[2:]),
	}
	if result.Status == enums.NormalizedStatusCompleted && len(fields) > 2 {
		result.PinCode = fields[2]
	}
	return result, nil
}

func (a *znetAdapter) FetchBalance(ctx context.Context, integration models.Integration) (*Balance, error) {
	params := url.Values{}
	params.Set("islem", "bakiye")

	fields, err := a.call(ctx, integration, params)
	if err != nil {
		return nil, err
	}
	if fields[0] != "OK" || len(fields) < 2 {
		return nil, apperrors.New(apperrors.CodeVendorReject, znetMessage(fields[1:]))
	}
	amount, err := decimal.NewFromString(fields[1])
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeVendorReject, err, "parse vendor balance")
	}
	balance := &Balance{Amount: amount, Currency: "TRY"}
	if len(fields) > 2 && fields[2] != "" {
		if debt, err := decimal.NewFromString(fields[2]); err == nil {
			balance.Debt = debt
		}
	}
	return balance, nil
}

func (a *znetAdapter) ListProducts(ctx context.Context, integration models.Integration) ([]Product, error) {
	params := url.Values{}
	params.Set("islem", "liste")

	body, err := a.callRaw(ctx, integration, params)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(strings.TrimSpace(body), "\n")
	if len(lines) == 0 || strings.HasPrefix(lines[0], "NO") {
		return nil, apperrors.New(apperrors.CodeVendorReject, strings.TrimSpace(body))
	}
	// Each line: id|name|price
	products := make([]Product, 0, len(lines))
	for _, line := range lines {
		fields := strings.Split(strings.TrimSpace(line), "|")
		if len(fields) < 3 || fields[0] == "OK" {
			continue
		}
		cost, err := decimal.NewFromString(fields[2])
		if err != nil {
			continue
		}
		products = append(products, Product{
			ExternalID: fields[0],
			Name:       fields[1],
			Cost:       cost,
			Currency:   "TRY",
		})
	}
	return products, nil
}

// call performs one authenticated GET and splits the single-line answer.
func (a *znetAdapter) call(ctx context.Context, integration models.Integration, params url.Values) ([]string, error) {
	body, err := a.callRaw(ctx, integration, params)
	if err != nil {
		return nil, err
	}
	line := strings.TrimSpace(body)
	if line == "" {
		return nil, apperrors.New(apperrors.CodeVendorReject, "vendor returned an empty response")
	}
	return strings.Split(line, "|"), nil
}

func (a *znetAdapter) callRaw(ctx context.Context, integration models.Integration, params url.Values) (string, error) {
	base, err := baseURL(integration)
	if err != nil {
		return "", err
	}
	kod, err := credential(integration, "kod")
	if err != nil {
		return "", err
	}
	sifre, err := credential(integration, "sifre")
	if err != nil {
		return "", err
	}
	params.Set("kod", kod)
	params.Set("sifre", sifre)

	endpoint := fmt.Sprintf("%s/api.php?%s", base, params.Encode())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeVendorNetwork, err, "build vendor request")
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeVendorNetwork, err, "execute vendor request")
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, znetBodyReadLimit))
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeVendorNetwork, err, "read vendor response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", apperrors.New(apperrors.CodeVendorNetwork, fmt.Sprintf("vendor status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}
	return string(raw), nil
}

// znetNormalize folds the vendor's Turkish status vocabulary into the
// closed normalized set.
func znetNormalize(raw string) enums.NormalizedStatus {
	switch raw {
	case "bekliyor":
		return enums.NormalizedStatusSent
	case "islemde", "hazirlaniyor":
		return enums.NormalizedStatusProcessing
	case "tamamlandi", "teslim":
		return enums.NormalizedStatusCompleted
	case "iptal":
		return enums.NormalizedStatusCancelled
	case "red":
		return enums.NormalizedStatusRejected
	case "hata":
		return enums.NormalizedStatusFailed
	default:
		return enums.NormalizedStatusProcessing
	}
}

func znetMessage(fields []string) string {
	if len(fields) == 0 {
		return ""
	}
	return strings.TrimSpace(strings.Join(fields, " "))
}
