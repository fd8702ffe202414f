package vendors

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/oyunkod/oyunkod-backend/pkg/db/models"
	"github.com/oyunkod/oyunkod-backend/pkg/enums"
	apperrors "github.com/oyunkod/oyunkod-backend/pkg/errors"
	"github.com/oyunkod/oyunkod-backend/pkg/types"
)

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func textResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{},
	}
}

func znetIntegration() models.Integration {
	return models.Integration{
		ProviderType: enums.ProviderTypeZnet,
		BaseURL:      "http://znet.test",
		Credentials:  types.JSONMap{"kod": "bayi-1", "sifre": "s3cret"},
		Enabled:      true,
	}
}

func TestZnetPlaceOrder(t *testing.T) {
	var capturedURL string
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		capturedURL = req.URL.String()
		return textResponse(http.StatusOK, "OK|Z-9981|siparis alindi"), nil
	})
	adapter := NewZnetAdapter(&http.Client{Transport: rt})

	result, err := adapter.PlaceOrder(context.Background(), znetIntegration(), PlaceOrderRequest{
		ProviderPackageID: "263",
		Quantity:          1,
		UserIdentifier:    "player-77",
		Reference:         "order-abc",
	})
	if err != nil {
		t.Fatalf("PlaceOrder error: %v", err)
	}
	if result.ExternalOrderID != "Z-9981" {
		t.Fatalf("unexpected external id %q", result.ExternalOrderID)
	}
	if result.Status != enums.NormalizedStatusSent {
		t.Fatalf("expected sent, got %s", result.Status)
	}

	for _, fragment := range []string{"islem=siparis", "kod=bayi-1", "sifre=s3cret", "oyun=263", "referans=order-abc"} {
		if !strings.Contains(capturedURL, fragment) {
			t.Fatalf("request URL missing %q: %s", fragment, capturedURL)
		}
	}
}

func TestZnetPlaceOrder_VendorReject(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return textResponse(http.StatusOK, "NO|bakiye yetersiz"), nil
	})
	adapter := NewZnetAdapter(&http.Client{Transport: rt})

	_, err := adapter.PlaceOrder(context.Background(), znetIntegration(), PlaceOrderRequest{
		ProviderPackageID: "263",
		Quantity:          1,
		UserIdentifier:    "player-77",
		Reference:         "order-abc",
	})
	if !apperrors.HasCode(err, apperrors.CodeVendorReject) {
		t.Fatalf("expected vendor reject, got %v", err)
	}
	if !strings.Contains(err.Error(), "bakiye yetersiz") {
		t.Fatalf("vendor message should survive: %v", err)
	}
}

func TestZnetPlaceOrder_NetworkErrorIsRetryable(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return textResponse(http.StatusBadGateway, "upstream down"), nil
	})
	adapter := NewZnetAdapter(&http.Client{Transport: rt})

	_, err := adapter.PlaceOrder(context.Background(), znetIntegration(), PlaceOrderRequest{
		ProviderPackageID: "263",
		Quantity:          1,
		UserIdentifier:    "player-77",
		Reference:         "order-abc",
	})
	if !apperrors.HasCode(err, apperrors.CodeVendorNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	if !apperrors.IsRetryable(err) {
		t.Fatal("network errors must be retryable")
	}
}

func TestZnetFetchStatus_Normalization(t *testing.T) {
	cases := []struct {
		raw  string
		want enums.NormalizedStatus
	}{
		{"bekliyor", enums.NormalizedStatusSent},
		{"islemde", enums.NormalizedStatusProcessing},
		{"tamamlandi", enums.NormalizedStatusCompleted},
		{"iptal", enums.NormalizedStatusCancelled},
		{"red", enums.NormalizedStatusRejected},
		{"hata", enums.NormalizedStatusFailed},
		{"garip-durum", enums.NormalizedStatusProcessing},
	}

	for _, tc := range cases {
		rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
			return textResponse(http.StatusOK, "OK|"+tc.raw+"|XYZ-PIN"), nil
		})
		adapter := NewZnetAdapter(&http.Client{Transport: rt})
		result, err := adapter.FetchStatus(context.Background(), znetIntegration(), "Z-1")
		if err != nil {
			t.Fatalf("FetchStatus(%s) error: %v", tc.raw, err)
		}
		if result.Status != tc.want {
			t.Fatalf("raw %q: expected %s, got %s", tc.raw, tc.want, result.Status)
		}
		if result.RawStatus != tc.raw {
			t.Fatalf("raw status must be preserved, got %q", result.RawStatus)
		}
		if tc.want == enums.NormalizedStatusCompleted && result.PinCode != "XYZ-PIN" {
			t.Fatalf("completed status should carry the pin, got %q", result.PinCode)
		}
	}
}

func TestZnetFetchBalance(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return textResponse(http.StatusOK, "OK|1250.75|80.00"), nil
	})
	adapter := NewZnetAdapter(&http.Client{Transport: rt})

	balance, err := adapter.FetchBalance(context.Background(), znetIntegration())
	if err != nil {
		t.Fatalf("FetchBalance error: %v", err)
	}
	if balance.Amount.String() != "1250.75" {
		t.Fatalf("unexpected balance %s", balance.Amount)
	}
	if balance.Debt.String() != "80" {
		t.Fatalf("unexpected debt %s", balance.Debt)
	}
}

func TestZnetMissingCredentials(t *testing.T) {
	adapter := NewZnetAdapter(&http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		t.Fatal("no request should be made without credentials")
		return nil, nil
	})})

	integration := znetIntegration()
	integration.Credentials = types.JSONMap{"kod": "bayi-1"}

	_, err := adapter.FetchBalance(context.Background(), integration)
	if !apperrors.HasCode(err, apperrors.CodeCredential) {
		t.Fatalf("expected credential error, got %v", err)
	}
}
