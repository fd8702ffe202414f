package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/oyunkod/oyunkod-backend/internal/flags"
	"github.com/oyunkod/oyunkod-backend/internal/orders"
	pkgauth "github.com/oyunkod/oyunkod-backend/pkg/auth"
	"github.com/oyunkod/oyunkod-backend/pkg/config"
	"github.com/oyunkod/oyunkod-backend/pkg/db/models"
	"github.com/oyunkod/oyunkod-backend/pkg/enums"
	"github.com/oyunkod/oyunkod-backend/pkg/logger"
)

type fakeOrders struct {
	listCalls int
	tenantID  uuid.UUID
}

func (f *fakeOrders) Create(ctx context.Context, input orders.CreateInput) (*models.Order, error) {
	return &models.Order{ID: uuid.New(), TenantID: input.TenantID}, nil
}

func (f *fakeOrders) Get(ctx context.Context, tenantID, orderID uuid.UUID) (*models.Order, error) {
	return &models.Order{ID: orderID, TenantID: tenantID}, nil
}

func (f *fakeOrders) List(ctx context.Context, tenantID uuid.UUID, filter orders.ListFilter) (orders.ListResult, error) {
	f.listCalls++
	f.tenantID = tenantID
	return orders.ListResult{Orders: []models.Order{}}, nil
}

func (f *fakeOrders) Logs(ctx context.Context, tenantID, orderID uuid.UUID, limit int) ([]models.OrderDispatchLog, error) {
	return nil, nil
}

func (f *fakeOrders) SetStatus(ctx context.Context, input orders.StatusChangeInput) (*models.Order, error) {
	return &models.Order{ID: input.OrderID, TenantID: input.TenantID, Status: input.Status}, nil
}

type fakeFlags struct {
	snapshot flags.Snapshot
}

func (f *fakeFlags) Snapshot(ctx context.Context) flags.Snapshot { return f.snapshot }

func (f *fakeFlags) Set(ctx context.Context, name string, enabled bool) error { return nil }

func (f *fakeFlags) Clear(ctx context.Context, name string) error { return nil }

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "router-test-secret",
		Issuer:            "oyunkod-test",
		ExpirationMinutes: 15,
	}
}

func mintToken(t *testing.T, cfg config.JWTConfig, role enums.ActorRole, tenantID uuid.UUID) string {
	t.Helper()
	token, err := pkgauth.MintAccessToken(cfg, time.Now().UTC(), pkgauth.AccessTokenPayload{
		UserID:   uuid.New(),
		TenantID: tenantID,
		Role:     role,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func testRouter(t *testing.T, ordersSvc orders.Service, flagsSvc flags.Service) http.Handler {
	t.Helper()
	cfg := &config.Config{}
	cfg.JWT = testJWTConfig()
	return NewRouter(Deps{
		Config: cfg,
		Logger: logger.New(logger.Options{ServiceName: "test"}),
		Orders: ordersSvc,
		Flags:  flagsSvc,
	})
}

func TestHealthLiveIsPublic(t *testing.T) {
	router := testRouter(t, &fakeOrders{}, &fakeFlags{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAdminRoutesRejectMissingToken(t *testing.T) {
	router := testRouter(t, &fakeOrders{}, &fakeFlags{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/v1/orders", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestOperatorCanListOrders(t *testing.T) {
	ordersSvc := &fakeOrders{}
	router := testRouter(t, ordersSvc, &fakeFlags{})

	tenantID := uuid.New()
	token := mintToken(t, testJWTConfig(), enums.ActorRoleOperator, tenantID)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ordersSvc.listCalls != 1 {
		t.Fatalf("expected one list call, got %d", ordersSvc.listCalls)
	}
	if ordersSvc.tenantID != tenantID {
		t.Fatalf("expected tenant scoping from token, got %s", ordersSvc.tenantID)
	}
}

func TestFlagsAreAdminOnly(t *testing.T) {
	router := testRouter(t, &fakeOrders{}, &fakeFlags{})

	token := mintToken(t, testJWTConfig(), enums.ActorRoleOperator, uuid.New())
	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/flags", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for operator, got %d", rec.Code)
	}

	adminToken := mintToken(t, testJWTConfig(), enums.ActorRoleAdmin, uuid.New())
	req = httptest.NewRequest(http.MethodGet, "/api/admin/v1/flags", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", rec.Code)
	}

	var envelope struct {
		Data map[string]bool `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if _, ok := envelope.Data["usd_cost_enforcement"]; !ok {
		t.Fatalf("expected flag snapshot in response, got %s", rec.Body.String())
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	router := testRouter(t, &fakeOrders{}, &fakeFlags{})

	token, err := pkgauth.MintAccessToken(testJWTConfig(), time.Now().Add(-2*time.Hour), pkgauth.AccessTokenPayload{
		UserID:   uuid.New(),
		TenantID: uuid.New(),
		Role:     enums.ActorRoleAdmin,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired token, got %d", rec.Code)
	}
}
