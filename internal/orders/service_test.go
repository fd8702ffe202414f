package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/oyunkod/oyunkod-backend/internal/wallet"
	"github.com/oyunkod/oyunkod-backend/pkg/db/models"
	"github.com/oyunkod/oyunkod-backend/pkg/enums"
	apperrors "github.com/oyunkod/oyunkod-backend/pkg/errors"
	"github.com/oyunkod/oyunkod-backend/pkg/logger"
	"github.com/oyunkod/oyunkod-backend/pkg/pagination"
)

type fakeRepository struct {
	create           func(ctx context.Context, order *models.Order) error
	findByID         func(ctx context.Context, tenantID, orderID uuid.UUID) (*models.Order, error)
	findPackage      func(ctx context.Context, tenantID, packageID uuid.UUID) (*models.Package, error)
	lockForDispatch  func(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	findParentOf     func(ctx context.Context, child *models.Order) (*models.Order, error)
	update           func(ctx context.Context, order *models.Order) error
	nextOrderNo      func(ctx context.Context, tenantID uuid.UUID) (int64, error)
	listByTenant     func(ctx context.Context, tenantID uuid.UUID, filter ListFilter) ([]models.Order, error)
	insertLog        func(ctx context.Context, entry *models.OrderDispatchLog) error
	listDispatchLogs func(ctx context.Context, tenantID, orderID uuid.UUID, limit int) ([]models.OrderDispatchLog, error)
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepository) Create(ctx context.Context, order *models.Order) error {
	if f.create != nil {
		return f.create(ctx, order)
	}
	return nil
}

func (f *fakeRepository) FindByID(ctx context.Context, tenantID, orderID uuid.UUID) (*models.Order, error) {
	if f.findByID != nil {
		return f.findByID(ctx, tenantID, orderID)
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) FindPackage(ctx context.Context, tenantID, packageID uuid.UUID) (*models.Package, error) {
	if f.findPackage != nil {
		return f.findPackage(ctx, tenantID, packageID)
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) FindTenant(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error) {
	return &models.Tenant{ID: tenantID, DisplayName: "Tenant"}, nil
}

func (f *fakeRepository) LockForDispatch(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if f.lockForDispatch != nil {
		return f.lockForDispatch(ctx, orderID)
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) FindParentOf(ctx context.Context, child *models.Order) (*models.Order, error) {
	if f.findParentOf != nil {
		return f.findParentOf(ctx, child)
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) Update(ctx context.Context, order *models.Order) error {
	if f.update != nil {
		return f.update(ctx, order)
	}
	return nil
}

func (f *fakeRepository) NextOrderNo(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	if f.nextOrderNo != nil {
		return f.nextOrderNo(ctx, tenantID)
	}
	return 1, nil
}

func (f *fakeRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID, filter ListFilter) ([]models.Order, error) {
	if f.listByTenant != nil {
		return f.listByTenant(ctx, tenantID, filter)
	}
	return nil, nil
}

func (f *fakeRepository) ListPollable(ctx context.Context, oldest, newest time.Time, limit int) ([]models.Order, error) {
	return nil, nil
}

func (f *fakeRepository) ListExpired(ctx context.Context, before time.Time, limit int) ([]models.Order, error) {
	return nil, nil
}

func (f *fakeRepository) InsertDispatchLog(ctx context.Context, entry *models.OrderDispatchLog) error {
	if f.insertLog != nil {
		return f.insertLog(ctx, entry)
	}
	return nil
}

func (f *fakeRepository) ListDispatchLogs(ctx context.Context, tenantID, orderID uuid.UUID, limit int) ([]models.OrderDispatchLog, error) {
	if f.listDispatchLogs != nil {
		return f.listDispatchLogs(ctx, tenantID, orderID, limit)
	}
	return nil, nil
}

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type fakeWallet struct {
	record func(ctx context.Context, tx *gorm.DB, input wallet.RecordInput) (*models.WalletTransaction, error)
}

func (f *fakeWallet) Record(ctx context.Context, tx *gorm.DB, input wallet.RecordInput) (*models.WalletTransaction, error) {
	if f.record != nil {
		return f.record(ctx, tx, input)
	}
	return &models.WalletTransaction{}, nil
}

func (f *fakeWallet) Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (f *fakeWallet) History(ctx context.Context, userID uuid.UUID, limit int) ([]models.WalletTransaction, error) {
	return nil, nil
}

type fakeEnqueuer struct {
	enqueued []uuid.UUID
	err      error
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, tx *gorm.DB, tenantID, orderID uuid.UUID, runAfter time.Time) error {
	if f.err != nil {
		return f.err
	}
	f.enqueued = append(f.enqueued, orderID)
	return nil
}

type fakePropagator struct {
	calls []uuid.UUID
}

func (f *fakePropagator) PropagateFrom(ctx context.Context, tx *gorm.DB, leaf *models.Order) error {
	f.calls = append(f.calls, leaf.ID)
	return nil
}

func newOrderService(t *testing.T, repo Repository, walletSvc wallet.Service, tasks DispatchEnqueuer) Service {
	t.Helper()
	svc, err := NewService(repo, fakeTxRunner{}, walletSvc, tasks, logger.New(logger.Options{ServiceName: "test"}))
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	return svc
}

func TestCreate_ChargesAndEnqueues(t *testing.T) {
	tenantID := uuid.New()
	userID := uuid.New()
	packageID := uuid.New()
	productID := uuid.New()

	var created *models.Order
	repo := &fakeRepository{
		findPackage: func(ctx context.Context, tid, pid uuid.UUID) (*models.Package, error) {
			return &models.Package{
				ID:        packageID,
				TenantID:  tenantID,
				ProductID: productID,
				SellPrice: decimal.RequireFromString("12.50"),
				Currency:  enums.CurrencyTRY,
				Active:    true,
			}, nil
		},
		nextOrderNo: func(ctx context.Context, tid uuid.UUID) (int64, error) { return 42, nil },
		create: func(ctx context.Context, order *models.Order) error {
			created = order
			return nil
		},
	}
	var charged *wallet.RecordInput
	walletSvc := &fakeWallet{
		record: func(ctx context.Context, tx *gorm.DB, input wallet.RecordInput) (*models.WalletTransaction, error) {
			charged = &input
			return &models.WalletTransaction{}, nil
		},
	}
	tasks := &fakeEnqueuer{}
	svc := newOrderService(t, repo, walletSvc, tasks)

	order, err := svc.Create(context.Background(), CreateInput{
		TenantID:       tenantID,
		UserID:         userID,
		PackageID:      packageID,
		Quantity:       2,
		UserIdentifier: "player-1",
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if created == nil || order.OrderNo != 42 {
		t.Fatalf("order should be persisted with the next number, got %+v", order)
	}
	if order.Status != enums.OrderStatusPending || order.ExternalStatus != enums.ExternalStatusNotSent {
		t.Fatalf("new orders start pending/not_sent, got %s/%s", order.Status, order.ExternalStatus)
	}
	if !order.SellPriceAmount.Equal(decimal.RequireFromString("25.00")) {
		t.Fatalf("sell price should multiply by quantity, got %s", order.SellPriceAmount)
	}
	if charged == nil || charged.Cause != enums.WalletTxCauseOrderApproved || !charged.Amount.Equal(order.SellPriceAmount) {
		t.Fatalf("buyer should be charged upfront, got %+v", charged)
	}
	if len(tasks.enqueued) != 1 || tasks.enqueued[0] != order.ID {
		t.Fatalf("dispatch task should be queued for the order, got %v", tasks.enqueued)
	}
}

func TestCreate_InactivePackageRejected(t *testing.T) {
	repo := &fakeRepository{
		findPackage: func(ctx context.Context, tid, pid uuid.UUID) (*models.Package, error) {
			return &models.Package{Active: false}, nil
		},
	}
	svc := newOrderService(t, repo, &fakeWallet{}, &fakeEnqueuer{})

	_, err := svc.Create(context.Background(), CreateInput{
		TenantID:       uuid.New(),
		UserID:         uuid.New(),
		PackageID:      uuid.New(),
		UserIdentifier: "player-1",
	})
	if !apperrors.HasCode(err, apperrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestList_PagesWithCursor(t *testing.T) {
	tenantID := uuid.New()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	rows := make([]models.Order, 3)
	for i := range rows {
		rows[i] = models.Order{
			ID:        uuid.New(),
			TenantID:  tenantID,
			CreatedAt: base.Add(-time.Duration(i) * time.Minute),
		}
	}

	var requestedLimit int
	repo := &fakeRepository{
		listByTenant: func(ctx context.Context, tid uuid.UUID, filter ListFilter) ([]models.Order, error) {
			requestedLimit = filter.Limit
			return rows, nil
		},
	}
	svc := newOrderService(t, repo, &fakeWallet{}, &fakeEnqueuer{})

	page, err := svc.List(context.Background(), tenantID, ListFilter{Limit: 2})
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if requestedLimit != 3 {
		t.Fatalf("repository should receive limit+1 to detect the next page, got %d", requestedLimit)
	}
	if len(page.Orders) != 2 {
		t.Fatalf("expected a full page of 2, got %d", len(page.Orders))
	}
	if page.NextCursor == "" {
		t.Fatal("overflow row should produce a next cursor")
	}

	cursor, err := pagination.ParseCursor(page.NextCursor)
	if err != nil {
		t.Fatalf("cursor should round-trip: %v", err)
	}
	if cursor.ID != page.Orders[1].ID {
		t.Fatalf("cursor should point at the last returned row, got %s", cursor.ID)
	}
}

func TestList_LastPageHasNoCursor(t *testing.T) {
	repo := &fakeRepository{
		listByTenant: func(ctx context.Context, tid uuid.UUID, filter ListFilter) ([]models.Order, error) {
			return []models.Order{{ID: uuid.New()}}, nil
		},
	}
	svc := newOrderService(t, repo, &fakeWallet{}, &fakeEnqueuer{})

	page, err := svc.List(context.Background(), uuid.New(), ListFilter{Limit: 2})
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(page.Orders) != 1 || page.NextCursor != "" {
		t.Fatalf("short page must not carry a cursor, got %d rows and %q", len(page.Orders), page.NextCursor)
	}
}

func TestSetStatus_ApproveLocksEconomics(t *testing.T) {
	tenantID := uuid.New()
	order := &models.Order{
		ID:             uuid.New(),
		TenantID:       tenantID,
		UserID:         uuid.New(),
		Status:         enums.OrderStatusPending,
		ExternalStatus: enums.ExternalStatusProcessing,
	}

	var saved *models.Order
	var logged *models.OrderDispatchLog
	repo := &fakeRepository{
		lockForDispatch: func(ctx context.Context, orderID uuid.UUID) (*models.Order, error) { return order, nil },
		update: func(ctx context.Context, o *models.Order) error {
			saved = o
			return nil
		},
		insertLog: func(ctx context.Context, entry *models.OrderDispatchLog) error {
			logged = entry
			return nil
		},
	}
	walletSvc := &fakeWallet{
		record: func(ctx context.Context, tx *gorm.DB, input wallet.RecordInput) (*models.WalletTransaction, error) {
			t.Fatal("approval must not move the wallet")
			return nil, nil
		},
	}
	svc := newOrderService(t, repo, walletSvc, &fakeEnqueuer{})
	propagator := &fakePropagator{}
	SetPropagator(svc, propagator)

	updated, err := svc.SetStatus(context.Background(), StatusChangeInput{
		TenantID: tenantID,
		OrderID:  order.ID,
		Status:   enums.OrderStatusApproved,
	})
	if err != nil {
		t.Fatalf("SetStatus error: %v", err)
	}
	if saved == nil || updated.Status != enums.OrderStatusApproved {
		t.Fatalf("order should be approved, got %+v", updated)
	}
	if updated.ApprovedAt == nil || !updated.FxLocked {
		t.Fatal("approval must stamp approved_at and lock fx")
	}
	if updated.ExternalStatus != enums.ExternalStatusCompleted {
		t.Fatalf("non-terminal external status must be coerced on approval, got %s", updated.ExternalStatus)
	}
	if logged == nil || logged.Action != enums.DispatchActionStatusChange {
		t.Fatalf("status change must leave a log row, got %+v", logged)
	}
	if len(propagator.calls) != 1 {
		t.Fatalf("terminal transition should propagate, got %d calls", len(propagator.calls))
	}
}

func TestSetStatus_RejectRefundsBuyer(t *testing.T) {
	tenantID := uuid.New()
	order := &models.Order{
		ID:                uuid.New(),
		TenantID:          tenantID,
		UserID:            uuid.New(),
		Status:            enums.OrderStatusPending,
		ExternalStatus:    enums.ExternalStatusNotSent,
		SellPriceAmount:   decimal.RequireFromString("30.00"),
		SellPriceCurrency: enums.CurrencyTRY,
	}

	repo := &fakeRepository{
		lockForDispatch: func(ctx context.Context, orderID uuid.UUID) (*models.Order, error) { return order, nil },
	}
	var refunded *wallet.RecordInput
	walletSvc := &fakeWallet{
		record: func(ctx context.Context, tx *gorm.DB, input wallet.RecordInput) (*models.WalletTransaction, error) {
			refunded = &input
			return &models.WalletTransaction{}, nil
		},
	}
	svc := newOrderService(t, repo, walletSvc, &fakeEnqueuer{})

	updated, err := svc.SetStatus(context.Background(), StatusChangeInput{
		TenantID: tenantID,
		OrderID:  order.ID,
		Status:   enums.OrderStatusRejected,
	})
	if err != nil {
		t.Fatalf("SetStatus error: %v", err)
	}
	if updated.Status != enums.OrderStatusRejected {
		t.Fatalf("expected rejected, got %s", updated.Status)
	}
	if refunded == nil || refunded.Cause != enums.WalletTxCauseOrderRejected {
		t.Fatalf("rejection must refund via the rejected cause, got %+v", refunded)
	}
	if !refunded.Amount.Equal(order.SellPriceAmount) {
		t.Fatalf("refund amount should match sell price, got %s", refunded.Amount)
	}
}

func TestSetStatus_AlreadyTerminalConflicts(t *testing.T) {
	tenantID := uuid.New()
	order := &models.Order{
		ID:       uuid.New(),
		TenantID: tenantID,
		Status:   enums.OrderStatusApproved,
	}
	repo := &fakeRepository{
		lockForDispatch: func(ctx context.Context, orderID uuid.UUID) (*models.Order, error) { return order, nil },
	}
	svc := newOrderService(t, repo, &fakeWallet{}, &fakeEnqueuer{})

	_, err := svc.SetStatus(context.Background(), StatusChangeInput{
		TenantID: tenantID,
		OrderID:  order.ID,
		Status:   enums.OrderStatusRejected,
	})
	if !apperrors.HasCode(err, apperrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestSetStatus_SameStatusIsNoop(t *testing.T) {
	tenantID := uuid.New()
	order := &models.Order{
		ID:       uuid.New(),
		TenantID: tenantID,
		Status:   enums.OrderStatusApproved,
	}
	var updateCalled bool
	repo := &fakeRepository{
		lockForDispatch: func(ctx context.Context, orderID uuid.UUID) (*models.Order, error) { return order, nil },
		update: func(ctx context.Context, o *models.Order) error {
			updateCalled = true
			return nil
		},
	}
	svc := newOrderService(t, repo, &fakeWallet{}, &fakeEnqueuer{})

	updated, err := svc.SetStatus(context.Background(), StatusChangeInput{
		TenantID: tenantID,
		OrderID:  order.ID,
		Status:   enums.OrderStatusApproved,
	})
	if err != nil {
		t.Fatalf("SetStatus error: %v", err)
	}
	if updateCalled {
		t.Fatal("repeat of the same status must not write")
	}
	if updated.Status != enums.OrderStatusApproved {
		t.Fatalf("unexpected status %s", updated.Status)
	}
}

func TestSetStatus_WrongTenantForbidden(t *testing.T) {
	order := &models.Order{
		ID:       uuid.New(),
		TenantID: uuid.New(),
		Status:   enums.OrderStatusPending,
	}
	repo := &fakeRepository{
		lockForDispatch: func(ctx context.Context, orderID uuid.UUID) (*models.Order, error) { return order, nil },
	}
	svc := newOrderService(t, repo, &fakeWallet{}, &fakeEnqueuer{})

	_, err := svc.SetStatus(context.Background(), StatusChangeInput{
		TenantID: uuid.New(),
		OrderID:  order.ID,
		Status:   enums.OrderStatusApproved,
	})
	if !apperrors.HasCode(err, apperrors.CodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}
