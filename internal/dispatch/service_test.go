package dispatch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/oyunkod/oyunkod-backend/internal/codes"
	"github.com/oyunkod/oyunkod-backend/internal/flags"
	"github.com/oyunkod/oyunkod-backend/internal/orders"
	"github.com/oyunkod/oyunkod-backend/internal/routing"
	"github.com/oyunkod/oyunkod-backend/internal/vendors"
	"github.com/oyunkod/oyunkod-backend/internal/wallet"
	"github.com/oyunkod/oyunkod-backend/pkg/config"
	"github.com/oyunkod/oyunkod-backend/pkg/db/models"
	"github.com/oyunkod/oyunkod-backend/pkg/enums"
	apperrors "github.com/oyunkod/oyunkod-backend/pkg/errors"
	"github.com/oyunkod/oyunkod-backend/pkg/logger"
)

type fakeRepository struct {
	order   *models.Order
	pkgs    map[uuid.UUID]*models.Package
	tenants map[uuid.UUID]*models.Tenant
	created []*models.Order
	updates int
	logs    []models.OrderDispatchLog
	nextNo  int64
	lockErr error
}

func (f *fakeRepository) WithTx(tx *gorm.DB) orders.Repository { return f }

func (f *fakeRepository) Create(ctx context.Context, order *models.Order) error {
	f.created = append(f.created, order)
	return nil
}

func (f *fakeRepository) FindByID(ctx context.Context, tenantID, orderID uuid.UUID) (*models.Order, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) FindPackage(ctx context.Context, tenantID, packageID uuid.UUID) (*models.Package, error) {
	pkg, ok := f.pkgs[packageID]
	if !ok || pkg.TenantID != tenantID {
		return nil, gorm.ErrRecordNotFound
	}
	return pkg, nil
}

func (f *fakeRepository) FindTenant(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error) {
	tenant, ok := f.tenants[tenantID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return tenant, nil
}

func (f *fakeRepository) LockForDispatch(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if f.lockErr != nil {
		return nil, f.lockErr
	}
	if f.order == nil || f.order.ID != orderID {
		return nil, gorm.ErrRecordNotFound
	}
	return f.order, nil
}

func (f *fakeRepository) FindParentOf(ctx context.Context, child *models.Order) (*models.Order, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) Update(ctx context.Context, order *models.Order) error {
	f.updates++
	return nil
}

func (f *fakeRepository) NextOrderNo(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	f.nextNo++
	return f.nextNo, nil
}

func (f *fakeRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID, filter orders.ListFilter) ([]models.Order, error) {
	return nil, nil
}

func (f *fakeRepository) ListPollable(ctx context.Context, oldest, newest time.Time, limit int) ([]models.Order, error) {
	return nil, nil
}

func (f *fakeRepository) ListExpired(ctx context.Context, before time.Time, limit int) ([]models.Order, error) {
	return nil, nil
}

func (f *fakeRepository) InsertDispatchLog(ctx context.Context, entry *models.OrderDispatchLog) error {
	f.logs = append(f.logs, *entry)
	return nil
}

func (f *fakeRepository) ListDispatchLogs(ctx context.Context, tenantID, orderID uuid.UUID, limit int) ([]models.OrderDispatchLog, error) {
	return f.logs, nil
}

type fakeRouting struct {
	resolve      func() (routing.Decision, error)
	fallback     func() (routing.Decision, error)
	fallbackHits int
}

func (f *fakeRouting) Resolve(ctx context.Context, tx *gorm.DB, order *models.Order) (routing.Decision, error) {
	return f.resolve()
}

func (f *fakeRouting) ResolveFallback(ctx context.Context, tx *gorm.DB, order *models.Order) (routing.Decision, error) {
	f.fallbackHits++
	if f.fallback == nil {
		return routing.Decision{}, apperrors.New(apperrors.CodeMisconfigured, "no fallback provider configured")
	}
	return f.fallback()
}

type fakeCodes struct {
	item      *models.CodeItem
	allocErr  error
	committed []uuid.UUID
}

func (f *fakeCodes) Allocate(ctx context.Context, tx *gorm.DB, groupID, orderID uuid.UUID) (*models.CodeItem, error) {
	if f.allocErr != nil {
		return nil, f.allocErr
	}
	return f.item, nil
}

func (f *fakeCodes) Commit(ctx context.Context, tx *gorm.DB, itemID uuid.UUID) error {
	f.committed = append(f.committed, itemID)
	return nil
}

func (f *fakeCodes) Release(ctx context.Context, tx *gorm.DB, itemID uuid.UUID) error {
	return nil
}

func (f *fakeCodes) ItemForOrder(ctx context.Context, orderID uuid.UUID) (*models.CodeItem, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeCodes) Available(ctx context.Context, groupID uuid.UUID) (int64, error) {
	return 0, nil
}

func (f *fakeCodes) Ingest(ctx context.Context, tx *gorm.DB, input codes.IngestInput) (codes.IngestResult, error) {
	return codes.IngestResult{}, nil
}

type fakeWallet struct {
	records []wallet.RecordInput
}

func (f *fakeWallet) Record(ctx context.Context, tx *gorm.DB, input wallet.RecordInput) (*models.WalletTransaction, error) {
	f.records = append(f.records, input)
	return &models.WalletTransaction{ID: uuid.New()}, nil
}

func (f *fakeWallet) Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (f *fakeWallet) History(ctx context.Context, userID uuid.UUID, limit int) ([]models.WalletTransaction, error) {
	return nil, nil
}

type fakeChain struct {
	leaves []*models.Order
}

func (f *fakeChain) PropagateFrom(ctx context.Context, tx *gorm.DB, leaf *models.Order) error {
	f.leaves = append(f.leaves, leaf)
	return nil
}

type fakeFlags struct {
	snapshot flags.Snapshot
}

func (f *fakeFlags) Snapshot(ctx context.Context) flags.Snapshot { return f.snapshot }

func (f *fakeFlags) Set(ctx context.Context, name string, enabled bool) error { return nil }

func (f *fakeFlags) Clear(ctx context.Context, name string) error { return nil }

type fakeFX struct {
	rate  decimal.Decimal
	calls int
}

func (f *fakeFX) USDTRY(ctx context.Context) (decimal.Decimal, error) {
	f.calls++
	return f.rate, nil
}

func (f *fakeFX) Store(ctx context.Context, rate decimal.Decimal, fetchedAt time.Time) error {
	return nil
}

type enqueued struct {
	tenantID uuid.UUID
	orderID  uuid.UUID
}

type fakeEnqueuer struct {
	entries []enqueued
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, tx *gorm.DB, tenantID, orderID uuid.UUID, runAfter time.Time) error {
	f.entries = append(f.entries, enqueued{tenantID: tenantID, orderID: orderID})
	return nil
}

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type fakeAdapter struct {
	place func(req vendors.PlaceOrderRequest) (*vendors.PlaceOrderResult, error)
}

func (f *fakeAdapter) Kind() enums.ProviderType { return enums.ProviderTypeApstore }

func (f *fakeAdapter) ListProducts(ctx context.Context, integration models.Integration) ([]vendors.Product, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeAdapter) PlaceOrder(ctx context.Context, integration models.Integration, req vendors.PlaceOrderRequest) (*vendors.PlaceOrderResult, error) {
	return f.place(req)
}

func (f *fakeAdapter) FetchStatus(ctx context.Context, integration models.Integration, reference string) (*vendors.StatusResult, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeAdapter) FetchBalance(ctx context.Context, integration models.Integration) (*vendors.Balance, error) {
	return nil, errors.New("not implemented")
}

type fakeResolver struct {
	adapter vendors.Adapter
	err     error
}

func (f *fakeResolver) Resolve(integration models.Integration, simulate bool) (vendors.Adapter, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.adapter, nil
}

type fixture struct {
	repo     *fakeRepository
	routing  *fakeRouting
	codes    *fakeCodes
	wallet   *fakeWallet
	chain    *fakeChain
	flags    *fakeFlags
	resolver *fakeResolver
	fx       *fakeFX
	tasks    *fakeEnqueuer
	svc      Service
}

func newFixture(t *testing.T, order *models.Order) *fixture {
	t.Helper()
	f := &fixture{
		repo: &fakeRepository{
			order:   order,
			pkgs:    map[uuid.UUID]*models.Package{},
			tenants: map[uuid.UUID]*models.Tenant{},
		},
		routing:  &fakeRouting{},
		codes:    &fakeCodes{},
		wallet:   &fakeWallet{},
		chain:    &fakeChain{},
		flags:    &fakeFlags{},
		resolver: &fakeResolver{},
		fx:       &fakeFX{rate: decimal.NewFromInt(40)},
		tasks:    &fakeEnqueuer{},
	}
	svc, err := NewService(Deps{
		Orders:   f.repo,
		Routing:  f.routing,
		Codes:    f.codes,
		Wallet:   f.wallet,
		Chain:    f.chain,
		Flags:    f.flags,
		Registry: f.resolver,
		FX:       f.fx,
		Tasks:    f.tasks,
		Tx:       fakeTxRunner{},
		Logger:   logger.New(logger.Options{ServiceName: "test"}),
		Config:   config.DispatchConfig{VendorTimeout: time.Second},
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	f.svc = svc
	return f
}

func pendingOrder(tenantID uuid.UUID) *models.Order {
	return &models.Order{
		ID:                uuid.New(),
		OrderNo:           7,
		TenantID:          tenantID,
		UserID:            uuid.New(),
		PackageID:         uuid.New(),
		ProductID:         uuid.New(),
		Quantity:          1,
		UserIdentifier:    "player-1",
		SellPriceAmount:   decimal.NewFromInt(50),
		SellPriceCurrency: enums.CurrencyTRY,
		Status:            enums.OrderStatusPending,
		ExternalStatus:    enums.ExternalStatusNotSent,
		Mode:              enums.DispatchModeManual,
	}
}

func findLog(logs []models.OrderDispatchLog, action enums.DispatchAction) *models.OrderDispatchLog {
	for i := range logs {
		if logs[i].Action == action {
			return &logs[i]
		}
	}
	return nil
}

func TestDispatch_ManualBranchParksOrder(t *testing.T) {
	tenantID := uuid.New()
	order := pendingOrder(tenantID)
	f := newFixture(t, order)
	f.routing.resolve = func() (routing.Decision, error) {
		return routing.Decision{Kind: routing.DecisionManual}, nil
	}

	outcome, err := f.svc.Dispatch(context.Background(), tenantID, order.ID)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !outcome.Dispatched || outcome.Reason != "manual" {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if order.Mode != enums.DispatchModeManual || order.ProviderID != nil {
		t.Fatalf("order not parked for manual handling: %+v", order)
	}
	if entry := findLog(f.repo.logs, enums.DispatchActionManualSet); entry == nil || entry.Result != enums.DispatchResultOK {
		t.Fatalf("expected manual-set log, got %+v", f.repo.logs)
	}
	if len(f.wallet.records) != 0 {
		t.Fatalf("manual routing must not move money: %+v", f.wallet.records)
	}
}

func TestDispatch_CodesBranchCompletesOrder(t *testing.T) {
	tenantID := uuid.New()
	order := pendingOrder(tenantID)
	f := newFixture(t, order)
	groupID := uuid.New()
	serial := "SER-9"
	f.codes.item = &models.CodeItem{ID: uuid.New(), Pin: "AAA-111", Serial: &serial}
	f.routing.resolve = func() (routing.Decision, error) {
		return routing.Decision{Kind: routing.DecisionCodes, CodeGroupID: groupID}, nil
	}

	outcome, err := f.svc.Dispatch(context.Background(), tenantID, order.ID)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !outcome.Dispatched || outcome.Reason != "codes" {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if order.Status != enums.OrderStatusApproved || order.ExternalStatus != enums.ExternalStatusCompleted {
		t.Fatalf("order not completed: %s/%s", order.Status, order.ExternalStatus)
	}
	if order.ManualNote == nil || *order.ManualNote != "AAA-111 / SER-9" {
		t.Fatalf("redemption value not delivered: %v", order.ManualNote)
	}
	if !order.FxLocked || order.ApprovedAt == nil || order.CompletedAt == nil {
		t.Fatalf("completion fields not stamped: %+v", order)
	}
	if len(f.codes.committed) != 1 || f.codes.committed[0] != f.codes.item.ID {
		t.Fatalf("code not committed: %+v", f.codes.committed)
	}
	if len(f.chain.leaves) != 1 {
		t.Fatalf("terminal transition must propagate, got %d calls", len(f.chain.leaves))
	}
	if entry := findLog(f.repo.logs, enums.DispatchActionCodeAllocated); entry == nil || entry.Result != enums.DispatchResultOK {
		t.Fatalf("expected code-allocated log, got %+v", f.repo.logs)
	}
}

func TestDispatch_CodesExhaustedRejectsAndRefunds(t *testing.T) {
	tenantID := uuid.New()
	order := pendingOrder(tenantID)
	f := newFixture(t, order)
	f.codes.allocErr = apperrors.New(apperrors.CodeCodesExhausted, "no available codes in group")
	f.routing.resolve = func() (routing.Decision, error) {
		return routing.Decision{Kind: routing.DecisionCodes, CodeGroupID: uuid.New()}, nil
	}

	outcome, err := f.svc.Dispatch(context.Background(), tenantID, order.ID)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if outcome.Dispatched || outcome.Reason != "codes_exhausted" {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if order.Status != enums.OrderStatusRejected || order.ExternalStatus != enums.ExternalStatusFailed {
		t.Fatalf("order not rejected: %s/%s", order.Status, order.ExternalStatus)
	}
	if order.ManualNote == nil || *order.ManualNote != "no codes available" {
		t.Fatalf("unexpected note %v", order.ManualNote)
	}
	if len(f.wallet.records) != 1 {
		t.Fatalf("expected one refund, got %+v", f.wallet.records)
	}
	refund := f.wallet.records[0]
	if refund.Cause != enums.WalletTxCauseOrderRejected || !refund.Amount.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("unexpected refund %+v", refund)
	}
	if len(f.chain.leaves) != 1 {
		t.Fatalf("rejection must propagate, got %d calls", len(f.chain.leaves))
	}
	if entry := findLog(f.repo.logs, enums.DispatchActionCodesExhausted); entry == nil || entry.Result != enums.DispatchResultFailed {
		t.Fatalf("expected codes-exhausted log, got %+v", f.repo.logs)
	}
}

func TestDispatch_CodesExhaustedFallsBackWhenEnabled(t *testing.T) {
	tenantID := uuid.New()
	order := pendingOrder(tenantID)
	f := newFixture(t, order)
	f.flags.snapshot = flags.Snapshot{AutoFallbackRouting: true}
	f.codes.allocErr = apperrors.New(apperrors.CodeCodesExhausted, "no available codes in group")

	integration := &models.Integration{ID: uuid.New(), TenantID: tenantID, Name: "apstore-main", ProviderType: enums.ProviderTypeApstore}
	f.routing.resolve = func() (routing.Decision, error) {
		return routing.Decision{Kind: routing.DecisionCodes, CodeGroupID: uuid.New()}, nil
	}
	f.routing.fallback = func() (routing.Decision, error) {
		return routing.Decision{Kind: routing.DecisionExternal, Integration: integration, ProviderPackageID: "pkg-77"}, nil
	}
	f.resolver.adapter = &fakeAdapter{place: func(req vendors.PlaceOrderRequest) (*vendors.PlaceOrderResult, error) {
		return &vendors.PlaceOrderResult{ExternalOrderID: "EXT-1", Status: enums.NormalizedStatusSent, RawStatus: "accepted"}, nil
	}}

	outcome, err := f.svc.Dispatch(context.Background(), tenantID, order.ID)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !outcome.Dispatched || outcome.Reason != "external" {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if f.routing.fallbackHits != 1 {
		t.Fatalf("expected exactly one fallback resolution, got %d", f.routing.fallbackHits)
	}
	if entry := findLog(f.repo.logs, enums.DispatchActionAutoFallback); entry == nil {
		t.Fatalf("expected auto-fallback log, got %+v", f.repo.logs)
	}
	if order.ExternalStatus != enums.ExternalStatusSent || order.ExternalOrderID == nil || *order.ExternalOrderID != "EXT-1" {
		t.Fatalf("fallback dispatch did not stick: %+v", order)
	}
	if len(f.wallet.records) != 0 {
		t.Fatalf("fallback must not refund: %+v", f.wallet.records)
	}
}

func TestDispatch_ChainForwardCreatesChildOrder(t *testing.T) {
	tenantID := uuid.New()
	targetTenantID := uuid.New()
	targetUserID := uuid.New()
	order := pendingOrder(tenantID)
	f := newFixture(t, order)

	targetPkg := &models.Package{
		ID:        uuid.New(),
		TenantID:  targetTenantID,
		ProductID: uuid.New(),
		SellPrice: decimal.NewFromInt(40),
		Currency:  enums.CurrencyTRY,
		Active:    true,
	}
	f.repo.pkgs[targetPkg.ID] = targetPkg
	f.repo.tenants[targetTenantID] = &models.Tenant{ID: targetTenantID, DisplayName: "Upstream"}

	integration := &models.Integration{ID: uuid.New(), TenantID: tenantID, Name: "upstream", ProviderType: enums.ProviderTypeInternal}
	f.routing.resolve = func() (routing.Decision, error) {
		return routing.Decision{
			Kind:            routing.DecisionChainForward,
			TargetTenantID:  targetTenantID,
			TargetUserID:    targetUserID,
			TargetPackageID: targetPkg.ID,
			Integration:     integration,
		}, nil
	}

	outcome, err := f.svc.Dispatch(context.Background(), tenantID, order.ID)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !outcome.Dispatched || outcome.Reason != "chain_forward" {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if len(f.repo.created) != 1 {
		t.Fatalf("expected one child order, got %d", len(f.repo.created))
	}
	child := f.repo.created[0]
	if child.TenantID != targetTenantID || child.UserID != targetUserID {
		t.Fatalf("child placed in wrong tenant: %+v", child)
	}
	if !child.SellPriceAmount.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("child priced at target tenant rates, got %s", child.SellPriceAmount)
	}
	if child.RootOrderID == nil || *child.RootOrderID != order.ID {
		t.Fatalf("child must carry the root id: %v", child.RootOrderID)
	}
	if child.ProviderReference == nil || *child.ProviderReference != order.ID.String() {
		t.Fatalf("child must reference its parent: %v", child.ProviderReference)
	}
	if child.Status != enums.OrderStatusPending || child.ExternalStatus != enums.ExternalStatusNotSent {
		t.Fatalf("child must start fresh: %s/%s", child.Status, child.ExternalStatus)
	}

	if order.Mode != enums.DispatchModeChainForward || order.ExternalStatus != enums.ExternalStatusForwarded {
		t.Fatalf("parent not marked forwarded: %+v", order)
	}
	if order.ExternalOrderID == nil || *order.ExternalOrderID != child.ID.String() {
		t.Fatalf("parent must point at child: %v", order.ExternalOrderID)
	}
	if len(order.ChainPath) != 1 || order.ChainPath[0] != "Upstream" {
		t.Fatalf("chain path not extended: %v", order.ChainPath)
	}
	if order.SentAt == nil {
		t.Fatal("forward time not stamped")
	}

	if len(f.wallet.records) != 1 {
		t.Fatalf("expected child buyer charge, got %+v", f.wallet.records)
	}
	charge := f.wallet.records[0]
	if charge.UserID != targetUserID || charge.Cause != enums.WalletTxCauseOrderApproved || !charge.Amount.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("unexpected charge %+v", charge)
	}
	if len(f.tasks.entries) != 1 || f.tasks.entries[0].orderID != child.ID || f.tasks.entries[0].tenantID != targetTenantID {
		t.Fatalf("child dispatch not queued: %+v", f.tasks.entries)
	}
	if entry := findLog(f.repo.logs, enums.DispatchActionChainForward); entry == nil || entry.Result != enums.DispatchResultOK {
		t.Fatalf("expected chain-forward log, got %+v", f.repo.logs)
	}
}

func TestDispatch_ChainForwardRefusedAtDepthCap(t *testing.T) {
	tenantID := uuid.New()
	targetTenantID := uuid.New()
	order := pendingOrder(tenantID)
	for i := 0; i < 16; i++ {
		order.ChainPath = append(order.ChainPath, fmt.Sprintf("hop-%d", i))
	}
	f := newFixture(t, order)

	targetPkg := &models.Package{ID: uuid.New(), TenantID: targetTenantID, ProductID: uuid.New(), SellPrice: decimal.NewFromInt(40), Currency: enums.CurrencyTRY}
	f.repo.pkgs[targetPkg.ID] = targetPkg
	f.repo.tenants[targetTenantID] = &models.Tenant{ID: targetTenantID, DisplayName: "Upstream"}

	integration := &models.Integration{ID: uuid.New(), TenantID: tenantID, Name: "upstream", ProviderType: enums.ProviderTypeInternal}
	f.routing.resolve = func() (routing.Decision, error) {
		return routing.Decision{
			Kind:            routing.DecisionChainForward,
			TargetTenantID:  targetTenantID,
			TargetUserID:    uuid.New(),
			TargetPackageID: targetPkg.ID,
			Integration:     integration,
		}, nil
	}

	outcome, err := f.svc.Dispatch(context.Background(), tenantID, order.ID)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if outcome.Dispatched || outcome.Reason != "failed" {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if len(f.repo.created) != 0 {
		t.Fatalf("a forward at the depth cap must not create a child, got %d", len(f.repo.created))
	}
	if len(f.wallet.records) != 0 {
		t.Fatalf("a refused forward must not move money: %+v", f.wallet.records)
	}
	if order.ExternalStatus != enums.ExternalStatusFailed {
		t.Fatalf("order should be marked failed, got %s", order.ExternalStatus)
	}
	if len(order.ChainPath) != 16 {
		t.Fatalf("chain path must not grow, got %d hops", len(order.ChainPath))
	}
}

func TestDispatch_ExternalCoercesTerminalVendorStatus(t *testing.T) {
	tenantID := uuid.New()
	order := pendingOrder(tenantID)
	f := newFixture(t, order)

	integration := &models.Integration{ID: uuid.New(), TenantID: tenantID, Name: "apstore-main", ProviderType: enums.ProviderTypeApstore}
	f.routing.resolve = func() (routing.Decision, error) {
		return routing.Decision{Kind: routing.DecisionExternal, Integration: integration, ProviderPackageID: "pkg-1"}, nil
	}
	f.resolver.adapter = &fakeAdapter{place: func(req vendors.PlaceOrderRequest) (*vendors.PlaceOrderResult, error) {
		if req.Reference != order.ID.String() {
			t.Fatalf("vendor reference must be the order id, got %q", req.Reference)
		}
		return &vendors.PlaceOrderResult{ExternalOrderID: "EXT-9", Status: enums.NormalizedStatusCompleted, RawStatus: "delivered"}, nil
	}}

	outcome, err := f.svc.Dispatch(context.Background(), tenantID, order.ID)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !outcome.Dispatched || outcome.Reason != "external" {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if order.Status != enums.OrderStatusPending {
		t.Fatalf("vendor submission must not finalize the buyer status, got %s", order.Status)
	}
	if order.ExternalStatus != enums.ExternalStatusProcessing {
		t.Fatalf("terminal vendor answer must wait for the poller, got %s", order.ExternalStatus)
	}
	if order.Mode != enums.DispatchModeAuto || order.SentAt == nil {
		t.Fatalf("submission fields not stamped: %+v", order)
	}
	if order.ExternalOrderID == nil || *order.ExternalOrderID != "EXT-9" {
		t.Fatalf("vendor reference not stored: %v", order.ExternalOrderID)
	}
	if entry := findLog(f.repo.logs, enums.DispatchActionExternalDispatch); entry == nil || entry.Result != enums.DispatchResultOK {
		t.Fatalf("expected external-dispatch log, got %+v", f.repo.logs)
	}
}

func TestDispatch_ExternalNetworkErrorIsRetryable(t *testing.T) {
	tenantID := uuid.New()
	order := pendingOrder(tenantID)
	f := newFixture(t, order)

	integration := &models.Integration{ID: uuid.New(), TenantID: tenantID, Name: "apstore-main", ProviderType: enums.ProviderTypeApstore}
	f.routing.resolve = func() (routing.Decision, error) {
		return routing.Decision{Kind: routing.DecisionExternal, Integration: integration, ProviderPackageID: "pkg-1"}, nil
	}
	f.resolver.adapter = &fakeAdapter{place: func(req vendors.PlaceOrderRequest) (*vendors.PlaceOrderResult, error) {
		return nil, apperrors.New(apperrors.CodeVendorNetwork, "connection reset")
	}}

	outcome, err := f.svc.Dispatch(context.Background(), tenantID, order.ID)
	if err == nil {
		t.Fatal("expected a retryable error")
	}
	if !apperrors.IsRetryable(err) {
		t.Fatalf("network failure must be retryable: %v", err)
	}
	if outcome.Dispatched || outcome.Reason != "vendor_network" {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if order.Status != enums.OrderStatusPending || order.ExternalStatus != enums.ExternalStatusNotSent {
		t.Fatalf("transient failure must not advance the order: %s/%s", order.Status, order.ExternalStatus)
	}
	if order.LastMessage == nil || *order.LastMessage != "connection reset" {
		t.Fatalf("failure trace missing: %v", order.LastMessage)
	}
	if entry := findLog(f.repo.logs, enums.DispatchActionExternalDispatch); entry == nil || entry.Result != enums.DispatchResultFailed {
		t.Fatalf("expected failed dispatch log, got %+v", f.repo.logs)
	}
}

func TestDispatch_LockedOrderSkips(t *testing.T) {
	tenantID := uuid.New()
	order := pendingOrder(tenantID)
	f := newFixture(t, order)
	f.repo.lockErr = errors.New("ERROR: could not obtain lock on row in relation \"orders\" (SQLSTATE 55P03)")

	outcome, err := f.svc.Dispatch(context.Background(), tenantID, order.ID)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if outcome.Dispatched || outcome.Reason != "locked" {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if f.repo.updates != 0 || len(f.repo.logs) != 0 {
		t.Fatalf("contended dispatch must be a pure no-op")
	}
}

func TestDispatch_TerminalOrderSkips(t *testing.T) {
	tenantID := uuid.New()
	order := pendingOrder(tenantID)
	order.Status = enums.OrderStatusApproved
	order.ExternalStatus = enums.ExternalStatusCompleted
	f := newFixture(t, order)

	outcome, err := f.svc.Dispatch(context.Background(), tenantID, order.ID)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if outcome.Dispatched || outcome.Reason != "terminal" {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if f.repo.updates != 0 {
		t.Fatal("terminal order must not be written")
	}
}

func TestDispatch_AlreadyDispatchedSkips(t *testing.T) {
	tenantID := uuid.New()
	order := pendingOrder(tenantID)
	external := "EXT-5"
	order.ExternalOrderID = &external
	order.ExternalStatus = enums.ExternalStatusSent
	order.Mode = enums.DispatchModeAuto
	f := newFixture(t, order)

	outcome, err := f.svc.Dispatch(context.Background(), tenantID, order.ID)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if outcome.Dispatched || outcome.Reason != "already_dispatched" {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
}

func TestDispatch_WrongTenantRefused(t *testing.T) {
	order := pendingOrder(uuid.New())
	f := newFixture(t, order)

	_, err := f.svc.Dispatch(context.Background(), uuid.New(), order.ID)
	if !apperrors.HasCode(err, apperrors.CodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestDispatch_USDCostEnforcementStampsRate(t *testing.T) {
	tenantID := uuid.New()
	order := pendingOrder(tenantID)
	f := newFixture(t, order)
	f.flags.snapshot = flags.Snapshot{USDCostEnforcement: true}
	f.fx.rate = decimal.NewFromInt(40)

	integration := &models.Integration{ID: uuid.New(), TenantID: tenantID, Name: "apstore-main", ProviderType: enums.ProviderTypeApstore}
	f.routing.resolve = func() (routing.Decision, error) {
		return routing.Decision{Kind: routing.DecisionExternal, Integration: integration, ProviderPackageID: "pkg-1"}, nil
	}
	f.resolver.adapter = &fakeAdapter{place: func(req vendors.PlaceOrderRequest) (*vendors.PlaceOrderResult, error) {
		return &vendors.PlaceOrderResult{ExternalOrderID: "EXT-2", Status: enums.NormalizedStatusSent, RawStatus: "wait"}, nil
	}}

	if _, err := f.svc.Dispatch(context.Background(), tenantID, order.ID); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if f.fx.calls != 1 {
		t.Fatalf("expected one rate lookup, got %d", f.fx.calls)
	}
	if order.FxUsdTryAtOrder == nil || !order.FxUsdTryAtOrder.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("rate not stamped: %v", order.FxUsdTryAtOrder)
	}
	if order.CostPriceUSD == nil || !order.CostPriceUSD.Equal(decimal.RequireFromString("1.25")) {
		t.Fatalf("usd cost not derived: %v", order.CostPriceUSD)
	}
}
