package dispatch

import (
	"context"
	stdErrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/oyunkod/oyunkod-backend/internal/chain"
	"github.com/oyunkod/oyunkod-backend/internal/codes"
	"github.com/oyunkod/oyunkod-backend/internal/flags"
	"github.com/oyunkod/oyunkod-backend/internal/fx"
	"github.com/oyunkod/oyunkod-backend/internal/orders"
	"github.com/oyunkod/oyunkod-backend/internal/routing"
	"github.com/oyunkod/oyunkod-backend/internal/vendors"
	"github.com/oyunkod/oyunkod-backend/internal/wallet"
	"github.com/oyunkod/oyunkod-backend/pkg/config"
	dbpkg "github.com/oyunkod/oyunkod-backend/pkg/db"
	"github.com/oyunkod/oyunkod-backend/pkg/db/models"
	"github.com/oyunkod/oyunkod-backend/pkg/enums"
	apperrors "github.com/oyunkod/oyunkod-backend/pkg/errors"
	"github.com/oyunkod/oyunkod-backend/pkg/logger"
	"github.com/oyunkod/oyunkod-backend/pkg/metrics"
	"github.com/oyunkod/oyunkod-backend/pkg/types"
)

// Outcome reports what a dispatch attempt did. Dispatched is false when the
// attempt was skipped (lock contention, terminal order, prior dispatch) or
// ended in a non-retryable failure; Reason says which.
type Outcome struct {
	Dispatched bool   `json:"dispatched"`
	Reason     string `json:"reason,omitempty"`
}

// Service executes the routing decision for one order under an
// at-most-one-in-flight guarantee.
type Service interface {
	Dispatch(ctx context.Context, tenantID, orderID uuid.UUID) (Outcome, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// AdapterResolver picks the vendor adapter for an integration.
type AdapterResolver interface {
	Resolve(integration models.Integration, simulate bool) (vendors.Adapter, error)
}

// Deps carries the dispatcher's collaborators.
type Deps struct {
	Orders   orders.Repository
	Routing  routing.Service
	Codes    codes.Service
	Wallet   wallet.Service
	Chain    chain.Service
	Flags    flags.Service
	Registry AdapterResolver
	FX       fx.Service
	Tasks    orders.DispatchEnqueuer
	Tx       txRunner
	Metrics  *metrics.DispatchMetrics
	Logger   *logger.Logger
	Config   config.DispatchConfig
}

type service struct {
	deps Deps
	now  func() time.Time
}

// NewService wires the dispatcher. Metrics may be nil.
func NewService(deps Deps) (Service, error) {
	switch {
	case deps.Orders == nil:
		return nil, fmt.Errorf("orders repository is required")
	case deps.Routing == nil:
		return nil, fmt.Errorf("routing service is required")
	case deps.Codes == nil:
		return nil, fmt.Errorf("codes service is required")
	case deps.Wallet == nil:
		return nil, fmt.Errorf("wallet service is required")
	case deps.Chain == nil:
		return nil, fmt.Errorf("chain service is required")
	case deps.Flags == nil:
		return nil, fmt.Errorf("flags service is required")
	case deps.Registry == nil:
		return nil, fmt.Errorf("adapter registry is required")
	case deps.FX == nil:
		return nil, fmt.Errorf("fx service is required")
	case deps.Tasks == nil:
		return nil, fmt.Errorf("dispatch enqueuer is required")
	case deps.Tx == nil:
		return nil, fmt.Errorf("transaction runner is required")
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	}
	return &service{deps: deps, now: time.Now}, nil
}

// Dispatch resolves and executes one fulfillment attempt for the order.
// The whole attempt runs in a single transaction guarded by the order's
// row lock; a competing dispatcher observes the lock and backs off.
//
// A returned error means the attempt is worth retrying (vendor network
// trouble, transient dependency failure). Non-retryable failures commit
// their trace and come back as a non-dispatched Outcome.
func (s *service) Dispatch(ctx context.Context, tenantID, orderID uuid.UUID) (Outcome, error) {
	start := s.now()
	snapshot := s.deps.Flags.Snapshot(ctx)

	logCtx := s.deps.Logger.WithOrderID(ctx, orderID.String())
	logCtx = s.deps.Logger.WithTenantID(logCtx, tenantID.String())

	var outcome Outcome
	branch := "none"
	var retryErr error

	err := s.deps.Tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.deps.Orders.WithTx(tx)

		order, err := repo.LockForDispatch(ctx, orderID)
		if err != nil {
			if dbpkg.IsLockNotAvailable(err) {
				outcome = Outcome{Reason: "locked"}
				return nil
			}
			if stdErrors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.New(apperrors.CodeNotFound, "order not found")
			}
			return err
		}
		if order.TenantID != tenantID {
			return apperrors.New(apperrors.CodeForbidden, "order does not belong to tenant")
		}
		if order.Status.IsTerminal() {
			outcome = Outcome{Reason: "terminal"}
			return nil
		}
		if order.IsChainForwarded() && order.ExternalStatus == enums.ExternalStatusForwarded {
			outcome = Outcome{Reason: "already_forwarded"}
			return nil
		}
		if order.HasExternalReference() &&
			order.ExternalStatus != enums.ExternalStatusNotSent &&
			order.ExternalStatus != enums.ExternalStatusFailed {
			outcome = Outcome{Reason: "already_dispatched"}
			return nil
		}

		fellBack := false
		tryFallback := func(cause error) (routing.Decision, bool) {
			if fellBack || !snapshot.AutoFallbackRouting {
				return routing.Decision{}, false
			}
			fallback, fbErr := s.deps.Routing.ResolveFallback(ctx, tx, order)
			if fbErr != nil {
				return routing.Decision{}, false
			}
			fellBack = true
			s.deps.Metrics.IncFallback()
			_ = repo.InsertDispatchLog(ctx, &models.OrderDispatchLog{
				TenantID: order.TenantID,
				OrderID:  order.ID,
				Action:   enums.DispatchActionAutoFallback,
				Result:   enums.DispatchResultOK,
				Message:  failureMessage(cause),
			})
			return fallback, true
		}

		decision, err := s.deps.Routing.Resolve(ctx, tx, order)
		if err != nil {
			if !isRoutingFailure(err) {
				return err
			}
			fallback, ok := tryFallback(err)
			if !ok {
				branch = "resolve"
				outcome = Outcome{Reason: "routing_failed"}
				return s.markDispatchFailed(ctx, repo, order, err)
			}
			decision = fallback
		}

		for {
			o, b, execErr := s.executeDecision(ctx, tx, repo, order, decision, snapshot)
			branch = b
			if execErr == nil {
				outcome = o
				return nil
			}

			switch {
			case apperrors.HasCode(execErr, apperrors.CodeVendorNetwork):
				// Transient: persist the trace and surface for a
				// backed-off retry. The order stays pending/not_sent.
				outcome = Outcome{Reason: "vendor_network"}
				retryErr = execErr
				return s.recordTransientFailure(ctx, repo, order, execErr)

			case apperrors.HasCode(execErr, apperrors.CodeCodesExhausted):
				fallback, ok := tryFallback(execErr)
				if ok {
					decision = fallback
					continue
				}
				outcome = Outcome{Reason: "codes_exhausted"}
				return s.rejectWithRefund(ctx, tx, repo, order, "no codes available")

			case apperrors.HasCode(execErr, apperrors.CodeCredential),
				apperrors.HasCode(execErr, apperrors.CodeMappingMissing),
				apperrors.HasCode(execErr, apperrors.CodeMisconfigured):
				fallback, ok := tryFallback(execErr)
				if ok {
					decision = fallback
					continue
				}
				outcome = Outcome{Reason: "failed"}
				return s.markDispatchFailed(ctx, repo, order, execErr)

			case apperrors.HasCode(execErr, apperrors.CodeVendorReject):
				outcome = Outcome{Reason: "vendor_reject"}
				return s.markDispatchFailed(ctx, repo, order, execErr)

			default:
				return execErr
			}
		}
	})

	s.deps.Metrics.ObserveDuration(branch, s.now().Sub(start))
	switch {
	case err != nil:
		s.deps.Metrics.IncAttempt(branch, "error")
		return Outcome{}, err
	case retryErr != nil:
		s.deps.Metrics.IncAttempt(branch, "retry")
		return outcome, retryErr
	case outcome.Dispatched:
		s.deps.Metrics.IncAttempt(branch, "ok")
		s.deps.Logger.Info(logCtx, fmt.Sprintf("order dispatched via %s", branch))
	default:
		s.deps.Metrics.IncAttempt(branch, "skipped")
		s.deps.Logger.Info(logCtx, fmt.Sprintf("dispatch skipped: %s", outcome.Reason))
	}
	return outcome, nil
}

func (s *service) executeDecision(ctx context.Context, tx *gorm.DB, repo orders.Repository, order *models.Order, decision routing.Decision, snapshot flags.Snapshot) (Outcome, string, error) {
	switch decision.Kind {
	case routing.DecisionManual:
		o, err := s.dispatchManual(ctx, repo, order)
		return o, "manual", err
	case routing.DecisionCodes:
		o, err := s.dispatchCodes(ctx, tx, repo, order, decision)
		return o, "codes", err
	case routing.DecisionChainForward:
		o, err := s.dispatchChainForward(ctx, tx, repo, order, decision)
		return o, "chain_forward", err
	case routing.DecisionExternal:
		o, err := s.dispatchExternal(ctx, repo, order, decision, snapshot)
		return o, "external", err
	default:
		return Outcome{}, "none", apperrors.New(apperrors.CodeMisconfigured, fmt.Sprintf("unknown routing decision %q", decision.Kind))
	}
}

// dispatchManual parks the order for an operator. No provider binding, no
// wallet movement.
func (s *service) dispatchManual(ctx context.Context, repo orders.Repository, order *models.Order) (Outcome, error) {
	order.Mode = enums.DispatchModeManual
	order.ProviderID = nil
	order.ExternalStatus = enums.ExternalStatusNotSent

	if err := assertConsistent(order); err != nil {
		return Outcome{}, err
	}
	if err := repo.Update(ctx, order); err != nil {
		return Outcome{}, err
	}
	err := repo.InsertDispatchLog(ctx, &models.OrderDispatchLog{
		TenantID: order.TenantID,
		OrderID:  order.ID,
		Action:   enums.DispatchActionManualSet,
		Result:   enums.DispatchResultOK,
		Message:  "order routed to manual fulfillment",
	})
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Dispatched: true, Reason: "manual"}, nil
}

// dispatchCodes allocates one pre-loaded code and completes the order with
// it. Exhaustion errors flow back to the caller for fallback handling.
func (s *service) dispatchCodes(ctx context.Context, tx *gorm.DB, repo orders.Repository, order *models.Order, decision routing.Decision) (Outcome, error) {
	item, err := s.deps.Codes.Allocate(ctx, tx, decision.CodeGroupID, order.ID)
	if err != nil {
		return Outcome{}, err
	}
	if err := s.deps.Codes.Commit(ctx, tx, item.ID); err != nil {
		return Outcome{}, err
	}

	now := s.now()
	note := item.RedemptionValue()
	order.Status = enums.OrderStatusApproved
	order.ExternalStatus = enums.ExternalStatusCompleted
	order.Mode = enums.DispatchModeAuto
	order.ManualNote = &note
	order.ApprovedAt = &now
	order.CompletedAt = &now
	order.FxLocked = true

	if err := assertConsistent(order); err != nil {
		return Outcome{}, err
	}
	if err := repo.Update(ctx, order); err != nil {
		return Outcome{}, err
	}
	err = repo.InsertDispatchLog(ctx, &models.OrderDispatchLog{
		TenantID: order.TenantID,
		OrderID:  order.ID,
		Action:   enums.DispatchActionCodeAllocated,
		Result:   enums.DispatchResultOK,
		Message:  "redemption code allocated",
		Payload:  types.JSONMap{"code_item_id": item.ID.String()},
	})
	if err != nil {
		return Outcome{}, err
	}
	if err := s.deps.Chain.PropagateFrom(ctx, tx, order); err != nil {
		return Outcome{}, err
	}
	return Outcome{Dispatched: true, Reason: "codes"}, nil
}

// dispatchChainForward creates the child order in the target tenant and
// marks this order as forwarded. The child's own dispatch is queued in the
// same transaction and picked up by a worker after commit.
func (s *service) dispatchChainForward(ctx context.Context, tx *gorm.DB, repo orders.Repository, order *models.Order, decision routing.Decision) (Outcome, error) {
	maxDepth := s.deps.Config.MaxChainDepth
	if maxDepth <= 0 {
		maxDepth = 16
	}
	if len(order.ChainPath) >= maxDepth {
		return Outcome{}, apperrors.New(apperrors.CodeMisconfigured,
			fmt.Sprintf("forwarding chain already %d hops deep", len(order.ChainPath)))
	}

	targetPkg, err := repo.FindPackage(ctx, decision.TargetTenantID, decision.TargetPackageID)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return Outcome{}, apperrors.New(apperrors.CodeMappingMissing, "target tenant package vanished")
		}
		return Outcome{}, err
	}
	targetTenant, err := repo.FindTenant(ctx, decision.TargetTenantID)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return Outcome{}, apperrors.New(apperrors.CodeMisconfigured, "target tenant not found")
		}
		return Outcome{}, err
	}

	childNo, err := repo.NextOrderNo(ctx, decision.TargetTenantID)
	if err != nil {
		return Outcome{}, err
	}

	now := s.now()
	rootID := order.RootID()
	reference := order.ID.String()
	if order.ProviderReference != nil && *order.ProviderReference != "" {
		reference = *order.ProviderReference
	}

	child := &models.Order{
		ID:                uuid.New(),
		OrderNo:           childNo,
		TenantID:          decision.TargetTenantID,
		UserID:            decision.TargetUserID,
		PackageID:         targetPkg.ID,
		ProductID:         targetPkg.ProductID,
		Quantity:          order.Quantity,
		UserIdentifier:    order.UserIdentifier,
		ExtraField:        order.ExtraField,
		SellPriceAmount:   targetPkg.SellPrice.Mul(decimal.NewFromInt(int64(order.Quantity))),
		SellPriceCurrency: targetPkg.Currency,
		Status:            enums.OrderStatusPending,
		ExternalStatus:    enums.ExternalStatusNotSent,
		Mode:              enums.DispatchModeManual,
		RootOrderID:       &rootID,
		ProviderReference: &reference,
		ChainPath:         append(pq.StringArray{}, order.ChainPath...),
	}
	if err := repo.Create(ctx, child); err != nil {
		return Outcome{}, err
	}

	if _, err := s.deps.Wallet.Record(ctx, tx, wallet.RecordInput{
		TenantID:    child.TenantID,
		UserID:      child.UserID,
		OrderID:     &child.ID,
		Cause:       enums.WalletTxCauseOrderApproved,
		Amount:      child.SellPriceAmount,
		Currency:    child.SellPriceCurrency,
		Description: fmt.Sprintf("charge for forwarded order %s", child.ShortNo()),
	}); err != nil {
		return Outcome{}, err
	}

	childRef := child.ID.String()
	order.ProviderID = &decision.Integration.ID
	order.ExternalOrderID = &childRef
	order.ExternalStatus = enums.ExternalStatusForwarded
	order.Mode = enums.DispatchModeChainForward
	order.ChainPath = append(order.ChainPath, targetTenant.DisplayName)
	order.SentAt = &now
	if order.RootOrderID == nil {
		order.RootOrderID = &rootID
	}

	if err := assertConsistent(order); err != nil {
		return Outcome{}, err
	}
	if err := repo.Update(ctx, order); err != nil {
		return Outcome{}, err
	}
	err = repo.InsertDispatchLog(ctx, &models.OrderDispatchLog{
		TenantID: order.TenantID,
		OrderID:  order.ID,
		Action:   enums.DispatchActionChainForward,
		Result:   enums.DispatchResultOK,
		Message:  fmt.Sprintf("forwarded to %s", targetTenant.DisplayName),
		Payload: types.JSONMap{
			"child_order_id":   child.ID.String(),
			"target_tenant_id": decision.TargetTenantID.String(),
		},
	})
	if err != nil {
		return Outcome{}, err
	}
	if err := s.deps.Tasks.Enqueue(ctx, tx, child.TenantID, child.ID, now); err != nil {
		return Outcome{}, err
	}
	return Outcome{Dispatched: true, Reason: "chain_forward"}, nil
}

// dispatchExternal submits the order to the vendor. The vendor's immediate
// answer never finalizes the buyer-facing status: terminal vendor states
// are coerced to processing and picked up by the poller.
func (s *service) dispatchExternal(ctx context.Context, repo orders.Repository, order *models.Order, decision routing.Decision, snapshot flags.Snapshot) (Outcome, error) {
	integration := decision.Integration
	if integration == nil {
		return Outcome{}, apperrors.New(apperrors.CodeMisconfigured, "external decision without integration")
	}

	adapter, err := s.deps.Registry.Resolve(*integration, snapshot.ZnetSimulate)
	if err != nil {
		return Outcome{}, err
	}

	if snapshot.USDCostEnforcement {
		rate, err := s.deps.FX.USDTRY(ctx)
		if err != nil {
			return Outcome{}, err
		}
		order.FxUsdTryAtOrder = &rate
		if order.CostPriceUSD == nil && rate.IsPositive() {
			usd := order.SellPriceAmount.Div(rate).Round(4)
			order.CostPriceUSD = &usd
		}
	}

	request := vendors.PlaceOrderRequest{
		ProviderPackageID: decision.ProviderPackageID,
		Quantity:          order.Quantity,
		UserIdentifier:    order.UserIdentifier,
		Reference:         order.ID.String(),
	}
	if order.ExtraField != nil {
		request.ExtraField = *order.ExtraField
	}

	timeout := s.deps.Config.VendorTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	vendorCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := adapter.PlaceOrder(vendorCtx, *integration, request)
	if err != nil {
		return Outcome{}, err
	}

	now := s.now()
	status := result.Status
	if status.IsTerminal() {
		status = enums.NormalizedStatusProcessing
	}

	order.ProviderID = &integration.ID
	order.ExternalOrderID = &result.ExternalOrderID
	order.ExternalStatus = status.ExternalStatus()
	order.Mode = enums.DispatchModeAuto
	order.SentAt = &now
	if result.Message != "" {
		message := result.Message
		order.LastMessage = &message
	}

	if err := assertConsistent(order); err != nil {
		return Outcome{}, err
	}
	if err := repo.Update(ctx, order); err != nil {
		return Outcome{}, err
	}
	err = repo.InsertDispatchLog(ctx, &models.OrderDispatchLog{
		TenantID: order.TenantID,
		OrderID:  order.ID,
		Action:   enums.DispatchActionExternalDispatch,
		Result:   enums.DispatchResultOK,
		Message:  fmt.Sprintf("submitted to %s", integration.Name),
		Payload: types.JSONMap{
			"integration_id":    integration.ID.String(),
			"external_order_id": result.ExternalOrderID,
			"raw_status":        result.RawStatus,
		},
	})
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Dispatched: true, Reason: "external"}, nil
}

// markDispatchFailed records a non-retryable failure. The order's buyer
// status stays pending so an operator can resolve or re-dispatch.
func (s *service) markDispatchFailed(ctx context.Context, repo orders.Repository, order *models.Order, cause error) error {
	message := failureMessage(cause)
	order.ExternalStatus = enums.ExternalStatusFailed
	order.LastMessage = &message

	if err := assertConsistent(order); err != nil {
		return err
	}
	if err := repo.Update(ctx, order); err != nil {
		return err
	}
	return repo.InsertDispatchLog(ctx, &models.OrderDispatchLog{
		TenantID: order.TenantID,
		OrderID:  order.ID,
		Action:   enums.DispatchActionExternalDispatch,
		Result:   enums.DispatchResultFailed,
		Message:  message,
	})
}

// recordTransientFailure leaves a trace for a retryable failure without
// advancing the order's state.
func (s *service) recordTransientFailure(ctx context.Context, repo orders.Repository, order *models.Order, cause error) error {
	message := failureMessage(cause)
	order.LastMessage = &message
	if err := repo.Update(ctx, order); err != nil {
		return err
	}
	return repo.InsertDispatchLog(ctx, &models.OrderDispatchLog{
		TenantID: order.TenantID,
		OrderID:  order.ID,
		Action:   enums.DispatchActionExternalDispatch,
		Result:   enums.DispatchResultFailed,
		Message:  message,
	})
}

// rejectWithRefund finalizes the order as rejected, refunds the buyer and
// propagates the rejection up any forwarding chain.
func (s *service) rejectWithRefund(ctx context.Context, tx *gorm.DB, repo orders.Repository, order *models.Order, note string) error {
	now := s.now()
	order.Status = enums.OrderStatusRejected
	order.ExternalStatus = enums.ExternalStatusFailed
	order.ManualNote = &note
	order.CompletedAt = &now

	if _, err := s.deps.Wallet.Record(ctx, tx, wallet.RecordInput{
		TenantID:    order.TenantID,
		UserID:      order.UserID,
		OrderID:     &order.ID,
		Cause:       enums.WalletTxCauseOrderRejected,
		Amount:      order.SellPriceAmount,
		Currency:    order.SellPriceCurrency,
		Description: fmt.Sprintf("refund for order %s", order.ShortNo()),
	}); err != nil {
		return err
	}

	if err := assertConsistent(order); err != nil {
		return err
	}
	if err := repo.Update(ctx, order); err != nil {
		return err
	}
	err := repo.InsertDispatchLog(ctx, &models.OrderDispatchLog{
		TenantID: order.TenantID,
		OrderID:  order.ID,
		Action:   enums.DispatchActionCodesExhausted,
		Result:   enums.DispatchResultFailed,
		Message:  note,
	})
	if err != nil {
		return err
	}
	return s.deps.Chain.PropagateFrom(ctx, tx, order)
}

// assertConsistent refuses to persist an approved order whose external
// side is still live.
func assertConsistent(order *models.Order) error {
	if order.Status == enums.OrderStatusApproved {
		switch order.ExternalStatus {
		case enums.ExternalStatusNotSent, enums.ExternalStatusSent, enums.ExternalStatusProcessing:
			return apperrors.New(apperrors.CodeInvariant,
				fmt.Sprintf("approved order with live external status %s", order.ExternalStatus))
		}
	}
	return nil
}

func isRoutingFailure(err error) bool {
	return apperrors.HasCode(err, apperrors.CodeMappingMissing) ||
		apperrors.HasCode(err, apperrors.CodeMisconfigured)
}

func failureMessage(err error) string {
	if typed := apperrors.As(err); typed != nil {
		return typed.Message()
	}
	if err != nil {
		return err.Error()
	}
	return "dispatch failed"
}
