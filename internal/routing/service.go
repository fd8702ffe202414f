package routing

import (
	"context"
	stdErrors "errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/oyunkod/oyunkod-backend/pkg/db/models"
	"github.com/oyunkod/oyunkod-backend/pkg/enums"
	apperrors "github.com/oyunkod/oyunkod-backend/pkg/errors"
)

// DecisionKind tags the fulfillment branch the resolver picked.
type DecisionKind string

const (
	DecisionManual       DecisionKind = "manual"
	DecisionCodes        DecisionKind = "codes"
	DecisionChainForward DecisionKind = "chain_forward"
	DecisionExternal     DecisionKind = "external"
)

// Decision is the resolver's output. Exactly the fields of the tagged
// variant are populated; Routing carries the source row (nil when no
// routing existed) so the dispatcher can consult the fallback binding.
type Decision struct {
	Kind DecisionKind

	// Codes.
	CodeGroupID uuid.UUID

	// ChainForward.
	TargetTenantID  uuid.UUID
	TargetPackageID uuid.UUID
	TargetUserID    uuid.UUID

	// External.
	Integration       *models.Integration
	ProviderPackageID string

	Routing *models.PackageRouting
}

// HasFallback reports whether the routing row names a secondary provider
// the dispatcher may substitute once.
func (d Decision) HasFallback() bool {
	return d.Routing != nil && d.Routing.FallbackProviderID != nil
}

// Service computes the dispatch decision for an order from the tenant's
// routing configuration.
type Service interface {
	// Resolve classifies the order against its primary routing.
	Resolve(ctx context.Context, tx *gorm.DB, order *models.Order) (Decision, error)
	// ResolveFallback re-runs classification with the fallback provider
	// substituted for the primary one.
	ResolveFallback(ctx context.Context, tx *gorm.DB, order *models.Order) (Decision, error)
}

type service struct {
	repo Repository
}

// NewService wires the resolver.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("routing: repository is required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Resolve(ctx context.Context, tx *gorm.DB, order *models.Order) (Decision, error) {
	return s.resolve(ctx, tx, order, nil)
}

func (s *service) ResolveFallback(ctx context.Context, tx *gorm.DB, order *models.Order) (Decision, error) {
	repo := s.repo.WithTx(tx)
	routing, err := repo.FindActiveRouting(ctx, order.TenantID, order.PackageID)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return Decision{Kind: DecisionManual}, nil
		}
		return Decision{}, err
	}
	if routing.FallbackProviderID == nil {
		return Decision{}, apperrors.New(apperrors.CodeMisconfigured, "no fallback provider configured")
	}
	return s.resolve(ctx, tx, order, routing.FallbackProviderID)
}

// resolve is the single classification path. providerOverride, when set,
// replaces the routing row's primary provider; everything else is
// evaluated identically so a fallback pass observes the same rules.
func (s *service) resolve(ctx context.Context, tx *gorm.DB, order *models.Order, providerOverride *uuid.UUID) (Decision, error) {
	if order == nil {
		return Decision{}, apperrors.New(apperrors.CodeValidation, "order is required")
	}
	repo := s.repo.WithTx(tx)

	routing, err := repo.FindActiveRouting(ctx, order.TenantID, order.PackageID)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return Decision{Kind: DecisionManual}, nil
		}
		return Decision{}, err
	}

	if routing.Mode == enums.RoutingModeManual || routing.ProviderType == enums.RoutingProviderManual {
		return Decision{Kind: DecisionManual, Routing: routing}, nil
	}

	if routing.ProviderType.IsCodeBacked() {
		if routing.CodeGroupID == nil {
			return Decision{Kind: DecisionManual, Routing: routing}, nil
		}
		return Decision{Kind: DecisionCodes, CodeGroupID: *routing.CodeGroupID, Routing: routing}, nil
	}

	providerID := routing.PrimaryProviderID
	if providerOverride != nil {
		providerID = providerOverride
	}
	if providerID == nil {
		return Decision{Kind: DecisionManual, Routing: routing}, nil
	}

	integration, err := repo.FindIntegration(ctx, order.TenantID, *providerID)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return Decision{Kind: DecisionManual, Routing: routing}, nil
		}
		return Decision{}, err
	}
	if !integration.Enabled {
		return Decision{Kind: DecisionManual, Routing: routing}, nil
	}

	if integration.ProviderType.IsInternal() {
		return s.resolveChainForward(ctx, repo, order, integration, routing)
	}

	mapping, err := repo.FindMapping(ctx, order.TenantID, order.PackageID, integration.ID)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return Decision{}, apperrors.New(apperrors.CodeMappingMissing,
				fmt.Sprintf("no package mapping for package %s on integration %s", order.PackageID, integration.Name))
		}
		return Decision{}, err
	}

	return Decision{
		Kind:              DecisionExternal,
		Integration:       integration,
		ProviderPackageID: mapping.ProviderPackageID,
		Routing:           routing,
	}, nil
}

// resolveChainForward maps the order's package onto the target tenant's
// catalog through the shared public code and binds the target service user.
func (s *service) resolveChainForward(ctx context.Context, repo Repository, order *models.Order, integration *models.Integration, routing *models.PackageRouting) (Decision, error) {
	if integration.TargetTenantID == nil || integration.TargetUserID == nil {
		return Decision{}, apperrors.New(apperrors.CodeMisconfigured,
			fmt.Sprintf("internal integration %s lacks a chain-forward target", integration.Name))
	}
	if *integration.TargetTenantID == order.TenantID {
		return Decision{}, apperrors.New(apperrors.CodeMisconfigured,
			fmt.Sprintf("internal integration %s forwards into the order's own tenant", integration.Name))
	}

	sourcePackage, err := repo.FindPackage(ctx, order.PackageID)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return Decision{}, apperrors.New(apperrors.CodeNotFound, "order package not found")
		}
		return Decision{}, err
	}

	targetPackage, err := repo.FindPackageByPublicCode(ctx, *integration.TargetTenantID, sourcePackage.PublicCode)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return Decision{}, apperrors.New(apperrors.CodeMappingMissing,
				fmt.Sprintf("target tenant has no active package with public code %q", sourcePackage.PublicCode))
		}
		return Decision{}, err
	}

	return Decision{
		Kind:            DecisionChainForward,
		TargetTenantID:  *integration.TargetTenantID,
		TargetPackageID: targetPackage.ID,
		TargetUserID:    *integration.TargetUserID,
		Integration:     integration,
		Routing:         routing,
	}, nil
}
