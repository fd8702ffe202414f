package routing

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/oyunkod/oyunkod-backend/pkg/db/models"
)

// Repository loads the configuration the resolver reads. All lookups are
// tenant-scoped; the chain-forward target package lookup is the one
// deliberate cross-tenant query.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindActiveRouting(ctx context.Context, tenantID, packageID uuid.UUID) (*models.PackageRouting, error)
	FindIntegration(ctx context.Context, tenantID, integrationID uuid.UUID) (*models.Integration, error)
	FindMapping(ctx context.Context, tenantID, packageID, integrationID uuid.UUID) (*models.PackageMapping, error)
	FindPackage(ctx context.Context, packageID uuid.UUID) (*models.Package, error)
	FindPackageByPublicCode(ctx context.Context, tenantID uuid.UUID, publicCode string) (*models.Package, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a routing repository bound to the database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindActiveRouting returns the winning active routing row. Lowest priority
// wins when a tenant configured several rows for the same package.
func (r *repository) FindActiveRouting(ctx context.Context, tenantID, packageID uuid.UUID) (*models.PackageRouting, error) {
	var routing models.PackageRouting
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND package_id = ? AND is_active = ?", tenantID, packageID, true).
		Order("priority ASC").
		First(&routing).Error
	if err != nil {
		return nil, err
	}
	return &routing, nil
}

func (r *repository) FindIntegration(ctx context.Context, tenantID, integrationID uuid.UUID) (*models.Integration, error) {
	var integration models.Integration
	err := r.db.WithContext(ctx).
		First(&integration, "id = ? AND tenant_id = ?", integrationID, tenantID).Error
	if err != nil {
		return nil, err
	}
	return &integration, nil
}

func (r *repository) FindMapping(ctx context.Context, tenantID, packageID, integrationID uuid.UUID) (*models.PackageMapping, error) {
	var mapping models.PackageMapping
	err := r.db.WithContext(ctx).
		First(&mapping, "tenant_id = ? AND package_id = ? AND integration_id = ?", tenantID, packageID, integrationID).Error
	if err != nil {
		return nil, err
	}
	return &mapping, nil
}

func (r *repository) FindPackage(ctx context.Context, packageID uuid.UUID) (*models.Package, error) {
	var pkg models.Package
	err := r.db.WithContext(ctx).
		First(&pkg, "id = ?", packageID).Error
	if err != nil {
		return nil, err
	}
	return &pkg, nil
}

func (r *repository) FindPackageByPublicCode(ctx context.Context, tenantID uuid.UUID, publicCode string) (*models.Package, error) {
	var pkg models.Package
	err := r.db.WithContext(ctx).
		First(&pkg, "tenant_id = ? AND public_code = ? AND active = ?", tenantID, publicCode, true).Error
	if err != nil {
		return nil, err
	}
	return &pkg, nil
}
