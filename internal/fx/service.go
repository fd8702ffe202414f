package fx

import (
	"context"
	stdErrors "errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/oyunkod/oyunkod-backend/pkg/db/models"
	apperrors "github.com/oyunkod/oyunkod-backend/pkg/errors"
	"github.com/oyunkod/oyunkod-backend/pkg/logger"
	redispkg "github.com/oyunkod/oyunkod-backend/pkg/redis"
)

const (
	pairBase  = "USD"
	pairQuote = "TRY"

	cacheTTL = 5 * time.Minute
)

// Service hands out the USD/TRY snapshot the dispatcher stamps on orders
// when cost enforcement is on. Reads go through a short-lived Redis cache;
// the fx_rates table is the source of truth.
type Service interface {
	USDTRY(ctx context.Context) (decimal.Decimal, error)
	Store(ctx context.Context, rate decimal.Decimal, fetchedAt time.Time) error
}

type cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FxKey(base, quote string) string
}

type service struct {
	db    *gorm.DB
	cache cache
	logg  *logger.Logger
}

// NewService wires the FX snapshot service. cacheClient may be nil; reads
// then always hit the database.
func NewService(db *gorm.DB, cacheClient *redispkg.Client, logg *logger.Logger) (Service, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	svc := &service{db: db, logg: logg}
	if cacheClient != nil {
		svc.cache = cacheClient
	}
	return svc, nil
}

func (s *service) USDTRY(ctx context.Context) (decimal.Decimal, error) {
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, s.cache.FxKey(pairBase, pairQuote))
		if err == nil {
			if rate, parseErr := decimal.NewFromString(raw); parseErr == nil && rate.IsPositive() {
				return rate, nil
			}
		} else if !redispkg.IsNil(err) {
			s.logg.Warn(ctx, "fx cache read failed, falling back to database")
		}
	}

	var row models.FxRate
	err := s.db.WithContext(ctx).
		Where("base = ? AND quote = ?", pairBase, pairQuote).
		Order("fetched_at DESC").
		First(&row).Error
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, apperrors.New(apperrors.CodeDependency, "no USD/TRY rate available")
		}
		return decimal.Zero, err
	}
	if !row.Rate.IsPositive() {
		return decimal.Zero, apperrors.New(apperrors.CodeInvariant, "stored USD/TRY rate is not positive")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, s.cache.FxKey(pairBase, pairQuote), row.Rate.String(), cacheTTL); err != nil {
			s.logg.Warn(ctx, "fx cache write failed")
		}
	}
	return row.Rate, nil
}

// Store appends a new snapshot row and refreshes the cache.
func (s *service) Store(ctx context.Context, rate decimal.Decimal, fetchedAt time.Time) error {
	if !rate.IsPositive() {
		return apperrors.New(apperrors.CodeValidation, "rate must be positive")
	}
	if fetchedAt.IsZero() {
		fetchedAt = time.Now()
	}
	row := models.FxRate{
		Base:      pairBase,
		Quote:     pairQuote,
		Rate:      rate,
		FetchedAt: fetchedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, s.cache.FxKey(pairBase, pairQuote), rate.String(), cacheTTL); err != nil {
			s.logg.Warn(ctx, "fx cache write failed")
		}
	}
	return nil
}
