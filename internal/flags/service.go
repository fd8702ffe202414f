package flags

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/oyunkod/oyunkod-backend/pkg/config"
	"github.com/oyunkod/oyunkod-backend/pkg/logger"
	redispkg "github.com/oyunkod/oyunkod-backend/pkg/redis"
)

// Flag names accepted as Redis overrides.
const (
	FlagUSDCostEnforcement     = "usd_cost_enforcement"
	FlagChainStatusPropagation = "chain_status_propagation"
	FlagAutoFallbackRouting    = "auto_fallback_routing"
	FlagZnetSimulate           = "znet_simulate"
)

// Snapshot is a point-in-time read of every runtime flag. Callers resolve
// one snapshot per unit of work so a mid-flight override flip cannot split
// a transaction's behavior.
type Snapshot struct {
	USDCostEnforcement     bool
	ChainStatusPropagation bool
	AutoFallbackRouting    bool
	ZnetSimulate           bool
}

// Service resolves runtime feature flags.
type Service interface {
	Snapshot(ctx context.Context) Snapshot
	Set(ctx context.Context, name string, enabled bool) error
	Clear(ctx context.Context, name string) error
}

type store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl int64) error
	Del(ctx context.Context, keys ...string) error
	FlagKey(name string) string
}

// redisStore adapts the shared client to the narrow surface used here.
type redisStore struct {
	client *redispkg.Client
}

func (r redisStore) Get(ctx context.Context, key string) (string, error) {
	return r.client.Get(ctx, key)
}

func (r redisStore) Set(ctx context.Context, key string, value any, _ int64) error {
	return r.client.Set(ctx, key, value, 0)
}

func (r redisStore) Del(ctx context.Context, keys ...string) error {
	return r.client.Del(ctx, keys...)
}

func (r redisStore) FlagKey(name string) string {
	return r.client.FlagKey(name)
}

type service struct {
	defaults config.FeatureFlagsConfig
	store    store
	logg     *logger.Logger
}

// NewService wires the flag gate. The Redis client may be nil, in which
// case the static defaults are authoritative.
func NewService(defaults config.FeatureFlagsConfig, client *redispkg.Client, logg *logger.Logger) (Service, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	var st store
	if client != nil {
		st = redisStore{client: client}
	}
	return &service{defaults: defaults, store: st, logg: logg}, nil
}

func (s *service) Snapshot(ctx context.Context) Snapshot {
	snap := Snapshot{
		USDCostEnforcement:     s.defaults.USDCostEnforcement,
		ChainStatusPropagation: s.defaults.ChainStatusPropagation,
		AutoFallbackRouting:    s.defaults.AutoFallbackRouting,
		ZnetSimulate:           s.defaults.ZnetSimulate,
	}
	if s.store == nil {
		return snap
	}
	snap.USDCostEnforcement = s.resolve(ctx, FlagUSDCostEnforcement, snap.USDCostEnforcement)
	snap.ChainStatusPropagation = s.resolve(ctx, FlagChainStatusPropagation, snap.ChainStatusPropagation)
	snap.AutoFallbackRouting = s.resolve(ctx, FlagAutoFallbackRouting, snap.AutoFallbackRouting)
	snap.ZnetSimulate = s.resolve(ctx, FlagZnetSimulate, snap.ZnetSimulate)
	return snap
}

// resolve returns the Redis override when one is set, the fallback
// otherwise. Redis trouble degrades to the static default.
func (s *service) resolve(ctx context.Context, name string, fallback bool) bool {
	raw, err := s.store.Get(ctx, s.store.FlagKey(name))
	if err != nil {
		if !redispkg.IsNil(err) {
			s.logg.Warn(ctx, fmt.Sprintf("flag override lookup failed for %s", name))
		}
		return fallback
	}
	parsed, err := parseBool(raw)
	if err != nil {
		s.logg.Warn(ctx, fmt.Sprintf("ignoring malformed flag override for %s", name))
		return fallback
	}
	return parsed
}

func (s *service) Set(ctx context.Context, name string, enabled bool) error {
	if s.store == nil {
		return fmt.Errorf("flag overrides require redis")
	}
	if !isKnownFlag(name) {
		return fmt.Errorf("unknown flag %q", name)
	}
	value := "0"
	if enabled {
		value = "1"
	}
	return s.store.Set(ctx, s.store.FlagKey(name), value, 0)
}

func (s *service) Clear(ctx context.Context, name string) error {
	if s.store == nil {
		return fmt.Errorf("flag overrides require redis")
	}
	if !isKnownFlag(name) {
		return fmt.Errorf("unknown flag %q", name)
	}
	return s.store.Del(ctx, s.store.FlagKey(name))
}

func isKnownFlag(name string) bool {
	switch name {
	case FlagUSDCostEnforcement, FlagChainStatusPropagation,
		FlagAutoFallbackRouting, FlagZnetSimulate:
		return true
	default:
		return false
	}
}

func parseBool(raw string) (bool, error) {
	return strconv.ParseBool(strings.TrimSpace(raw))
}
