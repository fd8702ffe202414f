package flags

import (
	"context"
	"errors"
	"testing"

	"github.com/oyunkod/oyunkod-backend/pkg/config"
	"github.com/oyunkod/oyunkod-backend/pkg/logger"
)

type fakeStore struct {
	values map[string]string
	getErr error
}

func (f *fakeStore) Get(ctx context.Context, key string) (string, error) {
	if f.getErr != nil {
		return "", f.getErr
	}
	if v, ok := f.values[key]; ok {
		return v, nil
	}
	return "", errors.New("redis: nil")
}

func (f *fakeStore) Set(ctx context.Context, key string, value any, _ int64) error {
	if f.values == nil {
		f.values = map[string]string{}
	}
	f.values[key] = value.(string)
	return nil
}

func (f *fakeStore) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.values, key)
	}
	return nil
}

func (f *fakeStore) FlagKey(name string) string {
	return "oyk:flag:" + name
}

func newFlagService(t *testing.T, defaults config.FeatureFlagsConfig, st store) *service {
	t.Helper()
	svc, err := NewService(defaults, nil, logger.New(logger.Options{ServiceName: "test"}))
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	impl := svc.(*service)
	impl.store = st
	return impl
}

func TestSnapshot_DefaultsWithoutOverrides(t *testing.T) {
	defaults := config.FeatureFlagsConfig{ChainStatusPropagation: true}
	svc := newFlagService(t, defaults, nil)

	snap := svc.Snapshot(context.Background())
	if snap.USDCostEnforcement {
		t.Fatal("usd cost enforcement should default off")
	}
	if !snap.ChainStatusPropagation {
		t.Fatal("chain status propagation should default on")
	}
}

func TestSnapshot_RedisOverrideWins(t *testing.T) {
	defaults := config.FeatureFlagsConfig{ChainStatusPropagation: true}
	st := &fakeStore{values: map[string]string{
		"oyk:flag:chain_status_propagation": "0",
		"oyk:flag:usd_cost_enforcement":     "1",
	}}
	svc := newFlagService(t, defaults, st)

	snap := svc.Snapshot(context.Background())
	if snap.ChainStatusPropagation {
		t.Fatal("override should disable chain status propagation")
	}
	if !snap.USDCostEnforcement {
		t.Fatal("override should enable usd cost enforcement")
	}
}

func TestSnapshot_MalformedOverrideFallsBack(t *testing.T) {
	defaults := config.FeatureFlagsConfig{AutoFallbackRouting: true}
	st := &fakeStore{values: map[string]string{
		"oyk:flag:auto_fallback_routing": "maybe",
	}}
	svc := newFlagService(t, defaults, st)

	snap := svc.Snapshot(context.Background())
	if !snap.AutoFallbackRouting {
		t.Fatal("malformed override should fall back to default")
	}
}

func TestSnapshot_RedisErrorFallsBack(t *testing.T) {
	defaults := config.FeatureFlagsConfig{ZnetSimulate: true}
	st := &fakeStore{getErr: errors.New("connection refused")}
	svc := newFlagService(t, defaults, st)

	snap := svc.Snapshot(context.Background())
	if !snap.ZnetSimulate {
		t.Fatal("redis outage should not change effective flags")
	}
}

func TestSetAndClear_ValidateFlagNames(t *testing.T) {
	st := &fakeStore{}
	svc := newFlagService(t, config.FeatureFlagsConfig{}, st)
	ctx := context.Background()

	if err := svc.Set(ctx, "unknown_flag", true); err == nil {
		t.Fatal("unknown flag should be rejected")
	}
	if err := svc.Set(ctx, FlagZnetSimulate, true); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if st.values["oyk:flag:znet_simulate"] != "1" {
		t.Fatalf("unexpected stored value: %q", st.values["oyk:flag:znet_simulate"])
	}
	if err := svc.Clear(ctx, FlagZnetSimulate); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if _, ok := st.values["oyk:flag:znet_simulate"]; ok {
		t.Fatal("clear should remove the override")
	}
}
