package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDispatchTasksMigrationEnforcesSinglePendingTask(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_dispatch_tasks.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no dispatch tasks migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS dispatch_tasks",
		"ux_dispatch_tasks_order_pending",
		"WHERE status = 'pending'",
		"idx_dispatch_tasks_status_run_after",
		"DROP TABLE IF EXISTS dispatch_tasks",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestWalletMigrationEnforcesIdempotencyKey(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_wallet_and_fx_tables.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no wallet migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS wallet_transactions",
		"ux_wallet_tx_user_order_cause",
		"CREATE TABLE IF NOT EXISTS fx_rates",
		"CHECK (rate > 0)",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}
