package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/marketcore-backend/pkg/migrate"
)

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("ValidateDir: %v", err)
	}
}

func TestCommissionMigrationEnforcesSingleDefault(t *testing.T) {
	content := readMigration(t, "*_create_commission_rates.sql")
	assertContains(t, content,
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_commission_rates_single_default",
		"WHERE is_default = true AND is_active = true",
		"CHECK (rate > 0 AND rate <= 1)",
		"DROP TABLE IF EXISTS commission_rates",
	)
}

func TestEarningsMigrationGuardsSplitAndIdempotency(t *testing.T) {
	content := readMigration(t, "*_create_earnings_and_payouts.sql")
	assertContains(t, content,
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_earnings_line_vendor ON earnings (order_line_id, vendor_id)",
		"CHECK (vendor_amount_cents + commission_cents = order_amount_cents)",
		"CHECK (status <> 'completed' OR transaction_id IS NOT NULL)",
		"CHECK (status <> 'rejected' OR rejection_reason IS NOT NULL)",
		"CHECK (amount_cents > 0)",
	)
}

func TestFlashSaleMigrationBoundsSoldCount(t *testing.T) {
	content := readMigration(t, "*_create_flash_sales.sql")
	assertContains(t, content,
		"CHECK (sold_count >= 0)",
		"CHECK (max_quantity IS NULL OR sold_count <= max_quantity)",
		"ux_flash_sale_product ON flash_sale_allocations (flash_sale_id, product_id)",
	)
}

func TestReservationHoldMigrationIndexesOpenHolds(t *testing.T) {
	content := readMigration(t, "*_add_flash_sale_reservation_holds.sql")
	assertContains(t, content,
		"ADD COLUMN IF NOT EXISTS buyer_id uuid",
		"ADD COLUMN IF NOT EXISTS expires_at timestamptz",
		"WHERE order_line_id IS NULL AND released_at IS NULL",
	)
}

func TestCreateSQLMigrationWritesValidFile(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Payout Index", migrate.CreateOptions{})
	if err != nil {
		t.Fatalf("CreateSQLMigration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_payout_index.sql") {
		t.Fatalf("unexpected filename %s", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("generated migration failed validation: %v", err)
	}
}

func TestCreateSQLMigrationNoTransaction(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	path, err := migrate.CreateSQLMigration(dir, "earnings vendor index", migrate.CreateOptions{NoTransaction: true, Now: now})
	if err != nil {
		t.Fatalf("CreateSQLMigration: %v", err)
	}
	if filepath.Base(path) != "20260302100000_earnings_vendor_index.sql" {
		t.Fatalf("unexpected filename %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.HasPrefix(string(data), "-- +goose NO TRANSACTION\n") {
		t.Fatalf("expected NO TRANSACTION header, got %q", string(data))
	}

	if _, err := migrate.CreateSQLMigration(dir, "earnings vendor index", migrate.CreateOptions{Now: now}); err == nil {
		t.Fatalf("expected duplicate file to be refused")
	}
}

func TestValidateDirRejectsDroppingLedgerTables(t *testing.T) {
	dir := t.TempDir()
	body := "-- +goose Up\nDROP TABLE IF EXISTS earnings;\n-- +goose Down\nSELECT 1;\n"
	if err := os.WriteFile(filepath.Join(dir, "20260401000000_reset.sql"), []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	err := migrate.ValidateDir(dir)
	if err == nil || !strings.Contains(err.Error(), "protected table earnings") {
		t.Fatalf("expected protected table error, got %v", err)
	}
}

func TestValidateDirAllowsDropInDownSection(t *testing.T) {
	dir := t.TempDir()
	body := "-- +goose Up\nCREATE TABLE payouts (id uuid);\n-- +goose Down\nDROP TABLE IF EXISTS payouts;\n"
	if err := os.WriteFile(filepath.Join(dir, "20260401000000_payouts.sql"), []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected one migration for %s, got %d", pattern, len(matches))
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func assertContains(t *testing.T, content string, checks ...string) {
	t.Helper()
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}
