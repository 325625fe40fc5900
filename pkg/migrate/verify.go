package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// RequiredTables are the tables the settlement core cannot run without.
var RequiredTables = []string{
	"orders",
	"order_lines",
	"order_status_history",
	"commission_rates",
	"earnings",
	"payouts",
	"flash_sale_allocations",
	"flash_sale_reservations",
	"outbox_events",
}

// Verify reports every required table missing from the public schema.
func Verify(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	var missing []string
	for _, table := range RequiredTables {
		var exists bool
		err := db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1)`,
			table,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check table %s: %w", table, err)
		}
		if !exists {
			missing = append(missing, table)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("schema incomplete, missing tables: %s", strings.Join(missing, ", "))
	}
	return nil
}
