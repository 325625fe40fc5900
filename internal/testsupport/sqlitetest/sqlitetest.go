// Package sqlitetest opens throwaway in-memory databases migrated with the
// marketplace models for repository and service tests.
package sqlitetest

import (
	"testing"
	"time"

	"github.com/angelmondragon/marketcore-backend/pkg/db"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Models lists every table the services touch, in dependency order.
func Models() []any {
	return []any{
		&models.Product{},
		&models.VendorAccount{},
		&models.Order{},
		&models.OrderLine{},
		&models.OrderStatusHistory{},
		&models.CommissionRate{},
		&models.Payout{},
		&models.Earning{},
		&models.FlashSaleAllocation{},
		&models.FlashSaleReservation{},
		&models.Notification{},
		&models.OutboxEvent{},
		&models.OutboxDLQ{},
	}
}

// Open returns a db.Client over a fresh named in-memory database. Each call
// gets its own database so parallel tests never share rows.
func Open(t testing.TB) *db.Client {
	t.Helper()
	dsn := "file:mc_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Discard,
		// sqlite compares timestamps as text, so every stored time must share a zone.
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(Models()...); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// One connection serializes writers the way row locks would on Postgres.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db.NewFromConn(conn, nil)
}
