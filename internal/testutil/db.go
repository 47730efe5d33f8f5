// Package testutil opens throwaway databases for package tests.
package testutil

import (
	"fmt"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	auditdomain "github.com/smallbiznis/rentledger/internal/audit/domain"
	ledgerdomain "github.com/smallbiznis/rentledger/internal/ledger/domain"
	referencedomain "github.com/smallbiznis/rentledger/internal/reference/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenDB returns an in-memory sqlite database private to t with the ledger
// schema migrated. The pool holds a single connection so transactions
// serialize the way row locks would on postgres.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(
		&ledgerdomain.LedgerDocument{},
		&ledgerdomain.Payment{},
		&referencedomain.ReferenceNumber{},
		&auditdomain.AuditLog{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}
