// Package dbtest opens a migrated in-memory SQLite twin of the circulation
// schema and seeds it. It is imported only from tests.
package dbtest

import (
	"context"
	"testing"

	"library_circulation/db"
	"library_circulation/models"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// Open returns a fresh database on a single connection, so transactions are
// serialised the way row locks would serialise them in postgres.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), db.Config())
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.Migrate(gdb))
	return gdb
}

func Book(t testing.TB, gdb *gorm.DB, tenantID, bookID string, quantity, available int) *models.Book {
	t.Helper()
	b := &models.Book{ID: bookID, TenantID: tenantID, Title: "Book " + bookID, Quantity: quantity, Available: available}
	require.NoError(t, gdb.Create(b).Error)
	return b
}

func Member(t testing.TB, gdb *gorm.DB, tenantID, userID, role string) *models.Member {
	t.Helper()
	m := &models.Member{TenantID: tenantID, UserID: userID, Email: userID + "@school.test", Role: role}
	require.NoError(t, gdb.Create(m).Error)
	return m
}

// Policy stores p for its tenant before first use.
func Policy(t testing.TB, gdb *gorm.DB, p models.PolicySettings) {
	t.Helper()
	require.NoError(t, gdb.Create(&p).Error)
}

func Available(t testing.TB, gdb *gorm.DB, tenantID, bookID string) int {
	t.Helper()
	var b models.Book
	require.NoError(t, gdb.WithContext(context.Background()).First(&b, "tenant_id = ? AND id = ?", tenantID, bookID).Error)
	return b.Available
}

func LoadMember(t testing.TB, gdb *gorm.DB, tenantID, userID string) models.Member {
	t.Helper()
	var m models.Member
	require.NoError(t, gdb.First(&m, "tenant_id = ? AND user_id = ?", tenantID, userID).Error)
	return m
}

func Money(v int64) decimal.Decimal { return decimal.NewFromInt(v) }
