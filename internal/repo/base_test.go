package repo

import (
	"context"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn
}

func TestNewBaseStoresConnection(t *testing.T) {
	db := newTestDB(t)
	base := NewBase(db)

	if base.db != db {
		t.Fatalf("expected base db to match provided connection")
	}
}

func TestBaseDB_BindsContext(t *testing.T) {
	db := newTestDB(t)
	base := NewBase(db)

	ctx := context.WithValue(context.Background(), struct{}{}, "value")
	withCtx := base.DB(ctx)

	if withCtx == nil {
		t.Fatalf("expected non-nil DB when context provided")
	}
	if withCtx.Statement == nil {
		t.Fatalf("expected statement created after WithContext")
	}
	if withCtx.Statement.Context != ctx {
		t.Fatalf("expected context to flow through, got %v", withCtx.Statement.Context)
	}

	withoutCtx := base.DB(nil)
	if withoutCtx != db {
		t.Fatalf("expected nil context to return raw connection")
	}
}

func TestBaseTx_PrefersTransaction(t *testing.T) {
	db := newTestDB(t)
	base := NewBase(db)

	tx := db.Session(&gorm.Session{NewDB: true})
	if got := base.Tx(context.Background(), tx); got != tx {
		t.Fatalf("expected Tx to return the supplied transaction")
	}
	if got := base.Tx(context.Background(), nil); got == nil || got == tx {
		t.Fatalf("expected Tx to fall back to the pooled connection")
	}
}

type pageRow struct {
	ID int
}

func TestPageScope(t *testing.T) {
	db := newTestDB(t)
	if err := db.AutoMigrate(&pageRow{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	for i := 1; i <= 5; i++ {
		if err := db.Create(&pageRow{ID: i}).Error; err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	var rows []pageRow
	if err := db.Order("id").Scopes(Page(2, 2)).Find(&rows).Error; err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(rows) != 2 || rows[0].ID != 3 || rows[1].ID != 4 {
		t.Fatalf("unexpected page %+v", rows)
	}

	rows = nil
	if err := db.Order("id").Scopes(Page(0, 0)).Find(&rows).Error; err != nil {
		t.Fatalf("unbounded: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("expected all rows, got %d", len(rows))
	}
}
