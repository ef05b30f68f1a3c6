package store

import (
	"context"
	"testing"

	"github.com/dukerupert/cloudlicensepro/internal/database"
	"github.com/dukerupert/cloudlicensepro/internal/model"
	"github.com/jmoiron/sqlx"
)

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := database.Open(database.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func intPtr(n int) *int { return &n }

func createTestProduct(t *testing.T, db *sqlx.DB, developerID, name string, priceCents int64) *model.Product {
	t.Helper()
	p, err := NewProductStore(db).Create(context.Background(), &model.Product{
		DeveloperID: developerID,
		Name:        name,
		PriceCents:  priceCents,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	return p
}
