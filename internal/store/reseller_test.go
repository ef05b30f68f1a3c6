package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dukerupert/cloudlicensepro/internal/model"
)

func setupResellerTestDB(t *testing.T) (*ResellerStore, *CustomerKeyStore, *model.Reseller, *model.ResellerProduct) {
	t.Helper()
	db := openTestDB(t)
	ctx := context.Background()

	p, err := NewProductStore(db).Create(ctx, &model.Product{
		DeveloperID:         "dev-1",
		Name:                "Editor",
		PriceCents:          10000,
		DefaultDurationDays: intPtr(30),
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	rs := NewResellerStore(db)
	r, err := rs.Create(ctx, "user-r1", "Acme Resale", "sales@acme.test", 30)
	if err != nil {
		t.Fatalf("create reseller: %v", err)
	}
	listing, err := rs.CreateListing(ctx, r.ID, p.ID, 20)
	if err != nil {
		t.Fatalf("create listing: %v", err)
	}
	return rs, NewCustomerKeyStore(db), r, listing
}

func TestResellerListingPrices(t *testing.T) {
	_, _, _, listing := setupResellerTestDB(t)

	if listing.WholesaleCents != 7000 {
		t.Errorf("wholesale_cents = %d, want 7000", listing.WholesaleCents)
	}
	if listing.RetailCents() != 8400 {
		t.Errorf("retail = %d, want 8400", listing.RetailCents())
	}
	if listing.AvailableKeys != 0 {
		t.Errorf("available_keys = %d, want 0", listing.AvailableKeys)
	}
	if listing.ProductName != "Editor" {
		t.Errorf("product_name = %q, want %q", listing.ProductName, "Editor")
	}
}

func TestResellerPurchaseAndSell(t *testing.T) {
	rs, cks, r, listing := setupResellerTestDB(t)
	ctx := context.Background()

	// Empty pool
	if _, err := cks.SellKey(ctx, r.ID, listing.ID, "buyer@example.com"); !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("sell from empty pool: err = %v, want ErrInsufficientStock", err)
	}

	purchase, err := rs.PurchaseInventory(ctx, r.ID, listing.ID, 2)
	if err != nil {
		t.Fatalf("purchase inventory: %v", err)
	}
	if purchase.TotalCents != 14000 {
		t.Errorf("total_cents = %d, want 14000", purchase.TotalCents)
	}

	k, err := cks.SellKey(ctx, r.ID, listing.ID, " Buyer@Example.com")
	if err != nil {
		t.Fatalf("sell key: %v", err)
	}
	if !strings.HasPrefix(k.Code, "RS-") {
		t.Errorf("key %q does not start with RS-", k.Code)
	}
	if k.PriceCents != 8400 {
		t.Errorf("price_cents = %d, want 8400", k.PriceCents)
	}
	if k.CustomerEmail != "buyer@example.com" {
		t.Errorf("customer_email = %q, want %q", k.CustomerEmail, "buyer@example.com")
	}
	if k.ExpiresAt == nil {
		t.Fatal("expected expiry from product duration")
	}
	if d := k.ExpiresAt.Sub(k.CreatedAt); d != 30*24*time.Hour {
		t.Errorf("duration = %v, want 720h", d)
	}

	got, err := rs.GetListing(ctx, listing.ID)
	if err != nil {
		t.Fatalf("get listing: %v", err)
	}
	if got.AvailableKeys != 1 {
		t.Errorf("available_keys = %d, want 1", got.AvailableKeys)
	}

	sum, err := rs.Summary(ctx, r.ID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.KeysSold != 1 || sum.RevenueCents != 8400 || sum.SpentCents != 14000 || sum.KeysInStock != 1 {
		t.Errorf("summary = %+v", sum)
	}

	keys, err := cks.ListByReseller(ctx, r.ID)
	if err != nil {
		t.Fatalf("list keys: %v", err)
	}
	if len(keys) != 1 || keys[0].ProductName != "Editor" {
		t.Errorf("keys = %+v, want one Editor key", keys)
	}
}

func TestResellerOwnership(t *testing.T) {
	rs, cks, r, listing := setupResellerTestDB(t)
	ctx := context.Background()

	other, err := rs.Create(ctx, "user-r2", "Other", "o@example.com", 10)
	if err != nil {
		t.Fatalf("create other reseller: %v", err)
	}
	if _, err := rs.PurchaseInventory(ctx, other.ID, listing.ID, 1); !errors.Is(err, ErrNotOwner) {
		t.Errorf("purchase by other: err = %v, want ErrNotOwner", err)
	}

	rs.PurchaseInventory(ctx, r.ID, listing.ID, 1)
	if _, err := cks.SellKey(ctx, other.ID, listing.ID, "x@example.com"); !errors.Is(err, ErrNotOwner) {
		t.Errorf("sell by other: err = %v, want ErrNotOwner", err)
	}

	k, err := cks.SellKey(ctx, r.ID, listing.ID, "x@example.com")
	if err != nil {
		t.Fatalf("sell key: %v", err)
	}
	if _, err := cks.UpdateStatus(ctx, other.ID, k.ID, model.StatusRevoked); !errors.Is(err, ErrNotOwner) {
		t.Errorf("update by other: err = %v, want ErrNotOwner", err)
	}
	updated, err := cks.UpdateStatus(ctx, r.ID, k.ID, model.StatusRevoked)
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if updated.Status != model.StatusRevoked {
		t.Errorf("status = %q, want %q", updated.Status, model.StatusRevoked)
	}
}

func TestResellerGetByUserID(t *testing.T) {
	rs, _, r, _ := setupResellerTestDB(t)
	ctx := context.Background()

	got, err := rs.GetByUserID(ctx, "user-r1")
	if err != nil {
		t.Fatalf("get by user: %v", err)
	}
	if got == nil || got.ID != r.ID {
		t.Fatalf("got %+v, want reseller %s", got, r.ID)
	}
	missing, err := rs.GetByUserID(ctx, "nobody")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for unknown user")
	}
}

func TestResellerDuplicateListing(t *testing.T) {
	rs, _, r, listing := setupResellerTestDB(t)

	_, err := rs.CreateListing(context.Background(), r.ID, listing.ProductID, 5)
	if !errors.Is(err, ErrDuplicateListing) {
		t.Errorf("err = %v, want ErrDuplicateListing", err)
	}
}
