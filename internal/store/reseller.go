package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dukerupert/cloudlicensepro/internal/model"
	"github.com/jmoiron/sqlx"
)

type ResellerStore struct {
	db *sqlx.DB
}

func NewResellerStore(db *sqlx.DB) *ResellerStore {
	return &ResellerStore{db: db}
}

const resellerCols = `id, user_id, name, email, discount_percent, created_at`

const listingSelect = `SELECT rp.id, rp.reseller_id, rp.product_id, rp.wholesale_cents, rp.markup_percent,
	rp.available_keys, rp.created_at, COALESCE(p.name, '') AS product_name
	FROM reseller_products rp
	LEFT JOIN products p ON p.id = rp.product_id`

func (s *ResellerStore) Create(ctx context.Context, userID, name, email string, discountPercent int) (*model.Reseller, error) {
	if discountPercent < 0 || discountPercent > 100 {
		return nil, fmt.Errorf("create reseller: discount %d out of range", discountPercent)
	}
	r := model.Reseller{
		ID:              newID(),
		UserID:          userID,
		Name:            name,
		Email:           email,
		DiscountPercent: discountPercent,
		CreatedAt:       now(),
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO resellers (`+resellerCols+`) VALUES (?, ?, ?, ?, ?, ?)`),
		r.ID, r.UserID, r.Name, r.Email, r.DiscountPercent, r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert reseller: %w", err)
	}
	return &r, nil
}

func (s *ResellerStore) GetByID(ctx context.Context, id string) (*model.Reseller, error) {
	var r model.Reseller
	err := s.db.GetContext(ctx, &r, s.db.Rebind(`SELECT `+resellerCols+` FROM resellers WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reseller: %w", err)
	}
	return &r, nil
}

// GetByUserID finds the reseller profile of an authenticated user.
func (s *ResellerStore) GetByUserID(ctx context.Context, userID string) (*model.Reseller, error) {
	var r model.Reseller
	err := s.db.GetContext(ctx, &r, s.db.Rebind(`SELECT `+resellerCols+` FROM resellers WHERE user_id = ?`), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reseller by user: %w", err)
	}
	return &r, nil
}

// CreateListing lists a product for resale. The wholesale price is the
// product price less the reseller's discount.
func (s *ResellerStore) CreateListing(ctx context.Context, resellerID, productID string, markupPercent int) (*model.ResellerProduct, error) {
	if markupPercent < 0 {
		return nil, fmt.Errorf("create listing: negative markup %d", markupPercent)
	}
	var src struct {
		PriceCents      int64 `db:"price_cents"`
		DiscountPercent int   `db:"discount_percent"`
	}
	err := s.db.GetContext(ctx, &src, s.db.Rebind(
		`SELECT p.price_cents, r.discount_percent FROM products p, resellers r WHERE p.id = ? AND r.id = ?`),
		productID, resellerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get listing prices: %w", err)
	}

	id := newID()
	_, err = s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO reseller_products (id, reseller_id, product_id, wholesale_cents, markup_percent, available_keys, created_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?)`),
		id, resellerID, productID, model.WholesaleCents(src.PriceCents, src.DiscountPercent), markupPercent, now())
	if isUniqueViolation(err) {
		return nil, ErrDuplicateListing
	}
	if err != nil {
		return nil, fmt.Errorf("insert listing: %w", err)
	}
	return s.GetListing(ctx, id)
}

func (s *ResellerStore) GetListing(ctx context.Context, id string) (*model.ResellerProduct, error) {
	var rp model.ResellerProduct
	err := s.db.GetContext(ctx, &rp, s.db.Rebind(listingSelect+` WHERE rp.id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get listing: %w", err)
	}
	return &rp, nil
}

func (s *ResellerStore) ListListings(ctx context.Context, resellerID string) ([]model.ResellerProduct, error) {
	listings := []model.ResellerProduct{}
	err := s.db.SelectContext(ctx, &listings, s.db.Rebind(
		listingSelect+` WHERE rp.reseller_id = ? ORDER BY product_name`), resellerID)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	return listings, nil
}

// PurchaseInventory adds quantity keys to a listing's pool and records the
// purchase at the wholesale price.
func (s *ResellerStore) PurchaseInventory(ctx context.Context, resellerID, listingID string, quantity int) (*model.ResellerPurchase, error) {
	if quantity < 1 {
		return nil, fmt.Errorf("purchase inventory: quantity must be positive, got %d", quantity)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var listing model.ResellerProduct
	err = tx.GetContext(ctx, &listing, tx.Rebind(listingSelect+` WHERE rp.id = ?`), listingID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get listing: %w", err)
	}
	if listing.ResellerID != resellerID {
		return nil, ErrNotOwner
	}

	if _, err := tx.ExecContext(ctx, tx.Rebind(
		`UPDATE reseller_products SET available_keys = available_keys + ? WHERE id = ?`),
		quantity, listingID); err != nil {
		return nil, fmt.Errorf("add inventory: %w", err)
	}

	p := model.ResellerPurchase{
		ID:         newID(),
		ResellerID: resellerID,
		ListingID:  listingID,
		Quantity:   quantity,
		UnitCents:  listing.WholesaleCents,
		TotalCents: listing.WholesaleCents * int64(quantity),
		CreatedAt:  now(),
	}
	_, err = tx.ExecContext(ctx, tx.Rebind(
		`INSERT INTO reseller_purchases (id, reseller_id, listing_id, quantity, unit_cents, total_cents, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`),
		p.ID, p.ResellerID, p.ListingID, p.Quantity, p.UnitCents, p.TotalCents, p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert purchase: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &p, nil
}

// Summary totals a reseller's sales, spend and remaining stock.
func (s *ResellerStore) Summary(ctx context.Context, resellerID string) (*model.SalesSummary, error) {
	var sum model.SalesSummary
	err := s.db.GetContext(ctx, &sum, s.db.Rebind(
		`SELECT
			(SELECT COUNT(*) FROM customer_keys ck JOIN reseller_products rp ON rp.id = ck.listing_id WHERE rp.reseller_id = ?) AS keys_sold,
			(SELECT COALESCE(SUM(ck.price_cents), 0) FROM customer_keys ck JOIN reseller_products rp ON rp.id = ck.listing_id WHERE rp.reseller_id = ?) AS revenue_cents,
			(SELECT COALESCE(SUM(total_cents), 0) FROM reseller_purchases WHERE reseller_id = ?) AS spent_cents,
			(SELECT COALESCE(SUM(available_keys), 0) FROM reseller_products WHERE reseller_id = ?) AS keys_in_stock`),
		resellerID, resellerID, resellerID, resellerID)
	if err != nil {
		return nil, fmt.Errorf("reseller summary: %w", err)
	}
	return &sum, nil
}
