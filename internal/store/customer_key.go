package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/cloudlicensepro/internal/keygen"
	"github.com/dukerupert/cloudlicensepro/internal/model"
	"github.com/jmoiron/sqlx"
)

type CustomerKeyStore struct {
	db *sqlx.DB
}

func NewCustomerKeyStore(db *sqlx.DB) *CustomerKeyStore {
	return &CustomerKeyStore{db: db}
}

const customerKeySelect = `SELECT ck.id, ck.key_code, ck.listing_id, ck.customer_email, ck.status, ck.price_cents,
	ck.created_at, ck.expires_at, COALESCE(p.name, '') AS product_name
	FROM customer_keys ck
	JOIN reseller_products rp ON rp.id = ck.listing_id
	LEFT JOIN products p ON p.id = rp.product_id`

// SellKey takes one key out of a listing's pool and issues it to
// customerEmail at the listing's retail price. The expiry follows the
// product's default duration when it has one.
func (s *CustomerKeyStore) SellKey(ctx context.Context, resellerID, listingID, customerEmail string) (*model.CustomerKey, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var listing struct {
		model.ResellerProduct
		DurationDays *int `db:"default_duration_days"`
	}
	err = tx.GetContext(ctx, &listing, tx.Rebind(
		`SELECT rp.id, rp.reseller_id, rp.product_id, rp.wholesale_cents, rp.markup_percent,
		 rp.available_keys, rp.created_at, p.name AS product_name, p.default_duration_days
		 FROM reseller_products rp JOIN products p ON p.id = rp.product_id
		 WHERE rp.id = ?`), listingID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get listing: %w", err)
	}
	if listing.ResellerID != resellerID {
		return nil, ErrNotOwner
	}

	res, err := tx.ExecContext(ctx, tx.Rebind(
		`UPDATE reseller_products SET available_keys = available_keys - 1 WHERE id = ? AND available_keys > 0`),
		listingID)
	if err != nil {
		return nil, fmt.Errorf("take key from pool: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrInsufficientStock
	}

	code, err := keygen.Resold()
	if err != nil {
		return nil, err
	}
	k := model.CustomerKey{
		ID:            newID(),
		Code:          code,
		ListingID:     listingID,
		CustomerEmail: strings.ToLower(strings.TrimSpace(customerEmail)),
		Status:        model.StatusActive,
		PriceCents:    listing.RetailCents(),
		CreatedAt:     now(),
		ProductName:   listing.ProductName,
	}
	if listing.DurationDays != nil && *listing.DurationDays > 0 {
		exp := k.CreatedAt.Add(time.Duration(*listing.DurationDays) * 24 * time.Hour)
		k.ExpiresAt = &exp
	}

	_, err = tx.ExecContext(ctx, tx.Rebind(
		`INSERT INTO customer_keys (id, key_code, listing_id, customer_email, status, price_cents, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		k.ID, k.Code, k.ListingID, k.CustomerEmail, k.Status, k.PriceCents, k.CreatedAt, k.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("insert customer key: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &k, nil
}

func (s *CustomerKeyStore) GetByID(ctx context.Context, id string) (*model.CustomerKey, error) {
	var k model.CustomerKey
	err := s.db.GetContext(ctx, &k, s.db.Rebind(customerKeySelect+` WHERE ck.id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get customer key: %w", err)
	}
	return &k, nil
}

func (s *CustomerKeyStore) ListByReseller(ctx context.Context, resellerID string) ([]model.CustomerKey, error) {
	keys := []model.CustomerKey{}
	err := s.db.SelectContext(ctx, &keys, s.db.Rebind(
		customerKeySelect+` WHERE rp.reseller_id = ? ORDER BY ck.created_at DESC`), resellerID)
	if err != nil {
		return nil, fmt.Errorf("list customer keys: %w", err)
	}
	return keys, nil
}

// UpdateStatus changes a sold key's status. Only the selling reseller may
// do so.
func (s *CustomerKeyStore) UpdateStatus(ctx context.Context, resellerID, id, status string) (*model.CustomerKey, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE customer_keys SET status = ?
		 WHERE id = ? AND listing_id IN (SELECT id FROM reseller_products WHERE reseller_id = ?)`),
		status, id, resellerID)
	if err != nil {
		return nil, fmt.Errorf("update customer key status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotOwner
	}
	return s.GetByID(ctx, id)
}
