package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dukerupert/cloudlicensepro/internal/model"
	"github.com/jmoiron/sqlx"
)

type ProductStore struct {
	db *sqlx.DB
}

func NewProductStore(db *sqlx.DB) *ProductStore {
	return &ProductStore{db: db}
}

const productCols = `id, developer_id, name, description, price_cents, license_type, default_duration_days, max_activations, created_at, updated_at`

func (s *ProductStore) Create(ctx context.Context, p *model.Product) (*model.Product, error) {
	p.ID = newID()
	p.CreatedAt = now()
	p.UpdatedAt = p.CreatedAt
	if p.LicenseType == "" {
		p.LicenseType = model.TypeSingle
	}

	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO products (`+productCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		p.ID, p.DeveloperID, p.Name, p.Description, p.PriceCents, p.LicenseType,
		p.DefaultDurationDays, p.MaxActivations, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert product: %w", err)
	}
	return s.GetByID(ctx, p.ID)
}

func (s *ProductStore) GetByID(ctx context.Context, id string) (*model.Product, error) {
	var p model.Product
	err := s.db.GetContext(ctx, &p, s.db.Rebind(`SELECT `+productCols+` FROM products WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &p, nil
}

func (s *ProductStore) ListByDeveloper(ctx context.Context, developerID string) ([]model.Product, error) {
	products := []model.Product{}
	err := s.db.SelectContext(ctx, &products, s.db.Rebind(
		`SELECT `+productCols+` FROM products WHERE developer_id = ? ORDER BY name`), developerID)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

// ListAll returns every product, for reseller catalogue browsing.
func (s *ProductStore) ListAll(ctx context.Context) ([]model.Product, error) {
	products := []model.Product{}
	err := s.db.SelectContext(ctx, &products, `SELECT `+productCols+` FROM products ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list all products: %w", err)
	}
	return products, nil
}

func (s *ProductStore) Update(ctx context.Context, p *model.Product) (*model.Product, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE products SET name = ?, description = ?, price_cents = ?, license_type = ?,
		 default_duration_days = ?, max_activations = ?, updated_at = ?
		 WHERE id = ? AND developer_id = ?`),
		p.Name, p.Description, p.PriceCents, p.LicenseType,
		p.DefaultDurationDays, p.MaxActivations, now(), p.ID, p.DeveloperID,
	)
	if err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotOwner
	}
	return s.GetByID(ctx, p.ID)
}

func (s *ProductStore) Delete(ctx context.Context, developerID, id string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`DELETE FROM products WHERE id = ? AND developer_id = ?`), id, developerID)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotOwner
	}
	return nil
}
