package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dukerupert/cloudlicensepro/internal/model"
	"github.com/jmoiron/sqlx"
)

type CustomerStore struct {
	db *sqlx.DB
}

func NewCustomerStore(db *sqlx.DB) *CustomerStore {
	return &CustomerStore{db: db}
}

const customerCols = `id, developer_id, name, email, created_at`

func (s *CustomerStore) Create(ctx context.Context, developerID, name, email string) (*model.Customer, error) {
	c := model.Customer{
		ID:          newID(),
		DeveloperID: developerID,
		Name:        name,
		Email:       strings.ToLower(strings.TrimSpace(email)),
		CreatedAt:   now(),
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO customers (`+customerCols+`) VALUES (?, ?, ?, ?, ?)`),
		c.ID, c.DeveloperID, c.Name, c.Email, c.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert customer: %w", err)
	}
	return &c, nil
}

func (s *CustomerStore) GetByID(ctx context.Context, id string) (*model.Customer, error) {
	var c model.Customer
	err := s.db.GetContext(ctx, &c, s.db.Rebind(`SELECT `+customerCols+` FROM customers WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}
	return &c, nil
}

func (s *CustomerStore) GetByEmail(ctx context.Context, developerID, email string) (*model.Customer, error) {
	var c model.Customer
	err := s.db.GetContext(ctx, &c, s.db.Rebind(
		`SELECT `+customerCols+` FROM customers WHERE developer_id = ? AND email = ?`),
		developerID, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get customer by email: %w", err)
	}
	return &c, nil
}

// FindOrCreate returns the developer's customer with email, creating it
// when absent.
func (s *CustomerStore) FindOrCreate(ctx context.Context, developerID, name, email string) (*model.Customer, error) {
	c, err := s.GetByEmail(ctx, developerID, email)
	if err != nil || c != nil {
		return c, err
	}
	return s.Create(ctx, developerID, name, email)
}

func (s *CustomerStore) ListByDeveloper(ctx context.Context, developerID string) ([]model.Customer, error) {
	customers := []model.Customer{}
	err := s.db.SelectContext(ctx, &customers, s.db.Rebind(
		`SELECT `+customerCols+` FROM customers WHERE developer_id = ? ORDER BY name, email`), developerID)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	return customers, nil
}
