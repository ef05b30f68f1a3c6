package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/cloudlicensepro/internal/licensecheck"
	"github.com/jmoiron/sqlx"
)

// LookupStore answers the single-record queries of the license validator.
type LookupStore struct {
	db *sqlx.DB
}

func NewLookupStore(db *sqlx.DB) *LookupStore {
	return &LookupStore{db: db}
}

var _ licensecheck.Source = (*LookupStore)(nil)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// predicate renders the key comparison for column. Case-insensitive
// matching uses ILIKE on Postgres and LIKE on SQLite, whose LIKE already
// ignores ASCII case. The value carries no wildcards.
func (s *LookupStore) predicate(column string, q licensecheck.Query) (string, any) {
	if q.Match == licensecheck.MatchExact {
		return column + " = ?", q.Value
	}
	op := "LIKE"
	if s.db.DriverName() == "postgres" {
		op = "ILIKE"
	}
	return column + " " + op + ` ? ESCAPE '\'`, escapeLike(q.Value)
}

type licenseRow struct {
	ID             string     `db:"id"`
	Key            string     `db:"license_key"`
	Status         string     `db:"status"`
	Type           string     `db:"license_type"`
	ExpiresAt      *time.Time `db:"expires_at"`
	MaxActivations *int       `db:"max_activations"`
	ProductID      *string    `db:"product_id"`
	ProductName    *string    `db:"product_name"`
	CustomerID     *string    `db:"customer_id"`
	CustomerName   *string    `db:"customer_name"`
	CustomerEmail  *string    `db:"customer_email"`
}

func (s *LookupStore) FindLicense(ctx context.Context, q licensecheck.Query) (*licensecheck.DirectLicense, error) {
	pred, arg := s.predicate("l.license_key", q)
	args := []any{arg}
	query := `SELECT l.id, l.license_key, l.status, l.license_type, l.expires_at, l.max_activations,
		p.id AS product_id, p.name AS product_name,
		c.id AS customer_id, c.name AS customer_name, c.email AS customer_email
		FROM licenses l
		LEFT JOIN products p ON p.id = l.product_id
		LEFT JOIN customers c ON c.id = l.customer_id
		WHERE ` + pred
	if q.ProductID != "" {
		query += ` AND l.product_id = ?`
		args = append(args, q.ProductID)
	}
	query += ` LIMIT 1`

	var row licenseRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find license: %w", err)
	}

	lic := &licensecheck.DirectLicense{
		ID:             row.ID,
		Key:            row.Key,
		Status:         row.Status,
		Type:           row.Type,
		ExpiresAt:      row.ExpiresAt,
		MaxActivations: row.MaxActivations,
	}
	if row.ProductID != nil {
		lic.Product = &licensecheck.ProductRef{ID: *row.ProductID, Name: deref(row.ProductName)}
	}
	if row.CustomerID != nil {
		lic.Customer = &licensecheck.CustomerRef{Name: deref(row.CustomerName), Email: deref(row.CustomerEmail)}
	}

	lic.Activations, err = s.activations(ctx, row.ID)
	if err != nil {
		return nil, err
	}
	return lic, nil
}

func (s *LookupStore) activations(ctx context.Context, licenseID string) ([]licensecheck.Activation, error) {
	var rows []struct {
		ID          string     `db:"id"`
		MachineID   string     `db:"machine_id"`
		ActivatedAt time.Time  `db:"activated_at"`
		LastSeenAt  *time.Time `db:"last_seen_at"`
	}
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(
		`SELECT id, machine_id, activated_at, last_seen_at FROM activations WHERE license_id = ? ORDER BY activated_at`),
		licenseID)
	if err != nil {
		return nil, fmt.Errorf("find activations: %w", err)
	}
	out := make([]licensecheck.Activation, 0, len(rows))
	for _, r := range rows {
		out = append(out, licensecheck.Activation{
			ID:          r.ID,
			MachineID:   r.MachineID,
			ActivatedAt: r.ActivatedAt,
			LastSeenAt:  r.LastSeenAt,
		})
	}
	return out, nil
}

type resoldRow struct {
	ID          string     `db:"id"`
	Code        string     `db:"key_code"`
	Status      string     `db:"status"`
	CreatedAt   time.Time  `db:"created_at"`
	ExpiresAt   *time.Time `db:"expires_at"`
	ResellerID  *string    `db:"reseller_id"`
	ProductID   *string    `db:"product_id"`
	ProductName *string    `db:"product_name"`
}

// FindResoldKey follows customer key → listing → product. ProductID on q
// is ignored; resold lookups are never scoped.
func (s *LookupStore) FindResoldKey(ctx context.Context, q licensecheck.Query) (*licensecheck.ResoldKey, error) {
	pred, arg := s.predicate("ck.key_code", q)
	query := `SELECT ck.id, ck.key_code, ck.status, ck.created_at, ck.expires_at,
		rp.reseller_id, p.id AS product_id, p.name AS product_name
		FROM customer_keys ck
		LEFT JOIN reseller_products rp ON rp.id = ck.listing_id
		LEFT JOIN products p ON p.id = rp.product_id
		WHERE ` + pred + ` LIMIT 1`

	var row resoldRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(query), arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find resold key: %w", err)
	}

	k := &licensecheck.ResoldKey{
		ID:         row.ID,
		Code:       row.Code,
		Status:     row.Status,
		CreatedAt:  row.CreatedAt,
		ExpiresAt:  row.ExpiresAt,
		ResellerID: deref(row.ResellerID),
	}
	if row.ProductID != nil {
		k.Product = &licensecheck.ProductRef{ID: *row.ProductID, Name: deref(row.ProductName)}
	}
	return k, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
