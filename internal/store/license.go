package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dukerupert/cloudlicensepro/internal/keygen"
	"github.com/dukerupert/cloudlicensepro/internal/model"
	"github.com/jmoiron/sqlx"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type LicenseStore struct {
	db *sqlx.DB
}

func NewLicenseStore(db *sqlx.DB) *LicenseStore {
	return &LicenseStore{db: db}
}

const licenseCols = `id, license_key, product_id, customer_id, developer_id, status, license_type, expires_at, max_activations, created_at, updated_at`

const licenseSelect = `SELECT l.id, l.license_key, l.product_id, l.customer_id, l.developer_id, l.status,
	l.license_type, l.expires_at, l.max_activations, l.created_at, l.updated_at,
	COALESCE(p.name, '') AS product_name,
	COALESCE(c.name, '') AS customer_name,
	COALESCE(c.email, '') AS customer_email,
	(SELECT COUNT(*) FROM activations a WHERE a.license_id = l.id) AS activation_count
	FROM licenses l
	LEFT JOIN products p ON p.id = l.product_id
	LEFT JOIN customers c ON c.id = l.customer_id`

const activationCols = `id, license_id, machine_id, activated_at, last_seen_at`

// Create issues a license. A key is generated when l.Key is empty; a
// supplied key must not already exist.
func (s *LicenseStore) Create(ctx context.Context, l *model.License) (*model.License, error) {
	if l.Key == "" {
		key, err := keygen.License()
		if err != nil {
			return nil, err
		}
		l.Key = key
	} else {
		l.Key = strings.TrimSpace(l.Key)
		exists, err := s.keyExists(ctx, l.Key)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, ErrDuplicateKey
		}
	}
	if l.Status == "" {
		l.Status = model.StatusActive
	}
	if l.Type == "" {
		l.Type = model.TypeSingle
	}
	l.ID = newID()
	l.CreatedAt = now()
	l.UpdatedAt = l.CreatedAt

	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO licenses (`+licenseCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		l.ID, l.Key, l.ProductID, l.CustomerID, l.DeveloperID, l.Status, l.Type,
		l.ExpiresAt, l.MaxActivations, l.CreatedAt, l.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return nil, ErrDuplicateKey
	}
	if err != nil {
		return nil, fmt.Errorf("insert license: %w", err)
	}
	return s.GetByID(ctx, l.ID)
}

func (s *LicenseStore) keyExists(ctx context.Context, key string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.db.Rebind(`SELECT COUNT(*) FROM licenses WHERE license_key = ?`), key)
	if err != nil {
		return false, fmt.Errorf("check license key: %w", err)
	}
	return n > 0, nil
}

func (s *LicenseStore) GetByID(ctx context.Context, id string) (*model.License, error) {
	var l model.License
	err := s.db.GetContext(ctx, &l, s.db.Rebind(licenseSelect+` WHERE l.id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get license: %w", err)
	}
	return &l, nil
}

func licenseWhere(f model.LicenseFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.DeveloperID != "" {
		conds = append(conds, "l.developer_id = ?")
		args = append(args, f.DeveloperID)
	}
	if f.ProductID != "" {
		conds = append(conds, "l.product_id = ?")
		args = append(args, f.ProductID)
	}
	if f.Status != "" {
		conds = append(conds, "l.status = ?")
		args = append(args, f.Status)
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		pattern := "%" + escapeLike(strings.ToLower(q)) + "%"
		conds = append(conds, `(LOWER(l.license_key) LIKE ? ESCAPE '\' OR LOWER(COALESCE(c.email, '')) LIKE ? ESCAPE '\' OR LOWER(COALESCE(c.name, '')) LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern, pattern)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func normalizePage(p model.Page) model.Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

// List returns one page of licenses matching f, newest first.
func (s *LicenseStore) List(ctx context.Context, f model.LicenseFilter, page model.Page) (*model.PageResult[model.License], error) {
	page = normalizePage(page)
	where, args := licenseWhere(f)

	var total int
	err := s.db.GetContext(ctx, &total, s.db.Rebind(
		`SELECT COUNT(*) FROM licenses l LEFT JOIN customers c ON c.id = l.customer_id`+where), args...)
	if err != nil {
		return nil, fmt.Errorf("count licenses: %w", err)
	}

	items := []model.License{}
	pageArgs := append(append([]any{}, args...), page.Size, (page.Number-1)*page.Size)
	err = s.db.SelectContext(ctx, &items, s.db.Rebind(
		licenseSelect+where+` ORDER BY l.created_at DESC, l.id LIMIT ? OFFSET ?`), pageArgs...)
	if err != nil {
		return nil, fmt.Errorf("list licenses: %w", err)
	}

	return &model.PageResult[model.License]{
		Items: items,
		Total: total,
		Page:  page.Number,
		Size:  page.Size,
		Pages: (total + page.Size - 1) / page.Size,
	}, nil
}

// ListAll returns every license matching f, for exports.
func (s *LicenseStore) ListAll(ctx context.Context, f model.LicenseFilter) ([]model.License, error) {
	where, args := licenseWhere(f)
	items := []model.License{}
	err := s.db.SelectContext(ctx, &items, s.db.Rebind(licenseSelect+where+` ORDER BY l.created_at DESC, l.id`), args...)
	if err != nil {
		return nil, fmt.Errorf("list all licenses: %w", err)
	}
	return items, nil
}

func (s *LicenseStore) UpdateStatus(ctx context.Context, developerID, id, status string) (*model.License, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE licenses SET status = ?, updated_at = ? WHERE id = ? AND developer_id = ?`),
		status, now(), id, developerID)
	if err != nil {
		return nil, fmt.Errorf("update license status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotOwner
	}
	return s.GetByID(ctx, id)
}

// BulkUpdateStatus sets status on every listed license the developer owns
// and returns how many rows changed.
func (s *LicenseStore) BulkUpdateStatus(ctx context.Context, developerID string, ids []string, status string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(
		`UPDATE licenses SET status = ?, updated_at = ? WHERE developer_id = ? AND id IN (?)`,
		status, now(), developerID, ids)
	if err != nil {
		return 0, fmt.Errorf("build bulk update: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("bulk update license status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return int(n), nil
}

func (s *LicenseStore) Delete(ctx context.Context, developerID, id string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`DELETE FROM licenses WHERE id = ? AND developer_id = ?`), id, developerID)
	if err != nil {
		return fmt.Errorf("delete license: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotOwner
	}
	return nil
}

// AddActivation records machineID against a license. Repeating a machine
// refreshes its last-seen time instead of using another slot. It returns
// (nil, nil) when the license does not exist.
func (s *LicenseStore) AddActivation(ctx context.Context, licenseID, machineID string) (*model.Activation, error) {
	a, err := s.addActivation(ctx, licenseID, machineID)
	if isUniqueViolation(err) {
		// Lost an insert race for the same machine; the retry takes the
		// refresh path.
		return s.addActivation(ctx, licenseID, machineID)
	}
	return a, err
}

func (s *LicenseStore) addActivation(ctx context.Context, licenseID, machineID string) (*model.Activation, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Writing the license row first holds its lock (row lock on Postgres,
	// the write lock on SQLite) until commit, so concurrent activations of
	// one license count and insert one at a time.
	res, err := tx.ExecContext(ctx, tx.Rebind(
		`UPDATE licenses SET updated_at = updated_at WHERE id = ?`), licenseID)
	if err != nil {
		return nil, fmt.Errorf("lock license: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("lock license: %w", err)
	} else if n == 0 {
		return nil, nil
	}

	t := now()
	var existing model.Activation
	err = tx.GetContext(ctx, &existing, tx.Rebind(
		`SELECT `+activationCols+` FROM activations WHERE license_id = ? AND machine_id = ?`),
		licenseID, machineID)
	switch {
	case err == nil:
		if _, err := tx.ExecContext(ctx, tx.Rebind(
			`UPDATE activations SET last_seen_at = ? WHERE id = ?`), t, existing.ID); err != nil {
			return nil, fmt.Errorf("touch activation: %w", err)
		}
		existing.LastSeenAt = &t
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit tx: %w", err)
		}
		return &existing, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("get activation: %w", err)
	}

	var limit struct {
		Max   *int `db:"max_activations"`
		Count int  `db:"count"`
	}
	err = tx.GetContext(ctx, &limit, tx.Rebind(
		`SELECT l.max_activations, (SELECT COUNT(*) FROM activations a WHERE a.license_id = l.id) AS count
		 FROM licenses l WHERE l.id = ?`), licenseID)
	if err != nil {
		return nil, fmt.Errorf("get activation limit: %w", err)
	}
	if limit.Max != nil && limit.Count >= *limit.Max {
		return nil, ErrActivationLimit
	}

	a := model.Activation{
		ID:          newID(),
		LicenseID:   licenseID,
		MachineID:   machineID,
		ActivatedAt: t,
		LastSeenAt:  &t,
	}
	_, err = tx.ExecContext(ctx, tx.Rebind(
		`INSERT INTO activations (`+activationCols+`) VALUES (?, ?, ?, ?, ?)`),
		a.ID, a.LicenseID, a.MachineID, a.ActivatedAt, a.LastSeenAt)
	if err != nil {
		return nil, fmt.Errorf("insert activation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &a, nil
}

func (s *LicenseStore) ListActivations(ctx context.Context, licenseID string) ([]model.Activation, error) {
	activations := []model.Activation{}
	err := s.db.SelectContext(ctx, &activations, s.db.Rebind(
		`SELECT `+activationCols+` FROM activations WHERE license_id = ? ORDER BY activated_at`), licenseID)
	if err != nil {
		return nil, fmt.Errorf("list activations: %w", err)
	}
	return activations, nil
}

func (s *LicenseStore) DeleteActivation(ctx context.Context, licenseID, machineID string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`DELETE FROM activations WHERE license_id = ? AND machine_id = ?`), licenseID, machineID)
	if err != nil {
		return fmt.Errorf("delete activation: %w", err)
	}
	return nil
}

// CountByStatus breaks down a developer's licenses by status.
func (s *LicenseStore) CountByStatus(ctx context.Context, developerID string) ([]model.StatusCount, error) {
	counts := []model.StatusCount{}
	err := s.db.SelectContext(ctx, &counts, s.db.Rebind(
		`SELECT status, COUNT(*) AS count FROM licenses WHERE developer_id = ? GROUP BY status ORDER BY status`),
		developerID)
	if err != nil {
		return nil, fmt.Errorf("count licenses by status: %w", err)
	}
	return counts, nil
}
