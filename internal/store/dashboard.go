package store

import (
	"context"
	"fmt"

	"github.com/dukerupert/cloudlicensepro/internal/model"
	"github.com/jmoiron/sqlx"
)

// DeveloperStats is the developer dashboard summary.
type DeveloperStats struct {
	Products    int                 `json:"products"`
	Customers   int                 `json:"customers"`
	Licenses    int                 `json:"licenses"`
	Activations int                 `json:"activations"`
	ByStatus    []model.StatusCount `json:"by_status"`
}

type DashboardStore struct {
	db       *sqlx.DB
	licenses *LicenseStore
}

func NewDashboardStore(db *sqlx.DB) *DashboardStore {
	return &DashboardStore{db: db, licenses: NewLicenseStore(db)}
}

func (s *DashboardStore) Developer(ctx context.Context, developerID string) (*DeveloperStats, error) {
	var stats DeveloperStats
	err := s.db.QueryRowxContext(ctx, s.db.Rebind(
		`SELECT
			(SELECT COUNT(*) FROM products WHERE developer_id = ?),
			(SELECT COUNT(*) FROM customers WHERE developer_id = ?),
			(SELECT COUNT(*) FROM licenses WHERE developer_id = ?),
			(SELECT COUNT(*) FROM activations a JOIN licenses l ON l.id = a.license_id WHERE l.developer_id = ?)`),
		developerID, developerID, developerID, developerID,
	).Scan(&stats.Products, &stats.Customers, &stats.Licenses, &stats.Activations)
	if err != nil {
		return nil, fmt.Errorf("developer stats: %w", err)
	}

	stats.ByStatus, err = s.licenses.CountByStatus(ctx, developerID)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}
