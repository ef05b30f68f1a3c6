package model

import "time"

type Product struct {
	ID                  string    `json:"id" db:"id"`
	DeveloperID         string    `json:"developer_id" db:"developer_id"`
	Name                string    `json:"name" db:"name"`
	Description         string    `json:"description" db:"description"`
	PriceCents          int64     `json:"price_cents" db:"price_cents"`
	LicenseType         string    `json:"license_type" db:"license_type"`
	DefaultDurationDays *int      `json:"default_duration_days" db:"default_duration_days"`
	MaxActivations      *int      `json:"max_activations" db:"max_activations"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time `json:"updated_at" db:"updated_at"`
}

type Customer struct {
	ID          string    `json:"id" db:"id"`
	DeveloperID string    `json:"developer_id" db:"developer_id"`
	Name        string    `json:"name" db:"name"`
	Email       string    `json:"email" db:"email"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
