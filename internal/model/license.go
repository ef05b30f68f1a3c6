package model

import "time"

// License statuses. Only StatusActive passes validation.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusExpired  = "expired"
	StatusRevoked  = "revoked"
)

// License types. The capitalized forms are legacy values still present in
// older rows.
const (
	TypeSingle       = "single"
	TypeFloating     = "floating"
	TypeConcurrent   = "concurrent"
	TypeTrial        = "Trial"
	TypeSubscription = "Subscription"
	TypeLifetime     = "Lifetime"
)

func ValidStatus(s string) bool {
	switch s {
	case StatusActive, StatusInactive, StatusExpired, StatusRevoked:
		return true
	}
	return false
}

type License struct {
	ID             string     `json:"id" db:"id"`
	Key            string     `json:"license_key" db:"license_key"`
	ProductID      string     `json:"product_id" db:"product_id"`
	CustomerID     *string    `json:"customer_id" db:"customer_id"`
	DeveloperID    string     `json:"developer_id" db:"developer_id"`
	Status         string     `json:"status" db:"status"`
	Type           string     `json:"license_type" db:"license_type"`
	ExpiresAt      *time.Time `json:"expires_at" db:"expires_at"`
	MaxActivations *int       `json:"max_activations" db:"max_activations"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`

	// Joined for listings and exports.
	ProductName     string `json:"product_name,omitempty" db:"product_name"`
	CustomerName    string `json:"customer_name,omitempty" db:"customer_name"`
	CustomerEmail   string `json:"customer_email,omitempty" db:"customer_email"`
	ActivationCount int    `json:"activation_count" db:"activation_count"`
}

type Activation struct {
	ID          string     `json:"id" db:"id"`
	LicenseID   string     `json:"license_id" db:"license_id"`
	MachineID   string     `json:"machine_id" db:"machine_id"`
	ActivatedAt time.Time  `json:"activated_at" db:"activated_at"`
	LastSeenAt  *time.Time `json:"last_seen_at" db:"last_seen_at"`
}

// LicenseFilter narrows a license listing. Empty fields match everything.
type LicenseFilter struct {
	DeveloperID string
	ProductID   string
	Status      string
	Search      string
}

type Page struct {
	Number int
	Size   int
}

type PageResult[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Size  int `json:"size"`
	Pages int `json:"pages"`
}

// StatusCount is one row of the dashboard breakdown.
type StatusCount struct {
	Status string `json:"status" db:"status"`
	Count  int    `json:"count" db:"count"`
}
