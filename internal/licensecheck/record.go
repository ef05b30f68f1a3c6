package licensecheck

import "time"

// Source tags reported in results.
const (
	SourceLicenses     = "licenses"
	SourceCustomerKeys = "customer_keys"
)

const (
	StatusActive  = "active"
	StatusExpired = "expired"
	TypeSingle    = "single"

	resellerCustomerName = "Reseller Customer"
)

type ProductRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type CustomerRef struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Activation struct {
	ID          string     `json:"id"`
	MachineID   string     `json:"machine_id"`
	ActivatedAt time.Time  `json:"activated_at"`
	LastSeenAt  *time.Time `json:"last_seen_at,omitempty"`
}

// DirectLicense is a license issued by a developer straight to a customer,
// with its product, customer and activations attached.
type DirectLicense struct {
	ID             string
	Key            string
	Status         string
	Type           string
	ExpiresAt      *time.Time
	MaxActivations *int
	Product        *ProductRef
	Customer       *CustomerRef
	Activations    []Activation
}

// ResoldKey is a key sold by a reseller out of its pool. The product is
// reached through the reseller's listing.
type ResoldKey struct {
	ID         string
	Code       string
	Status     string
	CreatedAt  time.Time
	ExpiresAt  *time.Time
	ResellerID string
	Product    *ProductRef
}

// Record is either a *DirectLicense or a *ResoldKey.
type Record interface {
	matched() MatchedRecord
}

// MatchedRecord is the single shape the rule engine works on.
type MatchedRecord struct {
	ID             string
	Key            string
	Status         string
	Type           string
	Source         string
	ExpiresAt      *time.Time
	MaxActivations *int
	Product        *ProductRef
	Customer       CustomerRef
	Activations    []Activation
	// Scoped is true when the hit came from a product-scoped step.
	Scoped bool
}

// Adapt maps either record variant onto MatchedRecord.
func Adapt(r Record) MatchedRecord {
	return r.matched()
}

func (l *DirectLicense) matched() MatchedRecord {
	m := MatchedRecord{
		ID:             l.ID,
		Key:            l.Key,
		Status:         l.Status,
		Type:           l.Type,
		Source:         SourceLicenses,
		ExpiresAt:      l.ExpiresAt,
		MaxActivations: l.MaxActivations,
		Product:        l.Product,
		Activations:    l.Activations,
	}
	if l.Customer != nil {
		m.Customer = *l.Customer
	}
	return m
}

func (k *ResoldKey) matched() MatchedRecord {
	one := 1
	return MatchedRecord{
		ID:             k.ID,
		Key:            k.Code,
		Status:         k.Status,
		Type:           TypeSingle,
		Source:         SourceCustomerKeys,
		ExpiresAt:      k.ExpiresAt,
		MaxActivations: &one,
		Product:        k.Product,
		Customer:       CustomerRef{Name: resellerCustomerName},
		Activations:    []Activation{},
	}
}
