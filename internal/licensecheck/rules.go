package licensecheck

import "time"

// Result is the outcome of validating one key.
type Result struct {
	Valid       bool             `json:"valid"`
	Status      string           `json:"status,omitempty"`
	Type        string           `json:"type,omitempty"`
	Source      string           `json:"source,omitempty"`
	ExpiresAt   *time.Time       `json:"expires_at,omitempty"`
	Product     *ProductRef      `json:"product,omitempty"`
	Customer    *CustomerRef     `json:"customer,omitempty"`
	Activations *ActivationCount `json:"activations,omitempty"`
	Details     *Details         `json:"details,omitempty"`
	Kind        Kind             `json:"error_kind,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// ActivationCount reports used and allowed activations. A nil Max means
// unlimited.
type ActivationCount struct {
	Current int  `json:"current"`
	Max     *int `json:"max"`
}

type Details struct {
	Source      string    `json:"source"`
	RecordID    string    `json:"record_id"`
	Scoped      bool      `json:"scoped"`
	ValidatedAt time.Time `json:"validated_at"`
}

// ApplyRules checks status, then expiry, against the current clock.
func (v *Validator) ApplyRules(rec MatchedRecord) Result {
	if rec.Status != StatusActive {
		return Result{
			Status: rec.Status,
			Source: rec.Source,
			Kind:   KindInactiveStatus,
			Error:  inactiveMessage(rec.Status),
		}
	}

	now := v.now()
	if rec.ExpiresAt != nil && rec.ExpiresAt.Before(now) {
		return Result{
			Status:    StatusExpired,
			Source:    rec.Source,
			ExpiresAt: rec.ExpiresAt,
			Kind:      KindExpired,
			Error:     msgExpired,
		}
	}

	typ := rec.Type
	if typ == "" {
		typ = TypeSingle
	}
	customer := rec.Customer
	if customer.Name == "" {
		customer.Name = "Unknown"
	}

	return Result{
		Valid:     true,
		Status:    rec.Status,
		Type:      typ,
		Source:    rec.Source,
		ExpiresAt: rec.ExpiresAt,
		Product:   rec.Product,
		Customer:  &customer,
		Activations: &ActivationCount{
			Current: len(rec.Activations),
			Max:     rec.MaxActivations,
		},
		Details: &Details{
			Source:      rec.Source,
			RecordID:    rec.ID,
			Scoped:      rec.Scoped,
			ValidatedAt: now,
		},
	}
}
