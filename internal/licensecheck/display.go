package licensecheck

import (
	"context"
	"fmt"
)

// Display is a validation outcome prepared for a person reading it.
type Display struct {
	IsValid bool   `json:"is_valid"`
	Message string `json:"message"`
	Details Result `json:"details"`
}

func (v *Validator) IsValid(ctx context.Context, key string) bool {
	return v.Validate(ctx, key, ResolveOptions{}).Valid
}

func (v *Validator) FormatForDisplay(ctx context.Context, key string) Display {
	return FormatResult(v.Validate(ctx, key, ResolveOptions{}))
}

// FormatResult renders an existing Result.
func FormatResult(res Result) Display {
	if res.Valid {
		name := "Unknown Product"
		if res.Product != nil && res.Product.Name != "" {
			name = res.Product.Name
		}
		return Display{
			IsValid: true,
			Message: fmt.Sprintf("License valid! (%s)", name),
			Details: res,
		}
	}
	msg := res.Error
	if msg == "" {
		msg = msgGenericFail
	}
	return Display{Message: msg, Details: res}
}
