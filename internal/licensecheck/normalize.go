package licensecheck

import "strings"

// MinKeyLength is the shortest trimmed input accepted for lookup.
const MinKeyLength = 8

// Candidates are the forms a submitted key is matched under.
type Candidates struct {
	Original      string
	Normalized    string
	WithoutDashes string
}

// Normalize trims and upper-cases raw, and derives the dash-free form.
func Normalize(raw string) Candidates {
	n := strings.ToUpper(strings.TrimSpace(raw))
	return Candidates{
		Original:      n,
		Normalized:    n,
		WithoutDashes: strings.ReplaceAll(n, "-", ""),
	}
}
