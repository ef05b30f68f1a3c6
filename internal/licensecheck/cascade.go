package licensecheck

import (
	"context"
	"fmt"
)

// Match selects how Query.Value is compared to the stored key.
type Match int

const (
	MatchExact Match = iota
	// MatchInsensitive is a case-insensitive pattern match (ILIKE).
	MatchInsensitive
)

func (m Match) String() string {
	if m == MatchInsensitive {
		return "ilike"
	}
	return "exact"
}

// Query is one lookup against a record set. An empty ProductID means the
// lookup is not scoped to a product.
type Query struct {
	Match     Match
	Value     string
	ProductID string
}

func (q Query) String() string {
	scope := "unscoped"
	if q.ProductID != "" {
		scope = "scoped"
	}
	return fmt.Sprintf("%s-%s(%s)", scope, q.Match, q.Value)
}

// Source is the data-query port the resolver reads from. Each method
// returns at most one record, with related records attached, or nil when
// nothing matches.
type Source interface {
	FindLicense(ctx context.Context, q Query) (*DirectLicense, error)
	FindResoldKey(ctx context.Context, q Query) (*ResoldKey, error)
}

func matchSteps(c Candidates, productID string) []Query {
	return []Query{
		{Match: MatchExact, Value: c.Normalized, ProductID: productID},
		{Match: MatchExact, Value: c.WithoutDashes, ProductID: productID},
		{Match: MatchInsensitive, Value: c.Normalized, ProductID: productID},
	}
}

// LicenseCascade lists the direct-license lookups in the order they are
// tried. With a product ID the three scoped steps come first and the three
// unscoped steps follow as a fallback.
func LicenseCascade(c Candidates, productID string) []Query {
	unscoped := matchSteps(c, "")
	if productID == "" {
		return unscoped
	}
	return append(matchSteps(c, productID), unscoped...)
}

// ResoldCascade lists the resold-key lookups. They are never scoped.
func ResoldCascade(c Candidates) []Query {
	return matchSteps(c, "")
}

// firstHit runs queries in order and stops at the first non-nil record.
func firstHit[T any](ctx context.Context, queries []Query, find func(context.Context, Query) (*T, error)) (*T, Query, error) {
	for _, q := range queries {
		rec, err := find(ctx, q)
		if err != nil {
			return nil, q, fmt.Errorf("%s: %w", q, err)
		}
		if rec != nil {
			return rec, q, nil
		}
	}
	return nil, Query{}, nil
}
