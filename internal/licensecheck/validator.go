// Package licensecheck resolves a submitted license key against direct
// licenses and reseller-sold keys and decides whether it is valid.
//
// Lookups run as an ordered cascade of single-record queries (exact,
// dash-free, case-insensitive), first hit wins. Validation never returns an
// error to the caller: every outcome, including backend failures, is a
// Result.
package licensecheck

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"
)

type Validator struct {
	source Source
	now    func() time.Time
	logger *slog.Logger
}

type Option func(*Validator)

// WithClock overrides the time source used by the expiry rule.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) { v.logger = logger }
}

func New(source Source, opts ...Option) *Validator {
	v := &Validator{
		source: source,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ResolveOptions narrows a lookup. ProductID scopes the direct-license
// search; an unscoped pass still follows when the scoped pass misses.
type ResolveOptions struct {
	ProductID string
}

// Resolve finds the record a key refers to. It returns ErrInvalidFormat
// for inputs shorter than MinKeyLength, ErrNotFound when every step misses,
// and a *BackendError when a query fails.
func (v *Validator) Resolve(ctx context.Context, rawKey string, opts ResolveOptions) (MatchedRecord, error) {
	trimmed := strings.TrimSpace(rawKey)
	if utf8.RuneCountInString(trimmed) < MinKeyLength {
		return MatchedRecord{}, ErrInvalidFormat
	}
	c := Normalize(trimmed)

	lic, q, err := firstHit(ctx, LicenseCascade(c, opts.ProductID), v.source.FindLicense)
	if err != nil {
		return MatchedRecord{}, &BackendError{Err: err}
	}
	if lic != nil {
		m := Adapt(lic)
		m.Scoped = q.ProductID != ""
		return m, nil
	}

	key, _, err := firstHit(ctx, ResoldCascade(c), v.source.FindResoldKey)
	if err != nil {
		return MatchedRecord{}, &BackendError{Err: err}
	}
	if key != nil {
		return Adapt(key), nil
	}

	return MatchedRecord{}, ErrNotFound
}

// Validate resolves key and applies the status and expiry rules.
func (v *Validator) Validate(ctx context.Context, key string, opts ResolveOptions) Result {
	rec, err := v.Resolve(ctx, key, opts)
	if err != nil {
		return v.failure(key, err)
	}
	return v.ApplyRules(rec)
}

func (v *Validator) failure(key string, err error) Result {
	var be *BackendError
	switch {
	case errors.Is(err, ErrInvalidFormat):
		return Result{Kind: KindInvalidFormat, Error: msgInvalidFormat}
	case errors.Is(err, ErrNotFound):
		return Result{Kind: KindNotFound, Error: msgNotFound}
	case errors.As(err, &be):
		v.logger.Error("license validation failed",
			"key", Normalize(key).Normalized,
			"error", be.Err,
		)
		return Result{Kind: KindBackendFailure, Error: backendMessage(be.Err)}
	default:
		v.logger.Error("license validation failed", "error", err)
		return Result{Kind: KindBackendFailure, Error: backendMessage(err)}
	}
}
