package repository

import (
	"encoding/json"
	"strings"
	"time"

	apperrors "libris-backend/internal/errors"
)

// BookFilter narrows book listings. Zero values mean "no constraint";
// numeric ranges use pointers so zero can be expressed.
type BookFilter struct {
	Author             string
	Publisher          string
	ISBN               string
	PriceMin           *float64
	PriceMax           *float64
	PublicationYearMin *int
	PublicationYearMax *int
}

// IsZero reports whether no constraint is set.
func (f BookFilter) IsZero() bool {
	return f.Author == "" && f.Publisher == "" && f.ISBN == "" &&
		f.PriceMin == nil && f.PriceMax == nil &&
		f.PublicationYearMin == nil && f.PublicationYearMax == nil
}

// ReservationFilter narrows reservation listings.
type ReservationFilter struct {
	UserID     string
	BookID     string
	Status     string
	FeeCharged *bool
	DueBefore  *time.Time
	DueAfter   *time.Time
}

// IsZero reports whether no constraint is set.
func (f ReservationFilter) IsZero() bool {
	return f.UserID == "" && f.BookID == "" && f.Status == "" &&
		f.FeeCharged == nil && f.DueBefore == nil && f.DueAfter == nil
}

// WalletFilter narrows wallet listings.
type WalletFilter struct {
	UserID     string
	BalanceMin *float64
	BalanceMax *float64
}

// IsZero reports whether no constraint is set.
func (f WalletFilter) IsZero() bool {
	return f.UserID == "" && f.BalanceMin == nil && f.BalanceMax == nil
}

// NormalizeProjection validates a requested field list against an entity's
// allow-list and guarantees the primary key is present. An empty request
// means "all fields" and returns nil. Unknown fields are rejected rather
// than ignored so callers learn about typos.
func NormalizeProjection(fields []string, allowed map[string]bool) ([]string, error) {
	if len(fields) == 0 {
		return nil, nil
	}

	seen := make(map[string]bool, len(fields)+1)
	out := make([]string, 0, len(fields)+1)
	var unknown []string
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if !allowed[f] {
			unknown = append(unknown, f)
			continue
		}
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	if len(unknown) > 0 {
		return nil, apperrors.NewError(apperrors.CodeValidationError, "unknown field selection").
			WithDetails("fields not available: %s", strings.Join(unknown, ", ")).
			Build()
	}
	if !seen["id"] {
		out = append([]string{"id"}, out...)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// SelectFields reduces a document to the requested fields by JSON name.
// A nil field list returns the whole document. The fields are assumed to
// be normalized already; unknown names are simply absent from the result.
func SelectFields(doc interface{}, fields []string) (map[string]interface{}, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, apperrors.Internal("encode document", err)
	}
	var full map[string]interface{}
	if err := json.Unmarshal(raw, &full); err != nil {
		return nil, apperrors.Internal("decode document", err)
	}
	if len(fields) == 0 {
		return full, nil
	}
	out := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		if v, ok := full[f]; ok {
			out[f] = v
		}
	}
	return out, nil
}
