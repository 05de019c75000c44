package dto

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "libris-backend/internal/errors"
	"libris-backend/internal/repository"
)

// ParsePageRequest reads page, limit, skip, sortBy and sortOrder. Bounds
// clamping happens later in Normalize; only syntax is rejected here.
func ParsePageRequest(q url.Values) (repository.PageRequest, error) {
	var req repository.PageRequest

	page, err := intParam(q, "page")
	if err != nil {
		return req, err
	}
	limit, err := intParam(q, "limit")
	if err != nil {
		return req, err
	}
	req.Page = page
	req.Limit = limit

	if raw := q.Get("skip"); raw != "" {
		skip, convErr := strconv.Atoi(raw)
		if convErr != nil || skip < 0 {
			return req, badParam("skip", raw)
		}
		req.Skip = &skip
	}

	req.SortBy = q.Get("sortBy")
	req.SortOrder = q.Get("sortOrder")
	return req, nil
}

// ParseFields reads the comma-separated fields selection. Unknown names are
// rejected later against the entity's allow-list.
func ParseFields(q url.Values) []string {
	raw := q.Get("fields")
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

// ParseBookFilter reads catalog filter parameters.
func ParseBookFilter(q url.Values) (repository.BookFilter, error) {
	f := repository.BookFilter{
		Author:    q.Get("author"),
		Publisher: q.Get("publisher"),
		ISBN:      q.Get("isbn"),
	}

	var err error
	if f.PriceMin, err = floatPtrParam(q, "priceMin"); err != nil {
		return f, err
	}
	if f.PriceMax, err = floatPtrParam(q, "priceMax"); err != nil {
		return f, err
	}
	if f.PublicationYearMin, err = intPtrParam(q, "publicationYearMin"); err != nil {
		return f, err
	}
	if f.PublicationYearMax, err = intPtrParam(q, "publicationYearMax"); err != nil {
		return f, err
	}
	return f, nil
}

// ParseReservationFilter reads loan filter parameters.
func ParseReservationFilter(q url.Values) (repository.ReservationFilter, error) {
	f := repository.ReservationFilter{
		UserID: q.Get("userId"),
		BookID: q.Get("bookId"),
		Status: q.Get("status"),
	}

	var err error
	if f.FeeCharged, err = boolPtrParam(q, "feeCharged"); err != nil {
		return f, err
	}
	if f.DueBefore, err = timePtrParam(q, "dueBefore"); err != nil {
		return f, err
	}
	if f.DueAfter, err = timePtrParam(q, "dueAfter"); err != nil {
		return f, err
	}
	return f, nil
}

// ParseWalletFilter reads wallet filter parameters.
func ParseWalletFilter(q url.Values) (repository.WalletFilter, error) {
	f := repository.WalletFilter{
		UserID: q.Get("userId"),
	}

	var err error
	if f.BalanceMin, err = floatPtrParam(q, "balanceMin"); err != nil {
		return f, err
	}
	if f.BalanceMax, err = floatPtrParam(q, "balanceMax"); err != nil {
		return f, err
	}
	return f, nil
}

func intParam(q url.Values, name string) (int, error) {
	raw := q.Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badParam(name, raw)
	}
	return v, nil
}

func intPtrParam(q url.Values, name string) (*int, error) {
	raw := q.Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, badParam(name, raw)
	}
	return &v, nil
}

func floatPtrParam(q url.Values, name string) (*float64, error) {
	raw := q.Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, badParam(name, raw)
	}
	return &v, nil
}

func boolPtrParam(q url.Values, name string) (*bool, error) {
	raw := q.Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, badParam(name, raw)
	}
	return &v, nil
}

func timePtrParam(q url.Values, name string) (*time.Time, error) {
	raw := q.Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, badParam(name, raw)
	}
	return &v, nil
}

func badParam(name, raw string) error {
	return apperrors.NewError(apperrors.CodeValidationError, "invalid query parameter").
		WithDetails("%s=%q", name, raw).
		Build()
}
