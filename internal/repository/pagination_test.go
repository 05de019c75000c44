package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "libris-backend/internal/errors"
)

func TestPageRequest_Normalize(t *testing.T) {
	defaults := PaginationDefaults{DefaultLimit: 10, MaxLimit: 100}

	tests := []struct {
		name string
		in   PageRequest
		want PageRequest
	}{
		{
			name: "zero request gets defaults",
			in:   PageRequest{},
			want: PageRequest{Page: 1, Limit: 10, SortOrder: SortAsc},
		},
		{
			name: "negative page clamps to first",
			in:   PageRequest{Page: -3, Limit: 20},
			want: PageRequest{Page: 1, Limit: 20, SortOrder: SortAsc},
		},
		{
			name: "limit above max clamps",
			in:   PageRequest{Page: 2, Limit: 5000},
			want: PageRequest{Page: 2, Limit: 100, SortOrder: SortAsc},
		},
		{
			name: "sort order is case insensitive",
			in:   PageRequest{Page: 1, Limit: 10, SortOrder: "DESC"},
			want: PageRequest{Page: 1, Limit: 10, SortOrder: SortDesc},
		},
		{
			name: "unknown sort order falls back to ascending",
			in:   PageRequest{Page: 1, Limit: 10, SortOrder: "sideways"},
			want: PageRequest{Page: 1, Limit: 10, SortOrder: SortAsc},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Normalize(defaults))
		})
	}
}

func TestPageRequest_NormalizeToleratesZeroDefaults(t *testing.T) {
	got := PageRequest{}.Normalize(PaginationDefaults{})

	assert.Equal(t, DefaultPageLimit, got.Limit)

	capped := PageRequest{Limit: 5000}.Normalize(PaginationDefaults{})
	assert.Equal(t, MaxPageLimit, capped.Limit)
}

func TestPageRequest_Offset(t *testing.T) {
	assert.Equal(t, 20, PageRequest{Page: 3, Limit: 10}.Offset())
	assert.Equal(t, 0, PageRequest{Page: 1, Limit: 10}.Offset())

	skip := 5
	assert.Equal(t, 5, PageRequest{Page: 3, Limit: 10, Skip: &skip}.Offset(), "an explicit skip wins")

	negative := -1
	assert.Equal(t, 20, PageRequest{Page: 3, Limit: 10, Skip: &negative}.Offset(), "a negative skip is ignored")
}

func TestPageRequest_ValidateSort(t *testing.T) {
	allowed := map[string]bool{"title": true, "price": true}

	assert.NoError(t, PageRequest{}.ValidateSort(allowed))
	assert.NoError(t, PageRequest{SortBy: "price"}.ValidateSort(allowed))

	err := PageRequest{SortBy: "isbn;drop"}.ValidateSort(allowed)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeComplexityLimitExceeded))
}

func TestNewPageResponse_ComputesEnvelopeMath(t *testing.T) {
	req := PageRequest{Page: 2, Limit: 10}

	resp := NewPageResponse([]string{"a", "b"}, 25, req)

	assert.Equal(t, 25, resp.Pagination.Total)
	assert.Equal(t, 2, resp.Pagination.Page)
	assert.Equal(t, 3, resp.Pagination.Pages)
	assert.True(t, resp.Pagination.HasNext)
	assert.True(t, resp.Pagination.HasPrev)
}

func TestNewPageResponse_Boundaries(t *testing.T) {
	last := NewPageResponse([]string{"x"}, 21, PageRequest{Page: 3, Limit: 10})
	assert.Equal(t, 3, last.Pagination.Pages)
	assert.False(t, last.Pagination.HasNext)
	assert.True(t, last.Pagination.HasPrev)

	empty := NewPageResponse[string](nil, 0, PageRequest{Page: 1, Limit: 10})
	assert.NotNil(t, empty.Data, "data is an empty array on the wire, never null")
	assert.Empty(t, empty.Data)
	assert.Zero(t, empty.Pagination.Pages)
	assert.False(t, empty.Pagination.HasNext)
	assert.False(t, empty.Pagination.HasPrev)
}
