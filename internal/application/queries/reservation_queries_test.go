package queries

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libris-backend/internal/infrastructure/persistence/memory"
	"libris-backend/internal/repository"
)

func seedReservation(t *testing.T, store *memory.ReservationStore, id, userID, bookID, status string) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, store.ApplyPatch(context.Background(), repository.Patch{
		ID:        id,
		Version:   1,
		UpdatedAt: now,
		Set: map[string]interface{}{
			"userId": userID, "bookId": bookID, "status": status,
			"feeCharged": false, "retailPrice": 20.0, "lateFee": 0.0,
			"reservedAt": now, "dueDate": now.Add(14 * 24 * time.Hour),
			"createdAt": now,
		},
	}))
}

func TestGetReservationByID_TrimsFields(t *testing.T) {
	store := memory.NewReservationStore()
	seedReservation(t, store, "res-1", "user-1", "book-1", "active")
	svc := NewReservationQueryService(store, nil, Config{})

	doc, err := svc.GetReservationByID(context.Background(), "res-1", []string{"status", "userId"})

	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"id":     "res-1",
		"status": "active",
		"userId": "user-1",
	}, doc)
}

func TestListReservationsByUser(t *testing.T) {
	store := memory.NewReservationStore()
	seedReservation(t, store, "res-1", "user-1", "book-1", "active")
	seedReservation(t, store, "res-2", "user-1", "book-2", "returned")
	seedReservation(t, store, "res-3", "user-2", "book-1", "active")
	svc := NewReservationQueryService(store, nil, Config{})

	resp, err := svc.ListReservationsByUser(context.Background(), "user-1", repository.PageRequest{}, nil)

	require.NoError(t, err)
	assert.Equal(t, 2, resp.Pagination.Total)
}

func TestListReservationsByStatus(t *testing.T) {
	store := memory.NewReservationStore()
	seedReservation(t, store, "res-1", "user-1", "book-1", "active")
	seedReservation(t, store, "res-2", "user-1", "book-2", "returned")
	seedReservation(t, store, "res-3", "user-2", "book-1", "active")
	svc := NewReservationQueryService(store, nil, Config{})

	resp, err := svc.ListReservationsByStatus(context.Background(), "active", repository.PageRequest{}, []string{"bookId"})

	require.NoError(t, err)
	require.Equal(t, 2, resp.Pagination.Total)
	for _, doc := range resp.Data {
		assert.Contains(t, doc, "bookId")
		assert.NotContains(t, doc, "status", "unselected fields stay out")
	}
}

func TestListReservations_FilterByDueWindow(t *testing.T) {
	store := memory.NewReservationStore()
	now := time.Now().UTC()
	seed := func(id string, due time.Time) {
		require.NoError(t, store.ApplyPatch(context.Background(), repository.Patch{
			ID: id, Version: 1, UpdatedAt: now,
			Set: map[string]interface{}{
				"userId": "user-1", "bookId": "book-1", "status": "active",
				"reservedAt": now, "dueDate": due, "createdAt": now,
			},
		}))
	}
	seed("res-soon", now.Add(24*time.Hour))
	seed("res-later", now.Add(30*24*time.Hour))
	svc := NewReservationQueryService(store, nil, Config{})

	cutoff := now.Add(7 * 24 * time.Hour)
	resp, err := svc.ListReservations(context.Background(), ListReservationsQuery{
		Filter: repository.ReservationFilter{DueBefore: &cutoff},
	})

	require.NoError(t, err)
	require.Equal(t, 1, resp.Pagination.Total)
	assert.Equal(t, "res-soon", resp.Data[0]["id"])
}
