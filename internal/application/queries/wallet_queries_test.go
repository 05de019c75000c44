package queries

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "libris-backend/internal/errors"
	"libris-backend/internal/infrastructure/persistence/memory"
	"libris-backend/internal/repository"
)

func seedWallet(t *testing.T, store *memory.WalletStore, id, userID string, balance float64) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, store.ApplyPatch(context.Background(), repository.Patch{
		ID:        id,
		Version:   1,
		UpdatedAt: now,
		Set: map[string]interface{}{
			"userId": userID, "balance": balance, "createdAt": now,
		},
	}))
}

func TestGetWalletByUserID(t *testing.T) {
	store := memory.NewWalletStore()
	seedWallet(t, store, "wallet-1", "user-1", 50)
	svc := NewWalletQueryService(store, nil, Config{})
	ctx := context.Background()

	doc, err := svc.GetWalletByUserID(ctx, "user-1", []string{"balance"})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"id": "wallet-1", "balance": 50.0}, doc)

	_, err = svc.GetWalletByUserID(ctx, "nobody", nil)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeWalletNotFound))
}

func TestListWallets_FilterByBalance(t *testing.T) {
	store := memory.NewWalletStore()
	seedWallet(t, store, "wallet-1", "user-1", 5)
	seedWallet(t, store, "wallet-2", "user-2", 100)
	svc := NewWalletQueryService(store, nil, Config{})

	min := 50.0
	resp, err := svc.ListWallets(context.Background(), ListWalletsQuery{
		Filter: repository.WalletFilter{BalanceMin: &min},
	})

	require.NoError(t, err)
	require.Equal(t, 1, resp.Pagination.Total)
	assert.Equal(t, "wallet-2", resp.Data[0]["id"])
}
