package dynamodb

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"

	apperrors "libris-backend/internal/errors"
	"libris-backend/internal/repository"
)

// WalletStore is the Wallets read model on DynamoDB.
type WalletStore struct {
	proj projectionStore[repository.WalletDocument]
}

// Compile-time interface check
var _ repository.WalletReadModel = (*WalletStore)(nil)

// NewWalletStore creates the store against the wallets table.
func NewWalletStore(client *awsdynamodb.Client, table string, logger *zap.Logger) *WalletStore {
	return &WalletStore{
		proj: projectionStore[repository.WalletDocument]{
			client:       client,
			table:        table,
			logger:       logger,
			notFoundCode: apperrors.CodeWalletNotFound,
			less:         repository.LessWalletBy,
		},
	}
}

// ApplyPatch applies a version-guarded projection write.
func (s *WalletStore) ApplyPatch(ctx context.Context, patch repository.Patch) error {
	return s.proj.applyPatch(ctx, patch)
}

// GetByID returns the live wallet row.
func (s *WalletStore) GetByID(ctx context.Context, id string) (*repository.WalletDocument, error) {
	return s.proj.getByID(ctx, id)
}

// FindIDByUserID returns the id of the user's live wallet, or "" when the
// user has none. The one-wallet-per-user rule is enforced through here.
func (s *WalletStore) FindIDByUserID(ctx context.Context, userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", apperrors.Validation("user id required")
	}

	filter := expression.Name("userId").Equal(expression.Value(userID))
	docs, err := s.proj.scanDocs(ctx, &filter)
	if err != nil {
		return "", err
	}
	if len(docs) == 0 {
		return "", nil
	}
	return docs[0].ID, nil
}

// List returns one page of live wallets matching the filter.
func (s *WalletStore) List(ctx context.Context, filter repository.WalletFilter, page repository.PageRequest) (*repository.PageResponse[repository.WalletDocument], error) {
	return s.proj.listPage(ctx, walletFilterExpression(filter), page, repository.WalletSortKeys)
}

func walletFilterExpression(f repository.WalletFilter) *expression.ConditionBuilder {
	if f.IsZero() {
		return nil
	}

	var conds []expression.ConditionBuilder
	if f.UserID != "" {
		conds = append(conds, expression.Name("userId").Equal(expression.Value(f.UserID)))
	}
	if f.BalanceMin != nil {
		conds = append(conds, expression.Name("balance").GreaterThanEqual(expression.Value(*f.BalanceMin)))
	}
	if f.BalanceMax != nil {
		conds = append(conds, expression.Name("balance").LessThanEqual(expression.Value(*f.BalanceMax)))
	}

	return combineConditions(conds)
}

