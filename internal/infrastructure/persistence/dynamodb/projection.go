package dynamodb

import (
	"context"
	"errors"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	apperrors "libris-backend/internal/errors"
	"libris-backend/internal/repository"
)

// document is satisfied by all projection row types.
type document interface {
	Deleted() bool
}

// projectionStore carries the machinery shared by the three read-model
// tables: version-guarded patches, soft-delete-aware point reads, and
// filtered scans with in-memory sorting. Offset pagination over arbitrary
// sort keys has no native DynamoDB translation, so listings materialize
// the filtered set and slice it; read models stay small enough for that.
type projectionStore[T document] struct {
	client       *awsdynamodb.Client
	table        string
	logger       *zap.Logger
	notFoundCode apperrors.ErrorCode
	less         func(key string, a, b T) bool
}

// applyPatch writes the patch if the stored row is older than the patch
// version. A newer row means the event was already applied (or superseded)
// and the write is silently skipped.
func (p *projectionStore[T]) applyPatch(ctx context.Context, patch repository.Patch) error {
	if patch.ID == "" {
		return apperrors.Validation("patch requires a document id")
	}
	if patch.Version < 1 {
		return apperrors.Validation("patch requires a positive version")
	}

	update := expression.
		Set(expression.Name("id"), expression.Value(patch.ID)).
		Set(expression.Name("version"), expression.Value(patch.Version)).
		Set(expression.Name("updatedAt"), expression.Value(patch.UpdatedAt.UTC()))
	for name, value := range patch.Set {
		update = update.Set(expression.Name(name), expression.Value(value))
	}

	guard := expression.Or(
		expression.AttributeNotExists(expression.Name("version")),
		expression.Name("version").LessThan(expression.Value(patch.Version)),
	)

	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(guard).Build()
	if err != nil {
		return apperrors.Internal("build patch expression", err)
	}

	_, err = p.client.UpdateItem(ctx, &awsdynamodb.UpdateItemInput{
		TableName:                 aws.String(p.table),
		Key:                       idKey(patch.ID),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var conditional *types.ConditionalCheckFailedException
		if errors.As(err, &conditional) {
			p.logger.Debug("stale patch skipped",
				zap.String("table", p.table),
				zap.String("id", patch.ID),
				zap.Int("version", patch.Version),
			)
			return nil
		}
		if terr := translateAWSError(err, "ApplyPatch"); terr != nil {
			return terr
		}
		return apperrors.NewError(apperrors.CodeInternalError, "apply projection patch").
			WithCause(err).
			WithResource(patch.ID).
			Build()
	}
	return nil
}

// getByID returns the live document or notFoundCode; soft-deleted rows
// read as absent.
func (p *projectionStore[T]) getByID(ctx context.Context, id string) (*T, error) {
	if id == "" {
		return nil, apperrors.Validation("document id required")
	}

	out, err := p.client.GetItem(ctx, &awsdynamodb.GetItemInput{
		TableName: aws.String(p.table),
		Key:       idKey(id),
	})
	if err != nil {
		if terr := translateAWSError(err, "GetByID"); terr != nil {
			return nil, terr
		}
		return nil, apperrors.NewError(apperrors.CodeInternalError, "get document").
			WithCause(err).
			WithResource(id).
			Build()
	}
	if out.Item == nil {
		return nil, apperrors.NewError(p.notFoundCode, "document not found").
			WithResource(id).
			Build()
	}

	var doc T
	if err := attributevalue.UnmarshalMap(out.Item, &doc); err != nil {
		return nil, apperrors.NewError(apperrors.CodeInternalError, "unmarshal document").
			WithCause(err).
			WithResource(id).
			Build()
	}
	if doc.Deleted() {
		return nil, apperrors.NewError(p.notFoundCode, "document not found").
			WithResource(id).
			Build()
	}
	return &doc, nil
}

// scanDocs returns every live document matching the filter. The
// soft-delete guard is always part of the expression.
func (p *projectionStore[T]) scanDocs(ctx context.Context, filter *expression.ConditionBuilder) ([]T, error) {
	cond := expression.AttributeNotExists(expression.Name("deletedAt"))
	if filter != nil {
		cond = expression.And(cond, *filter)
	}

	expr, err := expression.NewBuilder().WithFilter(cond).Build()
	if err != nil {
		return nil, apperrors.Internal("build scan expression", err)
	}

	input := &awsdynamodb.ScanInput{
		TableName:                 aws.String(p.table),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}

	var docs []T
	for {
		result, err := p.client.Scan(ctx, input)
		if err != nil {
			if terr := translateAWSError(err, "ScanDocuments"); terr != nil {
				return nil, terr
			}
			return nil, apperrors.NewError(apperrors.CodeInternalError, "scan documents").
				WithCause(err).
				Build()
		}
		for _, item := range result.Items {
			var doc T
			if err := attributevalue.UnmarshalMap(item, &doc); err != nil {
				return nil, apperrors.Internal("unmarshal document", err)
			}
			docs = append(docs, doc)
		}
		if result.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
	return docs, nil
}

// listPage validates the sort, materializes the filtered set, sorts it and
// slices the requested window.
func (p *projectionStore[T]) listPage(ctx context.Context, filter *expression.ConditionBuilder, page repository.PageRequest, sortKeys map[string]bool) (*repository.PageResponse[T], error) {
	page = page.Normalize(repository.PaginationDefaults{})
	if err := page.ValidateSort(sortKeys); err != nil {
		return nil, err
	}

	docs, err := p.scanDocs(ctx, filter)
	if err != nil {
		return nil, err
	}

	if page.SortBy != "" {
		sort.SliceStable(docs, func(i, j int) bool {
			if page.SortOrder == repository.SortDesc {
				return p.less(page.SortBy, docs[j], docs[i])
			}
			return p.less(page.SortBy, docs[i], docs[j])
		})
	}

	total := len(docs)
	start := page.Offset()
	if start > total {
		start = total
	}
	end := start + page.Limit
	if end > total {
		end = total
	}

	return repository.NewPageResponse(docs[start:end], total, page), nil
}

func idKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberS{Value: id},
	}
}
