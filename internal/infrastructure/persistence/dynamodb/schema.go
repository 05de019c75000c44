package dynamodb

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	apperrors "libris-backend/internal/errors"
)

// EnsureTables creates the deployment's tables when they are missing.
// Production tables come from infrastructure templates; this path exists
// for local development against dynamodb-local and for tests.
func EnsureTables(ctx context.Context, client *awsdynamodb.Client, tables TableSet, logger *zap.Logger) error {
	specs := []struct {
		input *awsdynamodb.CreateTableInput
		name  string
	}{
		{name: tables.Events, input: eventTableInput(tables.Events)},
		{name: tables.Counters, input: idTableInput(tables.Counters)},
		{name: tables.Books, input: idTableInput(tables.Books)},
		{name: tables.Reservations, input: idTableInput(tables.Reservations)},
		{name: tables.Wallets, input: idTableInput(tables.Wallets)},
		{name: tables.Sagas, input: idTableInput(tables.Sagas)},
		{name: tables.DeadLetters, input: idTableInput(tables.DeadLetters)},
	}

	waiter := awsdynamodb.NewTableExistsWaiter(client)
	for _, spec := range specs {
		_, err := client.CreateTable(ctx, spec.input)
		if err != nil {
			var exists *types.ResourceInUseException
			if errors.As(err, &exists) {
				continue
			}
			return apperrors.NewError(apperrors.CodeInternalError, "create table").
				WithCause(err).
				WithResource(spec.name).
				Build()
		}

		if err := waiter.Wait(ctx, &awsdynamodb.DescribeTableInput{TableName: aws.String(spec.name)}, 2*time.Minute); err != nil {
			return apperrors.NewError(apperrors.CodeInternalError, "wait for table").
				WithCause(err).
				WithResource(spec.name).
				Build()
		}
		logger.Info("table created", zap.String("table", spec.name))
	}
	return nil
}

func eventTableInput(name string) *awsdynamodb.CreateTableInput {
	return &awsdynamodb.CreateTableInput{
		TableName:   aws.String(name),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("PK"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("SK"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("logPK"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("logSK"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("PK"), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String("SK"), KeyType: types.KeyTypeRange},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			{
				IndexName: aws.String(GlobalVersionIndex),
				KeySchema: []types.KeySchemaElement{
					{AttributeName: aws.String("logPK"), KeyType: types.KeyTypeHash},
					{AttributeName: aws.String("logSK"), KeyType: types.KeyTypeRange},
				},
				Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
			},
		},
	}
}

func idTableInput(name string) *awsdynamodb.CreateTableInput {
	return &awsdynamodb.CreateTableInput{
		TableName:   aws.String(name),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("id"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("id"), KeyType: types.KeyTypeHash},
		},
	}
}
