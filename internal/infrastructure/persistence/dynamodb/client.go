// Package dynamodb persists the event log, projections, saga state and
// dead letters in DynamoDB. Table names are derived from a configurable
// prefix so several deployments can share one account.
package dynamodb

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// ClientOptions selects the target DynamoDB deployment. Endpoint is only
// set for local development (dynamodb-local, LocalStack); empty means the
// regional AWS endpoint.
type ClientOptions struct {
	Region   string
	Endpoint string
}

// NewClient builds a DynamoDB client from the ambient AWS credential
// chain.
func NewClient(ctx context.Context, opts ClientOptions) (*awsdynamodb.Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}

	return awsdynamodb.NewFromConfig(cfg, func(o *awsdynamodb.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	}), nil
}

// TableSet holds the physical table names for one deployment.
type TableSet struct {
	Events       string
	Counters     string
	Books        string
	Reservations string
	Wallets      string
	Sagas        string
	DeadLetters  string
}

// NewTableSet derives table names from the deployment prefix.
func NewTableSet(prefix string) TableSet {
	return TableSet{
		Events:       prefix + "event_store",
		Counters:     prefix + "counters",
		Books:        prefix + "books_projection",
		Reservations: prefix + "reservations_projection",
		Wallets:      prefix + "wallets_projection",
		Sagas:        prefix + "reservation_payment_sagas",
		DeadLetters:  prefix + "dead_letters",
	}
}
