//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"
)

// InitializeContainer is the wire entry point. NewContainer in container.go
// remains the runtime path; this injector documents the provider graph for
// generation once the remaining side effects (bus subscriptions, shutdown
// steps) move into providers.
func InitializeContainer(ctx context.Context) (*Container, error) {
	panic(wire.Build(SuperSet))
}
