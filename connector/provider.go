package connector

import (
	"context"

	"github.com/Konsultn-Engineering/opal/dialect"
)

// Provider implements engine-specific connection establishment.
// Providers register themselves by name in an init function.
type Provider interface {
	Connect(ctx context.Context, config Config) (Connection, error)
	Dialect() dialect.Dialect
	HealthCheck(ctx context.Context, conn Connection) error
}
