package connector

import (
	"context"
	"database/sql"

	"github.com/Konsultn-Engineering/opal/dialect"
)

// Connection is an established database handle plus the dialect that
// describes it.
type Connection interface {
	DB() *sql.DB
	Dialect() dialect.Dialect
	Health(ctx context.Context) error
	Stats() ConnectionStats
	Close() error
}

// Connector opens connections for one provider/config pair.
type Connector interface {
	Connect(ctx context.Context) (Connection, error)
	ConnectWithRetry(ctx context.Context, opts RetryOptions) (Connection, error)
	Close() error
}
