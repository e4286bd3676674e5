// Package opal is the facade over the persistence runtime: connect to a
// registered provider, get a session, work with mapped types.
package opal

import (
	"context"

	"github.com/Konsultn-Engineering/opal/connector"
	"github.com/Konsultn-Engineering/opal/session"
	"github.com/Konsultn-Engineering/opal/statement"

	_ "github.com/Konsultn-Engineering/opal/providers/postgres"
	_ "github.com/Konsultn-Engineering/opal/providers/sqlite"
)

type Config = connector.Config
type PoolConfig = connector.PoolConfig
type RetryConfig = connector.RetryConfig
type Session = session.Session
type Option = session.Option

var WithLogger = session.WithLogger

// Error kinds surfaced by session operations.
var (
	ErrNotFound          = session.ErrNotFound
	ErrAlreadyPersistent = session.ErrAlreadyPersistent
	ErrNotPersistent     = session.ErrNotPersistent
	ErrObjectChanged     = session.ErrObjectChanged
	ErrStatementBusy     = statement.ErrStatementBusy
)

// Connect opens a connection through the named provider and builds a
// session over it. The session pins one connection for its lifetime
// and owns the database handle until Close. A Retry block in cfg turns
// the initial connect into an exponential-backoff retry loop.
func Connect(ctx context.Context, provider string, cfg Config, opts ...Option) (*Session, error) {
	c, err := connector.New(provider, cfg)
	if err != nil {
		return nil, err
	}

	var conn connector.Connection
	if cfg.Retry != nil {
		conn, err = c.ConnectWithRetry(ctx, connector.RetryOptions{
			MaxRetries: cfg.Retry.MaxRetries,
			BaseDelay:  cfg.Retry.BaseDelay,
			MaxDelay:   cfg.Retry.MaxDelay,
		})
	} else {
		conn, err = c.Connect(ctx)
	}
	if err != nil {
		return nil, err
	}
	return session.New(ctx, conn, opts...)
}
