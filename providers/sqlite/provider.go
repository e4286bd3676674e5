// Package sqlite provides the default embedded-engine provider, backed
// by the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	_ "modernc.org/sqlite"

	"github.com/Konsultn-Engineering/opal/connector"
	"github.com/Konsultn-Engineering/opal/dialect"
)

type Provider struct{}

func init() {
	connector.Register("sqlite", &Provider{})
}

func (p *Provider) buildDSN(cfg connector.Config) string {
	path := cfg.Database
	if path == "" {
		path = ":memory:"
	}
	dsn := "file:" + path
	if len(cfg.Params) > 0 {
		q := url.Values{}
		for k, v := range cfg.Params {
			q.Set(k, v)
		}
		dsn += "?" + q.Encode()
	}
	return dsn
}

func (p *Provider) Connect(ctx context.Context, cfg connector.Config) (connector.Connection, error) {
	db, err := sql.Open("sqlite", p.buildDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	// One writer, and a :memory: database only exists on the connection
	// that created it, so the pool is pinned to a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	return &connection{db: db}, nil
}

func (p *Provider) Dialect() dialect.Dialect {
	return dialect.NewSQLiteDialect()
}

func (p *Provider) HealthCheck(ctx context.Context, conn connector.Connection) error {
	return conn.Health(ctx)
}

type connection struct {
	db *sql.DB
}

func (c *connection) DB() *sql.DB { return c.db }

func (c *connection) Dialect() dialect.Dialect { return dialect.NewSQLiteDialect() }

func (c *connection) Health(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *connection) Stats() connector.ConnectionStats {
	s := c.db.Stats()
	return connector.ConnectionStats{
		OpenConnections: s.OpenConnections,
		InUse:           s.InUse,
		Idle:            s.Idle,
	}
}

func (c *connection) Close() error { return c.db.Close() }
