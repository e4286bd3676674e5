// Package statement provides the database primitives the persistence
// context is built on: a single pinned connection and the four
// statement kinds (insert, select, update, delete), each constructed
// from SQL text and one or two bindings and prepared lazily on first
// execution.
package statement

import (
	"context"
	"database/sql"

	"github.com/sirupsen/logrus"
)

// Conn wraps exactly one database connection. The persistence runtime
// assumes single-threaded cooperative use per connection; nothing here
// is safe for concurrent use and nothing pools.
type Conn struct {
	conn *sql.Conn
	log  *logrus.Logger
}

// ConnOption configures a Conn.
type ConnOption func(*Conn)

// WithLogger enables debug logging of statement preparation and
// execution on the given logger.
func WithLogger(log *logrus.Logger) ConnOption {
	return func(c *Conn) { c.log = log }
}

// NewConn pins a single connection. The caller owns the sql.Conn's
// lifetime; Close releases it.
func NewConn(conn *sql.Conn, opts ...ConnOption) *Conn {
	c := &Conn{conn: conn}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Raw returns the underlying connection for operations outside the
// statement layer (DDL, pragmas).
func (c *Conn) Raw() *sql.Conn { return c.conn }

// Prepare prepares SQL text on this connection.
func (c *Conn) Prepare(ctx context.Context, text string) (*sql.Stmt, error) {
	if c.log != nil {
		c.log.WithField("sql", text).Debug("prepare statement")
	}
	return c.conn.PrepareContext(ctx, text)
}

// Exec runs one-off SQL (DDL and the like) outside the prepared
// statement machinery.
func (c *Conn) Exec(ctx context.Context, text string, args ...any) (sql.Result, error) {
	if c.log != nil {
		c.log.WithField("sql", text).Debug("exec")
	}
	return c.conn.ExecContext(ctx, text, args...)
}

// Close releases the pinned connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

func (c *Conn) logExec(text string) {
	if c.log != nil {
		c.log.WithField("sql", text).Debug("execute statement")
	}
}
