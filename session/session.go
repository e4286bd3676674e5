// Package session is the caller-facing layer of the persistence
// runtime: it owns one pinned connection, one statement cache per
// mapped type, and the identity map, and drives the locking and
// delayed-load protocol around each operation.
package session

import (
	"context"
	"fmt"
	"reflect"

	"github.com/sirupsen/logrus"

	"github.com/Konsultn-Engineering/opal/binding"
	"github.com/Konsultn-Engineering/opal/cache"
	"github.com/Konsultn-Engineering/opal/connector"
	"github.com/Konsultn-Engineering/opal/schema"
	"github.com/Konsultn-Engineering/opal/statement"
)

// statements is the accessor surface of a persistence context as the
// session consumes it. Both concurrency variants of cache.Object
// satisfy it; which one backs a given type is fixed at registration.
type statements interface {
	cache.Context

	Traits() *schema.Traits
	Image() *binding.Image
	IDImage() *binding.Image

	EnsureSelectBound()
	EnsureInsertBound()
	EnsureUpdateBound()
	EnsureIDBound()
	EnsureOptimisticIDBound()

	PersistStatement() *statement.InsertStatement
	FindStatement() *statement.SelectStatement
	UpdateStatement() *statement.UpdateStatement
	EraseStatement() *statement.DeleteStatement
	OptimisticEraseStatement() *statement.DeleteStatement
	Containers() *cache.ContainerCache

	DelayLoad(id, obj, pos any, loader cache.LoaderFunc)
	LoadDelayed() error
	DelayedCount() int

	Optimistic() bool
	Close() error
}

// Session owns one connection's persistence state. It is not safe for
// concurrent use: the runtime assumes at most one logical operation per
// connection at a time, which is exactly what the context lock flags
// enforce.
type Session struct {
	conn   *statement.Conn
	dbConn connector.Connection
	schema *schema.Context

	sts        map[reflect.Type]statements
	idents     map[identKey]*identEntry
	containers map[*schema.ContainerMeta]*containerBuffers

	log *logrus.Logger
}

// Option configures a session.
type Option func(*Session)

// WithLogger enables debug logging of statement activity.
func WithLogger(log *logrus.Logger) Option {
	return func(s *Session) { s.log = log }
}

// New pins one connection from conn and builds a session around it.
func New(ctx context.Context, conn connector.Connection, opts ...Option) (*Session, error) {
	s := &Session{
		dbConn:     conn,
		schema:     schema.NewContext(conn.Dialect()),
		sts:        make(map[reflect.Type]statements),
		idents:     make(map[identKey]*identEntry),
		containers: make(map[*schema.ContainerMeta]*containerBuffers),
	}
	for _, o := range opts {
		o(s)
	}

	sqlConn, err := conn.DB().Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("session: acquire connection: %w", err)
	}
	var connOpts []statement.ConnOption
	if s.log != nil {
		connOpts = append(connOpts, statement.WithLogger(s.log))
	}
	s.conn = statement.NewConn(sqlConn, connOpts...)
	return s, nil
}

// Schema exposes the session's schema context (traits derivation).
func (s *Session) Schema() *schema.Context { return s.schema }

// Connection exposes the pinned statement connection.
func (s *Session) Connection() *statement.Conn { return s.conn }

// statementsFor returns the persistence context for t, creating it on
// first access. The concurrency variant is chosen here, once, from the
// type's traits.
func (s *Session) statementsFor(t reflect.Type) (statements, *schema.Traits, error) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	traits, err := s.schema.Traits(t)
	if err != nil {
		return nil, nil, err
	}
	if sts, ok := s.sts[t]; ok {
		return sts, traits, nil
	}

	var sts statements
	if traits.Optimistic() {
		sts = cache.NewObject[cache.Optimistic](s.conn, traits)
	} else {
		sts = cache.NewObject[cache.Plain](s.conn, traits)
	}
	s.sts[t] = sts
	return sts, traits, nil
}

// entityValue validates obj as a pointer to struct and returns the
// struct value.
func entityValue(obj any) (reflect.Value, error) {
	v := reflect.ValueOf(obj)
	if v.Kind() != reflect.Ptr || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("session: expected non-nil pointer to struct, got %T", obj)
	}
	return v.Elem(), nil
}

// Migrate creates the tables (and container side tables) for the given
// model values or types.
func (s *Session) Migrate(ctx context.Context, models ...any) error {
	for _, m := range models {
		t, ok := m.(reflect.Type)
		if !ok {
			t = reflect.TypeOf(m)
		}
		traits, err := s.schema.Traits(t)
		if err != nil {
			return err
		}
		if _, err := s.conn.Exec(ctx, traits.CreateText); err != nil {
			return fmt.Errorf("session: create %s: %w", traits.Table, err)
		}
		for _, cm := range traits.Containers {
			if _, err := s.conn.Exec(ctx, cm.CreateText); err != nil {
				return fmt.Errorf("session: create %s: %w", cm.Table, err)
			}
		}
	}
	return nil
}

// Close tears down every per-type context (closing its statements and
// releasing any container sub-cache exactly once), the pinned
// connection, and the owning database connection the session was built
// from.
func (s *Session) Close() error {
	var first error
	for t, sts := range s.sts {
		if err := sts.Close(); err != nil && first == nil {
			first = err
		}
		delete(s.sts, t)
	}
	s.idents = make(map[identKey]*identEntry)
	if err := s.conn.Close(); err != nil && first == nil {
		first = err
	}
	if s.dbConn != nil {
		if err := s.dbConn.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
