package statement

import (
	"context"
	"database/sql"

	"github.com/Konsultn-Engineering/opal/binding"
)

// base carries what every statement kind shares: the owning connection,
// the SQL text, and the lazily prepared handle. Exactly one prepared
// handle exists per statement for its lifetime.
type base struct {
	conn *Conn
	text string
	stmt *sql.Stmt
}

// Text returns the statement's SQL text.
func (s *base) Text() string { return s.text }

// Close releases the prepared handle, if any.
func (s *base) Close() error {
	if s.stmt == nil {
		return nil
	}
	stmt := s.stmt
	s.stmt = nil
	return stmt.Close()
}

func (s *base) prepared(ctx context.Context) (*sql.Stmt, error) {
	if s.stmt != nil {
		return s.stmt, nil
	}
	stmt, err := s.conn.Prepare(ctx, s.text)
	if err != nil {
		return nil, err
	}
	s.stmt = stmt
	return stmt, nil
}

// InsertStatement executes an INSERT with parameters drawn from one
// binding.
type InsertStatement struct {
	base
	param *binding.Binding
}

// NewInsert constructs an insert statement from SQL text and its
// parameter binding. Preparation happens on first Execute.
func NewInsert(conn *Conn, text string, param *binding.Binding) *InsertStatement {
	return &InsertStatement{base: base{conn: conn, text: text}, param: param}
}

// Execute runs the insert with the binding's current cell values and
// returns the engine's result (rows affected, last insert id).
func (s *InsertStatement) Execute(ctx context.Context) (sql.Result, error) {
	stmt, err := s.prepared(ctx)
	if err != nil {
		return nil, err
	}
	s.conn.logExec(s.text)
	return stmt.ExecContext(ctx, s.param.Args()...)
}

// ExecuteReturning runs an insert whose text carries a returning
// clause and scans the single returned column into dest. Used on
// engines that do not report assigned ids through the statement
// result.
func (s *InsertStatement) ExecuteReturning(ctx context.Context, dest any) error {
	stmt, err := s.prepared(ctx)
	if err != nil {
		return err
	}
	s.conn.logExec(s.text)
	return stmt.QueryRowContext(ctx, s.param.Args()...).Scan(dest)
}

// UpdateStatement executes an UPDATE with parameters drawn from one
// binding (which may itself span two images; that is the caller's
// concern).
type UpdateStatement struct {
	base
	param *binding.Binding
}

// NewUpdate constructs an update statement from SQL text and its
// parameter binding.
func NewUpdate(conn *Conn, text string, param *binding.Binding) *UpdateStatement {
	return &UpdateStatement{base: base{conn: conn, text: text}, param: param}
}

// Execute runs the update and returns the number of rows affected. Zero
// rows is not an error here: for a version-checked update it is how a
// concurrency conflict is reported.
func (s *UpdateStatement) Execute(ctx context.Context) (int64, error) {
	stmt, err := s.prepared(ctx)
	if err != nil {
		return 0, err
	}
	s.conn.logExec(s.text)
	res, err := stmt.ExecContext(ctx, s.param.Args()...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteStatement executes a DELETE with parameters drawn from one
// binding.
type DeleteStatement struct {
	base
	param *binding.Binding
}

// NewDelete constructs a delete statement from SQL text and its
// parameter binding.
func NewDelete(conn *Conn, text string, param *binding.Binding) *DeleteStatement {
	return &DeleteStatement{base: base{conn: conn, text: text}, param: param}
}

// Execute runs the delete and returns the number of rows affected. As
// with updates, zero rows signals a version conflict on the optimistic
// path and is left to the caller to interpret.
func (s *DeleteStatement) Execute(ctx context.Context) (int64, error) {
	stmt, err := s.prepared(ctx)
	if err != nil {
		return 0, err
	}
	s.conn.logExec(s.text)
	res, err := stmt.ExecContext(ctx, s.param.Args()...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
