package statement

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Konsultn-Engineering/opal/binding"
)

// ErrStatementBusy is returned when a select statement is executed while
// its previous cursor is still open. The engine permits only one active
// cursor per prepared statement; the delayed-load queue exists so that
// well-behaved callers never reach this condition.
var ErrStatementBusy = errors.New("statement: cursor still active")

// SelectStatement executes a SELECT with parameters drawn from one
// binding and results delivered into another. At most one cursor is
// active at a time; Fetch consumes it row by row and Free releases it.
type SelectStatement struct {
	base
	param  *binding.Binding
	result *binding.Binding
	rows   *sql.Rows
}

// NewSelect constructs a select statement from SQL text, its parameter
// binding, and its result binding.
func NewSelect(conn *Conn, text string, param, result *binding.Binding) *SelectStatement {
	return &SelectStatement{base: base{conn: conn, text: text}, param: param, result: result}
}

// Active reports whether a cursor is currently open.
func (s *SelectStatement) Active() bool { return s.rows != nil }

// Execute opens the statement's cursor with the parameter binding's
// current cell values. Executing while a cursor is still open returns
// ErrStatementBusy.
func (s *SelectStatement) Execute(ctx context.Context) error {
	if s.rows != nil {
		return ErrStatementBusy
	}
	stmt, err := s.prepared(ctx)
	if err != nil {
		return err
	}
	s.conn.logExec(s.text)
	rows, err := stmt.QueryContext(ctx, s.param.Args()...)
	if err != nil {
		return err
	}
	s.rows = rows
	return nil
}

// Fetch scans the next row into the result binding's cells. It returns
// false with a nil error when the cursor is exhausted, at which point
// the cursor has been released.
func (s *SelectStatement) Fetch() (bool, error) {
	if s.rows == nil {
		return false, nil
	}
	if !s.rows.Next() {
		err := s.rows.Err()
		s.freeRows()
		return false, err
	}
	if err := s.rows.Scan(s.result.Dests()...); err != nil {
		s.freeRows()
		return false, err
	}
	return true, nil
}

// Free releases the cursor without draining it. Safe to call when no
// cursor is open.
func (s *SelectStatement) Free() error {
	if s.rows == nil {
		return nil
	}
	rows := s.rows
	s.rows = nil
	return rows.Close()
}

func (s *SelectStatement) freeRows() {
	if s.rows != nil {
		s.rows.Close()
		s.rows = nil
	}
}

// Close frees any open cursor and the prepared handle.
func (s *SelectStatement) Close() error {
	err := s.Free()
	if cerr := s.base.Close(); err == nil {
		err = cerr
	}
	return err
}
