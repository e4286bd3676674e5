package dialect

import "strconv"

type Postgres struct{}

func NewPostgresDialect() Dialect {
	return Postgres{}
}

func (Postgres) Name() string { return "postgres" }

func (Postgres) QuoteIdentifier(name string) string {
	return `"` + name + `"`
}

func (Postgres) Placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

func (Postgres) ColumnType(kind ColumnKind) string {
	switch kind {
	case ColumnInteger:
		return "BIGINT"
	case ColumnReal:
		return "DOUBLE PRECISION"
	case ColumnBlob:
		return "BYTEA"
	default:
		return "TEXT"
	}
}

func (Postgres) AutoIncrement() string {
	return "BIGSERIAL PRIMARY KEY"
}

func (Postgres) AutoIDInInsert() bool {
	// BIGSERIAL is NOT NULL; the column must be omitted for the
	// sequence to fire.
	return false
}

func (p Postgres) Returning(column string) string {
	return " RETURNING " + p.QuoteIdentifier(column)
}
