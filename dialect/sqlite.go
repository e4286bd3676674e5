package dialect

// SQLite is the dialect of the default embedded engine.
type SQLite struct{}

func NewSQLiteDialect() Dialect {
	return SQLite{}
}

func (SQLite) Name() string { return "sqlite" }

func (SQLite) QuoteIdentifier(name string) string {
	return `"` + name + `"`
}

func (SQLite) Placeholder(n int) string {
	return "?"
}

func (SQLite) ColumnType(kind ColumnKind) string {
	switch kind {
	case ColumnInteger:
		return "INTEGER"
	case ColumnReal:
		return "REAL"
	case ColumnBlob:
		return "BLOB"
	default:
		return "TEXT"
	}
}

func (SQLite) AutoIncrement() string {
	// INTEGER PRIMARY KEY is the rowid alias; AUTOINCREMENT is not needed.
	return "INTEGER PRIMARY KEY"
}

func (SQLite) AutoIDInInsert() bool {
	// A NULL rowid-alias value makes the engine assign the id.
	return true
}

func (SQLite) Returning(column string) string {
	// Assigned ids come back through the statement result.
	return ""
}
