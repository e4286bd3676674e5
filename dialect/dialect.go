package dialect

// Dialect abstracts the SQL surface differences between supported
// engines. The persistence core only needs identifier quoting,
// parameter placeholders, and column type names for generated DDL.
type Dialect interface {
	Name() string
	QuoteIdentifier(name string) string
	Placeholder(n int) string
	ColumnType(kind ColumnKind) string
	AutoIncrement() string

	// AutoIDInInsert reports whether an engine-assigned id column may
	// appear in the insert column list bound to NULL.
	AutoIDInInsert() bool

	// Returning renders the clause that hands an inserted column back
	// to the client, or "" when the engine reports it through the
	// driver's statement result instead.
	Returning(column string) string
}

// ColumnKind is the storage class a mapped column collapses to.
type ColumnKind uint8

const (
	ColumnInteger ColumnKind = iota
	ColumnReal
	ColumnText
	ColumnBlob
)
