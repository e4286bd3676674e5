package cache

// LoaderFunc resolves one delayed load: fetch the object identified by
// id and install it at the pending association slot recorded by pos.
// Loaders run after the statement that discovered the reference has
// finished producing rows, so they are free to execute their own
// statements against the same connection.
type LoaderFunc func(id, obj, pos any) error

// delayedLoad records one deferred association fetch. Entries live for
// at most one drain cycle; entries abandoned by a failure are dropped,
// never retried.
type delayedLoad struct {
	id     any
	obj    any
	pos    any
	loader LoaderFunc
}
