package cache

import (
	"errors"

	"github.com/Konsultn-Engineering/opal/binding"
	"github.com/Konsultn-Engineering/opal/internal/fingerprint"
	"github.com/Konsultn-Engineering/opal/statement"
)

// ContainerCache holds the statements for a type's one-to-many and
// many-to-many containers, keyed by fingerprinted SQL text. Statements
// are created on first request and retained until the cache is
// released.
type ContainerCache struct {
	conn      *statement.Conn
	idBinding *binding.Binding

	selects map[uint64]*statement.SelectStatement
	inserts map[uint64]*statement.InsertStatement
	deletes map[uint64]*statement.DeleteStatement
}

const (
	containerSelect uint64 = iota
	containerInsert
	containerDelete
)

// NewContainerCache creates a container sub-cache bound to the owning
// object's id binding.
func NewContainerCache(conn *statement.Conn, id *binding.Binding) *ContainerCache {
	return &ContainerCache{
		conn:      conn,
		idBinding: id,
		selects:   make(map[uint64]*statement.SelectStatement),
		inserts:   make(map[uint64]*statement.InsertStatement),
		deletes:   make(map[uint64]*statement.DeleteStatement),
	}
}

// IDBinding returns the owner's id binding, shared by container delete
// and select statements.
func (c *ContainerCache) IDBinding() *binding.Binding { return c.idBinding }

// Select returns the cached select statement for text, creating it with
// the given result binding on first request.
func (c *ContainerCache) Select(text string, result *binding.Binding) *statement.SelectStatement {
	key := fingerprint.Mix64(containerSelect, fingerprint.U64(text))
	if st, ok := c.selects[key]; ok {
		return st
	}
	st := statement.NewSelect(c.conn, text, c.idBinding, result)
	c.selects[key] = st
	return st
}

// Insert returns the cached insert statement for text, creating it with
// the given parameter binding on first request.
func (c *ContainerCache) Insert(text string, param *binding.Binding) *statement.InsertStatement {
	key := fingerprint.Mix64(containerInsert, fingerprint.U64(text))
	if st, ok := c.inserts[key]; ok {
		return st
	}
	st := statement.NewInsert(c.conn, text, param)
	c.inserts[key] = st
	return st
}

// Delete returns the cached delete-by-owner statement for text.
func (c *ContainerCache) Delete(text string) *statement.DeleteStatement {
	key := fingerprint.Mix64(containerDelete, fingerprint.U64(text))
	if st, ok := c.deletes[key]; ok {
		return st
	}
	st := statement.NewDelete(c.conn, text, c.idBinding)
	c.deletes[key] = st
	return st
}

// Close tears down every cached statement.
func (c *ContainerCache) Close() error {
	var errs []error
	for _, st := range c.selects {
		errs = append(errs, st.Close())
	}
	for _, st := range c.inserts {
		errs = append(errs, st.Close())
	}
	for _, st := range c.deletes {
		errs = append(errs, st.Close())
	}
	c.selects, c.inserts, c.deletes = nil, nil, nil
	return errors.Join(errs...)
}

// ContainerCachePtr is the deferred, allocate-once owner of a context's
// container sub-cache: created on first access, released exactly once
// when the context is torn down (or explicitly reset).
type ContainerCachePtr struct {
	p *ContainerCache
}

// Get returns the sub-cache, allocating it on first access.
func (h *ContainerCachePtr) Get(conn *statement.Conn, id *binding.Binding) *ContainerCache {
	if h.p == nil {
		h.p = NewContainerCache(conn, id)
	}
	return h.p
}

// Allocated reports whether the sub-cache exists.
func (h *ContainerCachePtr) Allocated() bool { return h.p != nil }

// Release tears the sub-cache down. Safe to call when nothing was
// allocated; a second call after release is a no-op.
func (h *ContainerCachePtr) Release() error {
	if h.p == nil {
		return nil
	}
	p := h.p
	h.p = nil
	return p.Close()
}
