// Package cache implements the per-(connection, mapped-type) persistence
// context: row images, versioned parameter bindings, lazily created
// prepared statements, the reentrancy locking protocol, and the
// delayed-load queue that defers association fetches until the
// triggering statement has finished producing rows.
package cache

import "github.com/Konsultn-Engineering/opal/statement"

// Base carries what every statement cache shares: the owning connection
// and the lock flag. The flag is a guard against logical reentry on one
// connection, not a cross-thread mutex; contexts are never shared
// between goroutines.
type Base struct {
	conn   *statement.Conn
	locked bool
}

// NewBase wraps a connection.
func NewBase(conn *statement.Conn) Base {
	return Base{conn: conn}
}

// Connection returns the owning connection.
func (b *Base) Connection() *statement.Conn { return b.conn }

// Lock marks the context as in use. Locking an already locked context is
// a caller bug in the surrounding runtime, not a recoverable condition.
func (b *Base) Lock() {
	if b.locked {
		panic("cache: context already locked")
	}
	b.locked = true
}

// Unlock releases the context. Unlocking an unlocked context is a caller
// bug.
func (b *Base) Unlock() {
	if !b.locked {
		panic("cache: context not locked")
	}
	b.locked = false
}

// Locked reports whether the context is currently in use.
func (b *Base) Locked() bool { return b.locked }

// Unlocked temporarily releases a context's lock so a nested operation
// can acquire it, re-locking on Restore:
//
//	u := cache.NewUnlocked(sts)
//	defer u.Restore()
type Unlocked struct {
	s interface {
		Lock()
		Unlock()
	}
}

// NewUnlocked unlocks the context immediately.
func NewUnlocked(s interface {
	Lock()
	Unlock()
}) *Unlocked {
	s.Unlock()
	return &Unlocked{s: s}
}

// Restore re-locks the context.
func (u *Unlocked) Restore() {
	u.s.Lock()
}
