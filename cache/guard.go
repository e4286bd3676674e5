package cache

// Context is the locking surface the scoped guard operates on. Every
// Object instantiation satisfies it.
type Context interface {
	Lock()
	Unlock()
	Locked() bool
	ClearDelayed()
}

// Guard is the scoped acquisition of a context's lock. Over an unlocked
// context it takes the lock and owns it; over a context locked by an
// enclosing operation it owns nothing, letting a nested operation run
// without tripping the double-lock check while still being able to tell
// that it is not the owning scope.
//
// Normal control flow drains delayed loads (while still locked) and then
// calls Unlock explicitly; the deferred Release is the abnormal-exit
// path and discards pending loads instead of running them:
//
//	g := cache.NewGuard(sts)
//	defer g.Release()
//	...
//	if err := sts.LoadDelayed(); err != nil { return err }
//	g.Unlock()
type Guard struct {
	s    Context
	held bool
}

// NewGuard locks s unless it is already locked.
func NewGuard(s Context) *Guard {
	g := &Guard{s: s}
	if !s.Locked() {
		s.Lock()
		g.held = true
	}
	return g
}

// Locked reports whether this guard holds the lock.
func (g *Guard) Locked() bool { return g.held }

// Unlock releases the lock and discards any still-pending delayed loads.
// A no-op when this guard never held the lock.
func (g *Guard) Unlock() {
	if !g.held {
		return
	}
	g.s.Unlock()
	g.s.ClearDelayed()
	g.held = false
}

// Release is the deferred exit path: if the lock is still held here, the
// operation is unwinding abnormally, so the lock is forced open and
// pending delayed loads are dropped, not executed.
func (g *Guard) Release() {
	if g.held {
		g.s.Unlock()
		g.s.ClearDelayed()
		g.held = false
	}
}
