package cache

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Konsultn-Engineering/opal/dialect"
	"github.com/Konsultn-Engineering/opal/schema"
)

// =========================================================================
// Test Data Structures
// =========================================================================

type account struct {
	ID      uint64 `db:"id,pk,auto"`
	Name    string `db:"name"`
	Email   string `db:"email,readonly"`
	Balance int64  `db:"balance"`
	OwnerID uint64 `db:"owner_id,inverse"`
}

type note struct {
	ID   uint64   `db:"id,pk,auto"`
	Body string   `db:"body"`
	Ver  uint64   `db:"ver,version"`
	Tags []string `db:"tags,container"`
}

func traitsFor(t *testing.T, model any) *schema.Traits {
	t.Helper()
	sc := schema.NewContext(dialect.NewSQLiteDialect())
	tr, err := sc.Traits(reflect.TypeOf(model))
	require.NoError(t, err)
	return tr
}

// =========================================================================
// Sizing
// =========================================================================

func TestObjectSizing(t *testing.T) {
	tr := traitsFor(t, account{})

	// 5 mapped columns; one inverse, one id, one readonly.
	assert.Equal(t, 5, tr.ColumnCount)
	assert.Equal(t, 1, tr.InverseColumnCount)
	assert.Equal(t, 0, tr.ManagedOptimisticColumnCount)
	assert.Equal(t, 1, tr.IDColumnCount)
	assert.Equal(t, 1, tr.ReadonlyColumnCount)
	assert.Equal(t, 5, tr.SelectColumnCount)
	assert.Equal(t, 4, tr.InsertColumnCount)
	assert.Equal(t, 2, tr.UpdateColumnCount)

	s := NewObject[Plain](nil, tr)
	assert.Equal(t, 5, s.Image().Len())
	assert.Equal(t, 1, s.IDImage().Len())
	assert.Equal(t, 5, s.SelectBinding().Len())
	assert.Equal(t, 4, s.InsertBinding().Len())
	assert.Equal(t, 3, s.UpdateBinding().Len()) // update cols + id
	assert.Equal(t, 1, s.IDBinding().Len())
}

func TestObjectSizingOptimistic(t *testing.T) {
	tr := traitsFor(t, note{})

	assert.Equal(t, 3, tr.ColumnCount)
	assert.Equal(t, 1, tr.ManagedOptimisticColumnCount)
	assert.True(t, tr.Optimistic())
	assert.Equal(t, 2, tr.InsertColumnCount) // id + body; managed column excluded
	assert.Equal(t, 1, tr.UpdateColumnCount)

	s := NewObject[Optimistic](nil, tr)
	assert.Equal(t, 2, s.IDImage().Len()) // id + version
	assert.Equal(t, 3, s.UpdateBinding().Len())
	assert.Equal(t, 2, s.OptimisticIDBinding().Len())
}

func TestNewObjectVariantMismatch(t *testing.T) {
	plain := traitsFor(t, account{})
	versioned := traitsFor(t, note{})

	assert.Panics(t, func() { NewObject[Optimistic](nil, plain) })
	assert.Panics(t, func() { NewObject[Plain](nil, versioned) })
}

func TestPlainContextHasNoOptimisticState(t *testing.T) {
	s := NewObject[Plain](nil, traitsFor(t, account{}))
	assert.False(t, s.Optimistic())
	assert.Panics(t, func() { s.OptimisticIDBinding() })
	assert.Panics(t, func() { s.EnsureOptimisticIDBound() })
}

// =========================================================================
// Locking
// =========================================================================

func TestLockProtocol(t *testing.T) {
	s := NewObject[Plain](nil, traitsFor(t, account{}))

	assert.False(t, s.Locked())
	s.Lock()
	assert.True(t, s.Locked())
	assert.Panics(t, func() { s.Lock() })

	s.Unlock()
	assert.False(t, s.Locked())
	assert.Panics(t, func() { s.Unlock() })
}

func TestGuardOverUnlockedContext(t *testing.T) {
	s := NewObject[Plain](nil, traitsFor(t, account{}))

	g := NewGuard(s)
	assert.True(t, g.Locked())
	assert.True(t, s.Locked())

	g.Unlock()
	assert.False(t, g.Locked())
	assert.False(t, s.Locked())

	// Release after a normal Unlock is a no-op.
	g.Release()
	assert.False(t, s.Locked())
}

func TestGuardOverLockedContext(t *testing.T) {
	s := NewObject[Plain](nil, traitsFor(t, account{}))
	s.Lock()

	g := NewGuard(s)
	assert.False(t, g.Locked())

	// A non-owning guard never releases the enclosing scope's lock.
	g.Unlock()
	assert.True(t, s.Locked())
	g.Release()
	assert.True(t, s.Locked())
	s.Unlock()
}

func TestGuardReleaseDiscardsDelayed(t *testing.T) {
	s := NewObject[Plain](nil, traitsFor(t, account{}))

	g := NewGuard(s)
	s.DelayLoad(uint64(1), nil, nil, func(id, obj, pos any) error { return nil })
	require.Equal(t, 1, s.DelayedCount())

	g.Release()
	assert.False(t, s.Locked())
	assert.Equal(t, 0, s.DelayedCount())
}

func TestUnlockedRestores(t *testing.T) {
	s := NewObject[Plain](nil, traitsFor(t, account{}))
	s.Lock()

	u := NewUnlocked(s)
	assert.False(t, s.Locked())
	u.Restore()
	assert.True(t, s.Locked())
	s.Unlock()
}

// =========================================================================
// Binding refresh
// =========================================================================

func TestEnsureBoundRefreshesOnImageChange(t *testing.T) {
	s := NewObject[Plain](nil, traitsFor(t, account{}))

	assert.Equal(t, uint64(0), s.SelectBinding().Version())
	s.EnsureSelectBound()
	v1 := s.SelectBinding().Version()
	assert.NotZero(t, v1)

	// Same image revision: no rebind.
	s.EnsureSelectBound()
	assert.Equal(t, v1, s.SelectBinding().Version())

	s.Image().Touch()
	s.EnsureSelectBound()
	assert.Equal(t, v1+1, s.SelectBinding().Version())
}

func TestEnsureInsertBoundSkipsInverse(t *testing.T) {
	s := NewObject[Plain](nil, traitsFor(t, account{}))
	tr := s.Traits()

	s.EnsureInsertBound()
	require.Equal(t, tr.InsertColumnCount, s.InsertBinding().Len())
	for slot, col := range tr.PersistColumns {
		assert.Same(t, s.Image().Cell(col), s.InsertBinding().Slot(slot).Cell)
	}
}

func TestInsertBindingFollowsPersistColumns(t *testing.T) {
	// On an engine that returns assigned ids instead of accepting a
	// NULL id parameter, the insert binding drops the auto pk slot so
	// the parameter count matches the statement text.
	sc := schema.NewContext(dialect.NewPostgresDialect())
	tr, err := sc.Traits(reflect.TypeOf(account{}))
	require.NoError(t, err)
	require.True(t, tr.PersistReturning)

	s := NewObject[Plain](nil, tr)
	assert.Equal(t, tr.InsertColumnCount-1, s.InsertBinding().Len())

	s.EnsureInsertBound()
	for slot, col := range tr.PersistColumns {
		assert.Same(t, s.Image().Cell(col), s.InsertBinding().Slot(slot).Cell)
		assert.False(t, tr.Fields[col].PK)
	}
}

func TestEnsureUpdateBoundTracksBothImages(t *testing.T) {
	s := NewObject[Optimistic](nil, traitsFor(t, note{}))

	s.EnsureUpdateBound()
	v1 := s.UpdateBinding().Version()

	s.EnsureUpdateBound()
	assert.Equal(t, v1, s.UpdateBinding().Version())

	// Either source image moving invalidates the binding.
	s.Image().Touch()
	s.EnsureUpdateBound()
	v2 := s.UpdateBinding().Version()
	assert.Equal(t, v1+1, v2)

	s.IDImage().Touch()
	s.EnsureUpdateBound()
	assert.Equal(t, v2+1, s.UpdateBinding().Version())
}

func TestEnsureIDBoundIndependentOfMainImage(t *testing.T) {
	s := NewObject[Plain](nil, traitsFor(t, account{}))

	s.EnsureIDBound()
	v1 := s.IDBinding().Version()

	s.Image().Touch()
	s.EnsureIDBound()
	assert.Equal(t, v1, s.IDBinding().Version())

	s.IDImage().Touch()
	s.EnsureIDBound()
	assert.Equal(t, v1+1, s.IDBinding().Version())
}

// =========================================================================
// Delayed loads
// =========================================================================

func TestLoadDelayedRequiresLock(t *testing.T) {
	s := NewObject[Plain](nil, traitsFor(t, account{}))
	assert.Panics(t, func() { _ = s.LoadDelayed() })
}

func TestLoadDelayedSinglePass(t *testing.T) {
	s := NewObject[Plain](nil, traitsFor(t, account{}))
	s.Lock()
	defer s.Unlock()

	var order []int
	s.DelayLoad(1, nil, nil, func(id, obj, pos any) error {
		order = append(order, 1)
		// Enqueued mid-drain: stays queued for the next call.
		s.DelayLoad(3, nil, nil, func(id, obj, pos any) error {
			order = append(order, 3)
			return nil
		})
		return nil
	})
	s.DelayLoad(2, nil, nil, func(id, obj, pos any) error {
		order = append(order, 2)
		return nil
	})

	require.NoError(t, s.LoadDelayed())
	assert.Equal(t, []int{1, 2}, order)
	assert.Equal(t, 1, s.DelayedCount())

	require.NoError(t, s.LoadDelayed())
	assert.Equal(t, []int{1, 2, 3}, order)
	assert.Equal(t, 0, s.DelayedCount())
}

func TestLoadDelayedFailureDiscardsRemainder(t *testing.T) {
	s := NewObject[Plain](nil, traitsFor(t, account{}))
	s.Lock()
	defer s.Unlock()

	var ran []int
	s.DelayLoad(1, nil, nil, func(id, obj, pos any) error {
		ran = append(ran, 1)
		return assert.AnError
	})
	s.DelayLoad(2, nil, nil, func(id, obj, pos any) error {
		ran = append(ran, 2)
		return nil
	})

	err := s.LoadDelayed()
	require.Error(t, err)
	assert.Equal(t, []int{1}, ran)
	assert.Equal(t, 0, s.DelayedCount())
}

// =========================================================================
// Container sub-cache holder
// =========================================================================

func TestContainerHolderAllocateOnce(t *testing.T) {
	var h ContainerCachePtr
	assert.False(t, h.Allocated())

	first := h.Get(nil, nil)
	require.NotNil(t, first)
	assert.True(t, h.Allocated())
	assert.Same(t, first, h.Get(nil, nil))

	require.NoError(t, h.Release())
	assert.False(t, h.Allocated())
	// Releasing an empty holder is a no-op.
	require.NoError(t, h.Release())
}

func TestObjectContainersLazy(t *testing.T) {
	tr := traitsFor(t, note{})
	s := NewObject[Optimistic](nil, tr)

	require.Len(t, tr.Containers, 1)
	cc := s.Containers()
	require.NotNil(t, cc)
	assert.Same(t, cc, s.Containers())
	assert.Same(t, s.IDBinding(), cc.IDBinding())
}
