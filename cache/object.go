package cache

import (
	"errors"

	"github.com/Konsultn-Engineering/opal/binding"
	"github.com/Konsultn-Engineering/opal/schema"
	"github.com/Konsultn-Engineering/opal/statement"
)

// Plain is the concurrency variant for types without a managed
// optimistic column. It is empty so such types pay no memory or
// branching cost for the optimistic machinery.
type Plain struct{}

// Optimistic is the concurrency variant for types that declare a managed
// version column. It adds the id+version binding, its version counter,
// and the version-checked delete statement.
type Optimistic struct {
	idImageVersion uint64
	idBinding      *binding.Binding
	erase          *statement.DeleteStatement
}

// Model constrains the concurrency variant. The variant is selected once
// per mapped type when the context is created, never by a runtime flag.
type Model interface {
	Plain | Optimistic
}

// Object is the persistence context for one mapped type on one
// connection: one main image, one id image, one binding per statement
// kind, at most one instance of each statement (created on first use),
// the lock flag, and the delayed-load queue. Exactly one Object exists
// per (connection, type) pair; it lives until the connection's slot is
// torn down.
type Object[C Model] struct {
	Base

	traits *schema.Traits

	image   *binding.Image
	idImage *binding.Image

	// Binding versions record which image revision each binding set
	// currently reflects. The update binding spans two images (update
	// columns from the main image plus the id suffix from the id
	// image), so its validity depends on two versions independently.
	selectImageVersion   uint64
	insertImageVersion   uint64
	updateImageVersion   uint64
	updateIDImageVersion uint64
	idImageVersion       uint64

	selectBinding *binding.Binding
	insertBinding *binding.Binding
	updateBinding *binding.Binding
	idBinding     *binding.Binding

	od C

	persist *statement.InsertStatement
	find    *statement.SelectStatement
	update  *statement.UpdateStatement
	erase   *statement.DeleteStatement

	delayed []delayedLoad

	containers ContainerCachePtr
}

// NewObject creates the persistence context for traits on conn. The
// concurrency variant C must agree with the traits: Optimistic exactly
// when the type declares a managed version column. A mismatch is a
// registration bug.
func NewObject[C Model](conn *statement.Conn, traits *schema.Traits) *Object[C] {
	s := &Object[C]{
		Base:   NewBase(conn),
		traits: traits,
	}

	od, optimistic := any(&s.od).(*Optimistic)
	if optimistic != traits.Optimistic() {
		panic("cache: concurrency variant does not match type traits")
	}

	// Images and binding arrays are sized from the column-count
	// invariants, fixed for the type's lifetime.
	s.image = binding.NewImage(traits.SelectColumnCount)
	s.idImage = binding.NewImage(traits.IDImageColumnCount())

	s.selectBinding = binding.NewBinding(traits.SelectColumnCount)
	s.insertBinding = binding.NewBinding(len(traits.PersistColumns))
	s.updateBinding = binding.NewBinding(traits.UpdateColumnCount +
		traits.IDColumnCount + traits.ManagedOptimisticColumnCount)
	s.idBinding = binding.NewBinding(traits.IDColumnCount)

	if optimistic {
		od.idBinding = binding.NewBinding(traits.IDImageColumnCount())
	}
	return s
}

// Traits returns the mapped-type metadata this context was built from.
func (s *Object[C]) Traits() *schema.Traits { return s.traits }

// Image returns the main row buffer. Callers write column values here
// before an insert/update/select-bind cycle and call Touch on mutation.
func (s *Object[C]) Image() *binding.Image { return s.image }

// IDImage returns the id buffer (id column plus, for optimistic types,
// the managed version column).
func (s *Object[C]) IDImage() *binding.Image { return s.idImage }

// Binding-set version accessors. Set is called by the caller right after
// mutating the corresponding image; Get is consulted by the refresh
// logic to detect staleness.

func (s *Object[C]) SelectImageVersion() uint64      { return s.selectImageVersion }
func (s *Object[C]) SetSelectImageVersion(v uint64)  { s.selectImageVersion = v }
func (s *Object[C]) InsertImageVersion() uint64      { return s.insertImageVersion }
func (s *Object[C]) SetInsertImageVersion(v uint64)  { s.insertImageVersion = v }
func (s *Object[C]) UpdateImageVersion() uint64      { return s.updateImageVersion }
func (s *Object[C]) SetUpdateImageVersion(v uint64)  { s.updateImageVersion = v }
func (s *Object[C]) UpdateIDImageVersion() uint64    { return s.updateIDImageVersion }
func (s *Object[C]) SetUpdateIDImageVersion(v uint64) { s.updateIDImageVersion = v }
func (s *Object[C]) IDImageVersion() uint64          { return s.idImageVersion }
func (s *Object[C]) SetIDImageVersion(v uint64)      { s.idImageVersion = v }

func (s *Object[C]) SelectBinding() *binding.Binding { return s.selectBinding }
func (s *Object[C]) InsertBinding() *binding.Binding { return s.insertBinding }
func (s *Object[C]) UpdateBinding() *binding.Binding { return s.updateBinding }
func (s *Object[C]) IDBinding() *binding.Binding     { return s.idBinding }

// Optimistic reports which concurrency variant this context carries.
func (s *Object[C]) Optimistic() bool {
	_, ok := any(&s.od).(*Optimistic)
	return ok
}

func (s *Object[C]) optimistic() *Optimistic {
	od, ok := any(&s.od).(*Optimistic)
	if !ok {
		panic("cache: context has no optimistic state")
	}
	return od
}

// OptimisticIDImageVersion returns the version the optimistic id+version
// binding currently reflects. Panics on a plain context.
func (s *Object[C]) OptimisticIDImageVersion() uint64 {
	return s.optimistic().idImageVersion
}

// SetOptimisticIDImageVersion records the id-image revision the
// optimistic binding was refreshed against.
func (s *Object[C]) SetOptimisticIDImageVersion(v uint64) {
	s.optimistic().idImageVersion = v
}

// OptimisticIDBinding returns the id+version binding. Panics on a plain
// context.
func (s *Object[C]) OptimisticIDBinding() *binding.Binding {
	return s.optimistic().idBinding
}

// Binding refresh. A binding whose recorded source version differs from
// its image's current version has stale slot addresses; refreshing
// re-derives them against the same buffers, it never reallocates.

// EnsureSelectBound refreshes the select binding if stale.
func (s *Object[C]) EnsureSelectBound() {
	if s.selectImageVersion == s.image.Version() && s.selectBinding.Version() != 0 {
		return
	}
	cells := make([]*binding.Cell, s.image.Len())
	for i := range cells {
		cells[i] = s.image.Cell(i)
	}
	s.selectBinding.Rebind(cells...)
	s.selectImageVersion = s.image.Version()
}

// EnsureInsertBound refreshes the insert binding if stale. The slots
// follow PersistColumns, which drops the auto pk on engines that
// return assigned ids instead of taking a NULL id parameter.
func (s *Object[C]) EnsureInsertBound() {
	if s.insertImageVersion == s.image.Version() && s.insertBinding.Version() != 0 {
		return
	}
	cells := make([]*binding.Cell, 0, len(s.traits.PersistColumns))
	for _, i := range s.traits.PersistColumns {
		cells = append(cells, s.image.Cell(i))
	}
	s.insertBinding.Rebind(cells...)
	s.insertImageVersion = s.image.Version()
}

// EnsureUpdateBound refreshes the update binding if either of its two
// source images moved. Slot layout: update columns from the main image,
// then the id cell, then (optimistic only) the version cell — both from
// the id image.
func (s *Object[C]) EnsureUpdateBound() {
	if s.updateImageVersion == s.image.Version() &&
		s.updateIDImageVersion == s.idImage.Version() &&
		s.updateBinding.Version() != 0 {
		return
	}
	cells := make([]*binding.Cell, 0, s.updateBinding.Len())
	for _, i := range s.traits.UpdateColumns {
		cells = append(cells, s.image.Cell(i))
	}
	for i := 0; i < s.idImage.Len(); i++ {
		cells = append(cells, s.idImage.Cell(i))
	}
	s.updateBinding.Rebind(cells...)
	s.updateImageVersion = s.image.Version()
	s.updateIDImageVersion = s.idImage.Version()
}

// EnsureIDBound refreshes the id binding (id column only) if stale.
func (s *Object[C]) EnsureIDBound() {
	if s.idImageVersion == s.idImage.Version() && s.idBinding.Version() != 0 {
		return
	}
	cells := make([]*binding.Cell, s.traits.IDColumnCount)
	for i := range cells {
		cells[i] = s.idImage.Cell(i)
	}
	s.idBinding.Rebind(cells...)
	s.idImageVersion = s.idImage.Version()
}

// EnsureOptimisticIDBound refreshes the id+version binding if stale.
// Panics on a plain context.
func (s *Object[C]) EnsureOptimisticIDBound() {
	od := s.optimistic()
	if od.idImageVersion == s.idImage.Version() && od.idBinding.Version() != 0 {
		return
	}
	cells := make([]*binding.Cell, s.idImage.Len())
	for i := range cells {
		cells[i] = s.idImage.Cell(i)
	}
	od.idBinding.Rebind(cells...)
	od.idImageVersion = s.idImage.Version()
}

// Statement accessors. Each constructs its statement from the traits'
// static SQL text and the relevant binding on first call and returns the
// same instance thereafter; preparation against the engine happens
// lazily on first execution.

func (s *Object[C]) PersistStatement() *statement.InsertStatement {
	if s.persist == nil {
		s.persist = statement.NewInsert(s.Connection(), s.traits.PersistText, s.insertBinding)
	}
	return s.persist
}

func (s *Object[C]) FindStatement() *statement.SelectStatement {
	if s.find == nil {
		s.find = statement.NewSelect(s.Connection(), s.traits.FindText, s.idBinding, s.selectBinding)
	}
	return s.find
}

func (s *Object[C]) UpdateStatement() *statement.UpdateStatement {
	if s.update == nil {
		s.update = statement.NewUpdate(s.Connection(), s.traits.UpdateText, s.updateBinding)
	}
	return s.update
}

func (s *Object[C]) EraseStatement() *statement.DeleteStatement {
	if s.erase == nil {
		s.erase = statement.NewDelete(s.Connection(), s.traits.EraseText, s.idBinding)
	}
	return s.erase
}

// OptimisticEraseStatement returns the version-checked delete. Panics on
// a plain context.
func (s *Object[C]) OptimisticEraseStatement() *statement.DeleteStatement {
	od := s.optimistic()
	if od.erase == nil {
		od.erase = statement.NewDelete(s.Connection(), s.traits.OptimisticEraseText, od.idBinding)
	}
	return od.erase
}

// Containers returns the lazily allocated container statement sub-cache,
// creating it on first access.
func (s *Object[C]) Containers() *ContainerCache {
	return s.containers.Get(s.Connection(), s.idBinding)
}

// Delayed loading. Association references discovered while a result set
// is being consumed are queued here instead of being fetched inline,
// because the engine permits only one active cursor per prepared
// statement.

// DelayLoad appends a deferred association fetch.
func (s *Object[C]) DelayLoad(id, obj, pos any, loader LoaderFunc) {
	s.delayed = append(s.delayed, delayedLoad{id: id, obj: obj, pos: pos, loader: loader})
}

// DelayedCount returns the number of queued loads.
func (s *Object[C]) DelayedCount() int { return len(s.delayed) }

// LoadDelayed drains the queue. The context must be locked by the
// caller. The queue is swapped out before iteration, so a load that
// enqueues further loads appends to a fresh queue which this call does
// not drain: a single pass per call, in enqueue order. A loader failure
// discards the rest of the working list and propagates.
func (s *Object[C]) LoadDelayed() error {
	if !s.Locked() {
		panic("cache: LoadDelayed on unlocked context")
	}
	if len(s.delayed) == 0 {
		return nil
	}
	return s.loadDelayed()
}

func (s *Object[C]) loadDelayed() error {
	work := s.delayed
	s.delayed = nil

	for _, dl := range work {
		if err := dl.loader(dl.id, dl.obj, dl.pos); err != nil {
			return err
		}
	}
	return nil
}

// ClearDelayed discards queued loads without executing them. Used on
// abnormal unwind.
func (s *Object[C]) ClearDelayed() {
	s.delayed = nil
}

// Close tears down every statement this context created and releases the
// container sub-cache exactly once.
func (s *Object[C]) Close() error {
	var errs []error
	if s.persist != nil {
		errs = append(errs, s.persist.Close())
		s.persist = nil
	}
	if s.find != nil {
		errs = append(errs, s.find.Close())
		s.find = nil
	}
	if s.update != nil {
		errs = append(errs, s.update.Close())
		s.update = nil
	}
	if s.erase != nil {
		errs = append(errs, s.erase.Close())
		s.erase = nil
	}
	if od, ok := any(&s.od).(*Optimistic); ok && od.erase != nil {
		errs = append(errs, od.erase.Close())
		od.erase = nil
	}
	errs = append(errs, s.containers.Release())
	s.delayed = nil
	return errors.Join(errs...)
}
