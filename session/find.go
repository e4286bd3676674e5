package session

import (
	"context"
	"fmt"
	"reflect"

	"github.com/Konsultn-Engineering/opal/cache"
	"github.com/Konsultn-Engineering/opal/schema"
)

// Find loads the row with the given id into obj. Association fields are
// resolved through the identity map; references to objects not yet
// loaded go on the delayed-load queue, which is drained here, still
// under the lock, before the guard releases it.
func (s *Session) Find(ctx context.Context, id any, obj any) error {
	v, err := entityValue(obj)
	if err != nil {
		return err
	}
	sts, traits, err := s.statementsFor(v.Type())
	if err != nil {
		return err
	}
	idVal, err := coerceID(traits, id)
	if err != nil {
		return err
	}

	g := cache.NewGuard(sts)
	defer g.Release()

	// Register before fetching: loaders that encounter a back reference
	// to this object must resolve it to obj, not start a second load.
	key := s.identKeyFor(traits.Type, idVal)
	entry := s.identInsert(key, obj, false)

	if err := s.findLocked(ctx, sts, traits, idVal, v); err != nil {
		s.identErase(key)
		return err
	}
	entry.done = true

	if g.Locked() {
		if err := s.drain(sts); err != nil {
			return err
		}
	}
	g.Unlock()
	return nil
}

// drain runs the delayed-load queue to exhaustion. Each LoadDelayed call
// is one pass over a snapshot of the queue; loads enqueued by the
// loaders themselves wait for the next pass.
func (s *Session) drain(sts statements) error {
	for sts.DelayedCount() > 0 {
		if err := sts.LoadDelayed(); err != nil {
			return err
		}
	}
	return nil
}

// findLocked is the fetch body shared by Find and the delayed loaders.
// The caller holds the context lock (directly or through an enclosing
// operation).
func (s *Session) findLocked(ctx context.Context, sts statements, traits *schema.Traits, idVal reflect.Value, v reflect.Value) error {
	if err := writeIDImage(sts, traits, idVal, nil); err != nil {
		return err
	}
	sts.EnsureIDBound()
	sts.EnsureSelectBound()

	st := sts.FindStatement()
	if err := st.Execute(ctx); err != nil {
		return err
	}
	ok, err := st.Fetch()
	if err != nil {
		st.Free()
		return err
	}
	if !ok {
		st.Free()
		return fmt.Errorf("%w: %s id %v", ErrNotFound, traits.Table, idVal.Interface())
	}
	// Single row by primary key; release the cursor before any nested
	// statement work touches the connection.
	st.Free()

	if err := loadImage(sts, traits, v); err != nil {
		return err
	}
	if err := s.loadContainers(ctx, sts, traits, v); err != nil {
		return err
	}
	return s.scheduleAssociations(ctx, sts, traits, v)
}

// scheduleAssociations installs association pointers from the fetched
// image. Objects already in the identity map (loaded or pending) are
// wired in place; anything else gets a fresh target registered as
// pending and a queued load.
func (s *Session) scheduleAssociations(ctx context.Context, sts statements, traits *schema.Traits, v reflect.Value) error {
	img := sts.Image()
	for i, f := range traits.Fields {
		if f.RefType == nil {
			continue
		}
		field := v.FieldByIndex(f.Index)
		cell := img.Cell(i)
		if cell.IsNull() {
			field.Set(reflect.Zero(f.Type))
			continue
		}
		targetTraits, err := s.schema.Traits(f.RefType)
		if err != nil {
			return err
		}
		refID, err := schema.ValueFromCell(cell, targetTraits.ID.Type)
		if err != nil {
			return fmt.Errorf("session: field %s: %w", f.Name, err)
		}

		key := s.identKeyFor(targetTraits.Type, refID)
		if e, ok := s.identLookup(key); ok {
			field.Set(reflect.ValueOf(e.obj))
			continue
		}
		target := reflect.New(f.RefType)
		field.Set(target)
		s.identInsert(key, target.Interface(), false)
		sts.DelayLoad(refID.Interface(), target.Interface(), key, s.delayedLoader(ctx))
	}
	return nil
}

// delayedLoader builds the queue entry callback. Loads of another type
// take that type's own context lock and drain its queue; loads of the
// same type run nested under the already-held lock and leave draining
// to the enclosing operation.
func (s *Session) delayedLoader(ctx context.Context) cache.LoaderFunc {
	return func(id, obj, pos any) error {
		v, err := entityValue(obj)
		if err != nil {
			return err
		}
		sts, traits, err := s.statementsFor(v.Type())
		if err != nil {
			return err
		}
		idVal, err := coerceID(traits, id)
		if err != nil {
			return err
		}

		g := cache.NewGuard(sts)
		defer g.Release()

		key, _ := pos.(identKey)
		if err := s.findLocked(ctx, sts, traits, idVal, v); err != nil {
			s.identErase(key)
			return err
		}
		if e, ok := s.identLookup(key); ok {
			e.done = true
		}

		if g.Locked() {
			if err := s.drain(sts); err != nil {
				return err
			}
		}
		g.Unlock()
		return nil
	}
}
