package session

import (
	"context"
	"fmt"

	"github.com/Konsultn-Engineering/opal/cache"
)

// Update writes obj's current state over its row. For optimistic types
// the statement predicate carries the entity's version: zero rows
// affected means another session won the race and the caller gets
// ErrObjectChanged; on success the managed column and the entity field
// both advance by one.
func (s *Session) Update(ctx context.Context, obj any) error {
	v, err := entityValue(obj)
	if err != nil {
		return err
	}
	sts, traits, err := s.statementsFor(v.Type())
	if err != nil {
		return err
	}
	if traits.UpdateColumnCount == 0 {
		return fmt.Errorf("session: %s has no updatable columns", traits.Type.Name())
	}

	g := cache.NewGuard(sts)
	defer g.Release()

	if err := s.storeImage(sts, traits, v); err != nil {
		return err
	}
	idField := v.FieldByIndex(traits.ID.Index)
	var expect *int64
	if traits.Optimistic() {
		n := entityVersion(traits, v)
		expect = &n
	}
	if err := writeIDImage(sts, traits, idField, expect); err != nil {
		return err
	}
	sts.EnsureUpdateBound()

	rows, err := sts.UpdateStatement().Execute(ctx)
	if err != nil {
		return err
	}
	if rows == 0 {
		if traits.Optimistic() {
			return fmt.Errorf("%w: %s id %v", ErrObjectChanged, traits.Table, idField.Interface())
		}
		return fmt.Errorf("%w: %s id %v", ErrNotPersistent, traits.Table, idField.Interface())
	}
	if traits.Optimistic() {
		setEntityVersion(traits, v, entityVersion(traits, v)+1)
	}

	if len(traits.Containers) > 0 {
		sts.EnsureIDBound()
		if err := s.persistContainers(ctx, sts, traits, v, idField); err != nil {
			return err
		}
	}

	if e, ok := s.identLookup(s.identKeyFor(traits.Type, idField)); ok {
		e.done = true
	}
	g.Unlock()
	return nil
}
