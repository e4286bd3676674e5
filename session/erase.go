package session

import (
	"context"
	"fmt"

	"github.com/Konsultn-Engineering/opal/cache"
)

// Erase deletes obj's row by id alone, regardless of any version the
// row may carry. Container rows go first so the side tables never
// outlive the object.
func (s *Session) Erase(ctx context.Context, obj any) error {
	v, err := entityValue(obj)
	if err != nil {
		return err
	}
	sts, traits, err := s.statementsFor(v.Type())
	if err != nil {
		return err
	}

	g := cache.NewGuard(sts)
	defer g.Release()

	idField := v.FieldByIndex(traits.ID.Index)
	if err := writeIDImage(sts, traits, idField, nil); err != nil {
		return err
	}
	sts.EnsureIDBound()

	if err := s.eraseContainers(ctx, sts, traits); err != nil {
		return err
	}
	rows, err := sts.EraseStatement().Execute(ctx)
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s id %v", ErrNotPersistent, traits.Table, idField.Interface())
	}

	s.identErase(s.identKeyFor(traits.Type, idField))
	g.Unlock()
	return nil
}

// EraseVersioned deletes obj's row only if the stored version still
// matches the entity's. Zero rows affected is the conflict signal and
// surfaces as ErrObjectChanged; the row may have been updated or
// already erased by another session, and the two cases are
// indistinguishable here.
func (s *Session) EraseVersioned(ctx context.Context, obj any) error {
	v, err := entityValue(obj)
	if err != nil {
		return err
	}
	sts, traits, err := s.statementsFor(v.Type())
	if err != nil {
		return err
	}
	if !traits.Optimistic() {
		return fmt.Errorf("session: %s has no managed version column", traits.Type.Name())
	}

	g := cache.NewGuard(sts)
	defer g.Release()

	idField := v.FieldByIndex(traits.ID.Index)
	expect := entityVersion(traits, v)
	if err := writeIDImage(sts, traits, idField, &expect); err != nil {
		return err
	}
	sts.EnsureOptimisticIDBound()

	rows, err := sts.OptimisticEraseStatement().Execute(ctx)
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s id %v", ErrObjectChanged, traits.Table, idField.Interface())
	}

	sts.EnsureIDBound()
	if err := s.eraseContainers(ctx, sts, traits); err != nil {
		return err
	}

	s.identErase(s.identKeyFor(traits.Type, idField))
	g.Unlock()
	return nil
}
