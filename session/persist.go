package session

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5/pgconn"
	sqlite "modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"

	"github.com/Konsultn-Engineering/opal/binding"
	"github.com/Konsultn-Engineering/opal/cache"
)

// Persist inserts obj as a new row. Generated ids are assigned before
// the insert, engine-assigned (auto) ids after it; optimistic types
// start at version 1, matching the managed column's seed value.
func (s *Session) Persist(ctx context.Context, obj any) error {
	v, err := entityValue(obj)
	if err != nil {
		return err
	}
	sts, traits, err := s.statementsFor(v.Type())
	if err != nil {
		return err
	}

	idField := v.FieldByIndex(traits.ID.Index)
	if traits.ID.Generator != nil && idField.IsZero() {
		gen, err := traits.ID.Generator.Generate()
		if err != nil {
			return err
		}
		gv := reflect.ValueOf(gen)
		if gv.Type() != idField.Type() {
			if !gv.Type().ConvertibleTo(idField.Type()) {
				return fmt.Errorf("session: generator %s yields %s, id is %s",
					traits.ID.Generator.Type(), gv.Type(), idField.Type())
			}
			gv = gv.Convert(idField.Type())
		}
		idField.Set(gv)
	}

	g := cache.NewGuard(sts)
	defer g.Release()

	if err := s.storeImage(sts, traits, v); err != nil {
		return err
	}
	sts.EnsureInsertBound()

	if traits.PersistReturning {
		// The auto pk is absent from the statement; the engine assigns
		// it unconditionally and hands it back.
		var id binding.Cell
		if err := sts.PersistStatement().ExecuteReturning(ctx, &id); err != nil {
			if isDuplicate(err) {
				return fmt.Errorf("%w: %v", ErrAlreadyPersistent, err)
			}
			return err
		}
		setIntegerField(idField, id.Integer)
	} else {
		res, err := sts.PersistStatement().Execute(ctx)
		if err != nil {
			if isDuplicate(err) {
				return fmt.Errorf("%w: %v", ErrAlreadyPersistent, err)
			}
			return err
		}
		if traits.ID.Auto && idField.IsZero() {
			last, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("session: engine-assigned id: %w", err)
			}
			setIntegerField(idField, last)
		}
	}
	if traits.Optimistic() {
		setEntityVersion(traits, v, 1)
	}

	if len(traits.Containers) > 0 {
		if err := writeIDImage(sts, traits, idField, nil); err != nil {
			return err
		}
		sts.EnsureIDBound()
		if err := s.persistContainers(ctx, sts, traits, v, idField); err != nil {
			return err
		}
	}

	s.identInsert(s.identKeyFor(traits.Type, idField), obj, true)
	g.Unlock()
	return nil
}

func setIntegerField(f reflect.Value, n int64) {
	if f.Kind() >= reflect.Uint && f.Kind() <= reflect.Uint64 {
		f.SetUint(uint64(n))
		return
	}
	f.SetInt(n)
}

// isDuplicate spots primary-key and unique-constraint collisions by
// driver error code.
func isDuplicate(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlitelib.SQLITE_CONSTRAINT,
			sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY,
			sqlitelib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
		return false
	}
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		return pe.Code == "23505" // unique_violation
	}
	return false
}
