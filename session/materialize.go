package session

import (
	"fmt"
	"reflect"

	"github.com/Konsultn-Engineering/opal/schema"
)

// storeImage populates the context's main image from the entity value
// and records the mutation by bumping the image version, which is what
// lets the binding-refresh logic spot stale slot addresses.
func (s *Session) storeImage(sts statements, traits *schema.Traits, v reflect.Value) error {
	img := sts.Image()
	for i, f := range traits.Fields {
		cell := img.Cell(i)
		switch {
		case f.RefType != nil:
			field := v.FieldByIndex(f.Index)
			if field.IsNil() {
				cell.SetNull()
				continue
			}
			targetTraits, err := s.schema.Traits(f.RefType)
			if err != nil {
				return err
			}
			targetID := field.Elem().FieldByIndex(targetTraits.ID.Index)
			if err := schema.ValueToCell(cell, targetID); err != nil {
				return fmt.Errorf("session: field %s: %w", f.Name, err)
			}
		case f.PK && f.Auto && v.FieldByIndex(f.Index).IsZero():
			// NULL id lets the engine assign the rowid.
			cell.SetNull()
		default:
			if err := f.Store(cell, v); err != nil {
				return err
			}
		}
	}
	img.Touch()
	return nil
}

// loadImage copies the main image back into the entity's column-mapped
// fields. Association fields are installed separately, through the
// delayed-load queue.
func loadImage(sts statements, traits *schema.Traits, v reflect.Value) error {
	img := sts.Image()
	for i, f := range traits.Fields {
		if f.RefType != nil {
			continue
		}
		if err := f.Load(v, img.Cell(i)); err != nil {
			return err
		}
	}
	return nil
}

// writeIDImage populates the id image: the id cell and, when version is
// non-nil on an optimistic type, the managed version cell. Bumps the
// id-image revision.
func writeIDImage(sts statements, traits *schema.Traits, id reflect.Value, version *int64) error {
	idImg := sts.IDImage()
	if err := schema.ValueToCell(idImg.Cell(0), id); err != nil {
		return fmt.Errorf("session: id: %w", err)
	}
	if version != nil {
		if !traits.Optimistic() {
			return fmt.Errorf("session: %s has no managed version column", traits.Type.Name())
		}
		idImg.Cell(1).SetInteger(*version)
	}
	idImg.Touch()
	return nil
}

// coerceID converts a caller-supplied id into the entity's id type.
func coerceID(traits *schema.Traits, id any) (reflect.Value, error) {
	v := reflect.ValueOf(id)
	if v.Type() == traits.ID.Type {
		return v, nil
	}
	if v.Type().ConvertibleTo(traits.ID.Type) {
		return v.Convert(traits.ID.Type), nil
	}
	return reflect.Value{}, fmt.Errorf("session: id type %T does not match %s", id, traits.ID.Type)
}

func entityVersion(traits *schema.Traits, v reflect.Value) int64 {
	f := v.FieldByIndex(traits.VersionField.Index)
	if f.Kind() >= reflect.Uint && f.Kind() <= reflect.Uint64 {
		return int64(f.Uint())
	}
	return f.Int()
}

func setEntityVersion(traits *schema.Traits, v reflect.Value, n int64) {
	f := v.FieldByIndex(traits.VersionField.Index)
	if f.Kind() >= reflect.Uint && f.Kind() <= reflect.Uint64 {
		f.SetUint(uint64(n))
		return
	}
	f.SetInt(n)
}
