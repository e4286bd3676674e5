package schema

import (
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/Konsultn-Engineering/opal/binding"
	"github.com/Konsultn-Engineering/opal/dialect"
)

var (
	timeType = reflect.TypeOf(time.Time{})
	uuidType = reflect.TypeOf(uuid.UUID{})
	ulidType = reflect.TypeOf(ulid.ULID{})
)

// columnKind maps a Go field type onto the engine storage class the
// image cell will use.
func columnKind(t reflect.Type) (dialect.ColumnKind, error) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t {
	case timeType, uuidType, ulidType:
		return dialect.ColumnText, nil
	}
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return dialect.ColumnInteger, nil
	case reflect.Float32, reflect.Float64:
		return dialect.ColumnReal, nil
	case reflect.String:
		return dialect.ColumnText, nil
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return dialect.ColumnBlob, nil
		}
	}
	return 0, fmt.Errorf("schema: unmappable field type %s", t)
}

// ValueToCell writes a Go value into an image cell.
func ValueToCell(c *binding.Cell, v reflect.Value) error {
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			c.SetNull()
			return nil
		}
		v = v.Elem()
	}

	switch v.Type() {
	case timeType:
		c.SetText(v.Interface().(time.Time).UTC().Format(time.RFC3339Nano))
		return nil
	case uuidType:
		c.SetText(v.Interface().(uuid.UUID).String())
		return nil
	case ulidType:
		c.SetText(v.Interface().(ulid.ULID).String())
		return nil
	}

	switch v.Kind() {
	case reflect.Bool:
		c.SetBool(v.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		c.SetInteger(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		c.SetInteger(int64(v.Uint()))
	case reflect.Float32, reflect.Float64:
		c.SetReal(v.Float())
	case reflect.String:
		c.SetText(v.String())
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			c.SetBlob(v.Bytes())
			return nil
		}
		return fmt.Errorf("schema: cannot store %s in a cell", v.Type())
	default:
		return fmt.Errorf("schema: cannot store %s in a cell", v.Type())
	}
	return nil
}

// ValueFromCell reads an image cell back into a Go value of type t.
func ValueFromCell(c *binding.Cell, t reflect.Type) (reflect.Value, error) {
	if t.Kind() == reflect.Ptr {
		if c.IsNull() {
			return reflect.Zero(t), nil
		}
		inner, err := ValueFromCell(c, t.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		out := reflect.New(t.Elem())
		out.Elem().Set(inner)
		return out, nil
	}

	if c.IsNull() {
		return reflect.Zero(t), nil
	}

	switch t {
	case timeType:
		ts, err := time.Parse(time.RFC3339Nano, cellText(c))
		if err != nil {
			return reflect.Value{}, fmt.Errorf("schema: bad timestamp: %w", err)
		}
		return reflect.ValueOf(ts), nil
	case uuidType:
		id, err := uuid.Parse(cellText(c))
		if err != nil {
			return reflect.Value{}, fmt.Errorf("schema: bad uuid: %w", err)
		}
		return reflect.ValueOf(id), nil
	case ulidType:
		id, err := ulid.Parse(cellText(c))
		if err != nil {
			return reflect.Value{}, fmt.Errorf("schema: bad ulid: %w", err)
		}
		return reflect.ValueOf(id), nil
	}

	out := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.Bool:
		out.SetBool(c.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		out.SetInt(c.Integer)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		out.SetUint(uint64(c.Integer))
	case reflect.Float32, reflect.Float64:
		out.SetFloat(cellReal(c))
	case reflect.String:
		out.SetString(cellText(c))
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			out.SetBytes(c.Blob())
			return out, nil
		}
		return reflect.Value{}, fmt.Errorf("schema: cannot load %s from a cell", t)
	default:
		return reflect.Value{}, fmt.Errorf("schema: cannot load %s from a cell", t)
	}
	return out, nil
}

// cellText tolerates drivers that deliver text columns as blobs.
func cellText(c *binding.Cell) string {
	if c.Kind == binding.KindBlob {
		return string(c.Blob())
	}
	return c.Text()
}

// cellReal tolerates integer affinity on real columns.
func cellReal(c *binding.Cell) float64 {
	if c.Kind == binding.KindInteger {
		return float64(c.Integer)
	}
	return c.Real
}

// Store copies the field's value out of entity into cell. Association
// fields are not handled here: their cells carry the target id and are
// populated by the session, which knows the target's traits.
func (f *FieldMeta) Store(cell *binding.Cell, entity reflect.Value) error {
	if f.RefType != nil {
		return fmt.Errorf("schema: field %s is an association", f.Name)
	}
	return ValueToCell(cell, entity.FieldByIndex(f.Index))
}

// Load copies cell into the field inside entity.
func (f *FieldMeta) Load(entity reflect.Value, cell *binding.Cell) error {
	if f.RefType != nil {
		return fmt.Errorf("schema: field %s is an association", f.Name)
	}
	v, err := ValueFromCell(cell, f.Type)
	if err != nil {
		return fmt.Errorf("schema: field %s: %w", f.Name, err)
	}
	entity.FieldByIndex(f.Index).Set(v)
	return nil
}
