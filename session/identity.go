package session

import (
	"fmt"
	"reflect"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// identKey identifies one object in the session's identity map. Ids are
// normalized to a canonical comparable form so that, say, int and int64
// ids of the same row collide as they should.
type identKey struct {
	typ reflect.Type
	id  any
}

// identEntry is one identity-map slot. An entry whose load has been
// queued but not yet drained is pending (done == false); delayed
// loaders resolve references to pending entries by pointer so cycles
// terminate.
type identEntry struct {
	obj  any
	done bool
}

func normalizeID(id reflect.Value) any {
	switch id.Type() {
	case uuidType:
		return id.Interface().(uuid.UUID).String()
	case ulidType:
		return id.Interface().(ulid.ULID).String()
	}
	switch id.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return id.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(id.Uint())
	case reflect.String:
		return id.String()
	default:
		return fmt.Sprint(id.Interface())
	}
}

var (
	uuidType = reflect.TypeOf(uuid.UUID{})
	ulidType = reflect.TypeOf(ulid.ULID{})
)

func (s *Session) identKeyFor(t reflect.Type, id reflect.Value) identKey {
	return identKey{typ: t, id: normalizeID(id)}
}

func (s *Session) identLookup(key identKey) (*identEntry, bool) {
	e, ok := s.idents[key]
	return e, ok
}

func (s *Session) identInsert(key identKey, obj any, done bool) *identEntry {
	e := &identEntry{obj: obj, done: done}
	s.idents[key] = e
	return e
}

func (s *Session) identErase(key identKey) {
	delete(s.idents, key)
}
