package schema

import (
	"reflect"

	"github.com/Konsultn-Engineering/opal/dialect"
)

// FieldMeta describes one column-mapped struct field of an entity type.
type FieldMeta struct {
	Name   string
	Column string
	Index  []int
	Type   reflect.Type
	Kind   dialect.ColumnKind
	Tag    *ParsedTag

	PK       bool
	Auto     bool
	Readonly bool
	Inverse  bool
	Version  bool

	// RefType is the target entity type for association fields. The
	// column holds the target's id; the object itself is fetched
	// through the delayed-load queue, never inline.
	RefType reflect.Type

	Generator IDGenerator
}

// ContainerMeta describes a one-to-many scalar container stored in a
// side table keyed by the owning object's id. Its statements live in
// the lazily allocated container sub-cache, not in the core four.
type ContainerMeta struct {
	Name  string
	Index []int
	Table string
	Elem  reflect.Type
	Kind  dialect.ColumnKind

	SelectText string
	InsertText string
	DeleteText string
	CreateText string
}

// Traits is the generated-metadata contract consumed by the statement
// cache: column counts fixed for the type's lifetime, binding index
// sets, and the static SQL text for each statement kind.
type Traits struct {
	Type  reflect.Type
	Table string

	// Fields in select order. The main image has one cell per entry.
	Fields []*FieldMeta

	ID           *FieldMeta
	VersionField *FieldMeta
	Containers   []*ContainerMeta

	// Raw counts, derived once.
	//
	//	select = total
	//	insert = total - inverse - managed_optimistic
	//	update = insert - id - readonly
	ColumnCount                  int
	InverseColumnCount           int
	ManagedOptimisticColumnCount int
	IDColumnCount                int
	ReadonlyColumnCount          int

	SelectColumnCount int
	InsertColumnCount int
	UpdateColumnCount int

	// Index sets into Fields sizing and ordering the binding slots.
	InsertColumns []int
	UpdateColumns []int

	// PersistColumns indexes the parameters of PersistText. Equal to
	// InsertColumns except on engines that reject an explicit NULL for
	// an engine-assigned id, where the auto pk is omitted from the
	// statement and handed back through a returning clause instead.
	PersistColumns   []int
	PersistReturning bool

	PersistText         string
	FindText            string
	UpdateText          string
	EraseText           string
	OptimisticEraseText string
	CreateText          string
}

// Optimistic reports whether the type declares a managed concurrency
// column. The statement-cache variant is selected from this once, at
// registration, never per call.
func (t *Traits) Optimistic() bool {
	return t.ManagedOptimisticColumnCount != 0
}

// IDImageColumnCount is the id-image layout size: the id column plus,
// for optimistic types, the managed version column.
func (t *Traits) IDImageColumnCount() int {
	return t.IDColumnCount + t.ManagedOptimisticColumnCount
}

// FieldIndex returns the position of f in select order, or -1.
func (t *Traits) FieldIndex(f *FieldMeta) int {
	for i, other := range t.Fields {
		if other == f {
			return i
		}
	}
	return -1
}
