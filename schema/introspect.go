package schema

import (
	"fmt"
	"reflect"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Konsultn-Engineering/opal/dialect"
)

// metaCacheSize bounds the per-context traits cache. Applications map a
// fixed set of types, so eviction is effectively never hit; the bound
// just keeps a misbehaving caller from growing the cache without limit.
const metaCacheSize = 256

// Context owns traits derivation for one dialect: naming strategy,
// tag parsing, column-count arithmetic, SQL text generation, and the
// traits cache. Derivation runs once per type; every later lookup is a
// cache hit.
type Context struct {
	naming  NamingStrategy
	dialect dialect.Dialect
	cache   *lru.Cache[reflect.Type, *Traits]
}

// ContextOption configures a schema context.
type ContextOption func(*Context)

// WithNamingStrategy overrides the default snake_case naming.
func WithNamingStrategy(s NamingStrategy) ContextOption {
	return func(c *Context) { c.naming = s }
}

// NewContext creates a schema context for the given dialect.
func NewContext(d dialect.Dialect, opts ...ContextOption) *Context {
	c := &Context{naming: SnakeCaseStrategy{}, dialect: d}
	for _, o := range opts {
		o(c)
	}
	cache, _ := lru.New[reflect.Type, *Traits](metaCacheSize)
	c.cache = cache
	return c
}

// Dialect returns the dialect this context generates SQL for.
func (c *Context) Dialect() dialect.Dialect { return c.dialect }

// Traits returns the mapped-type metadata for t, deriving and caching it
// on first use. t may be a struct type or pointer to one.
func (c *Context) Traits(t reflect.Type) (*Traits, error) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("schema: invalid model type %s", t.Kind())
	}
	if traits, ok := c.cache.Get(t); ok {
		return traits, nil
	}
	traits, err := c.buildTraits(t)
	if err != nil {
		return nil, err
	}
	c.cache.Add(t, traits)
	return traits, nil
}

func (c *Context) buildTraits(t reflect.Type) (*Traits, error) {
	traits := &Traits{
		Type:  t,
		Table: c.naming.TableName(t.Name()),
	}

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}

		tag, err := parseTag(sf.Tag.Get("db"))
		if err != nil {
			return nil, fmt.Errorf("schema: %s.%s: %w", t.Name(), sf.Name, err)
		}
		if tag.Skip {
			continue
		}

		if tag.Container {
			cm, err := c.buildContainer(traits, sf, tag)
			if err != nil {
				return nil, err
			}
			traits.Containers = append(traits.Containers, cm)
			continue
		}

		fm := &FieldMeta{
			Name:     sf.Name,
			Column:   tag.Column,
			Index:    sf.Index,
			Type:     sf.Type,
			Tag:      tag,
			PK:       tag.PK,
			Auto:     tag.Auto,
			Readonly: tag.Readonly,
			Inverse:  tag.Inverse,
			Version:  tag.Version,
		}

		if tag.Ref {
			if sf.Type.Kind() != reflect.Ptr || sf.Type.Elem().Kind() != reflect.Struct {
				return nil, fmt.Errorf("schema: %s.%s: ref field must be a pointer to struct", t.Name(), sf.Name)
			}
			fm.RefType = sf.Type.Elem()
			kind, err := refColumnKind(fm.RefType)
			if err != nil {
				return nil, fmt.Errorf("schema: %s.%s: %w", t.Name(), sf.Name, err)
			}
			fm.Kind = kind
			if fm.Column == "" {
				fm.Column = c.naming.ColumnName(sf.Name) + "_id"
			}
		} else {
			kind, err := columnKind(sf.Type)
			if err != nil {
				return nil, fmt.Errorf("schema: %s.%s: %w", t.Name(), sf.Name, err)
			}
			fm.Kind = kind
			if fm.Column == "" {
				fm.Column = c.naming.ColumnName(sf.Name)
			}
		}

		if tag.Generator != "" {
			gen, err := generatorByName(tag.Generator)
			if err != nil {
				return nil, fmt.Errorf("schema: %s.%s: %w", t.Name(), sf.Name, err)
			}
			fm.Generator = gen
		}

		if fm.PK {
			if traits.ID != nil {
				return nil, fmt.Errorf("schema: %s: multiple pk columns", t.Name())
			}
			traits.ID = fm
		}
		if fm.Version {
			if traits.VersionField != nil {
				return nil, fmt.Errorf("schema: %s: multiple version columns", t.Name())
			}
			if fm.Kind != dialect.ColumnInteger {
				return nil, fmt.Errorf("schema: %s: version column must be integer", t.Name())
			}
			traits.VersionField = fm
		}

		traits.Fields = append(traits.Fields, fm)
	}

	if traits.ID == nil {
		return nil, fmt.Errorf("schema: %s: no pk column", t.Name())
	}
	if traits.ID.Auto && traits.ID.Kind != dialect.ColumnInteger {
		return nil, fmt.Errorf("schema: %s: auto id must be integer", t.Name())
	}

	c.deriveCounts(traits)
	c.generateSQL(traits)
	return traits, nil
}

// deriveCounts fixes the column-count invariants once for the type's
// lifetime:
//
//	select = total
//	insert = total - inverse - managed_optimistic
//	update = insert - id - readonly
func (c *Context) deriveCounts(traits *Traits) {
	traits.ColumnCount = len(traits.Fields)
	traits.IDColumnCount = 1
	for _, f := range traits.Fields {
		if f.Inverse {
			traits.InverseColumnCount++
		}
		if f.Version {
			traits.ManagedOptimisticColumnCount++
		}
		if f.Readonly {
			traits.ReadonlyColumnCount++
		}
	}

	traits.SelectColumnCount = traits.ColumnCount
	traits.InsertColumnCount = traits.ColumnCount -
		traits.InverseColumnCount - traits.ManagedOptimisticColumnCount
	traits.UpdateColumnCount = traits.InsertColumnCount -
		traits.IDColumnCount - traits.ReadonlyColumnCount

	for i, f := range traits.Fields {
		if f.Inverse || f.Version {
			continue
		}
		traits.InsertColumns = append(traits.InsertColumns, i)
		if f.PK || f.Readonly {
			continue
		}
		traits.UpdateColumns = append(traits.UpdateColumns, i)
	}
}

func (c *Context) buildContainer(traits *Traits, sf reflect.StructField, tag *ParsedTag) (*ContainerMeta, error) {
	if sf.Type.Kind() != reflect.Slice || sf.Type.Elem().Kind() == reflect.Uint8 {
		return nil, fmt.Errorf("schema: %s.%s: container field must be a non-byte slice", traits.Type.Name(), sf.Name)
	}
	kind, err := columnKind(sf.Type.Elem())
	if err != nil {
		return nil, fmt.Errorf("schema: %s.%s: %w", traits.Type.Name(), sf.Name, err)
	}

	name := tag.Column
	if name == "" {
		name = c.naming.ColumnName(sf.Name)
	}
	return &ContainerMeta{
		Name:  sf.Name,
		Index: sf.Index,
		Table: traits.Table + "_" + name,
		Elem:  sf.Type.Elem(),
		Kind:  kind,
	}, nil
}

// refColumnKind finds the storage class of the target type's id column
// without deriving the target's full traits, so mutually referencing
// types cannot recurse.
func refColumnKind(t reflect.Type) (dialect.ColumnKind, error) {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		tag, err := parseTag(sf.Tag.Get("db"))
		if err != nil {
			return 0, err
		}
		if tag.PK {
			return columnKind(sf.Type)
		}
	}
	return 0, fmt.Errorf("target type %s has no pk column", t.Name())
}
