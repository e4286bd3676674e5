package schema

import (
	"fmt"
	"strings"
)

// ParsedTag is the parsed form of an opal struct tag. The tag drives
// which binding sets a column participates in, so every flag here feeds
// directly into the column-count arithmetic of the statement cache.
//
// Supported syntax:
//
//	`db:"column_name"`          // explicit column name
//	`db:",pk,auto"`             // derived name plus options
//	`db:"rev,version"`          // managed optimistic concurrency column
//	`db:"author_id,ref"`        // association loaded through the delayed queue
//	`db:"tags,container"`       // one-to-many container table
//	`db:"-"`                    // skip field entirely
type ParsedTag struct {
	Column string // database column name (empty means derive from field name)
	Skip   bool   // field is not mapped at all

	PK       bool // object id column
	Auto     bool // id assigned by the engine on insert
	Readonly bool // inserted once, never updated
	Inverse  bool // maintained outside the insert/update paths, select-only
	Version  bool // managed optimistic concurrency column

	Ref       bool   // association: column holds the target object's id
	Container bool   // one-to-many container, stored in a side table
	Generator string // id generator name (uuid, ulid)
}

func parseTag(value string) (*ParsedTag, error) {
	if value == "-" {
		return &ParsedTag{Skip: true}, nil
	}

	parts := strings.Split(value, ",")
	tag := &ParsedTag{Column: strings.TrimSpace(parts[0])}

	for _, opt := range parts[1:] {
		opt = strings.TrimSpace(opt)
		switch {
		case opt == "pk":
			tag.PK = true
		case opt == "auto":
			tag.Auto = true
		case opt == "readonly":
			tag.Readonly = true
		case opt == "inverse":
			tag.Inverse = true
		case opt == "version":
			tag.Version = true
		case opt == "ref":
			tag.Ref = true
		case opt == "container":
			tag.Container = true
		case strings.HasPrefix(opt, "gen="):
			tag.Generator = strings.TrimPrefix(opt, "gen=")
		case opt == "":
		default:
			return nil, fmt.Errorf("schema: unknown tag option %q", opt)
		}
	}

	if tag.Version && (tag.PK || tag.Readonly || tag.Inverse) {
		return nil, fmt.Errorf("schema: version column cannot combine with pk/readonly/inverse")
	}
	if tag.Container && (tag.PK || tag.Ref || tag.Version) {
		return nil, fmt.Errorf("schema: container field cannot combine with pk/ref/version")
	}
	return tag, nil
}
