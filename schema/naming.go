package schema

import (
	"strings"
	"unicode"

	pluralizer "github.com/gertd/go-pluralize"
)

// pluralizeClient is a singleton for consistent pluralization behavior.
var pluralizeClient = pluralizer.NewClient()

// NamingStrategy converts Go identifiers into database identifiers.
type NamingStrategy interface {
	ColumnName(fieldName string) string
	TableName(structName string) string
}

// SnakeCaseStrategy maps CamelCase Go names to snake_case columns and
// pluralized snake_case tables. This is the default convention.
type SnakeCaseStrategy struct{}

func (SnakeCaseStrategy) ColumnName(fieldName string) string {
	return toSnakeCase(fieldName)
}

func (SnakeCaseStrategy) TableName(structName string) string {
	return pluralizeClient.Plural(toSnakeCase(structName))
}

func toSnakeCase(name string) string {
	var b strings.Builder
	b.Grow(len(name) + 4)

	runes := []rune(name)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			// Boundary before an upper rune, except at the start and
			// inside an acronym run (HTTPServer -> http_server).
			if i > 0 && (!unicode.IsUpper(runes[i-1]) ||
				(i+1 < len(runes) && !unicode.IsUpper(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
