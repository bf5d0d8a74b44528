package db

import (
	"strings"

	"github.com/tordrt/docschema/internal/schema"
)

// SQL engines keep index names per schema rather than per table, so the
// physical name carries the collection as a prefix.
func physicalIndexName(collection, index string) string {
	return collection + "_" + index
}

// logicalIndexName strips the collection prefix added by physicalIndexName.
// Names created by someone else are reported as they are.
func logicalIndexName(collection, physical string) string {
	if name, ok := strings.CutPrefix(physical, collection+"_"); ok && name != "" {
		return name
	}
	return physical
}

func sqlDirection(d schema.Direction) string {
	if d == schema.Descending {
		return "DESC"
	}
	return "ASC"
}

// quoteLiteral renders s as a single-quoted SQL string literal
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
