package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// Direction is the sort order of an index key
type Direction int

const (
	Ascending  Direction = 1
	Descending Direction = -1
)

// String returns "asc" or "desc"
func (d Direction) String() string {
	switch d {
	case Ascending:
		return "asc"
	case Descending:
		return "desc"
	default:
		return strconv.Itoa(int(d))
	}
}

// ParseDirection accepts 1, -1, asc, desc, ascending and descending
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "asc", "ascending":
		return Ascending, nil
	case "-1", "desc", "descending":
		return Descending, nil
	}
	return 0, fmt.Errorf("invalid index direction %q (must be 1, -1, asc or desc)", s)
}

// Key is one (field, direction) pair of an index
type Key struct {
	Field     string
	Direction Direction
}

// CollectionSpec declares a collection that must exist
type CollectionSpec struct {
	Name string
}

// IndexSpec declares an index that must exist on a collection
type IndexSpec struct {
	Collection string
	Keys       []Key
	Unique     bool
	Name       string // optional, derived from Keys when empty
}

// IndexName returns the explicit name or the derived default name
func (s IndexSpec) IndexName() string {
	if s.Name != "" {
		return s.Name
	}
	return DefaultIndexName(s.Keys)
}

// Definition returns the catalog form of s
func (s IndexSpec) Definition() Index {
	return Index{
		Name:   s.IndexName(),
		Keys:   append([]Key(nil), s.Keys...),
		Unique: s.Unique,
	}
}

// Plan is the ordered set of collections and indexes to provision
type Plan struct {
	Database    string
	Collections []CollectionSpec
	Indexes     []IndexSpec
}

// Index is an index as reported by a database catalog
type Index struct {
	Name   string
	Keys   []Key
	Unique bool
}

// SameKeys reports whether both indexes cover the same fields in the same order and directions
func (i Index) SameKeys(other Index) bool {
	if len(i.Keys) != len(other.Keys) {
		return false
	}
	for n := range i.Keys {
		if i.Keys[n] != other.Keys[n] {
			return false
		}
	}
	return true
}

// Equivalent reports whether two indexes have the same definition. Names are ignored.
func (i Index) Equivalent(other Index) bool {
	return i.Unique == other.Unique && i.SameKeys(other)
}

// String renders the definition, e.g. "email_1 (email asc) unique"
func (i Index) String() string {
	parts := make([]string, 0, len(i.Keys))
	for _, k := range i.Keys {
		parts = append(parts, k.Field+" "+k.Direction.String())
	}
	s := fmt.Sprintf("%s (%s)", i.Name, strings.Join(parts, ", "))
	if i.Unique {
		s += " unique"
	}
	return s
}

// DefaultIndexName builds the name MongoDB would assign: field_1_other_-1
func DefaultIndexName(keys []Key) string {
	parts := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		parts = append(parts, k.Field, strconv.Itoa(int(k.Direction)))
	}
	return strings.Join(parts, "_")
}
