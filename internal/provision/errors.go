package provision

import (
	"errors"
	"fmt"

	"github.com/tordrt/docschema/internal/schema"
)

// Kind classifies a provisioning failure
type Kind int

const (
	KindUnknown Kind = iota
	KindConnectivity
	KindAuthorization
	KindConflict
	KindDataConflict
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindConnectivity:
		return "connectivity"
	case KindAuthorization:
		return "authorization"
	case KindConflict:
		return "conflict"
	case KindDataConflict:
		return "data-conflict"
	case KindInvalid:
		return "invalid-plan"
	default:
		return "unknown"
	}
}

// KindOf classifies err by the sentinel it wraps
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}

	switch {
	case errors.Is(err, schema.ErrConnectivity):
		return KindConnectivity
	case errors.Is(err, schema.ErrAuthorization):
		return KindAuthorization
	case errors.Is(err, schema.ErrDataConflict):
		return KindDataConflict
	case errors.Is(err, schema.ErrConflict):
		return KindConflict
	case errors.Is(err, schema.ErrInvalidPlan):
		return KindInvalid
	default:
		return KindUnknown
	}
}

// Error describes the first operation that failed during Apply.
//
// Desired and Existing are set for conflicts. Existing may be nil when the
// database rejected the index without the conflicting definition being visible
// in the catalog.
type Error struct {
	Op         string // list-collections, create-collection, list-indexes, create-index, validate
	Collection string
	Index      string
	Kind       Kind
	Desired    *schema.Index
	Existing   *schema.Index
	Err        error
}

func (e *Error) Error() string {
	target := e.Collection
	if e.Index != "" {
		target += "." + e.Index
	}

	switch e.Kind {
	case KindConflict:
		if e.Desired != nil && e.Existing != nil {
			return fmt.Sprintf("%s %s: index conflict: want %s, found %s", e.Op, target, e.Desired, e.Existing)
		}
	case KindDataConflict:
		if e.Desired != nil {
			return fmt.Sprintf("%s %s: cannot enforce %s: %v", e.Op, target, e.Desired, e.Err)
		}
	}

	if target == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, target, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op, collection, index string, err error) *Error {
	return &Error{
		Op:         op,
		Collection: collection,
		Index:      index,
		Kind:       KindOf(err),
		Err:        err,
	}
}

func conflictError(collection string, desired, existing schema.Index) *Error {
	return &Error{
		Op:         "create-index",
		Collection: collection,
		Index:      desired.Name,
		Kind:       KindConflict,
		Desired:    &desired,
		Existing:   &existing,
		Err:        schema.ErrConflict,
	}
}
