package schema

import "errors"

// Backends wrap driver errors with one of these so callers can classify them with errors.Is.
var (
	// ErrConnectivity marks an unreachable database or a dropped connection.
	ErrConnectivity = errors.New("database unreachable")
	// ErrAuthorization marks missing privileges or failed authentication.
	ErrAuthorization = errors.New("not authorized")
	// ErrConflict marks an index that exists with a different definition.
	ErrConflict = errors.New("conflicting index definition")
	// ErrDataConflict marks a unique index that existing documents violate.
	ErrDataConflict = errors.New("existing data violates uniqueness")
	// ErrAlreadyExists marks a create that lost to an existing object.
	ErrAlreadyExists = errors.New("already exists")
	// ErrInvalidPlan marks a plan that fails validation.
	ErrInvalidPlan = errors.New("invalid provisioning plan")
)
