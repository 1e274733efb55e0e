package storage

import (
	"errors"
	"fmt"

	apierrors "clinicapi/internal/errors"
)

// Sentinel causes, matchable with errors.Is
var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
)

// NotFound reports a missing resource. It renders as 404 and matches ErrNotFound.
func NotFound(resource, id string) error {
	msg := resource + " not found"
	if id != "" {
		msg = fmt.Sprintf("%s %s not found", resource, id)
	}
	return apierrors.NewNotFoundError(msg, ErrNotFound)
}

// Duplicate reports a uniqueness violation. It renders as 409 and matches ErrDuplicate.
func Duplicate(resource, field string) error {
	return apierrors.NewConflictError(fmt.Sprintf("%s with this %s already exists", resource, field), ErrDuplicate)
}

// IsNotFound reports whether err is a not-found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
