package lock

import "errors"

// Common errors for lock operations.
var (
	// ErrNotHeld is returned by Release when the caller does not hold
	// the lock: the key is absent, the record expired, or it belongs
	// to a different holder.
	ErrNotHeld = errors.New("lock not held by this holder")

	// ErrInvalidResourceType is returned when the resource type is not
	// in the configured set of valid types.
	ErrInvalidResourceType = errors.New("invalid resource type")

	// ErrEmptyResourceID is returned when the resource id is empty.
	ErrEmptyResourceID = errors.New("resource id must not be empty")

	// ErrEmptyHolderID is returned when the holder id is empty.
	ErrEmptyHolderID = errors.New("holder id must not be empty")
)
