package model

import "errors"

var (
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when an optimistic update lost the race against a
	// concurrent writer; callers re-read and re-apply.
	ErrConflict = errors.New("concurrent update conflict")
)
