package store

import pkgerrors "recordstore/pkg/errors"

var (
	// ErrNotFound keeps storage-specific misses consistent across
	// implementations.
	ErrNotFound = pkgerrors.New(pkgerrors.KindNotFound, "record not found")

	// ErrConflict signals an id collision with a different payload. This is
	// an identifier reuse bug upstream and must never silently overwrite.
	ErrConflict = pkgerrors.New(pkgerrors.KindConflict, "record id exists with different payload")

	// ErrUnavailable marks a transient backend failure worth retrying.
	ErrUnavailable = pkgerrors.New(pkgerrors.KindUnavailable, "store backend unavailable")
)
