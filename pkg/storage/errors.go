package storage

import (
	"errors"
	"fmt"
)

var (
	// Read errors

	// ErrCollectionNotFound if the named range does not exist in the backing store.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrStoreUnavailable if the backing store could not be reached or answered with a server error.
	ErrStoreUnavailable = errors.New("backing store unavailable")

	// Write errors

	// ErrCollision if a record with the same id already exists within the collection.
	ErrCollision = errors.New("item already exists")
	// ErrInvalidRowIndex if an overwrite targets a row that does not exist.
	ErrInvalidRowIndex = errors.New("invalid row index")

	// Shared errors

	ErrCancelled = errors.New("request has been cancelled")
	ErrNotFound  = errors.New("not found")
)

// CollectionNotFoundError returns ErrCollectionNotFound annotated with the collection name.
func CollectionNotFoundError(collection string) error {
	return fmt.Errorf("%w: %q", ErrCollectionNotFound, collection)
}

// InvalidRowIndexError returns ErrInvalidRowIndex annotated with the collection and index.
func InvalidRowIndexError(collection string, index int) error {
	return fmt.Errorf("%w: collection %q has no data row %d", ErrInvalidRowIndex, collection, index)
}
