package domain

import "errors"

var (
	// ErrConfiguration means required connection parameters are missing.
	ErrConfiguration = errors.New("configuration failure")
	// ErrInitialization means the manual could not be fetched, extracted or chunked.
	ErrInitialization = errors.New("initialization failure")
	// ErrNotFound is returned by a DocumentStore when the object does not exist.
	ErrNotFound = errors.New("object not found")
)
