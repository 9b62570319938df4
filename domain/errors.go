package domain

import "errors"

var (
	// ErrInternalServerError is the fallback for unexpected failures
	ErrInternalServerError = errors.New("internal server error")
	// ErrNotFound is returned when the requested item does not exist
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a create finds the row or a compare-and-swap write loses
	ErrConflict = errors.New("conflict")
	// ErrBadParamInput is returned for invalid request params
	ErrBadParamInput = errors.New("invalid param")
	// ErrDuplicate is returned when an immutable row with the same key is already stored
	ErrDuplicate = errors.New("duplicate record")
	// ErrMalformedEvent is returned when an event payload does not match its kind
	ErrMalformedEvent = errors.New("malformed event")
	// ErrUnavailable is returned when a value could not be computed in time and nothing is cached
	ErrUnavailable = errors.New("temporarily unavailable")
	// ErrUnauthorized is returned when an admin call carries a wrong key
	ErrUnauthorized = errors.New("unauthorized")
)
