// Package apperr holds the error taxonomy shared by the service and HTTP
// layers. Handlers map these to response codes with errors.Is.
package apperr

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrForbidden        = errors.New("forbidden")
	ErrInvalidReference = errors.New("invalid reference")
	ErrConflict         = errors.New("conflict")
)
