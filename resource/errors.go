// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package resource

import (
	"errors"
	"fmt"
)

// ErrDisconnected is returned while reading a body if the client goes away.
var ErrDisconnected = errors.New("resource: client disconnected")

// BadRequestError is answered with 400 Bad Request.
type BadRequestError struct {
	Reason string
	Cause  error
}

// Error implements the [builtin.error] interface.
func (e BadRequestError) Error() string {
	if e.Cause == nil {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e BadRequestError) Unwrap() error {
	return e.Cause
}

// NotFoundError is answered with 404 Not Found.
type NotFoundError struct {
	Path  string
	Cause error
}

// Error implements the [builtin.error] interface.
func (e NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s", e.Path)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e NotFoundError) Unwrap() error {
	return e.Cause
}

// RedirectError is answered with 303 See Other pointing at Location.
type RedirectError struct {
	Location string
}

// Error implements the [builtin.error] interface.
func (e RedirectError) Error() string {
	return fmt.Sprintf("redirect to %s", e.Location)
}
