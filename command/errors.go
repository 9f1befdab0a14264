// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package command

import (
	"errors"
	"fmt"
)

// ErrMissingReference is returned when no server is bound and no
// MODULE:SERVER argument was given.
var ErrMissingReference = errors.New("command: expected a MODULE:SERVER argument")

// InvalidReferenceError is returned for arguments not of the form MODULE:SERVER.
type InvalidReferenceError struct {
	Reference string
}

// Error implements the [builtin.error] interface.
func (e InvalidReferenceError) Error() string {
	return fmt.Sprintf("command: invalid server reference %q, expected MODULE:SERVER", e.Reference)
}

// ModuleNotFoundError is returned when a reference names an unknown module
// or a server its module does not define.
type ModuleNotFoundError struct {
	Module string
	Server string
}

// Error implements the [builtin.error] interface.
func (e ModuleNotFoundError) Error() string {
	if e.Server == "" {
		return fmt.Sprintf("command: module not found: %s", e.Module)
	}
	return fmt.Sprintf("command: module %s has no server named %s", e.Module, e.Server)
}
