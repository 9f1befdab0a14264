// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kiln

import (
	"errors"
	"fmt"

	"github.com/z5labs/kiln/lifecycle"
	"github.com/z5labs/kiln/transport"
)

// ErrNotRunning is returned by [Server.Stop] when the server was not
// started with [Server.Start].
var ErrNotRunning = errors.New("kiln: server is not running")

// RegistrationClosedError is returned when routes, tasks or options are
// added after the server has left the Created state.
type RegistrationClosedError struct {
	State lifecycle.State
}

// Error implements the [builtin.error] interface.
func (e RegistrationClosedError) Error() string {
	return fmt.Sprintf("kiln: registration is closed in state %s", e.State)
}

// RouteError is returned when a route can not be added.
type RouteError struct {
	Pattern string
	Cause   error
}

// Error implements the [builtin.error] interface.
func (e RouteError) Error() string {
	return fmt.Sprintf("kiln: failed to add route %s: %s", e.Pattern, e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e RouteError) Unwrap() error {
	return e.Cause
}

// UnknownEventKindError is the panic value of [Server.Serve] for events it
// does not understand.
type UnknownEventKindError struct {
	Kind transport.Kind
}

// Error implements the [builtin.error] interface.
func (e UnknownEventKindError) Error() string {
	return fmt.Sprintf("kiln: unknown event kind: %s", e.Kind)
}

// UnknownMessageError is the panic value of [Server.Serve] for lifespan
// messages it does not understand.
type UnknownMessageError struct {
	Message transport.Message
}

// Error implements the [builtin.error] interface.
func (e UnknownMessageError) Error() string {
	return fmt.Sprintf("kiln: unknown lifespan message: %T", e.Message)
}

// StageError reports the lifecycle stage in which running a server failed.
type StageError struct {
	Stage lifecycle.State
	Cause error
}

// Error implements the [builtin.error] interface.
func (e StageError) Error() string {
	return fmt.Sprintf("kiln: failed while %s: %s", e.Stage, e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e StageError) Unwrap() error {
	return e.Cause
}

// ConfigReadError is returned by [LoadConfig] when a source can not be read.
type ConfigReadError struct {
	Cause error
}

// Error implements the [builtin.error] interface.
func (e ConfigReadError) Error() string {
	return fmt.Sprintf("failed to read config source(s): %s", e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e ConfigReadError) Unwrap() error {
	return e.Cause
}

// ConfigUnmarshalError is returned by [LoadConfig] when the merged sources
// do not decode into a [Config].
type ConfigUnmarshalError struct {
	Cause error
}

// Error implements the [builtin.error] interface.
func (e ConfigUnmarshalError) Error() string {
	return fmt.Sprintf("failed to unmarshal read config source(s): %s", e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e ConfigUnmarshalError) Unwrap() error {
	return e.Cause
}
