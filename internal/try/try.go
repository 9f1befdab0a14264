// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package try

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-stack/stack"
)

// PanicError wraps a value recovered from a panic along with
// the call stack of the panicking goroutine.
type PanicError struct {
	Value any
	Stack stack.CallStack
}

func (e PanicError) Error() string {
	return fmt.Sprintf("recovered from panic: %v", e.Value)
}

func (e PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// Trace formats the captured call stack one frame per line pair,
// function name first and source location indented below it.
func (e PanicError) Trace() string {
	var sb strings.Builder
	for _, c := range e.Stack {
		fmt.Fprintf(&sb, "%+n\n\t%+v\n", c, c)
	}
	return sb.String()
}

// Recover must be deferred directly. Any recovered value is joined
// onto the error ref as a PanicError.
func Recover(err *error) {
	r := recover()
	if r == nil {
		return
	}

	// element 0 is Recover itself
	cs := stack.Trace()
	if len(cs) > 0 {
		cs = cs[1:]
	}

	perr := PanicError{
		Value: r,
		Stack: cs.TrimRuntime(),
	}
	if *err == nil {
		*err = perr
		return
	}
	*err = errors.Join(*err, perr)
}

type CloseError struct {
	Cause error
}

func (e CloseError) Error() string {
	return fmt.Sprintf("failed to close: %s", e.Cause)
}

func (e CloseError) Unwrap() error {
	return e.Cause
}

// Close closes v if it implements io.Closer and joins any failure
// onto the error ref as a CloseError.
func Close(err *error, v any) {
	c, ok := v.(io.Closer)
	if !ok {
		return
	}

	cerr := c.Close()
	if cerr == nil {
		return
	}

	cerr = CloseError{Cause: cerr}
	if *err == nil {
		*err = cerr
		return
	}
	*err = errors.Join(*err, cerr)
}
