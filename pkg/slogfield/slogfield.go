// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package slogfield provides standardized slog attributes for kiln logs.
package slogfield

import (
	"fmt"
	"log/slog"
	"time"
)

// Any returns an slog.Attr for the supplied value.
func Any(key string, value any) slog.Attr {
	return slog.Any(key, value)
}

// Bool returns an slog.Attr for a bool.
func Bool(key string, value bool) slog.Attr {
	return slog.Bool(key, value)
}

// Duration returns an slog.Attr for a time.Duration.
func Duration(key string, d time.Duration) slog.Attr {
	return slog.Duration(key, d)
}

// Error returns an slog.Attr for a error.
func Error(err error) slog.Attr {
	return slog.Any("error", err)
}

// String returns an slog.Attr for a string.
func String(key, value string) slog.Attr {
	return slog.String(key, value)
}

// Strings returns an slog.Attr for a slice of strings.
func Strings(key string, values []string) slog.Attr {
	return slog.Any(key, values)
}

// Int returns an slog.Attr for a int.
func Int(key string, n int) slog.Attr {
	return slog.Int(key, n)
}

// Method returns the standard attribute for an HTTP request method.
func Method(method string) slog.Attr {
	return slog.String("http.method", method)
}

// Path returns the standard attribute for a request path.
func Path(path string) slog.Attr {
	return slog.String("http.path", path)
}

// Route returns the standard attribute for a matched route pattern.
func Route(pattern string) slog.Attr {
	return slog.String("http.route", pattern)
}

// Status returns the standard attribute for a response status code.
func Status(code int) slog.Attr {
	return slog.Int("http.status_code", code)
}

// State returns the standard attribute for a lifecycle state.
func State(s fmt.Stringer) slog.Attr {
	return slog.String("lifecycle.state", s.String())
}
