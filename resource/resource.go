// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package resource defines the contract request handlers implement and
// the request view they are given.
package resource

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Entity is whatever a [Resource] produces in Process and consumes in
// the later pipeline steps.
type Entity any

// Resource handles the requests for one or more routes. A Resource is
// shared by every request it serves so it must not keep per-request state.
type Resource interface {
	// Methods lists the request methods the resource accepts.
	Methods() []string

	// Process turns the request into an entity.
	Process(context.Context, *Request) (Entity, error)

	// ETag returns the unquoted entity tag or "" when there is none.
	ETag(context.Context, *Request, Entity) (string, error)

	// ContentType returns the media type of the rendered entity or "" when unknown.
	ContentType(context.Context, *Request, Entity) (string, error)

	// Render returns the response body.
	Render(context.Context, *Request, Entity) ([]byte, error)
}

// DefaultMethods are accepted by a [Base] without AllowedMethods.
var DefaultMethods = []string{http.MethodGet, http.MethodHead, http.MethodPost}

// Base implements every [Resource] method with a no-op default. Embed it
// and override the steps you need.
type Base struct {
	AllowedMethods []string
}

// Methods implements the [Resource] interface.
func (b Base) Methods() []string {
	if len(b.AllowedMethods) == 0 {
		return DefaultMethods
	}
	return b.AllowedMethods
}

// Process implements the [Resource] interface.
func (Base) Process(context.Context, *Request) (Entity, error) {
	return nil, nil
}

// ETag implements the [Resource] interface.
func (Base) ETag(context.Context, *Request, Entity) (string, error) {
	return "", nil
}

// ContentType implements the [Resource] interface.
func (Base) ContentType(context.Context, *Request, Entity) (string, error) {
	return "", nil
}

// Render implements the [Resource] interface.
func (Base) Render(context.Context, *Request, Entity) ([]byte, error) {
	return nil, nil
}

// Allows reports whether r accepts the given method.
func Allows(r Resource, method string) bool {
	for _, m := range r.Methods() {
		if m == method {
			return true
		}
	}
	return false
}

// Describe returns a short human readable representation of r.
func Describe(r Resource) string {
	if s, ok := r.(fmt.Stringer); ok {
		return s.String()
	}
	name := fmt.Sprintf("%T", r)
	name = strings.TrimPrefix(name, "*")
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return fmt.Sprintf("%s(%s)", name, strings.Join(r.Methods(), ", "))
}
