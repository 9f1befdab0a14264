// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package resource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/z5labs/kiln/route"
	"github.com/z5labs/kiln/transport"
)

// Request is a read-only view over a single HTTP event.
type Request struct {
	scope   transport.Scope
	params  map[string]string
	receive transport.ReceiveFunc

	body     []byte
	bodyRead bool
}

// NewRequest builds a [Request] from the scope and the parameters bound by
// the matched route. Path parameters take precedence over query parameters
// of the same name and, among repeated query parameters, the last one wins.
//
// A malformed query string results in a [BadRequestError].
func NewRequest(scope transport.Scope, params route.Params, receive transport.ReceiveFunc) (*Request, error) {
	query, err := url.ParseQuery(string(scope.QueryString))
	if err != nil {
		return nil, BadRequestError{Reason: "Malformed query string", Cause: err}
	}

	merged := make(map[string]string, len(params)+len(query))
	for name, values := range query {
		merged[name] = values[len(values)-1]
	}
	for name, value := range params {
		merged[name] = value
	}

	r := &Request{
		scope:   scope,
		params:  merged,
		receive: receive,
	}
	return r, nil
}

// Method returns the request method.
func (r *Request) Method() string {
	return r.scope.Method
}

// Path returns the request path.
func (r *Request) Path() string {
	return r.scope.Path
}

// Get returns the named parameter or def if it is not present.
func (r *Request) Get(name, def string) string {
	v, ok := r.params[name]
	if !ok {
		return def
	}
	return v
}

// Lookup returns the named parameter and whether it was present.
func (r *Request) Lookup(name string) (string, bool) {
	v, ok := r.params[name]
	return v, ok
}

// Require returns the named parameter or a [BadRequestError] if it is
// not present.
func (r *Request) Require(name string) (string, error) {
	v, ok := r.params[name]
	if !ok {
		return "", BadRequestError{Reason: "Required parameter not found: " + name}
	}
	return v, nil
}

// Params returns a copy of every request parameter.
func (r *Request) Params() map[string]string {
	params := make(map[string]string, len(r.params))
	for k, v := range r.params {
		params[k] = v
	}
	return params
}

// Header returns the value of the first header with the given name,
// compared case-insensitively, or "" when there is none.
func (r *Request) Header(name string) string {
	for _, h := range r.scope.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// Body reads the complete request body. It may be called more than once.
func (r *Request) Body(ctx context.Context) ([]byte, error) {
	if r.bodyRead {
		return r.body, nil
	}
	if r.receive == nil {
		r.bodyRead = true
		return nil, nil
	}

	var buf bytes.Buffer
	for {
		msg, err := r.receive(ctx)
		if err != nil {
			return nil, err
		}

		switch m := msg.(type) {
		case transport.Request:
			buf.Write(m.Body)
			if m.MoreBody {
				continue
			}
		case transport.Disconnect:
			return nil, ErrDisconnected
		default:
			return nil, transport.ProtocolError{Message: msg, Reason: "expected request body"}
		}
		break
	}

	r.body = buf.Bytes()
	r.bodyRead = true
	return r.body, nil
}

// DecodeJSON reads the body and unmarshals it into v. Invalid JSON
// results in a [BadRequestError].
func (r *Request) DecodeJSON(ctx context.Context, v any) error {
	b, err := r.Body(ctx)
	if err != nil {
		return err
	}
	err = json.Unmarshal(b, v)
	if err != nil {
		return BadRequestError{Reason: "Invalid JSON body", Cause: err}
	}
	return nil
}

// String implements the [fmt.Stringer] interface.
func (r *Request) String() string {
	return fmt.Sprintf("Request(%s, %s)", r.Method(), r.Path())
}
