// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package resource

import (
	"context"
	"errors"
	"testing"

	"github.com/z5labs/kiln/route"
	"github.com/z5labs/kiln/transport"

	"github.com/stretchr/testify/assert"
)

func receiveAll(msgs ...transport.Message) transport.ReceiveFunc {
	return func(ctx context.Context) (transport.Message, error) {
		if len(msgs) == 0 {
			return transport.Disconnect{}, nil
		}
		msg := msgs[0]
		msgs = msgs[1:]
		return msg, nil
	}
}

func TestNewRequest(t *testing.T) {
	t.Run("will return a BadRequestError", func(t *testing.T) {
		t.Run("if the query string is malformed", func(t *testing.T) {
			scope := transport.Scope{
				Kind:        transport.KindHTTP,
				Method:      "GET",
				Path:        "/",
				QueryString: []byte("a=%zz"),
			}

			_, err := NewRequest(scope, nil, nil)

			var berr BadRequestError
			assert.ErrorAs(t, err, &berr)
		})
	})

	t.Run("will prefer path parameters", func(t *testing.T) {
		t.Run("if a query parameter has the same name", func(t *testing.T) {
			scope := transport.Scope{
				Method:      "GET",
				Path:        "/items/42",
				QueryString: []byte("id=7&page=2"),
			}

			r, err := NewRequest(scope, route.Params{"id": "42"}, nil)
			if !assert.Nil(t, err) {
				return
			}
			if !assert.Equal(t, "42", r.Get("id", "")) {
				return
			}
			assert.Equal(t, "2", r.Get("page", ""))
		})
	})

	t.Run("will keep the last value", func(t *testing.T) {
		t.Run("if a query parameter is repeated", func(t *testing.T) {
			scope := transport.Scope{
				Method:      "GET",
				Path:        "/",
				QueryString: []byte("a=1&a=2&a=3"),
			}

			r, err := NewRequest(scope, nil, nil)
			if !assert.Nil(t, err) {
				return
			}
			assert.Equal(t, map[string]string{"a": "3"}, r.Params())
		})
	})
}

func TestRequest_Get(t *testing.T) {
	r, err := NewRequest(transport.Scope{Method: "GET", Path: "/", QueryString: []byte("q=kiln")}, nil, nil)
	if !assert.Nil(t, err) {
		return
	}

	t.Run("will return the value", func(t *testing.T) {
		t.Run("if the parameter is present", func(t *testing.T) {
			assert.Equal(t, "kiln", r.Get("q", "default"))
		})
	})

	t.Run("will return the default", func(t *testing.T) {
		t.Run("if the parameter is absent", func(t *testing.T) {
			assert.Equal(t, "default", r.Get("missing", "default"))
		})
	})
}

func TestRequest_Require(t *testing.T) {
	r, err := NewRequest(transport.Scope{Method: "GET", Path: "/", QueryString: []byte("q=kiln")}, nil, nil)
	if !assert.Nil(t, err) {
		return
	}

	t.Run("will return the value", func(t *testing.T) {
		t.Run("if the parameter is present", func(t *testing.T) {
			v, err := r.Require("q")
			if !assert.Nil(t, err) {
				return
			}
			assert.Equal(t, "kiln", v)
		})
	})

	t.Run("will return a BadRequestError", func(t *testing.T) {
		t.Run("if the parameter is absent", func(t *testing.T) {
			_, err := r.Require("name")

			var berr BadRequestError
			if !assert.ErrorAs(t, err, &berr) {
				return
			}
			assert.Equal(t, "Required parameter not found: name", berr.Error())
		})
	})
}

func TestRequest_Header(t *testing.T) {
	scope := transport.Scope{
		Method: "GET",
		Path:   "/",
		Headers: []transport.Header{
			transport.NewHeader("If-None-Match", `"abc"`),
			transport.NewHeader("X-Twice", "first"),
			transport.NewHeader("X-Twice", "second"),
		},
	}
	r, err := NewRequest(scope, nil, nil)
	if !assert.Nil(t, err) {
		return
	}

	testCases := []struct {
		Name   string
		Header string
		Value  string
	}{
		{Name: "if the name differs in case", Header: "IF-NONE-MATCH", Value: `"abc"`},
		{Name: "if the header repeats", Header: "x-twice", Value: "first"},
		{Name: "if the header is absent", Header: "accept", Value: ""},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.Name, func(t *testing.T) {
			assert.Equal(t, testCase.Value, r.Header(testCase.Header))
		})
	}
}

func TestRequest_Body(t *testing.T) {
	t.Run("will concatenate every chunk", func(t *testing.T) {
		t.Run("if the body is streamed", func(t *testing.T) {
			receive := receiveAll(
				transport.Request{Body: []byte("hello, "), MoreBody: true},
				transport.Request{Body: []byte("world")},
			)
			r, err := NewRequest(transport.Scope{Method: "POST", Path: "/"}, nil, receive)
			if !assert.Nil(t, err) {
				return
			}

			b, err := r.Body(context.Background())
			if !assert.Nil(t, err) {
				return
			}
			if !assert.Equal(t, "hello, world", string(b)) {
				return
			}

			b, err = r.Body(context.Background())
			if !assert.Nil(t, err) {
				return
			}
			assert.Equal(t, "hello, world", string(b))
		})
	})

	t.Run("will return ErrDisconnected", func(t *testing.T) {
		t.Run("if the client disconnects", func(t *testing.T) {
			receive := receiveAll(transport.Request{Body: []byte("partial"), MoreBody: true})
			r, err := NewRequest(transport.Scope{Method: "POST", Path: "/"}, nil, receive)
			if !assert.Nil(t, err) {
				return
			}

			_, err = r.Body(context.Background())
			assert.ErrorIs(t, err, ErrDisconnected)
		})
	})

	t.Run("will return the receive error", func(t *testing.T) {
		t.Run("if receiving fails", func(t *testing.T) {
			receiveErr := errors.New("failed")
			receive := func(ctx context.Context) (transport.Message, error) {
				return nil, receiveErr
			}
			r, err := NewRequest(transport.Scope{Method: "POST", Path: "/"}, nil, receive)
			if !assert.Nil(t, err) {
				return
			}

			_, err = r.Body(context.Background())
			assert.ErrorIs(t, err, receiveErr)
		})
	})
}

func TestRequest_DecodeJSON(t *testing.T) {
	t.Run("will decode the body", func(t *testing.T) {
		t.Run("if it is valid json", func(t *testing.T) {
			receive := receiveAll(transport.Request{Body: []byte(`{"name":"kiln"}`)})
			r, err := NewRequest(transport.Scope{Method: "POST", Path: "/"}, nil, receive)
			if !assert.Nil(t, err) {
				return
			}

			var v struct {
				Name string `json:"name"`
			}
			err = r.DecodeJSON(context.Background(), &v)
			if !assert.Nil(t, err) {
				return
			}
			assert.Equal(t, "kiln", v.Name)
		})
	})

	t.Run("will return a BadRequestError", func(t *testing.T) {
		t.Run("if the body is not json", func(t *testing.T) {
			receive := receiveAll(transport.Request{Body: []byte(`{`)})
			r, err := NewRequest(transport.Scope{Method: "POST", Path: "/"}, nil, receive)
			if !assert.Nil(t, err) {
				return
			}

			var v map[string]any
			err = r.DecodeJSON(context.Background(), &v)

			var berr BadRequestError
			assert.ErrorAs(t, err, &berr)
		})
	})
}

func TestRequest_String(t *testing.T) {
	r, err := NewRequest(transport.Scope{Method: "GET", Path: "/files/a.txt"}, nil, nil)
	if !assert.Nil(t, err) {
		return
	}
	assert.Equal(t, "Request(GET, /files/a.txt)", r.String())
}
