// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kiln

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/z5labs/kiln/lifecycle"
	"github.com/z5labs/kiln/metrics"
	"github.com/z5labs/kiln/resource"
	"github.com/z5labs/kiln/route"
	"github.com/z5labs/kiln/transport"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type textResource struct {
	resource.Base
	text string
	etag string
}

func (r textResource) ETag(context.Context, *resource.Request, resource.Entity) (string, error) {
	return r.etag, nil
}

func (textResource) ContentType(context.Context, *resource.Request, resource.Entity) (string, error) {
	return "text/plain", nil
}

func (r textResource) Render(context.Context, *resource.Request, resource.Entity) ([]byte, error) {
	return []byte(r.text), nil
}

type processResource struct {
	resource.Base
	process func(context.Context, *resource.Request) (resource.Entity, error)
}

func (r processResource) Process(ctx context.Context, req *resource.Request) (resource.Entity, error) {
	return r.process(ctx, req)
}

func (processResource) Render(_ context.Context, _ *resource.Request, e resource.Entity) ([]byte, error) {
	s, _ := e.(string)
	return []byte(s), nil
}

type testResponse struct {
	start transport.ResponseStart
	body  []byte
}

func (r testResponse) header(name string) string {
	for _, h := range r.start.Headers {
		if h.Name == name {
			return h.Value
		}
	}
	return ""
}

func serve(t *testing.T, s *Server, method, target string, headers ...transport.Header) testResponse {
	t.Helper()

	path, query, _ := strings.Cut(target, "?")
	scope := transport.Scope{
		Kind:        transport.KindHTTP,
		Method:      method,
		Path:        path,
		Headers:     headers,
		QueryString: []byte(query),
	}
	receive := func(context.Context) (transport.Message, error) {
		return transport.Request{}, nil
	}

	var resp testResponse
	var sent []transport.Message
	send := func(_ context.Context, msg transport.Message) error {
		sent = append(sent, msg)
		return nil
	}

	err := s.Serve(context.Background(), scope, receive, send)
	require.Nil(t, err)
	require.Len(t, sent, 2)

	start, ok := sent[0].(transport.ResponseStart)
	require.True(t, ok)
	body, ok := sent[1].(transport.ResponseBody)
	require.True(t, ok)
	require.False(t, body.MoreBody)

	resp.start = start
	resp.body = body.Body
	return resp
}

func TestServer_AddRoute(t *testing.T) {
	t.Run("will return a RouteError", func(t *testing.T) {
		t.Run("if the pattern is invalid", func(t *testing.T) {
			s := NewServer()

			err := s.AddRoute("/{unclosed", textResource{})

			var rerr RouteError
			if !assert.ErrorAs(t, err, &rerr) {
				return
			}
			assert.Equal(t, "/{unclosed", rerr.Pattern)

			var perr route.InvalidPatternError
			assert.ErrorAs(t, err, &perr)
		})

		t.Run("if the resource is nil", func(t *testing.T) {
			s := NewServer()

			err := s.AddRoute("/", nil)

			var rerr RouteError
			assert.ErrorAs(t, err, &rerr)
		})
	})

	t.Run("will keep routes in registration order", func(t *testing.T) {
		s := NewServer()
		require.Nil(t, s.AddRoute("/a", textResource{text: "a"}))
		require.Nil(t, s.AddRoute("/b", textResource{text: "b"}))

		routes := s.Routes()
		if !assert.Len(t, routes, 2) {
			return
		}
		assert.Equal(t, "/a", routes[0].Pattern)
		assert.Equal(t, "/b", routes[1].Pattern)
		assert.Equal(t, "/a -> textResource(GET, HEAD, POST)", routes[0].String())
	})

	t.Run("will return a RegistrationClosedError", func(t *testing.T) {
		t.Run("if the server has left the Created state", func(t *testing.T) {
			s := NewServer()
			require.Nil(t, s.machine.Advance(context.Background(), lifecycle.Starting))

			err := s.AddRoute("/", textResource{})

			var rerr RegistrationClosedError
			if !assert.ErrorAs(t, err, &rerr) {
				return
			}
			assert.Equal(t, lifecycle.Starting, rerr.State)

			assert.ErrorAs(t, s.AddStartupTask(lifecycle.TaskFunc(noopTask)), &rerr)
			assert.ErrorAs(t, s.AddShutdownTask(lifecycle.TaskFunc(noopTask)), &rerr)
			assert.ErrorAs(t, s.Apply(ExposeTraces(false)), &rerr)
		})
	})
}

func noopTask(context.Context) error {
	return nil
}

func TestServer_Serve(t *testing.T) {
	t.Run("will panic", func(t *testing.T) {
		t.Run("if the event kind is unknown", func(t *testing.T) {
			s := NewServer()

			assert.PanicsWithValue(t, UnknownEventKindError{Kind: "websocket"}, func() {
				s.Serve(context.Background(), transport.Scope{Kind: "websocket"}, nil, nil)
			})
		})

		t.Run("if a lifespan message is unknown", func(t *testing.T) {
			s := NewServer()

			receive := func(context.Context) (transport.Message, error) {
				return transport.Disconnect{}, nil
			}

			assert.PanicsWithValue(t, UnknownMessageError{Message: transport.Disconnect{}}, func() {
				s.Serve(context.Background(), transport.Scope{Kind: transport.KindLifespan}, receive, nil)
			})
		})
	})

	t.Run("will drive the lifecycle through lifespan events", func(t *testing.T) {
		s := NewServer()

		var mu sync.Mutex
		var ran []string
		record := func(name string) lifecycle.TaskFunc {
			return func(context.Context) error {
				mu.Lock()
				defer mu.Unlock()
				ran = append(ran, name)
				return nil
			}
		}
		require.Nil(t, s.AddStartupTask(record("startup")))
		require.Nil(t, s.AddShutdownTask(record("shutdown")))
		require.Nil(t, s.machine.Advance(context.Background(), lifecycle.Starting))

		inbox := []transport.Message{transport.LifespanStartup{}, transport.LifespanShutdown{}}
		receive := func(context.Context) (transport.Message, error) {
			msg := inbox[0]
			inbox = inbox[1:]
			return msg, nil
		}

		var sent []transport.Message
		var states []lifecycle.State
		send := func(_ context.Context, msg transport.Message) error {
			sent = append(sent, msg)
			states = append(states, s.State())
			return nil
		}

		err := s.Serve(context.Background(), transport.Scope{Kind: transport.KindLifespan}, receive, send)
		if !assert.Nil(t, err) {
			return
		}
		s.launcher.Wait()

		assert.Equal(t, []transport.Message{
			transport.LifespanStartupComplete{},
			transport.LifespanShutdownComplete{},
		}, sent)
		assert.Equal(t, []lifecycle.State{lifecycle.Started, lifecycle.Stopping}, states)
		assert.ElementsMatch(t, []string{"startup", "shutdown"}, ran)

		select {
		case <-s.Started():
		default:
			assert.Fail(t, "started channel should be closed")
		}

		assert.True(t, s.Readiness().Healthy(context.Background()))
	})

	t.Run("will respond with 404", func(t *testing.T) {
		t.Run("if no route matches", func(t *testing.T) {
			s := NewServer()
			require.Nil(t, s.AddRoute("/", textResource{text: "main"}))

			resp := serve(t, s, http.MethodGet, "/missing")

			assert.Equal(t, http.StatusNotFound, resp.start.Status)
			assert.Equal(t, "Not found", string(resp.body))
			assert.Equal(t, "text/plain;charset=UTF-8", resp.header("content-type"))
		})

		t.Run("if the resource returns a NotFoundError", func(t *testing.T) {
			s := NewServer()
			require.Nil(t, s.AddRoute("/", processResource{
				process: func(_ context.Context, r *resource.Request) (resource.Entity, error) {
					return nil, resource.NotFoundError{Path: r.Path()}
				},
			}))

			resp := serve(t, s, http.MethodGet, "/")

			assert.Equal(t, http.StatusNotFound, resp.start.Status)
			assert.Equal(t, "Not found", string(resp.body))
		})
	})

	t.Run("will use the first matching route", func(t *testing.T) {
		s := NewServer()
		require.Nil(t, s.AddRoute("/items/{id}", textResource{text: "first"}))
		require.Nil(t, s.AddRoute("/items/{name}", textResource{text: "second"}))

		resp := serve(t, s, http.MethodGet, "/items/1")

		assert.Equal(t, http.StatusOK, resp.start.Status)
		assert.Equal(t, "first", string(resp.body))
		assert.Equal(t, "text/plain", resp.header("content-type"))
	})

	t.Run("will send the security headers with every response", func(t *testing.T) {
		s := NewServer(ContentSecurityPolicy("default-src 'none'"))
		require.Nil(t, s.AddRoute("/", textResource{text: "main"}))

		for _, target := range []string{"/", "/missing"} {
			resp := serve(t, s, http.MethodGet, target)

			assert.Equal(t, "default-src 'none'", resp.header("content-security-policy"))
			assert.Equal(t, "no-referrer", resp.header("referrer-policy"))
			assert.Equal(t, "nosniff", resp.header("x-content-type-options"))
		}
	})

	t.Run("will respond with 400", func(t *testing.T) {
		t.Run("if the method is not allowed", func(t *testing.T) {
			s := NewServer()
			require.Nil(t, s.AddRoute("/", textResource{
				Base: resource.Base{AllowedMethods: []string{http.MethodGet}},
			}))

			resp := serve(t, s, http.MethodPost, "/")

			assert.Equal(t, http.StatusBadRequest, resp.start.Status)
			assert.Equal(t, "Bad request: Illegal method", string(resp.body))
		})

		t.Run("if a required parameter is missing", func(t *testing.T) {
			s := NewServer()
			require.Nil(t, s.AddRoute("/greet", processResource{
				process: func(_ context.Context, r *resource.Request) (resource.Entity, error) {
					name, err := r.Require("name")
					if err != nil {
						return nil, err
					}
					return "hello " + name, nil
				},
			}))

			resp := serve(t, s, http.MethodGet, "/greet")
			assert.Equal(t, http.StatusBadRequest, resp.start.Status)
			assert.Equal(t, "Bad request: Required parameter not found: name", string(resp.body))

			resp = serve(t, s, http.MethodGet, "/greet?name=kiln")
			assert.Equal(t, http.StatusOK, resp.start.Status)
			assert.Equal(t, "hello kiln", string(resp.body))
		})
	})

	t.Run("will let path parameters take precedence over the query", func(t *testing.T) {
		s := NewServer()
		require.Nil(t, s.AddRoute("/items/{id}", processResource{
			process: func(_ context.Context, r *resource.Request) (resource.Entity, error) {
				return r.Get("id", ""), nil
			},
		}))

		resp := serve(t, s, http.MethodGet, "/items/path?id=query")

		assert.Equal(t, "path", string(resp.body))
	})

	t.Run("will respond with 303", func(t *testing.T) {
		t.Run("if the resource returns a RedirectError", func(t *testing.T) {
			s := NewServer()
			require.Nil(t, s.AddRoute("/old", processResource{
				process: func(context.Context, *resource.Request) (resource.Entity, error) {
					return nil, resource.RedirectError{Location: "/new"}
				},
			}))

			resp := serve(t, s, http.MethodGet, "/old")

			assert.Equal(t, http.StatusSeeOther, resp.start.Status)
			assert.Equal(t, "/new", resp.header("location"))
			assert.Empty(t, resp.body)
		})
	})

	t.Run("will respond with 500", func(t *testing.T) {
		t.Run("if the resource panics", func(t *testing.T) {
			s := NewServer()
			require.Nil(t, s.AddRoute("/explode", processResource{
				process: func(context.Context, *resource.Request) (resource.Entity, error) {
					panic("kaboom")
				},
			}))

			resp := serve(t, s, http.MethodGet, "/explode")

			assert.Equal(t, http.StatusInternalServerError, resp.start.Status)
			assert.Contains(t, string(resp.body), "kaboom")
			assert.Contains(t, string(resp.body), "server_test.go")
		})

		t.Run("if the resource panics with a client error", func(t *testing.T) {
			s := NewServer()
			require.Nil(t, s.AddRoute("/explode", processResource{
				process: func(context.Context, *resource.Request) (resource.Entity, error) {
					panic(resource.BadRequestError{Reason: "nope"})
				},
			}))

			resp := serve(t, s, http.MethodGet, "/explode")

			assert.Equal(t, http.StatusInternalServerError, resp.start.Status)
		})

		t.Run("if the resource fails", func(t *testing.T) {
			s := NewServer()
			require.Nil(t, s.AddRoute("/", processResource{
				process: func(context.Context, *resource.Request) (resource.Entity, error) {
					return nil, errors.New("database unavailable")
				},
			}))

			resp := serve(t, s, http.MethodGet, "/")

			assert.Equal(t, http.StatusInternalServerError, resp.start.Status)
			assert.Contains(t, string(resp.body), "database unavailable")
		})

		t.Run("without the trace if traces are not exposed", func(t *testing.T) {
			s := NewServer(ExposeTraces(false))
			require.Nil(t, s.AddRoute("/", processResource{
				process: func(context.Context, *resource.Request) (resource.Entity, error) {
					return nil, errors.New("database unavailable")
				},
			}))

			resp := serve(t, s, http.MethodGet, "/")

			assert.Equal(t, http.StatusInternalServerError, resp.start.Status)
			assert.Equal(t, "Internal server error", string(resp.body))
		})
	})

	t.Run("will respond with 304", func(t *testing.T) {
		t.Run("if the etag matches if-none-match", func(t *testing.T) {
			s := NewServer()
			require.Nil(t, s.AddRoute("/", textResource{text: "main", etag: "v1"}))

			resp := serve(t, s, http.MethodGet, "/")
			assert.Equal(t, http.StatusOK, resp.start.Status)
			etag := resp.header("etag")
			assert.Equal(t, `"v1"`, etag)

			resp = serve(t, s, http.MethodGet, "/", transport.NewHeader("If-None-Match", etag))
			assert.Equal(t, http.StatusNotModified, resp.start.Status)
			assert.Empty(t, resp.body)
			assert.Equal(t, etag, resp.header("etag"))
		})

		t.Run("if the etag matches on a HEAD request", func(t *testing.T) {
			s := NewServer()
			require.Nil(t, s.AddRoute("/", textResource{text: "main", etag: "v1"}))

			resp := serve(t, s, http.MethodHead, "/", transport.NewHeader("If-None-Match", `"v1"`))

			assert.Equal(t, http.StatusNotModified, resp.start.Status)
			assert.Empty(t, resp.body)
		})
	})

	t.Run("will wrap the etag in quotes verbatim", func(t *testing.T) {
		s := NewServer()
		require.Nil(t, s.AddRoute("/", textResource{text: "main", etag: `café\"1`}))

		resp := serve(t, s, http.MethodGet, "/")
		assert.Equal(t, `"café\"1"`, resp.header("etag"))

		resp = serve(t, s, http.MethodGet, "/", transport.NewHeader("If-None-Match", `"café\"1"`))
		assert.Equal(t, http.StatusNotModified, resp.start.Status)
	})

	t.Run("will serve files below a directory", func(t *testing.T) {
		memfs := afero.NewMemMapFs()
		require.Nil(t, memfs.MkdirAll("/srv", 0o755))
		require.Nil(t, afero.WriteFile(memfs, "/srv/alpha.txt", []byte("alpha"), 0o644))

		files, err := resource.NewFile("/srv", resource.FileSystem(memfs))
		require.Nil(t, err)

		s := NewServer()
		require.Nil(t, s.AddRoute("/files/*", files))

		resp := serve(t, s, http.MethodGet, "/files/alpha.txt")
		assert.Equal(t, http.StatusOK, resp.start.Status)
		assert.Contains(t, resp.header("content-type"), "text/plain")
		assert.Equal(t, "alpha", string(resp.body))

		etag := resp.header("etag")
		if !assert.NotEmpty(t, etag) {
			return
		}

		resp = serve(t, s, http.MethodGet, "/files/alpha.txt", transport.NewHeader("If-None-Match", etag))
		assert.Equal(t, http.StatusNotModified, resp.start.Status)
		assert.Empty(t, resp.body)

		resp = serve(t, s, http.MethodGet, "/files/missing.txt")
		assert.Equal(t, http.StatusNotFound, resp.start.Status)
		assert.Equal(t, "Not found", string(resp.body))
	})

	t.Run("will not render HEAD requests", func(t *testing.T) {
		processed := false
		s := NewServer()
		require.Nil(t, s.AddRoute("/", processResource{
			process: func(context.Context, *resource.Request) (resource.Entity, error) {
				processed = true
				return "body", nil
			},
		}))

		resp := serve(t, s, http.MethodHead, "/")

		assert.True(t, processed)
		assert.Equal(t, http.StatusOK, resp.start.Status)
		assert.Empty(t, resp.body)
	})

	t.Run("will record an observation per request", func(t *testing.T) {
		rec := &recorder{}
		s := NewServer(Metrics(rec))
		require.Nil(t, s.AddRoute("/items/{id}", textResource{}))

		serve(t, s, http.MethodGet, "/items/1")
		serve(t, s, http.MethodGet, "/missing")

		assert.Equal(t, 2, rec.begun)
		if !assert.Len(t, rec.observed, 2) {
			return
		}
		assert.Equal(t, "/items/{id}", rec.observed[0].Route)
		assert.Equal(t, http.StatusOK, rec.observed[0].Status)
		assert.Equal(t, metrics.UnmatchedRoute, rec.observed[1].Route)
		assert.Equal(t, http.StatusNotFound, rec.observed[1].Status)
	})
}

type recorder struct {
	begun    int
	observed []metrics.Observation
}

func (r *recorder) Begin(context.Context) {
	r.begun++
}

func (r *recorder) Observe(_ context.Context, o metrics.Observation) {
	r.observed = append(r.observed, o)
}
