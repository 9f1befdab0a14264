// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/z5labs/kiln"
	"github.com/z5labs/kiln/command"
	"github.com/z5labs/kiln/lifecycle"
	"github.com/z5labs/kiln/metrics"
	"github.com/z5labs/kiln/resource"
)

type text struct {
	resource.Base
	body string
}

func (t text) ContentType(context.Context, *resource.Request, resource.Entity) (string, error) {
	return "text/plain;charset=UTF-8", nil
}

func (t text) Render(context.Context, *resource.Request, resource.Entity) ([]byte, error) {
	return []byte(t.body), nil
}

type explode struct {
	resource.Base
}

func (explode) Process(context.Context, *resource.Request) (resource.Entity, error) {
	panic("explode")
}

type greeting struct {
	Name string `json:"name"`
}

type greet struct {
	resource.Base
}

func (greet) Process(ctx context.Context, r *resource.Request) (resource.Entity, error) {
	if r.Method() == http.MethodPost {
		var g greeting
		err := r.DecodeJSON(ctx, &g)
		if err != nil {
			return nil, err
		}
		return g, nil
	}

	name, err := r.Require("name")
	if err != nil {
		return nil, err
	}
	return greeting{Name: name}, nil
}

func (greet) ContentType(context.Context, *resource.Request, resource.Entity) (string, error) {
	return "application/json", nil
}

func (greet) Render(_ context.Context, _ *resource.Request, e resource.Entity) ([]byte, error) {
	g := e.(greeting)
	return json.Marshal(map[string]string{"message": "hello " + g.Name})
}

type item struct {
	resource.Base
}

func (item) Process(_ context.Context, r *resource.Request) (resource.Entity, error) {
	id := r.Get("id", "")
	if id == "0" {
		return nil, resource.NotFoundError{Path: r.Path()}
	}
	if id == "latest" {
		return nil, resource.RedirectError{Location: "/items/1"}
	}
	return id, nil
}

func (item) ETag(_ context.Context, _ *resource.Request, e resource.Entity) (string, error) {
	return "item-" + e.(string), nil
}

func (item) Render(_ context.Context, _ *resource.Request, e resource.Entity) ([]byte, error) {
	return []byte(fmt.Sprintf("item %s", e)), nil
}

func initServer() (*kiln.Server, error) {
	s := kiln.NewServer()

	rec := metrics.NewPrometheus(metrics.Readiness(s.Readiness()))
	err := s.Apply(kiln.Metrics(rec))
	if err != nil {
		return nil, err
	}

	dir := os.Getenv("FILESERVER_DIR")
	if dir == "" {
		dir = "."
	}
	files, err := resource.NewFile(dir, resource.DefaultSubpath("/index.html"))
	if err != nil {
		return nil, err
	}

	routes := []struct {
		pattern string
		res     resource.Resource
	}{
		{pattern: "/", res: text{body: "main"}},
		{pattern: "/files/*", res: files},
		{pattern: "/explode", res: explode{}},
		{pattern: "/greet", res: greet{}},
		{pattern: "/post-only", res: text{
			Base: resource.Base{AllowedMethods: []string{http.MethodPost}},
			body: "posted",
		}},
		{pattern: "/items/{id}", res: item{}},
		{pattern: "/metrics", res: metrics.Resource(nil)},
	}
	for _, rt := range routes {
		err = s.AddRoute(rt.pattern, rt.res)
		if err != nil {
			return nil, err
		}
	}

	err = s.AddShutdownTask(lifecycle.TaskFunc(func(ctx context.Context) error {
		fmt.Fprintln(os.Stderr, "fileserver: bye")
		return nil
	}))
	if err != nil {
		return nil, err
	}
	return s, nil
}

func main() {
	s, err := initServer()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	command.Execute(context.Background(), command.WithModules(command.Modules{
		"fileserver": {"app": s},
	}))
}
