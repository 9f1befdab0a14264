// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package metrics

import (
	"bytes"
	"context"
	"net/http"

	"github.com/z5labs/kiln/resource"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Exposition is a [resource.Resource] rendering the metrics gathered
// from a [prometheus.Gatherer] in the Prometheus text format.
type Exposition struct {
	resource.Base

	gatherer prometheus.Gatherer
}

// Resource returns an [Exposition] for g. A nil g uses
// [prometheus.DefaultGatherer].
func Resource(g prometheus.Gatherer) *Exposition {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return &Exposition{
		Base:     resource.Base{AllowedMethods: []string{http.MethodGet, http.MethodHead}},
		gatherer: g,
	}
}

// Process implements the [resource.Resource] interface.
func (e *Exposition) Process(ctx context.Context, r *resource.Request) (resource.Entity, error) {
	mfs, err := e.gatherer.Gather()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range mfs {
		err = enc.Encode(mf)
		if err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// ContentType implements the [resource.Resource] interface.
func (e *Exposition) ContentType(ctx context.Context, r *resource.Request, entity resource.Entity) (string, error) {
	return string(expfmt.NewFormat(expfmt.TypeTextPlain)), nil
}

// Render implements the [resource.Resource] interface.
func (e *Exposition) Render(ctx context.Context, r *resource.Request, entity resource.Entity) ([]byte, error) {
	b, _ := entity.([]byte)
	return b, nil
}

// String implements the [fmt.Stringer] interface.
func (e *Exposition) String() string {
	return "Metrics(GET, HEAD)"
}
