// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package kiln provides a minimal HTTP server core.
//
// A [Server] holds an ordered routing table mapping path patterns to
// resources. Every request is matched against the table, first match
// wins, and handed to the matched [resource.Resource] which runs through
// a fixed pipeline:
//
//	process → etag → (304 | HEAD | render + content type) → respond
//
// Alongside routing, a [Server] drives a staged lifecycle:
//
//	Created → Starting → Started → Running → Stopping → Stopped
//
// Startup tasks are launched on entering Started and shutdown tasks on
// entering Stopping. Neither is awaited by the transition.
//
// # Basic Usage
//
//	srv := kiln.NewServer()
//	err := srv.AddRoute("/files/*", files)
//	if err != nil {
//	    return err
//	}
//	return srv.Run(ctx, "localhost", 8080)
package kiln
