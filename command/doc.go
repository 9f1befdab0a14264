// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package command provides the CLI used to serve a [kiln.Server].
//
// The server is either bound up front with [Server] or picked at run time
// from the [Modules] handed to the command using a MODULE:SERVER argument.
// Every flag may also be set through an environment variable prefixed with
// KILN_, for example KILN_PORT=9090.
package command
