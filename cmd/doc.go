// Package cmd implements the command-line interface cgdb. It runs the database server and
// talks to a running server as a client.
//
// The package is organized into several subpackages:
//
//   - serve: Starts the server owning the storage engine (leveldb or pebble)
//   - db: Store operations against a running server (get, put, keys, stream, perf, ...)
//   - util: Shared utilities for flags, configuration and key composition (internal use)
//
// Flags can also be set as environment variables with the prefix CGDB_ (e.g. CGDB_DB_PATH),
// .env and .env.local files are loaded on start.
//
// See cgdb -help for a list of all commands.
package cmd
