// Package pebble provides an alternative storage engine, a db.Backend built on
// github.com/cockroachdb/pebble. It can be selected with the --engine flag of the
// serve command.
//
// Writes use pebble.Sync. Batches are committed with a single pebble.Batch.
// Values returned by Get are copied out of the pebble block cache before the closer
// is released. Iterator keys and values are copied by the engine before they leave
// the scan callback.
package pebble
