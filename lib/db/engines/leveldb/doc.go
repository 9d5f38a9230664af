// Package leveldb provides the default storage engine, a db.Backend built on
// github.com/syndtr/goleveldb.
//
// All writes are synced to disk before they are acknowledged. Batches are written
// with a single leveldb.Batch and are therefore atomic. Range scans use goleveldb
// iterators bounded by a util.Range, which matches the half open interval produced
// by db.FilterOptions.Bounds.
//
// The engine owns the leveldb directory exclusively: goleveldb takes a file lock
// on open and a second process opening the same path fails with an io failure.
package leveldb
