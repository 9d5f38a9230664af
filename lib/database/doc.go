// Package database groups the repositories of the desktop app behind one handle.
//
// The Database never owns an engine. It is built on an injected store.IStore, so the
// process that owns the engine and the process talking to it over the bridge use the
// same code.
package database
