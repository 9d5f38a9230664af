// Package models contains the entities persisted by the desktop app.
// They are stored as JSON documents, one bucket per entity type.
package models
