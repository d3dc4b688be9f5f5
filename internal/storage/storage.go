// Package storage provides the durable key/value areas the service persists
// its state into. An Area is a flat namespace of string keys to opaque byte
// values; settings live in one area, job checkpoints in another.
package storage

import "context"

// Area is an asynchronous key/value namespace.
type Area interface {
	// Get returns the stored values for the given keys. Missing keys are
	// absent from the result map. With no keys, Get returns every entry
	// in the area.
	Get(ctx context.Context, keys ...string) (map[string][]byte, error)
	// Set stores all entries of items. Entries for other keys are untouched.
	Set(ctx context.Context, items map[string][]byte) error
	// Remove deletes the given keys. Removing an absent key is a no-op.
	Remove(ctx context.Context, keys ...string) error
}

// Well-known area names. The settings area would sync across devices in the
// original deployment; the checkpoint area is always local.
const (
	AreaSync  = "sync"
	AreaLocal = "local"
)
