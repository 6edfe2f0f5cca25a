package store

import (
	"context"
	"encoding/json"
	"errors"
)

var ErrNotFound = errors.New("path not found")

// Store is a key-path structured store. Paths look like "sessions/{id}".
// Values are JSON documents; a nil value passed to Set removes the path.
type Store interface {
	Get(ctx context.Context, path string, dst any) error
	Set(ctx context.Context, path string, value any) error
	// Update merges top-level fields into the document at path atomically.
	Update(ctx context.Context, path string, fields map[string]any) error
	Push(ctx context.Context, path string, value any) error
	// PushAndUpdate appends value to listPath and merges fields into the document at
	// docPath in one transaction. Nothing is written when the document is missing.
	PushAndUpdate(ctx context.Context, listPath string, value any, docPath string, fields map[string]any) error
	List(ctx context.Context, path string) ([]json.RawMessage, error)
	// Children returns the documents directly under prefix keyed by their last path segment.
	Children(ctx context.Context, prefix string) (map[string]json.RawMessage, error)
	// CompareAndSwap replaces a string value only if it currently equals old.
	// The empty string stands for an absent path on both sides.
	CompareAndSwap(ctx context.Context, path, old, new string) (bool, error)
	// GetString reads a value written by CompareAndSwap; absent paths yield "".
	GetString(ctx context.Context, path string) (string, error)
	// Subscribe delivers the current value (when present) and every later change of path.
	// A nil message means the path was removed. The channel closes when ctx ends.
	Subscribe(ctx context.Context, path string) (<-chan json.RawMessage, error)
}
