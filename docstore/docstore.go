// Package docstore defines schemaless JSON document persistence. Sessions
// and production records are stored as documents keyed by collection and id;
// backends live in subpackages.
package docstore

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("docstore: not found")
	ErrConflict = errors.New("docstore: conflict")
)

type Store interface {
	// Create inserts a new document. Returns ErrConflict when the id
	// already exists in the collection.
	Create(ctx context.Context, collection, id string, doc map[string]any) error
	// Get loads a document. Returns ErrNotFound when absent.
	Get(ctx context.Context, collection, id string) (map[string]any, error)
	// Update merges patch into the stored document top-level fields and
	// returns the merged result. Returns ErrNotFound when absent.
	Update(ctx context.Context, collection, id string, patch map[string]any) (map[string]any, error)
	// List returns documents in a collection, newest first.
	List(ctx context.Context, collection string, limit, offset int) ([]map[string]any, error)

	Close() error
}

// Merge applies patch onto doc at the top level. Nil patch values delete
// the field. The input maps are not modified.
func Merge(doc, patch map[string]any) map[string]any {
	out := make(map[string]any, len(doc)+len(patch))
	for k, v := range doc {
		out[k] = v
	}
	for k, v := range patch {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}
