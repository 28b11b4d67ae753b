package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/adcraftlabs/adcraft/docstore"
	"github.com/adcraftlabs/adcraft/docstore/rediscache"
)

const sessionCollection = "sessions"

// SessionStore persists sessions as documents and keeps a best-effort
// redis snapshot. The snapshot backs the cached-response fallback when the
// primary document store is unavailable.
type SessionStore struct {
	docs  docstore.Store
	cache *rediscache.Cache
}

// NewSessionStore wraps a document store. cache may be nil.
func NewSessionStore(docs docstore.Store, cache *rediscache.Cache) *SessionStore {
	return &SessionStore{docs: docs, cache: cache}
}

// Save writes the full session document, creating it on first save.
// Last write wins on concurrent saves.
func (st *SessionStore) Save(ctx context.Context, s *Session) error {
	if s == nil || s.ID == "" {
		return fmt.Errorf("session with id is required")
	}
	doc, err := sessionToDoc(s)
	if err != nil {
		return err
	}

	if _, err := st.docs.Update(ctx, sessionCollection, s.ID, doc); err != nil {
		if !errors.Is(err, docstore.ErrNotFound) {
			return fmt.Errorf("failed to save session: %w", err)
		}
		if err := st.docs.Create(ctx, sessionCollection, s.ID, doc); err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
	}

	if st.cache != nil {
		// Best effort; a cache failure must not fail the save.
		_ = st.cache.Put(ctx, sessionCollection, s.ID, doc)
	}
	return nil
}

// Load reads a session. Returns docstore.ErrNotFound when absent.
func (st *SessionStore) Load(ctx context.Context, id string) (*Session, error) {
	doc, err := st.docs.Get(ctx, sessionCollection, id)
	if err != nil {
		return nil, err
	}
	return docToSession(doc)
}

// LoadCached serves the redis snapshot with its capture time, for the
// document-store staleness fallback. Returns rediscache.ErrMiss when the
// snapshot is absent and an error when no cache is configured.
func (st *SessionStore) LoadCached(ctx context.Context, id string) (*Session, time.Time, error) {
	if st.cache == nil {
		return nil, time.Time{}, fmt.Errorf("no session cache configured")
	}
	snap, err := st.cache.Get(ctx, sessionCollection, id)
	if err != nil {
		return nil, time.Time{}, err
	}
	s, err := docToSession(snap.Document)
	if err != nil {
		return nil, time.Time{}, err
	}
	return s, snap.CachedAt, nil
}

func sessionToDoc(s *Session) (map[string]any, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to convert session: %w", err)
	}
	return doc, nil
}

func docToSession(doc map[string]any) (*Session, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session document: %w", err)
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session document: %w", err)
	}
	return &s, nil
}
