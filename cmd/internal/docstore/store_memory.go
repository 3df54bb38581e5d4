package docstore

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"huddle/cmd/internal/ids"
)

// InMemoryStore is the dev/test Store used when no database is configured.
// It keeps documents per collection and evaluates queries in process with the same
// semantics as PostgresStore.
type InMemoryStore struct {
	mu    sync.RWMutex
	now   func() time.Time
	colls map[string]map[string]Document
}

// MemoryOption configures InMemoryStore behavior.
type MemoryOption func(*InMemoryStore)

// WithClock overrides the wall clock used for $createdAt/$updatedAt.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *InMemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewInMemoryStore constructs an empty in-memory Store.
func NewInMemoryStore(opts ...MemoryOption) *InMemoryStore {
	s := &InMemoryStore{
		now:   func() time.Time { return time.Now().UTC() },
		colls: make(map[string]map[string]Document),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Close closes the store (noop for in-memory).
func (s *InMemoryStore) Close() error { return nil }

// Create stores a new document under a fresh id.
func (s *InMemoryStore) Create(ctx context.Context, collection string, data map[string]any) (Document, error) {
	if strings.TrimSpace(collection) == "" {
		return Document{}, invalid("missing collection")
	}
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Clock and id are read under the lock so creation order, timestamps and ids agree.
	now := s.now()
	id, err := ids.NewULID(now)
	if err != nil {
		return Document{}, err
	}

	doc := Document{
		ID:         id,
		Collection: collection,
		CreatedAt:  now,
		UpdatedAt:  now,
		Data:       cloneData(data),
	}

	c := s.colls[collection]
	if c == nil {
		c = make(map[string]Document)
		s.colls[collection] = c
	}
	c[id] = doc

	return doc.Clone(), nil
}

// Get returns one document.
func (s *InMemoryStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}

	s.mu.RLock()
	doc, ok := s.colls[collection][id]
	s.mu.RUnlock()

	if !ok {
		return Document{}, NotFoundError{Collection: collection, ID: id}
	}
	return doc.Clone(), nil
}

// Update merges patch into the document.
func (s *InMemoryStore) Update(ctx context.Context, collection, id string, patch map[string]any) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.colls[collection][id]
	if !ok {
		return Document{}, NotFoundError{Collection: collection, ID: id}
	}

	doc = doc.Clone()
	maps.Copy(doc.Data, cloneData(patch))
	doc.UpdatedAt = s.now()
	s.colls[collection][id] = doc

	return doc.Clone(), nil
}

// AddToSet appends the values missing from a string-list field.
func (s *InMemoryStore) AddToSet(ctx context.Context, collection, id, field string, values ...string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	values, err := setValues(field, values)
	if err != nil {
		return Document{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.colls[collection][id]
	if !ok {
		return Document{}, NotFoundError{Collection: collection, ID: id}
	}

	doc = doc.Clone()
	set := doc.Strings(field)
	for _, v := range values {
		if !slices.Contains(set, v) {
			set = append(set, v)
		}
	}
	doc.Data[field] = set
	doc.UpdatedAt = s.now()
	s.colls[collection][id] = doc

	return doc.Clone(), nil
}

// Delete removes one document.
func (s *InMemoryStore) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.colls[collection][id]; !ok {
		return NotFoundError{Collection: collection, ID: id}
	}
	delete(s.colls[collection], id)
	return nil
}

// List returns the requested page of matching documents.
func (s *InMemoryStore) List(ctx context.Context, collection string, q Query) ([]Document, error) {
	q, err := q.normalized()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snap := s.matching(collection, q)
	sortDocuments(snap, q)

	if q.Offset >= len(snap) {
		return nil, nil
	}
	end := min(q.Offset+q.Limit, len(snap))
	return snap[q.Offset:end], nil
}

// Count returns the number of matching documents.
func (s *InMemoryStore) Count(ctx context.Context, collection string, q Query) (int, error) {
	q, err := q.normalized()
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return len(s.matching(collection, q)), nil
}

func (s *InMemoryStore) matching(collection string, q Query) []Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Document, 0, len(s.colls[collection]))
	for _, d := range s.colls[collection] {
		if q.Match(d) {
			out = append(out, d.Clone())
		}
	}
	return out
}
