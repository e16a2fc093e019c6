package docstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used by tests and local development.
// Documents are deep-copied on the way in and out, so callers never share
// mutable state with the store.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]Document
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]Document),
	}
}

func (s *MemoryStore) Query(_ context.Context, collection string, filters map[string]any, limit int) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Document
	for _, doc := range s.collections[collection] {
		if !matches(doc, filters) {
			continue
		}
		out = append(out, cloneDoc(doc))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, collection, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneDoc(doc), nil
}

func (s *MemoryStore) Create(_ context.Context, collection string, data Document) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := data.String("id")
	if id == "" {
		id = uuid.NewString()
	}

	stored := cloneDoc(data)
	stored["id"] = id

	if s.collections[collection] == nil {
		s.collections[collection] = make(map[string]Document)
	}
	s.collections[collection][id] = stored
	return cloneDoc(stored), nil
}

func (s *MemoryStore) Update(_ context.Context, collection, id string, patch Document) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	for k, v := range cloneDoc(patch) {
		doc[k] = v
	}
	return cloneDoc(doc), nil
}

func (s *MemoryStore) UpdateIf(_ context.Context, collection, id string, patch Document, conditions map[string]any) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	if !matches(doc, conditions) {
		return nil, ErrConditionFailed
	}
	for k, v := range cloneDoc(patch) {
		doc[k] = v
	}
	return cloneDoc(doc), nil
}

func (s *MemoryStore) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[collection][id]; !ok {
		return ErrNotFound
	}
	delete(s.collections[collection], id)
	return nil
}

// ── helpers ───────────────────────────────────────────────────────────────────

// matches compares filter values against document fields on their printed
// form, mirroring the text comparison the other backends perform.
func matches(doc Document, filters map[string]any) bool {
	for k, want := range filters {
		got, ok := doc[k]
		if !ok {
			return false
		}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func cloneDoc(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case Document:
		return cloneDoc(val)
	case map[string]any:
		return map[string]any(cloneDoc(val))
	case []string:
		out := make([]string, len(val))
		copy(out, val)
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
