package docstore

import (
	"context"
	"errors"
	"time"
)

// Document is a raw record as stored in a collection. Values follow JSON
// decoding conventions (numbers arrive as float64, arrays as []any).
type Document map[string]any

var (
	// ErrNotFound is returned when no document matches the given id.
	ErrNotFound = errors.New("docstore: document not found")
	// ErrConditionFailed is returned by UpdateIf when the document no longer
	// matches the supplied conditions.
	ErrConditionFailed = errors.New("docstore: update condition failed")
)

// Store is the collection-store contract. Single-document operations only;
// there are no transactions spanning documents.
type Store interface {
	// Query returns documents matching all filters (top-level field equality).
	// limit <= 0 means no limit. An empty result is not an error.
	Query(ctx context.Context, collection string, filters map[string]any, limit int) ([]Document, error)
	// Get returns the document with the given id, or ErrNotFound.
	Get(ctx context.Context, collection, id string) (Document, error)
	// Create inserts a document, assigning an id when the data carries none,
	// and returns the stored document including its id.
	Create(ctx context.Context, collection string, data Document) (Document, error)
	// Update applies a partial patch to the document with the given id and
	// returns the updated document, or ErrNotFound.
	Update(ctx context.Context, collection, id string, patch Document) (Document, error)
	// UpdateIf applies a patch only while the document still matches all
	// conditions (top-level field equality). Returns ErrConditionFailed when
	// the document exists but a condition no longer holds.
	UpdateIf(ctx context.Context, collection, id string, patch Document, conditions map[string]any) (Document, error)
	// Delete removes the document with the given id, or returns ErrNotFound.
	Delete(ctx context.Context, collection, id string) error
}

// ── Document field accessors ──────────────────────────────────────────────────

// String returns the string value at key, or "" when absent or non-string.
func (d Document) String(key string) string {
	s, _ := d[key].(string)
	return s
}

// Int returns the numeric value at key as an int. JSON decoding yields
// float64, so both forms are accepted.
func (d Document) Int(key string) int {
	switch v := d[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// Bool returns the boolean value at key, or false when absent.
func (d Document) Bool(key string) bool {
	b, _ := d[key].(bool)
	return b
}

// Time parses the RFC 3339 timestamp at key. Returns nil when the field is
// absent, null, or unparseable.
func (d Document) Time(key string) *time.Time {
	s, ok := d[key].(string)
	if !ok || s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	return &t
}

// StringSlice returns the string-array value at key. Both []string and the
// JSON-decoded []any form are accepted.
func (d Document) StringSlice(key string) []string {
	switch v := d[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
