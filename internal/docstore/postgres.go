package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// PostgresStore keeps each collection in its own table of shape
// (id uuid primary key, doc jsonb). Filters compile to doc->>'field'
// predicates, so all comparison happens on the JSON text form.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

var collectionNameRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// NewPostgresStore connects a pgx pool to the given DSN.
func NewPostgresStore(ctx context.Context, dsn string, log zerolog.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("docstore: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("docstore: ping postgres: %w", err)
	}
	return &PostgresStore{pool: pool, log: log}, nil
}

// EnsureCollections creates the backing table for each named collection.
func (s *PostgresStore) EnsureCollections(ctx context.Context, collections ...string) error {
	for _, c := range collections {
		if err := validCollection(c); err != nil {
			return err
		}
		ddl := fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s (id uuid PRIMARY KEY, doc jsonb NOT NULL)`, c)
		if _, err := s.pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("docstore: ensure collection %s: %w", c, err)
		}
	}
	return nil
}

func (s *PostgresStore) Query(ctx context.Context, collection string, filters map[string]any, limit int) ([]Document, error) {
	if err := validCollection(collection); err != nil {
		return nil, err
	}

	where, args := compileFilters(filters, 1)
	query := fmt.Sprintf(`SELECT doc FROM %s%s`, collection, where)
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("docstore: query %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("docstore: scan %s: %w", collection, err)
		}
		doc, err := decodeDoc(raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *PostgresStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := validCollection(collection); err != nil {
		return nil, err
	}

	var raw []byte
	query := fmt.Sprintf(`SELECT doc FROM %s WHERE id = $1`, collection)
	err := s.pool.QueryRow(ctx, query, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("docstore: get %s/%s: %w", collection, id, err)
	}
	return decodeDoc(raw)
}

func (s *PostgresStore) Create(ctx context.Context, collection string, data Document) (Document, error) {
	if err := validCollection(collection); err != nil {
		return nil, err
	}

	id := data.String("id")
	if id == "" {
		id = uuid.NewString()
	}
	stored := make(Document, len(data)+1)
	for k, v := range data {
		stored[k] = v
	}
	stored["id"] = id

	raw, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("docstore: marshal %s: %w", collection, err)
	}

	query := fmt.Sprintf(`INSERT INTO %s (id, doc) VALUES ($1, $2)`, collection)
	if _, err := s.pool.Exec(ctx, query, id, raw); err != nil {
		return nil, fmt.Errorf("docstore: create %s: %w", collection, err)
	}
	return stored, nil
}

func (s *PostgresStore) Update(ctx context.Context, collection, id string, patch Document) (Document, error) {
	if err := validCollection(collection); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("docstore: marshal patch: %w", err)
	}

	var updated []byte
	query := fmt.Sprintf(`UPDATE %s SET doc = doc || $2 WHERE id = $1 RETURNING doc`, collection)
	err = s.pool.QueryRow(ctx, query, id, raw).Scan(&updated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("docstore: update %s/%s: %w", collection, id, err)
	}
	return decodeDoc(updated)
}

// UpdateIf applies the patch only while every condition still matches the
// stored document. A zero-row update on a known id is reported as
// ErrConditionFailed; callers have just read the document, so a vanished row
// and a lost condition surface the same retry path.
func (s *PostgresStore) UpdateIf(ctx context.Context, collection, id string, patch Document, conditions map[string]any) (Document, error) {
	if err := validCollection(collection); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("docstore: marshal patch: %w", err)
	}

	where, args := compileFilters(conditions, 3)
	condClause := strings.Replace(where, " WHERE ", " AND ", 1)
	query := fmt.Sprintf(
		`UPDATE %s SET doc = doc || $2 WHERE id = $1%s RETURNING doc`,
		collection, condClause)

	allArgs := append([]any{id, raw}, args...)
	var updated []byte
	err = s.pool.QueryRow(ctx, query, allArgs...).Scan(&updated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrConditionFailed
	}
	if err != nil {
		return nil, fmt.Errorf("docstore: conditional update %s/%s: %w", collection, id, err)
	}
	return decodeDoc(updated)
}

func (s *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	if err := validCollection(collection); err != nil {
		return err
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, collection)
	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("docstore: delete %s/%s: %w", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping checks pool health.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// ── helpers ───────────────────────────────────────────────────────────────────

func decodeDoc(raw []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("docstore: decode document: %w", err)
	}
	return doc, nil
}

func validCollection(name string) error {
	if !collectionNameRe.MatchString(name) {
		return fmt.Errorf("docstore: invalid collection name %q", name)
	}
	return nil
}

// compileFilters renders equality predicates over jsonb text fields, with
// placeholders numbered from firstArg. Keys are sorted for stable SQL.
func compileFilters(filters map[string]any, firstArg int) (string, []any) {
	if len(filters) == 0 {
		return "", nil
	}
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for i, k := range keys {
		clauses = append(clauses, fmt.Sprintf("doc->>'%s' = $%d", k, firstArg+i))
		args = append(args, fmt.Sprint(filters[k]))
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
