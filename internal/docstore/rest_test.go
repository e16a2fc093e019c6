package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

type recordedRequest struct {
	method string
	path   string
	query  string
	prefer string
	apiKey string
	body   []Document
}

// newRESTServer runs a stub API that records each request and replies with the
// queued responses in order.
func newRESTServer(t *testing.T, responses ...func(w http.ResponseWriter)) (*RESTStore, *[]recordedRequest) {
	t.Helper()
	var requests []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.RawQuery,
			prefer: r.Header.Get("Prefer"),
			apiKey: r.Header.Get("apikey"),
		}
		if r.Body != nil {
			var doc Document
			if err := json.NewDecoder(r.Body).Decode(&doc); err == nil {
				rec.body = []Document{doc}
			}
		}
		requests = append(requests, rec)

		if len(responses) == 0 {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte("[]"))
			return
		}
		next := responses[0]
		responses = responses[1:]
		next(w)
	}))
	t.Cleanup(srv.Close)
	return NewRESTStore(srv.URL, "test-key", zerolog.Nop()), &requests
}

func respondRows(rows ...Document) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(rows)
	}
}

func respondStatus(code int) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.WriteHeader(code)
	}
}

func TestRESTStoreQueryRendersFilters(t *testing.T) {
	store, requests := newRESTServer(t, respondRows(
		Document{"id": "1", "status": "SUBMITTED"},
	))

	docs, err := store.Query(context.Background(), "applications", map[string]any{
		"status":       "SUBMITTED",
		"applicant_id": "a-1",
	}, 5)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(docs) != 1 || docs[0].String("id") != "1" {
		t.Fatalf("unexpected rows: %v", docs)
	}

	req := (*requests)[0]
	if req.method != http.MethodGet || req.path != "/applications" {
		t.Fatalf("unexpected request %s %s", req.method, req.path)
	}
	// Filter keys render in sorted order, so the query string is deterministic.
	want := "select=*&applicant_id=eq.a-1&status=eq.SUBMITTED&limit=5"
	if req.query != want {
		t.Fatalf("expected query %q, got %q", want, req.query)
	}
	if req.apiKey != "test-key" {
		t.Fatalf("expected apikey header, got %q", req.apiKey)
	}
}

func TestRESTStoreGet(t *testing.T) {
	store, requests := newRESTServer(t,
		respondRows(Document{"id": "abc", "name": "x"}),
		respondRows(),
	)

	doc, err := store.Get(context.Background(), "applications", "abc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc.String("name") != "x" {
		t.Fatalf("unexpected document: %v", doc)
	}
	if q := (*requests)[0].query; q != "id=eq.abc&select=*" {
		t.Fatalf("unexpected query %q", q)
	}

	// An empty result set maps to ErrNotFound.
	if _, err := store.Get(context.Background(), "applications", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRESTStoreCreate(t *testing.T) {
	store, requests := newRESTServer(t, respondRows(Document{"id": "new-id", "name": "x"}))

	created, err := store.Create(context.Background(), "applications", Document{"name": "x"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.String("id") != "new-id" {
		t.Fatalf("expected server-assigned id, got %q", created.String("id"))
	}

	req := (*requests)[0]
	if req.method != http.MethodPost {
		t.Fatalf("expected POST, got %s", req.method)
	}
	if req.prefer != "return=representation" {
		t.Fatalf("expected Prefer return=representation, got %q", req.prefer)
	}
	if len(req.body) != 1 || req.body[0].String("name") != "x" {
		t.Fatalf("unexpected request body: %v", req.body)
	}
}

func TestRESTStoreUpdateIf(t *testing.T) {
	store, requests := newRESTServer(t,
		respondRows(Document{"id": "abc", "version": float64(2)}),
		respondRows(),
	)

	doc, err := store.UpdateIf(context.Background(), "applications", "abc",
		Document{"version": 2}, map[string]any{"version": 1})
	if err != nil {
		t.Fatalf("conditional update: %v", err)
	}
	if doc.Int("version") != 2 {
		t.Fatalf("unexpected version: %d", doc.Int("version"))
	}
	// The condition rides along as an extra filter on the PATCH.
	if q := (*requests)[0].query; q != "id=eq.abc&version=eq.1" {
		t.Fatalf("unexpected query %q", q)
	}

	// Zero affected rows means a concurrent write won the condition.
	if _, err := store.UpdateIf(context.Background(), "applications", "abc",
		Document{"version": 2}, map[string]any{"version": 1}); !errors.Is(err, ErrConditionFailed) {
		t.Fatalf("expected ErrConditionFailed, got %v", err)
	}
}

func TestRESTStoreDelete(t *testing.T) {
	store, _ := newRESTServer(t,
		respondRows(Document{"id": "abc"}),
		respondRows(),
	)

	if err := store.Delete(context.Background(), "applications", "abc"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(context.Background(), "applications", "abc"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for deleted row, got %v", err)
	}
}

func TestRESTStoreErrorStatuses(t *testing.T) {
	store, _ := newRESTServer(t,
		respondStatus(http.StatusNotFound),
		respondStatus(http.StatusInternalServerError),
	)

	if _, err := store.Query(context.Background(), "applications", nil, 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for 404, got %v", err)
	}
	_, err := store.Query(context.Background(), "applications", nil, 0)
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected opaque error for 500, got %v", err)
	}
}
