package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// RESTStore talks to a PostgREST-style document API over HTTP. Filters are
// rendered as `field=eq.value` query parameters and every mutation asks the
// server to return the affected rows.
type RESTStore struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewRESTStore creates a store client for the given API base URL.
func NewRESTStore(baseURL, apiKey string, log zerolog.Logger) *RESTStore {
	if !strings.HasPrefix(baseURL, "http") {
		baseURL = "https://" + baseURL
	}
	return &RESTStore{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log,
	}
}

func (s *RESTStore) Query(ctx context.Context, collection string, filters map[string]any, limit int) ([]Document, error) {
	endpoint := "/" + collection + "?select=*" + renderFilters(filters)
	if limit > 0 {
		endpoint += fmt.Sprintf("&limit=%d", limit)
	}

	body, err := s.request(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return decodeRows(body)
}

func (s *RESTStore) Get(ctx context.Context, collection, id string) (Document, error) {
	endpoint := fmt.Sprintf("/%s?id=eq.%s&select=*", collection, url.QueryEscape(id))
	body, err := s.request(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows(body)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

func (s *RESTStore) Create(ctx context.Context, collection string, data Document) (Document, error) {
	body, err := s.request(ctx, http.MethodPost, "/"+collection, data)
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows(body)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("docstore: create returned no representation")
	}
	return rows[0], nil
}

func (s *RESTStore) Update(ctx context.Context, collection, id string, patch Document) (Document, error) {
	endpoint := fmt.Sprintf("/%s?id=eq.%s", collection, url.QueryEscape(id))
	body, err := s.request(ctx, http.MethodPatch, endpoint, patch)
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows(body)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// UpdateIf renders the conditions as additional filters on the PATCH, so the
// server applies the patch only while they still hold. Zero affected rows on
// a document we just read means the condition was lost to a concurrent write.
func (s *RESTStore) UpdateIf(ctx context.Context, collection, id string, patch Document, conditions map[string]any) (Document, error) {
	endpoint := fmt.Sprintf("/%s?id=eq.%s%s", collection, url.QueryEscape(id), renderFilters(conditions))
	body, err := s.request(ctx, http.MethodPatch, endpoint, patch)
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows(body)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrConditionFailed
	}
	return rows[0], nil
}

func (s *RESTStore) Delete(ctx context.Context, collection, id string) error {
	endpoint := fmt.Sprintf("/%s?id=eq.%s", collection, url.QueryEscape(id))
	body, err := s.request(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}
	rows, err := decodeRows(body)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping checks that the API root is reachable.
func (s *RESTStore) Ping(ctx context.Context) error {
	_, err := s.request(ctx, http.MethodGet, "/", nil)
	return err
}

// ── HTTP plumbing ─────────────────────────────────────────────────────────────

func (s *RESTStore) request(ctx context.Context, method, endpoint string, body any) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("docstore: marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("docstore: build request: %w", err)
	}
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("docstore: %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("docstore: read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode >= 400 {
		s.log.Warn().
			Str("method", method).
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Msg("docstore: request failed")
		return nil, fmt.Errorf("docstore: %s %s: status %d", method, endpoint, resp.StatusCode)
	}
	return respBody, nil
}

func decodeRows(body []byte) ([]Document, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	var rows []Document
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("docstore: decode response: %w", err)
	}
	return rows, nil
}

// renderFilters produces `&field=eq.value` pairs in deterministic key order.
func renderFilters(filters map[string]any) string {
	if len(filters) == 0 {
		return ""
	}
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString("&")
		b.WriteString(url.QueryEscape(k))
		b.WriteString("=eq.")
		b.WriteString(url.QueryEscape(fmt.Sprint(filters[k])))
	}
	return b.String()
}
