package datastore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/wanderlist/imagebackfill/internal/httpclient"
)

// DefaultPageSize is the number of rows requested per REST page.
const DefaultPageSize = 1000

// RESTStore implements Store against a PostgREST endpoint such as Supabase's
// /rest/v1 API.
type RESTStore struct {
	client   *httpclient.Client
	baseURL  string
	apiKey   string
	pageSize int
}

// NewRESTStore creates a store for the project at baseURL (without /rest/v1).
func NewRESTStore(client *httpclient.Client, baseURL, apiKey string, pageSize int) *RESTStore {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &RESTStore{
		client:   client,
		baseURL:  baseURL,
		apiKey:   apiKey,
		pageSize: pageSize,
	}
}

// restRow mirrors Row but accepts numeric or string ids.
type restRow struct {
	ID       json.RawMessage `json:"id"`
	Name     *string         `json:"name"`
	ImageURL *string         `json:"image_url"`
}

func (s *RESTStore) tableURL(table string, query url.Values) string {
	return s.baseURL + "/rest/v1/" + url.PathEscape(table) + "?" + query.Encode()
}

func (s *RESTStore) headers() http.Header {
	h := http.Header{}
	h.Set("apikey", s.apiKey)
	h.Set("Authorization", "Bearer "+s.apiKey)
	h.Set("Accept", "application/json")
	return h
}

// ListRows pages through table and returns every row with a NULL or empty
// image_url, ordered by id.
func (s *RESTStore) ListRows(ctx context.Context, table string) ([]Row, error) {
	var out []Row
	for offset := 0; ; offset += s.pageSize {
		page, err := s.listPage(ctx, table, offset)
		if err != nil {
			return nil, fetchError(err, "rest", table)
		}
		out = append(out, page...)
		if len(page) < s.pageSize {
			return out, nil
		}
	}
}

func (s *RESTStore) listPage(ctx context.Context, table string, offset int) ([]Row, error) {
	q := url.Values{}
	q.Set("select", "id,name,image_url")
	q.Set("or", "(image_url.is.null,image_url.eq.)")
	q.Set("order", "id.asc")
	q.Set("limit", strconv.Itoa(s.pageSize))
	q.Set("offset", strconv.Itoa(offset))

	resp, err := s.client.Request(ctx, http.MethodGet, s.tableURL(table, q), "", nil, s.headers())
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	defer httpclient.DrainAndClose(resp)

	if err := httpclient.CheckStatus(resp); err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}

	var raw []restRow
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode %s rows: %w", table, err)
	}

	rows := make([]Row, 0, len(raw))
	for _, r := range raw {
		id, err := decodeID(r.ID)
		if err != nil {
			return nil, fmt.Errorf("decode %s row id: %w", table, err)
		}
		row := Row{ID: id, ImageURL: r.ImageURL}
		if r.Name != nil {
			row.Name = *r.Name
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// PatchImageURL sets image_url on the row with the given id. The updated row
// is requested back so a missing id is detected.
func (s *RESTStore) PatchImageURL(ctx context.Context, table, rowID, imageURL string) error {
	q := url.Values{}
	q.Set("id", "eq."+rowID)
	q.Set("select", "id")

	h := s.headers()
	h.Set("Prefer", "return=representation")

	resp, err := s.client.Request(ctx, http.MethodPatch, s.tableURL(table, q), "",
		map[string]string{"image_url": imageURL}, h)
	if err != nil {
		return updateError(fmt.Errorf("patch %s row %s: %w", table, rowID, err), "rest", table, rowID)
	}
	defer httpclient.DrainAndClose(resp)

	if err := httpclient.CheckStatus(resp); err != nil {
		return updateError(fmt.Errorf("patch %s row %s: %w", table, rowID, err), "rest", table, rowID)
	}

	var updated []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&updated); err != nil {
		return updateError(fmt.Errorf("decode patch response for %s row %s: %w", table, rowID, err), "rest", table, rowID)
	}
	if len(updated) == 0 {
		return updateError(fmt.Errorf("patch %s row %s: %w", table, rowID, ErrRowNotFound), "rest", table, rowID)
	}
	return nil
}

// Close is a no-op; the HTTP client is shared.
func (s *RESTStore) Close() error { return nil }

// decodeID renders a JSON id (number or string) as text.
func decodeID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", fmt.Errorf("missing id")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}
