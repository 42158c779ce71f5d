package datastore

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanderlist/imagebackfill/internal/errors"
	"github.com/wanderlist/imagebackfill/internal/httpclient"
)

const testProjectURL = "https://project.supabase.co"

func setupRESTStore(t *testing.T, pageSize int) (*RESTStore, *httpmock.MockTransport) {
	t.Helper()
	mock := httpmock.NewMockTransport()
	client := httpclient.New(&httpclient.Config{Transport: mock})
	t.Cleanup(client.Close)
	return NewRESTStore(client, testProjectURL, "service-key", pageSize), mock
}

func TestRESTStore_ListRows(t *testing.T) {
	t.Parallel()
	store, mock := setupRESTStore(t, 100)

	mock.RegisterResponder(http.MethodGet, testProjectURL+"/rest/v1/neighborhoods",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "service-key", req.Header.Get("apikey"))
			assert.Equal(t, "Bearer service-key", req.Header.Get("Authorization"))

			q := req.URL.Query()
			assert.Equal(t, "id,name,image_url", q.Get("select"))
			assert.Equal(t, "(image_url.is.null,image_url.eq.)", q.Get("or"))
			assert.Equal(t, "id.asc", q.Get("order"))

			return httpmock.NewStringResponse(http.StatusOK,
				`[{"id":1,"name":"Fells Point","image_url":null},{"id":"b7","name":null,"image_url":""}]`), nil
		})

	rows, err := store.ListRows(t.Context(), "neighborhoods")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, Row{ID: "1", Name: "Fells Point"}, rows[0])
	assert.Equal(t, "b7", rows[1].ID)
	assert.Empty(t, rows[1].Name)
}

func TestRESTStore_ListRowsPaging(t *testing.T) {
	t.Parallel()
	store, mock := setupRESTStore(t, 2)

	mock.RegisterResponder(http.MethodGet, testProjectURL+"/rest/v1/parks",
		func(req *http.Request) (*http.Response, error) {
			offset, _ := strconv.Atoi(req.URL.Query().Get("offset"))
			var page []map[string]any
			for id := offset + 1; id <= min(offset+2, 5); id++ {
				page = append(page, map[string]any{"id": id, "name": fmt.Sprintf("Park %d", id)})
			}
			return httpmock.NewJsonResponse(http.StatusOK, page)
		})

	rows, err := store.ListRows(t.Context(), "parks")
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "5", rows[4].ID)
	assert.Equal(t, 3, mock.GetTotalCallCount())
}

func TestRESTStore_ListRowsHTTPError(t *testing.T) {
	t.Parallel()
	store, mock := setupRESTStore(t, 100)

	mock.RegisterResponder(http.MethodGet, testProjectURL+"/rest/v1/neighborhoods",
		httpmock.NewStringResponder(http.StatusNotFound, `{"message":"relation does not exist"}`))

	_, err := store.ListRows(t.Context(), "neighborhoods")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryRowFetch))

	var se *httpclient.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
}

func TestRESTStore_PatchImageURL(t *testing.T) {
	t.Parallel()
	store, mock := setupRESTStore(t, 100)

	mock.RegisterResponder(http.MethodPatch, testProjectURL+"/rest/v1/neighborhoods",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "eq.1", req.URL.Query().Get("id"))
			assert.Equal(t, "return=representation", req.Header.Get("Prefer"))

			var body map[string]string
			assert.NoError(t, json.NewDecoder(req.Body).Decode(&body))
			assert.Equal(t, "https://cdn.example/n/fells_point_1.jpg", body["image_url"])

			return httpmock.NewStringResponse(http.StatusOK, `[{"id":1}]`), nil
		})

	require.NoError(t, store.PatchImageURL(t.Context(), "neighborhoods", "1", "https://cdn.example/n/fells_point_1.jpg"))
}

func TestRESTStore_PatchMissingRow(t *testing.T) {
	t.Parallel()
	store, mock := setupRESTStore(t, 100)

	mock.RegisterResponder(http.MethodPatch, testProjectURL+"/rest/v1/neighborhoods",
		httpmock.NewStringResponder(http.StatusOK, `[]`))

	err := store.PatchImageURL(t.Context(), "neighborhoods", "42", "https://cdn.example/x.jpg")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRowNotFound)
	assert.True(t, errors.IsCategory(err, errors.CategoryRowUpdate))
}

func TestDecodeID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{`1`, "1", false},
		{`12345678901234`, "12345678901234", false},
		{`"9b2c"`, "9b2c", false},
		{`null`, "", true},
		{``, "", true},
	}
	for _, tt := range tests {
		got, err := decodeID(json.RawMessage(tt.raw))
		if tt.wantErr {
			assert.Error(t, err, tt.raw)
			continue
		}
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got)
	}
}
