package objectstore

import (
	"context"
	"net/http"
	"strings"

	"github.com/wanderlist/imagebackfill/internal/httpclient"
)

const supabaseBackend = "supabase"

// SupabaseWriter uploads objects through the Supabase Storage REST API.
type SupabaseWriter struct {
	client     *httpclient.Client
	projectURL string
	apiKey     string
	publicBase string
}

// NewSupabaseWriter creates a writer for the project at projectURL. An empty
// publicBase defaults to the project's public object endpoint.
func NewSupabaseWriter(client *httpclient.Client, projectURL, apiKey, publicBase string) *SupabaseWriter {
	projectURL = strings.TrimRight(projectURL, "/")
	if publicBase == "" {
		publicBase = projectURL + "/storage/v1/object/public"
	}
	return &SupabaseWriter{
		client:     client,
		projectURL: projectURL,
		apiKey:     apiKey,
		publicBase: publicBase,
	}
}

// Put implements Writer.
func (s *SupabaseWriter) Put(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.apiKey)
	header.Set("apikey", s.apiKey)
	header.Set("x-upsert", "true")
	header.Set("Cache-Control", "max-age=3600")

	endpoint := s.projectURL + "/storage/v1/object/" + escapeObjectPath(bucket, key)
	resp, err := s.client.Request(ctx, http.MethodPost, endpoint, contentType, data, header)
	if err != nil {
		return "", storageError(err, supabaseBackend, bucket, key)
	}
	defer httpclient.DrainAndClose(resp)

	if err := httpclient.CheckStatus(resp); err != nil {
		return "", storageError(err, supabaseBackend, bucket, key)
	}
	return PublicURL(s.publicBase, bucket, key), nil
}
