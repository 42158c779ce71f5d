package imageprovider

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/antonholmquist/jason"

	"github.com/wanderlist/imagebackfill/internal/errors"
	"github.com/wanderlist/imagebackfill/internal/httpclient"
)

const (
	pexelsProviderName = "pexels"

	// DefaultPexelsBaseURL is the Pexels API v1 root.
	DefaultPexelsBaseURL = "https://api.pexels.com/v1"
)

// PexelsSearcher queries the Pexels photo search API.
type PexelsSearcher struct {
	client  *httpclient.Client
	baseURL string
	apiKey  string
}

// NewPexelsSearcher creates a Pexels searcher. An empty baseURL uses the public API.
func NewPexelsSearcher(client *httpclient.Client, baseURL, apiKey string) *PexelsSearcher {
	if baseURL == "" {
		baseURL = DefaultPexelsBaseURL
	}
	return &PexelsSearcher{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

// Name implements Searcher.
func (p *PexelsSearcher) Name() string { return pexelsProviderName }

// Search implements Searcher. Each photo contributes its "large" rendition,
// or the original when no large rendition is listed.
func (p *PexelsSearcher) Search(ctx context.Context, query string, perPage int) ([]ImageCandidate, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("per_page", strconv.Itoa(perPage))
	endpoint := p.baseURL + "/search?" + params.Encode()

	header := http.Header{}
	header.Set("Authorization", p.apiKey)
	header.Set("Accept", "application/json")

	resp, err := p.client.Request(ctx, http.MethodGet, endpoint, "", nil, header)
	if err != nil {
		return nil, err
	}
	defer httpclient.DrainAndClose(resp)

	if err := httpclient.CheckStatus(resp); err != nil {
		return nil, err
	}

	body, err := jason.NewObjectFromReader(resp.Body)
	if err != nil {
		return nil, errors.Newf("pexels: malformed search response: %w", err).
			Component("imageprovider").
			Category(errors.CategoryImageProvider).
			Context("provider", pexelsProviderName).
			Build()
	}

	photos, err := body.GetObjectArray("photos")
	if err != nil {
		return nil, errors.Newf("pexels: search response has no photos array: %w", err).
			Component("imageprovider").
			Category(errors.CategoryImageProvider).
			Context("provider", pexelsProviderName).
			Build()
	}

	candidates := make([]ImageCandidate, 0, len(photos))
	for _, photo := range photos {
		src, _ := photo.GetString("src", "large")
		if src == "" {
			src, _ = photo.GetString("src", "original")
		}
		if src == "" {
			continue
		}
		photographer, _ := photo.GetString("photographer")
		pageURL, _ := photo.GetString("url")
		candidates = append(candidates, ImageCandidate{
			SourceURL:    src,
			Provider:     pexelsProviderName,
			Photographer: photographer,
			PageURL:      pageURL,
		})
	}
	return candidates, nil
}
