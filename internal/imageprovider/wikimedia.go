package imageprovider

import (
	"cmp"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"runtime"
	"slices"
	"strconv"
	"strings"

	"github.com/antonholmquist/jason"

	"github.com/wanderlist/imagebackfill/internal/errors"
	"github.com/wanderlist/imagebackfill/internal/httpclient"
)

const (
	wikiProviderName = "wikimedia"

	// DefaultWikimediaBaseURL is the English Wikipedia action API endpoint.
	DefaultWikimediaBaseURL = "https://en.wikipedia.org/w/api.php"

	// DefaultThumbSize is the requested thumbnail width in pixels.
	DefaultThumbSize = 1024

	// User-Agent parts following the Wikimedia robot policy
	// https://foundation.wikimedia.org/wiki/Policy:Wikimedia_Foundation_User-Agent_Policy
	userAgentName    = "imagebackfill"
	userAgentContact = "https://github.com/wanderlist/imagebackfill"
	userAgentLibrary = "Go-HTTP-Client"
)

// WikimediaSearcher finds lead images of articles matching a full-text search.
type WikimediaSearcher struct {
	client    *httpclient.Client
	baseURL   string
	thumbSize int
	userAgent string
}

// NewWikimediaSearcher creates a Wikimedia searcher. appVersion goes into the
// User-Agent header.
func NewWikimediaSearcher(client *httpclient.Client, baseURL string, thumbSize int, appVersion string) *WikimediaSearcher {
	if baseURL == "" {
		baseURL = DefaultWikimediaBaseURL
	}
	if thumbSize <= 0 {
		thumbSize = DefaultThumbSize
	}
	return &WikimediaSearcher{
		client:    client,
		baseURL:   baseURL,
		thumbSize: thumbSize,
		userAgent: buildUserAgent(appVersion),
	}
}

// buildUserAgent formats <client>/<version> (<contact>) <library>/<go version>.
func buildUserAgent(appVersion string) string {
	if appVersion == "" {
		appVersion = "unknown"
	}
	return fmt.Sprintf("%s/%s (%s) %s/%s",
		userAgentName, appVersion, userAgentContact, userAgentLibrary, runtime.Version())
}

// Name implements Searcher.
func (w *WikimediaSearcher) Name() string { return wikiProviderName }

// Search implements Searcher. Pages without any image are dropped; results
// keep the search ranking.
func (w *WikimediaSearcher) Search(ctx context.Context, query string, perPage int) ([]ImageCandidate, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("format", "json")
	params.Set("formatversion", "2")
	params.Set("generator", "search")
	params.Set("gsrsearch", query)
	params.Set("gsrlimit", strconv.Itoa(perPage))
	params.Set("gsrnamespace", "0")
	params.Set("prop", "pageimages|info")
	params.Set("inprop", "url")
	params.Set("piprop", "thumbnail|original")
	params.Set("pithumbsize", strconv.Itoa(w.thumbSize))

	header := http.Header{}
	header.Set("User-Agent", w.userAgent)
	header.Set("Accept", "application/json")

	resp, err := w.client.Request(ctx, http.MethodGet, w.baseURL+"?"+params.Encode(), "", nil, header)
	if err != nil {
		return nil, err
	}
	defer httpclient.DrainAndClose(resp)

	if err := httpclient.CheckStatus(resp); err != nil {
		return nil, err
	}

	body, err := jason.NewObjectFromReader(resp.Body)
	if err != nil {
		return nil, w.responseError("malformed search response", err)
	}

	if apiErr, errCheck := body.GetObject("error"); errCheck == nil {
		code, _ := apiErr.GetString("code")
		info, _ := apiErr.GetString("info")
		return nil, errors.Newf("wikimedia API error %s: %s", code, info).
			Component("imageprovider").
			Category(errors.CategoryImageProvider).
			Context("provider", wikiProviderName).
			Context("api_error_code", code).
			Build()
	}

	// A search without hits has no "query" member at all.
	queryObj, err := body.GetObject("query")
	if err != nil {
		return nil, nil
	}
	pages, err := queryObj.GetObjectArray("pages")
	if err != nil {
		return nil, w.responseError("query has no pages array", err)
	}

	type rankedPage struct {
		index int64
		cand  ImageCandidate
	}
	ranked := make([]rankedPage, 0, len(pages))
	for _, page := range pages {
		src, _ := page.GetString("thumbnail", "source")
		if src == "" {
			src, _ = page.GetString("original", "source")
		}
		if src == "" {
			continue
		}
		index, _ := page.GetInt64("index")
		pageURL, _ := page.GetString("fullurl")
		ranked = append(ranked, rankedPage{
			index: index,
			cand: ImageCandidate{
				SourceURL: src,
				Provider:  wikiProviderName,
				PageURL:   pageURL,
			},
		})
	}
	slices.SortStableFunc(ranked, func(a, b rankedPage) int { return cmp.Compare(a.index, b.index) })

	candidates := make([]ImageCandidate, len(ranked))
	for i := range ranked {
		candidates[i] = ranked[i].cand
	}
	return candidates, nil
}

func (w *WikimediaSearcher) responseError(msg string, err error) error {
	return errors.Newf("wikimedia: %s: %w", msg, err).
		Component("imageprovider").
		Category(errors.CategoryImageProvider).
		Context("provider", wikiProviderName).
		Context("endpoint", strings.TrimSuffix(w.baseURL, "/")).
		Build()
}
