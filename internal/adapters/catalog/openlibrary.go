package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"shelfsync/internal/core/domain/ports"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Ensure OpenLibraryClient implements Catalog
var _ ports.Catalog = (*OpenLibraryClient)(nil)

type OpenLibraryClient struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	limiter    *rate.Limiter
}

// NewOpenLibraryClient creates a catalog client allowing rps requests per second.
func NewOpenLibraryClient(httpClient *http.Client, baseURL, userAgent string, rps float64) *OpenLibraryClient {
	return &OpenLibraryClient{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  userAgent,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// LookupISBN fetches /isbn/{isbn}.json.
func (c *OpenLibraryClient) LookupISBN(ctx context.Context, isbn string) (any, error) {
	return c.get(ctx, "isbn/"+url.PathEscape(isbn), nil)
}

// Search fetches /search.json with the given query parameters.
func (c *OpenLibraryClient) Search(ctx context.Context, params url.Values) (any, error) {
	return c.get(ctx, "search", params)
}

func (c *OpenLibraryClient) get(ctx context.Context, path string, params url.Values) (any, error) {
	u := fmt.Sprintf("%s/%s.json", c.baseURL, path)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	log.Debug().Str("url", u).Msg("catalog query")

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog request %s failed: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog returned status %d for %s", resp.StatusCode, u)
	}

	var body any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode catalog response: %w", err)
	}
	log.Debug().Str("url", u).Dur("took", time.Since(start)).Msg("catalog response")
	return body, nil
}
