package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bottany/registry-engine/internal/httpclient"
)

// apiFetcher fetches registry entries from an HTTP endpoint.
type apiFetcher struct {
	endpoint string
	client   httpclient.Client
}

// NewAPIFetcher creates a fetcher for an HTTP source. A zero timeout
// uses the client default.
func NewAPIFetcher(endpoint string, timeout time.Duration) Fetcher {
	return &apiFetcher{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   httpclient.NewDefaultClient(timeout),
	}
}

// Fetch retrieves the entries behind one selector from the endpoint.
func (f *apiFetcher) Fetch(ctx context.Context, selector string) ([]json.RawMessage, error) {
	requestURL := f.endpoint + "/" + url.PathEscape(selector)

	body, err := f.client.Get(ctx, requestURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", requestURL, err)
	}

	entries, err := decodeEntryList(body)
	if err != nil {
		return nil, fmt.Errorf("invalid payload from %s: %w", requestURL, err)
	}
	return entries, nil
}
