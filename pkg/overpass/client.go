package overpass

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"officeradar/pkg/request"
)

// BuildQuery renders the office search around one point. The timeout hint
// also bounds how long the interpreter itself will work on the query.
func BuildQuery(lat, lon float64, radiusM int) string {
	return fmt.Sprintf(`[out:json][timeout:25];
( nwr(around:%d,%.6f,%.6f)["office"];
  nwr(around:%d,%.6f,%.6f)["building"="office"]; );
out center tags;`,
		radiusM, lat, lon, radiusM, lat, lon)
}

// Client posts Overpass QL to each configured endpoint in order until one
// answers. Per-endpoint retries (429, 5xx, network) live in the request
// client; any other failure moves on to the next endpoint.
type Client struct {
	urls []string
	http *request.Client
}

// New creates a client over the given endpoint list.
func New(urls []string, httpClient *request.Client) *Client {
	return &Client{urls: urls, http: httpClient}
}

// FetchElements executes the query and returns the raw elements.
func (c *Client) FetchElements(ctx context.Context, query string) ([]Element, error) {
	if len(c.urls) == 0 {
		return nil, errors.New("no overpass endpoints configured")
	}

	var lastErr error
	for _, u := range c.urls {
		body, err := c.http.Post(ctx, u, []byte(query), "text/plain")
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Warn("Overpass endpoint failed", "url", u, "error", err)
			lastErr = fmt.Errorf("overpass %s: %w", u, err)
			continue
		}

		var resp Response
		if err := json.Unmarshal(body, &resp); err != nil {
			slog.Warn("Overpass response unreadable", "url", u, "error", err)
			lastErr = fmt.Errorf("overpass %s: bad response: %w", u, err)
			continue
		}
		return resp.Elements, nil
	}
	return nil, lastErr
}
