// Package wikidata fetches company facts (employee counts, market
// capitalization) for offices that carry a wikidata tag.
package wikidata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"officeradar/pkg/model"
	"officeradar/pkg/request"
)

const (
	defaultAPIEndpoint = "https://www.wikidata.org/w/api.php"

	// chunkSize bounds the ids per wbgetentities request.
	chunkSize = 30
)

// Client fetches entity claims in chunks, sleeping between chunks to
// stay polite toward the public API.
type Client struct {
	request     *request.Client
	APIEndpoint string
	Throttle    time.Duration
}

// NewClient creates a new Wikidata client. An empty endpoint selects the
// public API.
func NewClient(r *request.Client, endpoint string, throttle time.Duration) *Client {
	if endpoint == "" {
		endpoint = defaultAPIEndpoint
	}
	return &Client{
		request:     r,
		APIEndpoint: endpoint,
		Throttle:    throttle,
	}
}

// FetchFacts retrieves claim-derived facts for the given entity ids.
// Every requested id gets an entry, even when the entity is missing or
// carries no usable claim, so callers can clear stale values.
func (c *Client) FetchFacts(ctx context.Context, ids []string) (map[string]model.WikidataFacts, error) {
	facts := make(map[string]model.WikidataFacts, len(ids))
	if len(ids) == 0 {
		return facts, nil
	}

	// Sort a copy so chunk boundaries are deterministic.
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)

	for start := 0; start < len(sorted); start += chunkSize {
		if start > 0 {
			if err := request.Sleep(ctx, c.Throttle); err != nil {
				return nil, err
			}
		}
		chunk := sorted[start:min(start+chunkSize, len(sorted))]
		if err := c.fetchChunk(ctx, chunk, facts); err != nil {
			return nil, err
		}
	}
	return facts, nil
}

func (c *Client) fetchChunk(ctx context.Context, chunk []string, facts map[string]model.WikidataFacts) error {
	u, err := url.Parse(c.APIEndpoint)
	if err != nil {
		return err
	}
	q := u.Query()
	q.Add("action", "wbgetentities")
	q.Add("format", "json")
	q.Add("ids", strings.Join(chunk, "|"))
	q.Add("props", "claims")
	u.RawQuery = q.Encode()

	body, err := c.request.Get(ctx, u.String())
	if err != nil {
		return err
	}

	var result entitiesResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to decode json: %w", err)
	}
	if result.Error != nil {
		return fmt.Errorf("wikidata api: %s: %s", result.Error.Code, result.Error.Info)
	}

	for _, id := range chunk {
		facts[id] = evaluateEntity(result.Entities[id])
	}
	return nil
}

// -- Internal parsing structs --

type entitiesResponse struct {
	Entities map[string]entity `json:"entities"`
	Error    *apiError         `json:"error"`
}

type apiError struct {
	Code string `json:"code"`
	Info string `json:"info"`
}

type entity struct {
	Claims map[string][]claim `json:"claims"`
}

type claim struct {
	Mainsnak   snak              `json:"mainsnak"`
	Rank       string            `json:"rank"`
	Qualifiers map[string][]snak `json:"qualifiers"`
}

type snak struct {
	Snaktype  string     `json:"snaktype"`
	Datavalue *datavalue `json:"datavalue"`
}

type datavalue struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

type quantityValue struct {
	Amount string `json:"amount"`
	Unit   string `json:"unit"`
}

type timeValue struct {
	Time string `json:"time"`
}
