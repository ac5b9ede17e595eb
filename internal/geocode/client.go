package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const searchPath = "/api/common/elastic/search"

// Result is one address match from a postal code search.
type Result struct {
	SearchValue string `json:"SEARCHVAL"`
	BlockNumber string `json:"BLK_NO"`
	RoadName    string `json:"ROAD_NAME"`
	Building    string `json:"BUILDING"`
	Address     string `json:"ADDRESS"`
	Postal      string `json:"POSTAL"`
	Latitude    string `json:"LATITUDE"`
	Longitude   string `json:"LONGITUDE"`
}

type searchResponse struct {
	Found   int      `json:"found"`
	Results []Result `json:"results"`
}

// Client performs authenticated address searches.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     *TokenManager
}

// NewClient creates a Client. Requests share one http.Client with the given timeout.
func NewClient(baseURL, email, password string, timeout time.Duration) *Client {
	httpClient := &http.Client{Timeout: timeout}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     NewTokenManager(httpClient, baseURL, email, password),
	}
}

// SearchPostal returns the address results for a postal code. An empty slice means no match.
func (c *Client) SearchPostal(ctx context.Context, postalCode string) ([]Result, error) {
	resp, err := c.search(ctx, postalCode)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// A rejected token is refreshed once before giving up.
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		c.tokens.Invalidate()
		resp, err = c.search(ctx, postalCode)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("address search failed: unexpected status %d", resp.StatusCode)
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode address search: %w", err)
	}
	if sr.Results == nil {
		return []Result{}, nil
	}
	return sr.Results, nil
}

func (c *Client) search(ctx context.Context, postalCode string) (*http.Response, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("obtain token: %w", err)
	}

	query := url.Values{}
	query.Set("searchVal", postalCode)
	query.Set("returnGeom", "Y")
	query.Set("getAddrDetails", "Y")
	query.Set("pageNum", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+searchPath+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("address search failed: %w", err)
	}
	return resp, nil
}
