// Package sheets reads the host and customer tables from spreadsheet CSV exports.
package sheets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/storeit/dashboard/internal/logger"
	"github.com/storeit/dashboard/internal/models"
)

// Client fetches the host and customer tabs over HTTP.
type Client struct {
	httpClient  *http.Client
	hostURL     string
	customerURL string
	log         *logger.Logger
}

// NewClient creates a Client for the given export URLs.
func NewClient(hostURL, customerURL string, timeout time.Duration, log *logger.Logger) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		hostURL:     hostURL,
		customerURL: customerURL,
		log:         log.WithComponent("sheets"),
	}
}

// Name identifies the source in logs and health output.
func (c *Client) Name() string {
	return "sheets"
}

// FetchHosts downloads and parses the host table.
func (c *Client) FetchHosts(ctx context.Context) ([]models.HostRecord, error) {
	body, err := c.get(ctx, http.MethodGet, c.hostURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch host table: %w", err)
	}
	defer body.Close()

	hosts, err := ParseHosts(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse host table: %w", err)
	}

	c.log.Debug("Fetched host table", map[string]interface{}{
		"rows": len(hosts),
	})
	return hosts, nil
}

// FetchCustomers downloads and parses the customer table.
func (c *Client) FetchCustomers(ctx context.Context) ([]models.CustomerRecord, error) {
	body, err := c.get(ctx, http.MethodGet, c.customerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch customer table: %w", err)
	}
	defer body.Close()

	customers, err := ParseCustomers(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse customer table: %w", err)
	}

	c.log.Debug("Fetched customer table", map[string]interface{}{
		"rows": len(customers),
	})
	return customers, nil
}

// Ping checks that the host export is reachable with a HEAD request.
func (c *Client) Ping(ctx context.Context) error {
	body, err := c.get(ctx, http.MethodHead, c.hostURL)
	if err != nil {
		return err
	}
	return body.Close()
}

func (c *Client) get(ctx context.Context, method, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "text/csv")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return resp.Body, nil
}
