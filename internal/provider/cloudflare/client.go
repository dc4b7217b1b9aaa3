package cloudflare

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/evanofslack/ddns-sync/internal/config"
	"github.com/evanofslack/ddns-sync/internal/metrics"
	"github.com/evanofslack/ddns-sync/internal/provider"
)

type Httper interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client speaks the two record endpoints of the Cloudflare v4 API directly so
// the success flag and error messages of a write are visible to the caller.
type Client struct {
	baseURL string
	token   string
	http    Httper
	metrics *metrics.Metrics
}

func New(cfg config.Cloudflare, httpClient Httper, metrics *metrics.Metrics) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("cloudflare API token required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("cloudflare base url required")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http:    httpClient,
		metrics: metrics,
	}, nil
}

func (c *Client) FetchRecords(ctx context.Context, zoneID string) ([]provider.RecordState, error) {
	slog.Debug("Getting A records", "zone", zoneID)
	start := time.Now()

	endpoint := fmt.Sprintf("%s/zones/%s/dns_records?type=%s", c.baseURL, url.PathEscape(zoneID), provider.TypeA)
	var resp listResponse
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		c.metrics.IncProviderRequest("read", zoneID, false)
		return nil, fmt.Errorf("get records for zone %s: %w", zoneID, err)
	}
	c.metrics.IncProviderRequest("read", zoneID, true)

	if resp.Result == nil {
		return nil, provider.ErrEmptyResult
	}

	records := make([]provider.RecordState, 0, len(resp.Result))
	for _, r := range resp.Result {
		records = append(records, provider.RecordState{ID: r.ID, Content: r.Content})
	}
	slog.Debug("Retrieved A records", "zone", zoneID, "count", len(records), "duration", time.Since(start))
	return records, nil
}

func (c *Client) UpdateRecord(ctx context.Context, zoneID, recordID string, update provider.RecordUpdate) error {
	if recordID == "" {
		return provider.ErrMissingRecordID
	}
	slog.Debug("Patching record", "zone", zoneID, "record", recordID, "content", update.Content)
	start := time.Now()

	endpoint := fmt.Sprintf("%s/zones/%s/dns_records/%s", c.baseURL, url.PathEscape(zoneID), url.PathEscape(recordID))
	body := patchRequest{
		Type:    update.Type,
		Name:    update.Name,
		Content: update.Content,
		TTL:     update.TTL,
	}
	var resp patchResponse
	if err := c.do(ctx, http.MethodPatch, endpoint, body, &resp); err != nil {
		c.metrics.IncProviderRequest("update", zoneID, false)
		return fmt.Errorf("patch record %s: %w", recordID, err)
	}

	if !resp.Success {
		c.metrics.IncProviderRequest("update", zoneID, false)
		messages := make([]string, 0, len(resp.Errors))
		for _, m := range resp.Errors {
			messages = append(messages, m.Message)
		}
		return &provider.RejectedError{Messages: messages}
	}

	c.metrics.IncProviderRequest("update", zoneID, true)
	slog.Debug("Patched record", "zone", zoneID, "record", recordID, "duration", time.Since(start))
	return nil
}

// do sends an authenticated request and decodes a 2xx JSON body into out.
// Transport errors, other statuses and undecodable bodies all wrap
// provider.ErrProviderUnreachable.
func (c *Client) do(ctx context.Context, method, endpoint string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", provider.ErrProviderUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: cloudflare api request, status=%d", provider.ErrProviderUnreachable, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: parse cloudflare response, err=%w", provider.ErrProviderUnreachable, err)
	}
	return nil
}
