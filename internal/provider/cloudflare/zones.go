package cloudflare

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	cf "github.com/cloudflare/cloudflare-go"
	"github.com/evanofslack/ddns-sync/internal/config"
)

const tokenActive = "active"

// Zones covers the account-level calls that go through the Cloudflare SDK:
// looking up zone ids by name and verifying the API token.
type Zones struct {
	api *cf.API
}

func NewZones(cfg config.Cloudflare, httpClient *http.Client) (*Zones, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("cloudflare API token required")
	}

	opts := []cf.Option{}
	if httpClient != nil {
		opts = append(opts, cf.HTTPClient(httpClient))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, cf.BaseURL(cfg.BaseURL))
	}

	api, err := cf.NewWithAPIToken(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Cloudflare client: %w", err)
	}
	return &Zones{api: api}, nil
}

// ZoneID looks up the id of the zone named name. The SDK call takes no
// context, so ctx is only checked before the request is sent.
func (z *Zones) ZoneID(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("get zone ID for %s: %w", name, err)
	}
	slog.Info("Resolving zone id", "zone", name)
	start := time.Now()

	id, err := z.api.ZoneIDByName(name)
	if err != nil {
		return "", fmt.Errorf("failed to get zone ID for %s: %w", name, err)
	}
	slog.Debug("Resolved zone id", "zone", name, "id", id, "duration", time.Since(start))
	return id, nil
}

// VerifyToken checks that the configured token exists and is active.
func (z *Zones) VerifyToken(ctx context.Context) (string, error) {
	result, err := z.api.VerifyAPIToken(ctx)
	if err != nil {
		return "", fmt.Errorf("unable to verify api token: %w", err)
	}
	if result.Status != tokenActive {
		return result.Status, fmt.Errorf("expected api token status to be %q; got %q", tokenActive, result.Status)
	}
	return result.Status, nil
}
