// Package discovery finds the public IPv4 address of this host by racing
// several plaintext "what is my IP" services against each other.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/evanofslack/ddns-sync/internal/metrics"
)

const (
	defaultTimeout = 15 * time.Second
	maxBodySize    = 1 << 10
)

var (
	ErrDiscoveryFailed = errors.New("ip discovery failed")
	ErrNoSources       = errors.New("no ip sources configured")
)

// Address is a trimmed textual IPv4 address as reported by a source.
type Address string

func (a Address) String() string { return string(a) }

type Discoverer interface {
	Discover(ctx context.Context) (Address, error)
}

type Httper interface {
	Do(req *http.Request) (*http.Response, error)
}

type Options struct {
	Sources []string
	// Timeout bounds each source request so a hung source cannot stall the race.
	Timeout time.Duration
	// ValidateIPv4 rejects bodies that are not an IPv4 address.
	ValidateIPv4 bool
	// RequireOK rejects responses with a non-2xx status.
	RequireOK bool
}

type webDiscoverer struct {
	http    Httper
	opts    Options
	metrics *metrics.Metrics
}

func New(client Httper, opts Options, metrics *metrics.Metrics) (Discoverer, error) {
	if len(opts.Sources) == 0 {
		return nil, ErrNoSources
	}
	if client == nil {
		client = http.DefaultClient
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &webDiscoverer{http: client, opts: opts, metrics: metrics}, nil
}

type result struct {
	source string
	addr   Address
	err    error
}

// Discover queries every source concurrently and returns the first successful
// answer. Slower sources are abandoned; the call fails only once every source
// has failed.
func (d *webDiscoverer) Discover(ctx context.Context) (Address, error) {
	slog.Info("Getting public ip", "sources", len(d.opts.Sources))
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// buffered so losers never block after we stop reading
	results := make(chan result, len(d.opts.Sources))
	for _, src := range d.opts.Sources {
		go func(src string) {
			addr, err := d.lookup(ctx, src)
			results <- result{source: src, addr: addr, err: err}
		}(src)
	}

	var errs []error
	for range d.opts.Sources {
		select {
		case r := <-results:
			if r.err != nil {
				slog.Debug("Ip source failed", "source", r.source, "error", r.err)
				d.metrics.IncDiscovery(r.source, false)
				errs = append(errs, r.err)
				continue
			}
			d.metrics.IncDiscovery(r.source, true)
			slog.Debug("Ip source won race", "source", r.source, "address", r.addr)
			return r.addr, nil
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %w", ErrDiscoveryFailed, ctx.Err())
		}
	}
	return "", fmt.Errorf("%w: %w", ErrDiscoveryFailed, errors.Join(errs...))
}

func (d *webDiscoverer) lookup(ctx context.Context, source string) (Address, error) {
	ctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return "", fmt.Errorf("create request for %s: %w", source, err)
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := d.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("request %s: %w", source, err)
	}
	defer resp.Body.Close()

	if d.opts.RequireOK && (resp.StatusCode < 200 || resp.StatusCode > 299) {
		return "", fmt.Errorf("request %s, status=%d", source, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", fmt.Errorf("read body from %s: %w", source, err)
	}
	addr := strings.TrimSpace(string(body))

	if d.opts.ValidateIPv4 {
		ip, err := netip.ParseAddr(addr)
		if err != nil {
			return "", fmt.Errorf("parse address from %s: %w", source, err)
		}
		if !ip.Is4() {
			return "", fmt.Errorf("address %s from %s is not ipv4", addr, source)
		}
	}
	return Address(addr), nil
}
