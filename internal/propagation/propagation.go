package propagation

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/likexian/doh"
	"github.com/likexian/doh/dns"
)

const defaultTimeout = 10 * time.Second

// ResolveFunc returns the A record addresses a resolver currently serves for host.
type ResolveFunc func(ctx context.Context, host string) ([]string, error)

type Result struct {
	Domain   string
	Resolved []string
	Matches  bool
	Err      error
}

// Checker asks a public DNS-over-HTTPS resolver what each domain resolves to.
type Checker struct {
	resolve ResolveFunc
	timeout time.Duration
	close   func()
}

// New returns a Checker backed by Cloudflare's DoH endpoint.
func New() *Checker {
	c := doh.Use(doh.CloudflareProvider)
	return &Checker{
		resolve: dohResolver(c),
		timeout: defaultTimeout,
		close:   c.Close,
	}
}

// NewWithResolver builds a Checker around any resolver.
func NewWithResolver(resolve ResolveFunc, timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Checker{resolve: resolve, timeout: timeout}
}

// Check resolves every domain concurrently and reports whether addr is among
// the answers. Results keep the order of domains.
func (c *Checker) Check(ctx context.Context, domains []string, addr string) []Result {
	results := make([]Result, len(domains))
	var wg sync.WaitGroup
	for i, domain := range domains {
		wg.Add(1)
		go func(i int, domain string) {
			defer wg.Done()
			results[i] = c.checkOne(ctx, domain, addr)
		}(i, domain)
	}
	wg.Wait()
	return results
}

func (c *Checker) checkOne(ctx context.Context, domain, addr string) Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resolved, err := c.resolve(ctx, domain)
	if err != nil {
		slog.Warn("Failed to resolve domain", "domain", domain, "error", err)
		return Result{Domain: domain, Err: fmt.Errorf("resolve %s: %w", domain, err)}
	}
	return Result{
		Domain:   domain,
		Resolved: resolved,
		Matches:  slices.Contains(resolved, addr),
	}
}

func (c *Checker) Close() {
	if c.close != nil {
		c.close()
	}
}

func dohResolver(c *doh.DoH) ResolveFunc {
	return func(ctx context.Context, host string) ([]string, error) {
		resp, err := c.Query(ctx, dns.Domain(host), dns.TypeA)
		if err != nil {
			return nil, err
		}
		var addrs []string
		for _, a := range resp.Answer {
			// CNAME hops are listed alongside the final A answers.
			if a.Type == 1 {
				addrs = append(addrs, a.Data)
			}
		}
		return addrs, nil
	}
}
