package discovery

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/evanofslack/ddns-sync/internal/metrics"
)

type mockResponse struct {
	delay  time.Duration
	body   string
	status int
	err    error
	hang   bool
}

// MockHttpClient answers each request by URL after an optional delay.
type MockHttpClient struct {
	responses map[string]mockResponse
	calls     atomic.Int32
}

func (m *MockHttpClient) Do(req *http.Request) (*http.Response, error) {
	m.calls.Add(1)
	r, ok := m.responses[req.URL.String()]
	if !ok {
		return nil, errors.New("unexpected url " + req.URL.String())
	}
	if r.hang {
		<-req.Context().Done()
		return nil, req.Context().Err()
	}
	select {
	case <-time.After(r.delay):
	case <-req.Context().Done():
		return nil, req.Context().Err()
	}
	if r.err != nil {
		return nil, r.err
	}
	status := r.status
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(r.body)),
	}, nil
}

func newDiscoverer(t *testing.T, client Httper, opts Options) Discoverer {
	t.Helper()
	d, err := New(client, opts, metrics.New(false))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return d
}

func TestDiscover(t *testing.T) {
	const a, b, c = "https://a.example", "https://b.example", "https://c.example"

	tests := []struct {
		name        string
		responses   map[string]mockResponse
		opts        Options
		expected    Address
		expectError bool
	}{
		{
			name: "fastest success wins and is trimmed",
			responses: map[string]mockResponse{
				a: {delay: 100 * time.Millisecond, err: errors.New("connection reset")},
				b: {delay: 10 * time.Millisecond, body: " 9.9.9.9 \n"},
				c: {delay: 200 * time.Millisecond, body: "1.1.1.1"},
			},
			expected: "9.9.9.9",
		},
		{
			name: "early failure does not abort race",
			responses: map[string]mockResponse{
				a: {err: errors.New("no route to host")},
				b: {err: errors.New("tls handshake timeout")},
				c: {delay: 20 * time.Millisecond, body: "5.6.7.8\n"},
			},
			expected: "5.6.7.8",
		},
		{
			name: "all sources fail",
			responses: map[string]mockResponse{
				a: {err: errors.New("a down")},
				b: {err: errors.New("b down")},
				c: {err: errors.New("c down")},
			},
			expectError: true,
		},
		{
			name: "hung source does not block winner",
			responses: map[string]mockResponse{
				a: {hang: true},
				b: {hang: true},
				c: {delay: 5 * time.Millisecond, body: "2.2.2.2"},
			},
			expected: "2.2.2.2",
		},
		{
			name: "whitespace body accepted without validation",
			responses: map[string]mockResponse{
				a: {body: "  \n"},
				b: {delay: 200 * time.Millisecond, body: "3.3.3.3"},
				c: {delay: 200 * time.Millisecond, body: "3.3.3.3"},
			},
			expected: "",
		},
		{
			name: "validation skips garbage body",
			responses: map[string]mockResponse{
				a: {body: "<html>rate limited</html>"},
				b: {delay: 20 * time.Millisecond, body: "2001:db8::1"},
				c: {delay: 40 * time.Millisecond, body: "4.4.4.4\n"},
			},
			opts:     Options{ValidateIPv4: true},
			expected: "4.4.4.4",
		},
		{
			name: "non ok status accepted by default",
			responses: map[string]mockResponse{
				a: {status: http.StatusServiceUnavailable, body: "7.7.7.7"},
				b: {delay: 200 * time.Millisecond, body: "8.8.8.8"},
				c: {delay: 200 * time.Millisecond, body: "8.8.8.8"},
			},
			expected: "7.7.7.7",
		},
		{
			name: "non ok status rejected when required",
			responses: map[string]mockResponse{
				a: {status: http.StatusServiceUnavailable, body: "7.7.7.7"},
				b: {delay: 20 * time.Millisecond, body: "8.8.8.8"},
				c: {delay: 200 * time.Millisecond, body: "8.8.8.8"},
			},
			opts:     Options{RequireOK: true},
			expected: "8.8.8.8",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := tt.opts
			opts.Sources = []string{a, b, c}
			opts.Timeout = time.Second
			d := newDiscoverer(t, &MockHttpClient{responses: tt.responses}, opts)

			addr, err := d.Discover(context.Background())
			if tt.expectError {
				if !errors.Is(err, ErrDiscoveryFailed) {
					t.Fatalf("Expected ErrDiscoveryFailed, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if addr != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, addr)
			}
		})
	}
}

func TestDiscoverAllFailedJoinsErrors(t *testing.T) {
	client := &MockHttpClient{responses: map[string]mockResponse{
		"https://a.example": {err: errors.New("first boom")},
		"https://b.example": {err: errors.New("second boom")},
		"https://c.example": {err: errors.New("third boom")},
	}}
	d := newDiscoverer(t, client, Options{Sources: []string{"https://a.example", "https://b.example", "https://c.example"}})

	_, err := d.Discover(context.Background())
	for _, msg := range []string{"first boom", "second boom", "third boom"} {
		if err == nil || !strings.Contains(err.Error(), msg) {
			t.Errorf("Expected error to mention %q, got %v", msg, err)
		}
	}
	if got := client.calls.Load(); got != 3 {
		t.Errorf("Expected 3 source requests, got %d", got)
	}
}

func TestDiscoverTimeout(t *testing.T) {
	client := &MockHttpClient{responses: map[string]mockResponse{
		"https://a.example": {hang: true},
		"https://b.example": {hang: true},
		"https://c.example": {hang: true},
	}}
	d := newDiscoverer(t, client, Options{
		Sources: []string{"https://a.example", "https://b.example", "https://c.example"},
		Timeout: 20 * time.Millisecond,
	})

	done := make(chan error, 1)
	go func() {
		_, err := d.Discover(context.Background())
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, ErrDiscoveryFailed) {
			t.Fatalf("Expected ErrDiscoveryFailed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Discover did not return after every source timed out")
	}
}

func TestDiscoverCancelled(t *testing.T) {
	client := &MockHttpClient{responses: map[string]mockResponse{
		"https://a.example": {hang: true},
		"https://b.example": {hang: true},
		"https://c.example": {hang: true},
	}}
	d := newDiscoverer(t, client, Options{Sources: []string{"https://a.example", "https://b.example", "https://c.example"}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.Discover(ctx); !errors.Is(err, ErrDiscoveryFailed) {
		t.Fatalf("Expected ErrDiscoveryFailed, got %v", err)
	}
}

func TestDiscoverHTTP(t *testing.T) {
	var srvs []string
	for _, body := range []string{"192.168.2.1\n", "192.168.2.1", "192.168.2.1 "} {
		body := body
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Cache-Control") != "no-cache" {
				t.Errorf("Expected no-cache header")
			}
			io.WriteString(w, body)
		}))
		defer srv.Close()
		srvs = append(srvs, srv.URL)
	}

	d := newDiscoverer(t, http.DefaultClient, Options{Sources: srvs, ValidateIPv4: true})
	addr, err := d.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if addr != "192.168.2.1" {
		t.Errorf("Expected 192.168.2.1, got %q", addr)
	}
}

func TestNewRequiresSources(t *testing.T) {
	if _, err := New(nil, Options{}, metrics.New(false)); !errors.Is(err, ErrNoSources) {
		t.Fatalf("Expected ErrNoSources, got %v", err)
	}
}
