package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(TokenEnv, "token-123")
	t.Setenv("GATHERING_SURF_ZONE_ID", "zone-a")
	t.Setenv("PEACH_SOFTWARE_ZONE_ID", "zone-b")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.Cloudflare.Token != "token-123" {
		t.Errorf("Expected token from env, got %q", cfg.Cloudflare.Token)
	}
	if cfg.SyncInterval != defaultSyncInterval {
		t.Errorf("Expected default interval, got %s", cfg.SyncInterval)
	}
	if cfg.Cloudflare.BaseURL != defaultCloudflareURL {
		t.Errorf("Expected default base url, got %q", cfg.Cloudflare.BaseURL)
	}
	if !reflect.DeepEqual(cfg.Discovery.Sources, DefaultSources) {
		t.Errorf("Expected default sources, got %v", cfg.Discovery.Sources)
	}

	expected := []Domain{
		{Name: "gathering.surf", ZoneID: "zone-a", ZoneIDEnv: "GATHERING_SURF_ZONE_ID"},
		{Name: "thepeachsoftware.company", ZoneID: "zone-b", ZoneIDEnv: "PEACH_SOFTWARE_ZONE_ID"},
	}
	if !reflect.DeepEqual(cfg.Domains, expected) {
		t.Errorf("Expected domains %+v, got %+v", expected, cfg.Domains)
	}
	if DefaultDomains[0].ZoneID != "" {
		t.Error("Load must not mutate DefaultDomains")
	}
}

func TestLoadMissingEnv(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		missing string
	}{
		{
			name:    "missing token",
			env:     map[string]string{"GATHERING_SURF_ZONE_ID": "a", "PEACH_SOFTWARE_ZONE_ID": "b"},
			missing: TokenEnv,
		},
		{
			name:    "missing first zone",
			env:     map[string]string{TokenEnv: "t", "PEACH_SOFTWARE_ZONE_ID": "b"},
			missing: "GATHERING_SURF_ZONE_ID",
		},
		{
			name:    "missing second zone",
			env:     map[string]string{TokenEnv: "t", "GATHERING_SURF_ZONE_ID": "a"},
			missing: "PEACH_SOFTWARE_ZONE_ID",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{TokenEnv, "GATHERING_SURF_ZONE_ID", "PEACH_SOFTWARE_ZONE_ID"} {
				t.Setenv(key, "")
				os.Unsetenv(key)
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
			if !errors.Is(err, ErrConfigurationMissing) {
				t.Fatalf("Expected ErrConfigurationMissing, got %v", err)
			}
			var missing *MissingEnvError
			if !errors.As(err, &missing) {
				t.Fatalf("Expected *MissingEnvError, got %T", err)
			}
			if missing.Name != tt.missing {
				t.Errorf("Expected missing %q, got %q", tt.missing, missing.Name)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	t.Setenv(TokenEnv, "")
	os.Unsetenv(TokenEnv)
	t.Setenv("EXAMPLE_ZONE", "zone-env")

	path := writeConfig(t, `
syncInterval: 2m
statePath: /tmp/state.db
log:
  level: debug
  env: dev
cloudflare:
  token: file-token
  baseUrl: http://localhost:8080/client/v4
discovery:
  sources: [http://a, http://b, http://c, http://d]
  timeout: 3s
  validate: true
reconcile:
  dryRun: true
domains:
  - name: example.com
    zoneIdEnv: EXAMPLE_ZONE
  - name: example.org
    zoneId: zone-literal
  - name: example.net
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.SyncInterval != 2*time.Minute {
		t.Errorf("Expected 2m interval, got %s", cfg.SyncInterval)
	}
	if cfg.Discovery.Timeout != 3*time.Second {
		t.Errorf("Expected 3s timeout, got %s", cfg.Discovery.Timeout)
	}
	if !cfg.Discovery.Validate || !cfg.Reconcile.DryRun {
		t.Error("Expected validate and dryRun to be read from file")
	}
	if cfg.Cloudflare.Token != "file-token" {
		t.Errorf("Expected token from file, got %q", cfg.Cloudflare.Token)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Env != "dev" {
		t.Errorf("Unexpected log config %+v", cfg.Log)
	}

	expected := []Domain{
		{Name: "example.com", ZoneID: "zone-env", ZoneIDEnv: "EXAMPLE_ZONE"},
		{Name: "example.org", ZoneID: "zone-literal"},
		{Name: "example.net"},
	}
	if !reflect.DeepEqual(cfg.Domains, expected) {
		t.Errorf("Expected domains %+v, got %+v", expected, cfg.Domains)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv(TokenEnv, "env-token")
	t.Setenv("DDNS_SYNC_INTERVAL", "30s")
	t.Setenv("DDNS_SYNC_DRYRUN", "TRUE")
	t.Setenv("DDNS_SYNC_SOURCES", "http://a, http://b,http://c")
	t.Setenv("DDNS_SYNC_LOG_LEVEL", "warn")

	path := writeConfig(t, `
cloudflare:
  token: file-token
domains:
  - name: example.com
    zoneId: z
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.Cloudflare.Token != "env-token" {
		t.Errorf("Expected env token to win, got %q", cfg.Cloudflare.Token)
	}
	if cfg.SyncInterval != 30*time.Second {
		t.Errorf("Expected 30s interval, got %s", cfg.SyncInterval)
	}
	if !cfg.Reconcile.DryRun {
		t.Error("Expected dry run from env")
	}
	if want := []string{"http://a", "http://b", "http://c"}; !reflect.DeepEqual(cfg.Discovery.Sources, want) {
		t.Errorf("Expected sources %v, got %v", want, cfg.Discovery.Sources)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Expected warn level, got %q", cfg.Log.Level)
	}
}

func TestLoadValidation(t *testing.T) {
	t.Setenv(TokenEnv, "t")

	tests := []struct {
		name string
		body string
	}{
		{
			name: "too few sources",
			body: "discovery:\n  sources: [http://a, http://b]\ndomains:\n  - name: a.com\n    zoneId: z\n",
		},
		{
			name: "duplicate domain",
			body: "domains:\n  - name: a.com\n    zoneId: z\n  - name: a.com\n    zoneId: y\n",
		},
		{
			name: "unnamed domain",
			body: "domains:\n  - zoneId: z\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("Expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestLoadNonPositiveInterval(t *testing.T) {
	for _, interval := range []string{"0s", "-1m"} {
		t.Run(interval, func(t *testing.T) {
			t.Setenv(TokenEnv, "t")
			t.Setenv("DDNS_SYNC_INTERVAL", interval)

			_, err := Load(writeConfig(t, "domains:\n  - name: a.com\n    zoneId: z\n"))
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("Expected ErrInvalidConfig for interval %s, got %v", interval, err)
			}
		})
	}
}

func TestLoadMalformedFile(t *testing.T) {
	t.Setenv(TokenEnv, "t")
	if _, err := Load(writeConfig(t, "domains: [unterminated")); err == nil {
		t.Fatal("Expected parse error but got none")
	}
}
