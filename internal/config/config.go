package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultSyncInterval     = 5 * time.Minute
	defaultStatePath        = "ddns-sync.db"
	defaultLockPath         = "ddns-sync.lock"
	defaultMetricsAddr      = ":9090"
	defaultLogLevel         = "info"
	defaultLogEnv           = "prod"
	defaultCloudflareURL    = "https://api.cloudflare.com/client/v4"
	defaultDiscoveryTimeout = 15 * time.Second
	minDiscoverySources     = 3

	TokenEnv = "CLOUDFLARE_API_TOKEN"
)

var (
	ErrConfigurationMissing = errors.New("configuration missing")
	ErrInvalidConfig        = errors.New("invalid configuration")
)

// MissingEnvError names a required environment variable that was not set.
type MissingEnvError struct {
	Name string
}

func (e *MissingEnvError) Error() string {
	return fmt.Sprintf("getting %s: environment variable not set", e.Name)
}

func (e *MissingEnvError) Unwrap() error {
	return ErrConfigurationMissing
}

var DefaultSources = []string{
	"https://api.ipify.org",
	"https://ipv4.icanhazip.com",
	"https://ipinfo.io/ip",
}

// DefaultDomains are reconciled when the config file lists none.
var DefaultDomains = []Domain{
	{Name: "gathering.surf", ZoneIDEnv: "GATHERING_SURF_ZONE_ID"},
	{Name: "thepeachsoftware.company", ZoneIDEnv: "PEACH_SOFTWARE_ZONE_ID"},
}

type Config struct {
	SyncInterval time.Duration `yaml:"syncInterval"`
	StatePath    string        `yaml:"statePath"`
	LockPath     string        `yaml:"lockPath"`
	MetricsAddr  string        `yaml:"metricsAddr"`
	Log          Log           `yaml:"log"`
	Cloudflare   Cloudflare    `yaml:"cloudflare"`
	Discovery    Discovery     `yaml:"discovery"`
	Reconcile    Reconcile     `yaml:"reconcile"`
	Domains      []Domain      `yaml:"domains"`
}

type Log struct {
	Level string `yaml:"level"`
	Env   string `yaml:"env"`
}

type Cloudflare struct {
	Token   string `yaml:"token"`
	BaseURL string `yaml:"baseUrl"`
}

type Discovery struct {
	Sources   []string      `yaml:"sources"`
	Timeout   time.Duration `yaml:"timeout"`
	Validate  bool          `yaml:"validate"`
	RequireOK bool          `yaml:"requireOk"`
}

type Reconcile struct {
	DryRun bool `yaml:"dryRun"`
}

// Domain is one zone whose apex A record is kept in sync.
// ZoneID wins over ZoneIDEnv; with neither set the zone is looked up by name.
type Domain struct {
	Name      string `yaml:"name"`
	ZoneID    string `yaml:"zoneId"`
	ZoneIDEnv string `yaml:"zoneIdEnv"`
}

func Load(path string) (*Config, error) {
	configFile := true
	_, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Default().Warn("fail find config file, proceeding", "path", path)
		configFile = false
	}

	var cfg Config
	if configFile {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}

		decoder := yaml.NewDecoder(f)
		if err := decoder.Decode(&cfg); err != nil {
			f.Close()
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			slog.Default().Warn("fail close config file", "path", path, "error", err)
		}
	}

	setDefaults(&cfg)
	applyEnv(&cfg)

	if err := resolveZones(&cfg); err != nil {
		return nil, err
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.SyncInterval == 0 {
		cfg.SyncInterval = defaultSyncInterval
	}
	if cfg.StatePath == "" {
		cfg.StatePath = defaultStatePath
	}
	if cfg.LockPath == "" {
		cfg.LockPath = defaultLockPath
	}
	if cfg.MetricsAddr == "" {
		cfg.MetricsAddr = defaultMetricsAddr
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaultLogLevel
	}
	if cfg.Log.Env == "" {
		cfg.Log.Env = defaultLogEnv
	}
	if cfg.Cloudflare.BaseURL == "" {
		cfg.Cloudflare.BaseURL = defaultCloudflareURL
	}
	if len(cfg.Discovery.Sources) == 0 {
		cfg.Discovery.Sources = append([]string(nil), DefaultSources...)
	}
	if cfg.Discovery.Timeout == 0 {
		cfg.Discovery.Timeout = defaultDiscoveryTimeout
	}
	if len(cfg.Domains) == 0 {
		cfg.Domains = append([]Domain(nil), DefaultDomains...)
	}
}

// Override from environment if set
func applyEnv(cfg *Config) {
	if token := os.Getenv(TokenEnv); token != "" {
		cfg.Cloudflare.Token = token
	}
	if baseURL := os.Getenv("DDNS_SYNC_CLOUDFLARE_URL"); baseURL != "" {
		cfg.Cloudflare.BaseURL = baseURL
	}
	if syncInterval := os.Getenv("DDNS_SYNC_INTERVAL"); syncInterval != "" {
		if interval, err := time.ParseDuration(syncInterval); err == nil {
			cfg.SyncInterval = interval
		} else {
			slog.Default().Warn("fail parse sync interval to duration from string", "interval", syncInterval, "error", err)
		}
	}
	if statePath := os.Getenv("DDNS_SYNC_STATE_PATH"); statePath != "" {
		cfg.StatePath = statePath
	}
	if lockPath := os.Getenv("DDNS_SYNC_LOCK_PATH"); lockPath != "" {
		cfg.LockPath = lockPath
	}
	if metricsAddr := os.Getenv("DDNS_SYNC_METRICS_ADDR"); metricsAddr != "" {
		cfg.MetricsAddr = metricsAddr
	}
	if sources := os.Getenv("DDNS_SYNC_SOURCES"); sources != "" {
		cfg.Discovery.Sources = splitList(sources)
	}
	if dryRun := os.Getenv("DDNS_SYNC_DRYRUN"); dryRun != "" {
		switch strings.ToLower(dryRun) {
		case "true":
			cfg.Reconcile.DryRun = true
		case "false":
			cfg.Reconcile.DryRun = false
		default:
			slog.Default().Warn("fail parse dryrun to bool from string", "dryrun", dryRun)
		}
	}
	if loglevel := os.Getenv("DDNS_SYNC_LOG_LEVEL"); loglevel != "" {
		cfg.Log.Level = loglevel
	}
	if logenv := os.Getenv("DDNS_SYNC_LOG_ENV"); logenv != "" {
		cfg.Log.Env = logenv
	}
}

func resolveZones(cfg *Config) error {
	if cfg.Cloudflare.Token == "" {
		return &MissingEnvError{Name: TokenEnv}
	}
	for i := range cfg.Domains {
		d := &cfg.Domains[i]
		if d.ZoneID != "" || d.ZoneIDEnv == "" {
			continue
		}
		zoneID, ok := os.LookupEnv(d.ZoneIDEnv)
		if !ok || zoneID == "" {
			return &MissingEnvError{Name: d.ZoneIDEnv}
		}
		d.ZoneID = zoneID
	}
	return nil
}

func validate(cfg *Config) error {
	if len(cfg.Discovery.Sources) < minDiscoverySources {
		return fmt.Errorf("%w: need at least %d discovery sources, got %d", ErrInvalidConfig, minDiscoverySources, len(cfg.Discovery.Sources))
	}
	if cfg.SyncInterval <= 0 {
		return fmt.Errorf("%w: sync interval must be positive, got %s", ErrInvalidConfig, cfg.SyncInterval)
	}
	seen := make(map[string]bool, len(cfg.Domains))
	for i, d := range cfg.Domains {
		if d.Name == "" {
			return fmt.Errorf("%w: domain %d has no name", ErrInvalidConfig, i)
		}
		if seen[d.Name] {
			return fmt.Errorf("%w: domain %s listed twice", ErrInvalidConfig, d.Name)
		}
		seen[d.Name] = true
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
