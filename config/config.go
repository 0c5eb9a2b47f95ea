package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// envPrefix namespaces this service's environment variables:
// AUTEUR_TMDB_API_KEY -> tmdb.api_key, AUTEUR_SERVER_PORT -> server.port.
const envPrefix = "AUTEUR_"

// DefaultConfigPaths lists where the optional config file is searched, in
// order. CONFIG_PATH overrides the search.
var DefaultConfigPaths = []string{"config.yaml", "config.yml"}

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	TMDB     TMDBConfig     `koanf:"tmdb"`
	Resolver ResolverConfig `koanf:"resolver"`
	Log      LogConfig      `koanf:"log"`
}

type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
	// Upload size ceiling for the analyze endpoint, in megabytes.
	MaxUploadMB int `koanf:"max_upload_mb"`
}

type TMDBConfig struct {
	APIKey string `koanf:"api_key"`
	// Process-wide ceiling on concurrent TMDB requests.
	MaxInFlight int64 `koanf:"max_in_flight"`
}

type ResolverConfig struct {
	CacheSize int `koanf:"cache_size"`
}

type LogConfig struct {
	// Path enables rotating file output; empty logs to stderr.
	Path       string `koanf:"path"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8484,
			MaxUploadMB: 32,
		},
		TMDB: TMDBConfig{
			MaxInFlight: 5,
		},
		Resolver: ResolverConfig{
			CacheSize: 4096,
		},
		Log: LogConfig{
			MaxSizeMB:  20,
			MaxBackups: 3,
		},
	}
}

// Load builds the configuration from three layers, later layers winning:
// built-in defaults, an optional YAML config file, then environment
// variables.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envToPath), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Bare TMDB_API_KEY is accepted too, matching what most TMDB tooling
	// expects.
	if cfg.TMDB.APIKey == "" {
		cfg.TMDB.APIKey = strings.TrimSpace(os.Getenv("TMDB_API_KEY"))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the configuration problems that must stop startup.
// A missing TMDB API key is the only process-fatal condition in the whole
// service, and it is caught here.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.TMDB.APIKey) == "" {
		return fmt.Errorf("tmdb api key is required (set AUTEUR_TMDB_API_KEY or TMDB_API_KEY)")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size %d", c.Server.MaxUploadMB)
	}
	if c.TMDB.MaxInFlight <= 0 {
		return fmt.Errorf("invalid tmdb max in-flight %d", c.TMDB.MaxInFlight)
	}
	if c.Resolver.CacheSize <= 0 {
		return fmt.Errorf("invalid resolver cache size %d", c.Resolver.CacheSize)
	}
	return nil
}

// ListenAddr is the host:port the HTTP server binds.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func findConfigFile() string {
	if path := strings.TrimSpace(os.Getenv("CONFIG_PATH")); path != "" {
		return path
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envToPath maps AUTEUR_SECTION_SOME_KEY to section.some_key.
func envToPath(name string) string {
	name = strings.ToLower(strings.TrimPrefix(name, envPrefix))
	parts := strings.SplitN(name, "_", 2)
	if len(parts) == 2 {
		return parts[0] + "." + parts[1]
	}
	return name
}
