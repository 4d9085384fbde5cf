// Package config loads a TOML description of a gist deployment and builds the
// matching gist.Options: storage provider, generation store, logger and hooks.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
)

const (
	StorageFile      = "file"
	StorageSQLite    = "sqlite"
	StorageRedis     = "redis"
	StorageBigcache  = "bigcache"
	StorageRistretto = "ristretto"

	GenLocal = "local"
	GenFile  = "file"
	GenRedis = "redis"

	LogZap    = "zap"
	LogLogrus = "logrus"
	LogSlog   = "slog"
	LogNone   = "none"
)

var ErrInvalid = errors.New("config: invalid")

type Config struct {
	Storage    Storage    `toml:"storage"`
	Generation Generation `toml:"generation"`
	Log        Log        `toml:"log"`
	Hooks      Hooks      `toml:"hooks"`
	Gist       Gist       `toml:"gist"`
}

type Storage struct {
	Backend      string `toml:"backend"`
	Path         string `toml:"path"` // file dir or sqlite database
	RedisAddr    string `toml:"redis_addr"`
	RedisDB      int    `toml:"redis_db"`
	RedisPrefix  string `toml:"redis_prefix"`
	IdleTTLHours int    `toml:"idle_ttl_hours"` // redis: expire entries unused this long; 0 = never
	MemoryMB     int    `toml:"memory_mb"`      // bigcache / ristretto budget
}

type Generation struct {
	Backend   string `toml:"backend"`
	Path      string `toml:"path"`      // file backend; defaults to <storage.path>/gen
	Namespace string `toml:"namespace"` // redis backend
}

type Log struct {
	Backend string `toml:"backend"`
	Level   string `toml:"level"`
}

type Hooks struct {
	Log          bool   `toml:"log"`
	RejectEvery  uint64 `toml:"reject_every"`
	AsyncWorkers int    `toml:"async_workers"` // 0 = synchronous
	AsyncQueue   int    `toml:"async_queue"`
}

type Gist struct {
	SingleFlight bool `toml:"single_flight"`
	Disabled     bool `toml:"disabled"`
}

// Default is used for a missing file and as the base every file overrides.
func Default() Config {
	return Config{
		Storage: Storage{
			Backend:   StorageFile,
			Path:      ".gist",
			RedisAddr: "localhost:6379",
			MemoryMB:  64,
		},
		Generation: Generation{Backend: GenFile, Namespace: "gist"},
		Log:        Log{Backend: LogZap, Level: "warn"},
	}
}

// Load reads path from the OS filesystem. An empty path yields Default().
func Load(path string) (Config, error) {
	return LoadFs(afero.NewOsFs(), path)
}

func LoadFs(fs afero.Fs, path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	if err := Parse(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes b over cfg, so keys absent from b keep their current values.
func Parse(b []byte, cfg *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var sme *toml.StrictMissingError
		if errors.As(err, &sme) {
			return fmt.Errorf("%w: %s", ErrInvalid, strings.TrimSpace(sme.String()))
		}
		return err
	}
	return cfg.Validate()
}

func (c *Config) Validate() error {
	c.Storage.Backend = strings.ToLower(c.Storage.Backend)
	c.Generation.Backend = strings.ToLower(c.Generation.Backend)
	c.Log.Backend = strings.ToLower(c.Log.Backend)

	switch c.Storage.Backend {
	case StorageFile, StorageSQLite:
		if c.Storage.Path == "" {
			return fmt.Errorf("%w: storage.path is required for %s", ErrInvalid, c.Storage.Backend)
		}
	case StorageRedis:
		if c.Storage.RedisAddr == "" {
			return fmt.Errorf("%w: storage.redis_addr is required", ErrInvalid)
		}
	case StorageBigcache, StorageRistretto:
		if c.Storage.MemoryMB <= 0 {
			return fmt.Errorf("%w: storage.memory_mb must be positive", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown storage.backend %q", ErrInvalid, c.Storage.Backend)
	}

	switch c.Generation.Backend {
	case GenLocal:
	case GenFile:
		if c.Generation.Path == "" && c.Storage.Path == "" {
			return fmt.Errorf("%w: generation.path is required", ErrInvalid)
		}
	case GenRedis:
		if c.Storage.RedisAddr == "" {
			return fmt.Errorf("%w: storage.redis_addr is required for redis generations", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown generation.backend %q", ErrInvalid, c.Generation.Backend)
	}

	switch c.Log.Backend {
	case LogZap, LogLogrus, LogSlog, LogNone:
	default:
		return fmt.Errorf("%w: unknown log.backend %q", ErrInvalid, c.Log.Backend)
	}
	if c.Storage.IdleTTLHours < 0 {
		return fmt.Errorf("%w: storage.idle_ttl_hours must not be negative", ErrInvalid)
	}
	if c.Hooks.AsyncWorkers < 0 || c.Hooks.AsyncQueue < 0 {
		return fmt.Errorf("%w: hooks.async_workers and hooks.async_queue must not be negative", ErrInvalid)
	}
	return nil
}

func (c Config) genPath() string {
	if c.Generation.Path != "" {
		return c.Generation.Path
	}
	if c.Storage.Backend == StorageSQLite {
		return c.Storage.Path + ".gen"
	}
	return filepath.Join(c.Storage.Path, "gen")
}

// StatePath is where a host keeps file ids and modification counts next to
// the stored attributes.
func (c Config) StatePath() string {
	switch {
	case c.Storage.Backend == StorageSQLite:
		return c.Storage.Path + ".vfs"
	case c.Storage.Backend == StorageFile:
		return filepath.Join(c.Storage.Path, "vfs.state")
	case c.Storage.Path != "":
		return filepath.Join(c.Storage.Path, "vfs.state")
	}
	return filepath.Join(".gist", "vfs.state")
}

// Find looks for gist.toml in dir and its parents and returns the first match,
// or "" when none exists.
func Find(dir string) string {
	d, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}
	for {
		p := filepath.Join(d, "gist.toml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
		parent := filepath.Dir(d)
		if parent == d {
			return ""
		}
		d = parent
	}
}

// Marshal renders cfg as TOML.
func Marshal(cfg Config) ([]byte, error) {
	return toml.Marshal(cfg)
}
