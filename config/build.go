package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/gist"
	gen "github.com/unkn0wn-root/gist/genstore"
	asynchook "github.com/unkn0wn-root/gist/hooks/async"
	logruslog "github.com/unkn0wn-root/gist/log/logrus"
	sloglog "github.com/unkn0wn-root/gist/log/slog"
	zaplog "github.com/unkn0wn-root/gist/log/zap"
	pr "github.com/unkn0wn-root/gist/provider"
	bigcacheprovider "github.com/unkn0wn-root/gist/provider/bigcache"
	fileprovider "github.com/unkn0wn-root/gist/provider/file"
	redisprovider "github.com/unkn0wn-root/gist/provider/redis"
	ristrettoprovider "github.com/unkn0wn-root/gist/provider/ristretto"
	sqliteprovider "github.com/unkn0wn-root/gist/provider/sqlite"
	"github.com/unkn0wn-root/gist/sloghooks"
)

// Stack is a built configuration. Options go to gist.NewManager, which then
// owns the provider and generation store; Close releases the rest.
type Stack struct {
	Options gist.Options

	cleanup []func()
}

func (s *Stack) Close() {
	for i := len(s.cleanup) - 1; i >= 0; i-- {
		s.cleanup[i]()
	}
	s.cleanup = nil
}

// Build turns cfg into gist.Options. cfg is validated first.
func Build(ctx context.Context, cfg Config) (*Stack, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Stack{}

	logger, err := s.logger(cfg.Log)
	if err != nil {
		return nil, err
	}

	var rdb goredis.UniversalClient
	if cfg.Storage.Backend == StorageRedis || cfg.Generation.Backend == GenRedis {
		rdb = goredis.NewClient(&goredis.Options{Addr: cfg.Storage.RedisAddr, DB: cfg.Storage.RedisDB})
	}

	p, err := buildProvider(ctx, cfg.Storage, rdb)
	if err != nil {
		if rdb != nil {
			_ = rdb.Close()
		}
		s.Close()
		return nil, err
	}

	g, err := buildGenStore(cfg, rdb)
	if err != nil {
		_ = p.Close(ctx)
		if rdb != nil && cfg.Storage.Backend != StorageRedis {
			_ = rdb.Close()
		}
		s.Close()
		return nil, err
	}

	s.Options = gist.Options{
		Provider:     p,
		GenStore:     g,
		Logger:       logger,
		Hooks:        s.hooks(cfg.Hooks),
		SingleFlight: cfg.Gist.SingleFlight,
		Disabled:     cfg.Gist.Disabled,
	}
	return s, nil
}

func buildProvider(ctx context.Context, c Storage, rdb goredis.UniversalClient) (pr.Provider, error) {
	switch c.Backend {
	case StorageFile:
		return fileprovider.Open(c.Path)
	case StorageSQLite:
		return sqliteprovider.Open(ctx, c.Path)
	case StorageRedis:
		// the provider owns the client; a redis genstore borrows it
		return redisprovider.New(redisprovider.Config{
			Client:      rdb,
			Prefix:      c.RedisPrefix,
			IdleTTL:     time.Duration(c.IdleTTLHours) * time.Hour,
			CloseClient: true,
		})
	case StorageBigcache:
		return bigcacheprovider.New(bigcacheprovider.Config{HardMaxCacheSizeMB: c.MemoryMB})
	case StorageRistretto:
		return ristrettoprovider.New(ristrettoprovider.ForBudget(int64(c.MemoryMB) << 20))
	}
	return nil, fmt.Errorf("%w: unknown storage.backend %q", ErrInvalid, c.Backend)
}

func buildGenStore(cfg Config, rdb goredis.UniversalClient) (gen.GenStore, error) {
	switch cfg.Generation.Backend {
	case GenLocal:
		return gen.NewLocalGenStore(), nil
	case GenFile:
		return gen.NewFileGenStore(afero.NewOsFs(), cfg.genPath())
	case GenRedis:
		if cfg.Storage.Backend == StorageRedis {
			return gen.NewRedisGenStore(rdb, cfg.Generation.Namespace), nil
		}
		return gen.NewOwnedRedisGenStore(rdb, cfg.Generation.Namespace), nil
	}
	return nil, fmt.Errorf("%w: unknown generation.backend %q", ErrInvalid, cfg.Generation.Backend)
}

func (s *Stack) logger(c Log) (gist.Logger, error) {
	switch c.Backend {
	case LogZap:
		lvl, err := zapcore.ParseLevel(c.Level)
		if err != nil {
			return nil, fmt.Errorf("%w: log.level: %v", ErrInvalid, err)
		}
		zc := zap.NewProductionConfig()
		zc.Level = zap.NewAtomicLevelAt(lvl)
		zc.Encoding = "console"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		l, err := zc.Build()
		if err != nil {
			return nil, fmt.Errorf("failed to build zap logger: %w", err)
		}
		s.cleanup = append(s.cleanup, func() { _ = l.Sync() })
		return zaplog.ZapLogger{L: l}, nil

	case LogLogrus:
		lvl, err := logrus.ParseLevel(c.Level)
		if err != nil {
			return nil, fmt.Errorf("%w: log.level: %v", ErrInvalid, err)
		}
		l := logrus.New()
		l.SetOutput(os.Stderr)
		l.SetLevel(lvl)
		return logruslog.LogrusLogger{E: logrus.NewEntry(l)}, nil

	case LogSlog:
		lvl, err := slogLevel(c.Level)
		if err != nil {
			return nil, err
		}
		return sloglog.Logger{L: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))}, nil
	}
	return gist.NopLogger{}, nil
}

func slogLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("%w: log.level: %v", ErrInvalid, err)
	}
	return lvl, nil
}

func (s *Stack) hooks(c Hooks) gist.Hooks {
	if !c.Log {
		return nil
	}
	var h gist.Hooks = sloghooks.New(
		slog.New(slog.NewTextHandler(os.Stderr, nil)),
		sloghooks.Options{RejectEvery: c.RejectEvery, WriteErrorEvery: c.RejectEvery},
	)
	if c.AsyncWorkers > 0 {
		a := asynchook.New(h, c.AsyncWorkers, c.AsyncQueue)
		s.cleanup = append(s.cleanup, a.Close)
		h = a
	}
	return h
}
