// Package redis keeps gist attributes in a shared Redis keyspace, so values
// computed by one process are reused by every process on the same server.
package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	pr "github.com/unkn0wn-root/gist/provider"
)

var ErrNilClient = errors.New("redis provider: nil client")

// Redis never deletes entries on its own accord; stale and orphaned entries
// (old versions, other projects, deleted files) live until IdleTTL expires
// them. Reads slide the expiry so entries in use stay.
type Redis struct {
	rdb         goredis.UniversalClient
	prefix      string
	idle        time.Duration
	closeClient bool
}

var _ pr.Provider = (*Redis)(nil)

type Config struct {
	Client goredis.UniversalClient
	Prefix string // prepended to every attribute key, e.g. "gist:prod:"
	// IdleTTL expires entries not read or written for this long. 0 keeps
	// entries forever.
	IdleTTL time.Duration
	// CloseClient makes Close close Client. Set it only when the provider owns
	// the client exclusively.
	CloseClient bool
}

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	if cfg.IdleTTL < 0 {
		cfg.IdleTTL = 0
	}
	return &Redis{rdb: cfg.Client, prefix: cfg.Prefix, idle: cfg.IdleTTL, closeClient: cfg.CloseClient}, nil
}

func (p *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var cmd *goredis.StringCmd
	if p.idle > 0 {
		cmd = p.rdb.GetEx(ctx, p.prefix+key, p.idle)
	} else {
		cmd = p.rdb.Get(ctx, p.prefix+key)
	}
	b, err := cmd.Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// Set always accepts; failures surface as errors.
func (p *Redis) Set(ctx context.Context, key string, value []byte) (bool, error) {
	if err := p.rdb.Set(ctx, p.prefix+key, value, p.idle).Err(); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Redis) Del(ctx context.Context, key string) error {
	return p.rdb.Del(ctx, p.prefix+key).Err()
}

// Close is idempotent.
func (p *Redis) Close(context.Context) error {
	if !p.closeClient {
		return nil
	}
	if err := p.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
		return err
	}
	return nil
}
