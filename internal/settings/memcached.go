package settings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

const keyPrefix = "settings:"

// MemcachedBackend stores each file as one JSON item with no expiry.
type MemcachedBackend struct {
	client *memcache.Client
}

// NewMemcachedBackend creates a MemcachedBackend. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// configure the client; both use package defaults if zero.
func NewMemcachedBackend(addrs string, timeout time.Duration, maxIdleConns int) *MemcachedBackend {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedBackend{client: client}
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

func (b *MemcachedBackend) Load(ctx context.Context, file string) (Values, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	item, err := b.client.Get(keyPrefix + file)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return Values{}, nil
	}
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(item.Value))
	dec.UseNumber()
	v := Values{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func (b *MemcachedBackend) Store(ctx context.Context, file string, v Values) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.client.Set(&memcache.Item{Key: keyPrefix + file, Value: raw})
}

// Ping checks if memcached is reachable. Used for health checks.
func (b *MemcachedBackend) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (b *MemcachedBackend) Close() error {
	return b.client.Close()
}
