package settings

import (
	"fmt"
	"time"
)

// Backend kinds.
const (
	KindMemory    = "memory"
	KindFile      = "file"
	KindMemcached = "memcached"
)

// BackendOptions configure NewBackend.
type BackendOptions struct {
	Dir                   string
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int
}

// NewBackend builds the backend named by kind.
func NewBackend(kind string, opts BackendOptions) (Backend, error) {
	switch kind {
	case KindMemory:
		return NewMemoryBackend(), nil
	case KindFile:
		if opts.Dir == "" {
			return nil, fmt.Errorf("settings: file backend needs a directory")
		}
		return NewFileBackend(opts.Dir), nil
	case KindMemcached:
		return NewMemcachedBackend(opts.MemcachedAddrs, opts.MemcachedTimeout, opts.MemcachedMaxIdleConns), nil
	default:
		return nil, fmt.Errorf("settings: unknown backend %q", kind)
	}
}
