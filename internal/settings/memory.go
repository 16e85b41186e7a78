package settings

import (
	"context"
	"sync"
)

// MemoryBackend keeps files in process memory. Contents are lost on exit.
type MemoryBackend struct {
	mu    sync.Mutex
	files map[string]Values
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{files: make(map[string]Values)}
}

func (b *MemoryBackend) Load(ctx context.Context, file string) (Values, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.files[file].clone(), nil
}

func (b *MemoryBackend) Store(ctx context.Context, file string, v Values) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.files[file] = v.clone()
	return nil
}
