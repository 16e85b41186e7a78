package settings

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileBackend stores each file as <dir>/<file>.yaml.
type FileBackend struct {
	dir string
}

func NewFileBackend(dir string) *FileBackend {
	return &FileBackend{dir: dir}
}

func (b *FileBackend) path(file string) string {
	return filepath.Join(b.dir, filepath.Base(file)+".yaml")
}

func (b *FileBackend) Load(ctx context.Context, file string) (Values, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(b.path(file))
	if errors.Is(err, fs.ErrNotExist) {
		return Values{}, nil
	}
	if err != nil {
		return nil, err
	}
	v := Values{}
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parse %s: %w", b.path(file), err)
	}
	return v, nil
}

// Store writes through a temp file and rename so readers never see a partial file.
func (b *FileBackend) Store(ctx context.Context, file string, v Values) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := yaml.Marshal(map[string]any(v))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(b.dir, ".settings-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), b.path(file))
}
