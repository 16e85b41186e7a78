// Package settings provides small named preference files that survive
// process restarts, with pluggable storage backends.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/kjstillabower/sunshine-wear/internal/observability"
)

// ErrWrongType is returned when a stored value does not have the requested type.
var ErrWrongType = errors.New("preference has wrong type")

// Values is the content of one preference file. Values are string or int64.
type Values map[string]any

func (v Values) clone() Values {
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Backend loads and stores whole preference files. Load returns an empty map,
// not an error, for a file that was never stored.
type Backend interface {
	Load(ctx context.Context, file string) (Values, error)
	Store(ctx context.Context, file string, v Values) error
}

// Preferences is an in-memory view of one preference file. Reads never touch
// the backend; Commit writes the whole file.
type Preferences struct {
	backend Backend
	file    string
	logger  *zap.Logger

	mu     sync.RWMutex
	values Values
}

// Open loads file from backend.
func Open(ctx context.Context, backend Backend, file string, logger *zap.Logger) (*Preferences, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	raw, err := backend.Load(ctx, file)
	if err != nil {
		observability.SettingsOperationsTotal.WithLabelValues("load", "error").Inc()
		return nil, fmt.Errorf("load settings %s: %w", file, err)
	}
	values, err := normalize(raw)
	if err != nil {
		observability.SettingsOperationsTotal.WithLabelValues("load", "error").Inc()
		return nil, fmt.Errorf("load settings %s: %w", file, err)
	}
	observability.SettingsOperationsTotal.WithLabelValues("load", "success").Inc()
	logger.Debug("settings loaded", zap.String("file", file), zap.Int("keys", len(values)))
	return &Preferences{backend: backend, file: file, logger: logger, values: values}, nil
}

// GetString returns the value for key, or def when absent.
func (p *Preferences) GetString(key, def string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.values[key]
	if !ok {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return def, fmt.Errorf("%s: %w", key, ErrWrongType)
	}
	return s, nil
}

// GetInt returns the value for key, or def when absent.
func (p *Preferences) GetInt(key string, def int) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.values[key]
	if !ok {
		return def, nil
	}
	n, ok := v.(int64)
	if !ok {
		return def, fmt.Errorf("%s: %w", key, ErrWrongType)
	}
	return int(n), nil
}

// Contains reports whether key is set.
func (p *Preferences) Contains(key string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.values[key]
	return ok
}

// Edit starts a batch of changes.
func (p *Preferences) Edit() *Editor {
	return &Editor{prefs: p, set: Values{}}
}

// Editor collects changes until Commit.
type Editor struct {
	prefs  *Preferences
	set    Values
	remove []string
}

func (e *Editor) PutString(key, v string) *Editor {
	e.set[key] = v
	return e
}

func (e *Editor) PutInt(key string, v int) *Editor {
	e.set[key] = int64(v)
	return e
}

func (e *Editor) Remove(key string) *Editor {
	delete(e.set, key)
	e.remove = append(e.remove, key)
	return e
}

// Commit applies the changes and writes the file. On a backend error the
// in-memory view is left unchanged.
func (e *Editor) Commit(ctx context.Context) error {
	p := e.prefs
	p.mu.Lock()
	defer p.mu.Unlock()

	next := p.values.clone()
	for _, k := range e.remove {
		delete(next, k)
	}
	for k, v := range e.set {
		next[k] = v
	}
	if err := p.backend.Store(ctx, p.file, next); err != nil {
		observability.SettingsOperationsTotal.WithLabelValues("commit", "error").Inc()
		return fmt.Errorf("commit settings %s: %w", p.file, err)
	}
	observability.SettingsOperationsTotal.WithLabelValues("commit", "success").Inc()
	p.values = next
	p.logger.Debug("settings committed", zap.String("file", p.file), zap.Int("changed", len(e.set)+len(e.remove)))
	return nil
}

// normalize converts decoded numbers to int64. Backends decode YAML and JSON
// into int, float64 or json.Number.
func normalize(in Values) (Values, error) {
	out := make(Values, len(in))
	for k, v := range in {
		switch t := v.(type) {
		case string:
			out[k] = t
		case int:
			out[k] = int64(t)
		case int64:
			out[k] = t
		case float64:
			if t != math.Trunc(t) {
				return nil, fmt.Errorf("%s: non-integer number %v: %w", k, t, ErrWrongType)
			}
			out[k] = int64(t)
		case json.Number:
			n, err := t.Int64()
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, ErrWrongType)
			}
			out[k] = n
		default:
			return nil, fmt.Errorf("%s: unsupported %T: %w", k, v, ErrWrongType)
		}
	}
	return out, nil
}
