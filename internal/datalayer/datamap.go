package datalayer

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// DataMap is the payload of a data item. Values are ints, int64s or strings;
// after a JSON round trip numbers arrive as float64 or json.Number, which the
// Get accessors accept.
type DataMap map[string]any

// NewDataMap returns an empty DataMap.
func NewDataMap() DataMap {
	return make(DataMap)
}

func (m DataMap) PutInt(key string, v int) {
	m[key] = int64(v)
}

func (m DataMap) PutLong(key string, v int64) {
	m[key] = v
}

func (m DataMap) PutString(key, v string) {
	m[key] = v
}

// Has reports whether key is present.
func (m DataMap) Has(key string) bool {
	_, ok := m[key]
	return ok
}

// GetInt returns the integer stored under key, or def when missing or not numeric.
func (m DataMap) GetInt(key string, def int) int {
	v, ok := m.number(key)
	if !ok {
		return def
	}
	return int(v)
}

// GetLong returns the int64 stored under key, or def when missing or not numeric.
func (m DataMap) GetLong(key string, def int64) int64 {
	v, ok := m.number(key)
	if !ok {
		return def
	}
	return v
}

// GetString returns the string stored under key, or def when missing or not a string.
func (m DataMap) GetString(key, def string) string {
	s, ok := m[key].(string)
	if !ok {
		return def
	}
	return s
}

func (m DataMap) number(key string) (int64, bool) {
	switch v := m[key].(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, true
		}
		if f, err := v.Float64(); err == nil {
			return int64(f), true
		}
		return 0, false
	case string:
		i, err := strconv.ParseInt(v, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// Clone returns a shallow copy; values are immutable scalars.
func (m DataMap) Clone() DataMap {
	out := make(DataMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Equal compares canonical JSON encodings, so int64(5) and json.Number("5") are equal.
func (m DataMap) Equal(o DataMap) bool {
	a, err := m.canonical()
	if err != nil {
		return false
	}
	b, err := o.canonical()
	if err != nil {
		return false
	}
	return bytes.Equal(a, b)
}

func (m DataMap) canonical() ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	// encoding/json sorts map keys.
	return json.Marshal(map[string]any(m))
}
