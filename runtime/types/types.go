// Package types maps logical column types to storage types and value converters.
package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// LogicalType identifies how a column's values behave at the API surface,
// independent of how the dialect stores them.
type LogicalType string

const (
	Integer LogicalType = "integer"
	Real    LogicalType = "real"
	Text    LogicalType = "text"
	Blob    LogicalType = "blob"
	Boolean LogicalType = "boolean"
	Date    LogicalType = "date"
	JSON    LogicalType = "json"
)

// Affinity is the storage type the dialect uses for a logical type.
type Affinity string

const (
	AffinityInteger Affinity = "INTEGER"
	AffinityReal    Affinity = "REAL"
	AffinityText    Affinity = "TEXT"
	AffinityBlob    Affinity = "BLOB"
)

// Converter encodes API values into driver values and decodes result values
// back. Both directions reject mismatched shapes rather than coerce.
type Converter struct {
	Affinity Affinity
	Encode   func(v interface{}) (interface{}, error)
	Decode   func(v interface{}) (interface{}, error)
}

// Registry maps logical types to converters. Registries are owned by the
// client instance that constructed them, never shared through package state.
type Registry struct {
	converters map[LogicalType]Converter
}

// NewRegistry creates a registry preloaded with the built-in logical types.
func NewRegistry() *Registry {
	r := &Registry{converters: make(map[LogicalType]Converter)}
	r.Register(Integer, Converter{Affinity: AffinityInteger, Encode: encodeInteger, Decode: decodeInteger})
	r.Register(Real, Converter{Affinity: AffinityReal, Encode: encodeReal, Decode: decodeReal})
	r.Register(Text, Converter{Affinity: AffinityText, Encode: encodeText, Decode: decodeText})
	r.Register(Blob, Converter{Affinity: AffinityBlob, Encode: encodeBlob, Decode: decodeBlob})
	r.Register(Boolean, Converter{Affinity: AffinityInteger, Encode: encodeBoolean, Decode: decodeBoolean})
	r.Register(Date, Converter{Affinity: AffinityText, Encode: encodeDate, Decode: decodeDate})
	r.Register(JSON, Converter{Affinity: AffinityBlob, Encode: encodeJSON, Decode: decodeJSON})
	return r
}

// Register adds or replaces the converter for a logical type.
func (r *Registry) Register(t LogicalType, c Converter) {
	r.converters[t] = c
}

// Lookup returns the converter for a logical type.
func (r *Registry) Lookup(t LogicalType) (Converter, bool) {
	c, ok := r.converters[t]
	return c, ok
}

// Affinity returns the storage type for a logical type, defaulting to TEXT
// for unregistered types.
func (r *Registry) Affinity(t LogicalType) Affinity {
	if c, ok := r.converters[t]; ok {
		return c.Affinity
	}
	return AffinityText
}

// Encode converts an API value into a driver value for the given type.
func (r *Registry) Encode(t LogicalType, v interface{}) (interface{}, error) {
	c, ok := r.converters[t]
	if !ok {
		return nil, fmt.Errorf("no converter registered for type %q", t)
	}
	if v == nil {
		return nil, nil
	}
	return c.Encode(v)
}

// Decode converts a driver value back into an API value for the given type.
func (r *Registry) Decode(t LogicalType, v interface{}) (interface{}, error) {
	c, ok := r.converters[t]
	if !ok {
		return nil, fmt.Errorf("no converter registered for type %q", t)
	}
	if v == nil {
		return nil, nil
	}
	return c.Decode(v)
}

func encodeInteger(v interface{}) (interface{}, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	}
	return nil, fmt.Errorf("expected integer, got %T", v)
}

func decodeInteger(v interface{}) (interface{}, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	}
	return nil, fmt.Errorf("expected integer result, got %T", v)
}

func encodeReal(v interface{}) (interface{}, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	}
	return nil, fmt.Errorf("expected real, got %T", v)
}

func decodeReal(v interface{}) (interface{}, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	}
	return nil, fmt.Errorf("expected real result, got %T", v)
}

func encodeText(v interface{}) (interface{}, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	return nil, fmt.Errorf("expected text, got %T", v)
}

func decodeText(v interface{}) (interface{}, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	}
	return nil, fmt.Errorf("expected text result, got %T", v)
}

func encodeBlob(v interface{}) (interface{}, error) {
	if b, ok := v.([]byte); ok {
		return b, nil
	}
	return nil, fmt.Errorf("expected blob, got %T", v)
}

func decodeBlob(v interface{}) (interface{}, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	}
	return nil, fmt.Errorf("expected blob result, got %T", v)
}

// Booleans are stored as INTEGER 0/1.
func encodeBoolean(v interface{}) (interface{}, error) {
	b, ok := v.(bool)
	if !ok {
		return nil, fmt.Errorf("expected boolean, got %T", v)
	}
	if b {
		return int64(1), nil
	}
	return int64(0), nil
}

func decodeBoolean(v interface{}) (interface{}, error) {
	switch n := v.(type) {
	case int64:
		return n != 0, nil
	case bool:
		return n, nil
	}
	return nil, fmt.Errorf("expected boolean result, got %T", v)
}

// Dates are stored as RFC 3339 text.
func encodeDate(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(time.RFC3339), nil
	case string:
		if _, err := time.Parse(time.RFC3339, t); err != nil {
			return nil, fmt.Errorf("invalid date string %q: %w", t, err)
		}
		return t, nil
	}
	return nil, fmt.Errorf("expected date, got %T", v)
}

func decodeDate(v interface{}) (interface{}, error) {
	switch s := v.(type) {
	case string:
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, fmt.Errorf("invalid stored date %q: %w", s, err)
		}
		return t, nil
	case time.Time:
		return s, nil
	}
	return nil, fmt.Errorf("expected date result, got %T", v)
}

// JSON values are serialized before binding; the generated statement wraps
// the bound text in a jsonb() constructor so the stored form is binary JSON.
func encodeJSON(v interface{}) (interface{}, error) {
	switch j := v.(type) {
	case json.RawMessage:
		return string(j), nil
	case string:
		if !json.Valid([]byte(j)) {
			return nil, fmt.Errorf("invalid json text")
		}
		return j, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("value is not json-encodable: %w", err)
	}
	return string(b), nil
}

func decodeJSON(v interface{}) (interface{}, error) {
	var raw []byte
	switch j := v.(type) {
	case []byte:
		raw = j
	case string:
		raw = []byte(j)
	default:
		return nil, fmt.Errorf("expected json result, got %T", v)
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("invalid stored json: %w", err)
	}
	return out, nil
}
