package sqlrepo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// timeKey tags a timestamp in a stored document: {"$time": "<RFC 3339>"}.
const timeKey = "$time"

func encode(m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := encodeValue(m)
	if err != nil {
		return "", fmt.Errorf("encoding document: %w", err)
	}
	return string(b), nil
}

// encodeValue marshals v with its timestamps tagged, so decode returns them
// as time.Time.
func encodeValue(v any) ([]byte, error) {
	return json.Marshal(tag(v))
}

func tag(v any) any {
	switch x := v.(type) {
	case time.Time:
		return map[string]any{timeKey: x.Format(time.RFC3339Nano)}
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = tag(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = tag(e)
		}
		return out
	}
	return v
}

// decode reads a JSON document. Integral numbers become int64 and the rest
// float64, and tagged timestamps become time.Time, so expressions see the
// same types they were written with.
func decode(s string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()

	m := map[string]any{}
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	for k, v := range m {
		m[k] = native(v)
	}
	return m, nil
}

func native(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case map[string]any:
		if s, ok := x[timeKey].(string); ok && len(x) == 1 {
			if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
				return t
			}
		}
		for k, e := range x {
			x[k] = native(e)
		}
		return x
	case []any:
		for i, e := range x {
			x[i] = native(e)
		}
		return x
	}
	return v
}
