package canon

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Decode parses JSON into plain Go values: map[string]any, []any, string,
// bool, nil, int64 for integer literals and float64 for literals with a
// fraction or exponent.
func Decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("decode json: trailing data after value")
	}
	return normalizeNumbers(raw)
}

// DecodeObject is like Decode but requires a JSON object at the top level.
func DecodeObject(data []byte) (map[string]any, error) {
	v, err := Decode(data)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("decode json: expected object, got %T", v)
	}
	return obj, nil
}

func normalizeNumbers(v any) (any, error) {
	switch val := v.(type) {
	case json.Number:
		s := val.String()
		if strings.ContainsAny(s, ".eE") {
			return val.Float64()
		}
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("integer %s out of range: %w", s, err)
		}
		return n, nil
	case []any:
		for i, elem := range val {
			n, err := normalizeNumbers(elem)
			if err != nil {
				return nil, err
			}
			val[i] = n
		}
		return val, nil
	case map[string]any:
		for k, elem := range val {
			n, err := normalizeNumbers(elem)
			if err != nil {
				return nil, err
			}
			val[k] = n
		}
		return val, nil
	default:
		return v, nil
	}
}

// Indent re-formats JSON for display. Number literals are preserved byte
// for byte.
func Indent(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
