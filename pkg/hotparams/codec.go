// Package hotparams encodes and decodes the sparse backend routing hints
// stored on a job record as an opaque blob.
//
// The blob is a flat JSON object. Null values are dropped on decode and never
// written on encode. An empty map encodes to "no update": callers keep the
// previous blob rather than overwriting it with an empty one.
package hotparams

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedBlob indicates the blob is not a flat JSON object.
var ErrMalformedBlob = errors.New("malformed hot params blob")

// MalformedBlobError wraps a decode failure.
type MalformedBlobError struct {
	Err error
}

// Error implements the error interface.
func (e *MalformedBlobError) Error() string {
	return fmt.Sprintf("%v: %v", ErrMalformedBlob, e.Err)
}

// Unwrap returns ErrMalformedBlob so errors.Is matches the sentinel.
func (e *MalformedBlobError) Unwrap() []error {
	return []error{ErrMalformedBlob, e.Err}
}

// Decode parses a blob into a map.
//
// A blank blob yields an empty map. Scalars are rendered as strings: strings
// verbatim, numbers as written, booleans as "true"/"false". Nested arrays or
// objects are kept as compact JSON text.
func Decode(blob string) (map[string]string, error) {
	if strings.TrimSpace(blob) == "" {
		return map[string]string{}, nil
	}

	dec := json.NewDecoder(strings.NewReader(blob))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, &MalformedBlobError{Err: err}
	}
	if raw == nil {
		// Literal "null".
		return nil, &MalformedBlobError{Err: errors.New("blob is not a JSON object")}
	}
	if dec.More() {
		return nil, &MalformedBlobError{Err: errors.New("trailing data after JSON object")}
	}

	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		s, err := scalarString(v)
		if err != nil {
			return nil, &MalformedBlobError{Err: fmt.Errorf("key %q: %w", k, err)}
		}
		out[k] = s
	}
	return out, nil
}

// DecodeLenient is the read path: a malformed blob reads as an empty map.
// Anything that needs routing data must use Decode and surface the error.
func DecodeLenient(blob string) map[string]string {
	m, err := Decode(blob)
	if err != nil {
		return map[string]string{}
	}
	return m
}

// Encode serializes a map into a blob.
//
// ok is false when there is nothing to write; the caller must then leave any
// existing blob untouched.
func Encode(m map[string]string) (blob string, ok bool, err error) {
	if len(m) == 0 {
		return "", false, nil
	}
	// encoding/json sorts map keys, so the output is stable.
	b, err := json.Marshal(m)
	if err != nil {
		return "", false, fmt.Errorf("encode hot params: %w", err)
	}
	return string(b), true, nil
}

func scalarString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case bool:
		if t {
			return "true", nil
		}
		return "false", nil
	default:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(t); err != nil {
			return "", err
		}
		return strings.TrimSuffix(buf.String(), "\n"), nil
	}
}
