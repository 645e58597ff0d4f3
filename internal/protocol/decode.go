package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

var (
	ErrDuplicateField = errors.New("duplicate field")
	ErrInvalidString  = errors.New("invalid string")
	ErrNotObject      = errors.New("expected JSON object")
)

// object holds the members of one JSON object keyed by their exact names.
// Lookups are case-sensitive, unlike encoding/json struct decoding.
type object map[string]json.RawMessage

func decodeObject(data []byte) (object, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, ErrNotObject
	}
	obj := make(object)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, ErrNotObject
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		if _, dup := obj[key]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateField, key)
		}
		obj[key] = raw
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after JSON object")
	}
	return obj, nil
}

// present reports whether key exists with a non-null value.
func (o object) present(key string) bool {
	raw, ok := o[key]
	return ok && !isNull(raw)
}

func (o object) requireString(key string) (string, error) {
	raw, ok := o[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingField, key)
	}
	s, err := decodeString(raw)
	if err != nil {
		return "", fmt.Errorf("field %s: %w", key, err)
	}
	return s, nil
}

func (o object) optionalString(key string) (string, error) {
	if !o.present(key) {
		return "", nil
	}
	return o.requireString(key)
}

func (o object) requireInt(key string) (int64, error) {
	raw, ok := o[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingField, key)
	}
	var v int64
	if err := json.Unmarshal(raw, &v); err != nil || isNull(raw) {
		if err == nil {
			err = errors.New("null is not an integer")
		}
		return 0, fmt.Errorf("field %s: %w", key, err)
	}
	return v, nil
}

func (o object) optionalInt(key string) (*int64, error) {
	if !o.present(key) {
		return nil, nil
	}
	v, err := o.requireInt(key)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (o object) optionalStrings(key string) ([]string, error) {
	if !o.present(key) {
		return nil, nil
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(o[key], &raws); err != nil {
		return nil, fmt.Errorf("field %s: %w", key, err)
	}
	out := make([]string, 0, len(raws))
	for i, raw := range raws {
		s, err := decodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("field %s[%d]: %w", key, i, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// decodeString decodes a JSON string literal, rejecting input that
// encoding/json would otherwise rewrite to U+FFFD: invalid UTF-8 and
// unpaired surrogate escapes.
func decodeString(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || raw[0] != '"' {
		return "", fmt.Errorf("%w: not a string", ErrInvalidString)
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("%w: invalid UTF-8", ErrInvalidString)
	}
	if err := checkSurrogates(raw); err != nil {
		return "", err
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", err
	}
	return s, nil
}

func checkSurrogates(raw []byte) error {
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' {
			continue
		}
		if i+1 >= len(raw) || raw[i+1] != 'u' {
			i++
			continue
		}
		r, ok := hex4(raw, i+2)
		if !ok {
			// Malformed escape; json.Unmarshal reports it.
			return nil
		}
		switch {
		case r >= 0xDC00 && r <= 0xDFFF:
			return fmt.Errorf("%w: unpaired surrogate \\u%04x", ErrInvalidString, r)
		case r >= 0xD800 && r <= 0xDBFF:
			j := i + 6
			if j+1 >= len(raw) || raw[j] != '\\' || raw[j+1] != 'u' {
				return fmt.Errorf("%w: unpaired surrogate \\u%04x", ErrInvalidString, r)
			}
			lo, ok := hex4(raw, j+2)
			if !ok || lo < 0xDC00 || lo > 0xDFFF {
				return fmt.Errorf("%w: unpaired surrogate \\u%04x", ErrInvalidString, r)
			}
			i = j + 5
		default:
			i += 5
		}
	}
	return nil
}

func hex4(raw []byte, at int) (rune, bool) {
	if at+4 > len(raw) {
		return 0, false
	}
	var r rune
	for _, c := range raw[at : at+4] {
		r <<= 4
		switch {
		case c >= '0' && c <= '9':
			r |= rune(c - '0')
		case c >= 'a' && c <= 'f':
			r |= rune(c-'a') + 10
		case c >= 'A' && c <= 'F':
			r |= rune(c-'A') + 10
		default:
			return 0, false
		}
	}
	return r, true
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

// marshalJSON encodes v without HTML escaping so string values go out as
// written.
func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
