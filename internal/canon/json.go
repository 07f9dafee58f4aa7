package canon

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// JSON encodes v as minimal JSON: sorted keys, no whitespace, HTML escaping
// disabled. Struct values are re-decoded first so their keys sort too.
func JSON(v any) ([]byte, error) {
	generic, err := Generic(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(generic); err != nil {
		return nil, err
	}
	b := buf.Bytes()
	if len(b) > 0 && b[len(b)-1] == '\n' {
		b = b[:len(b)-1]
	}
	return b, nil
}

// Indented encodes v with sorted keys, 2-space indent and a trailing newline.
// This is the on-disk artifact encoding.
func Indented(v any) ([]byte, error) {
	generic, err := Generic(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Generic converts v into maps, slices and scalars by a JSON round trip.
// Integers survive as json.Number.
func Generic(v any) (any, error) {
	switch v.(type) {
	case string, bool, nil, int64, float64:
		return v, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// Fingerprint is the hex SHA-256 of the canonical JSON of v.
func Fingerprint(v any) (string, error) {
	b, err := JSON(v)
	if err != nil {
		return "", err
	}
	return SHA256Hex(b), nil
}

func SHA256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Short returns the first n hex characters of sha256(s).
func Short(s string, n int) string {
	h := SHA256Hex([]byte(s))
	if n <= 0 || n > len(h) {
		return h
	}
	return h[:n]
}
