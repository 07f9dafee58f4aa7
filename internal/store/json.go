package store

import (
	"github.com/marcohefti/specc/internal/canon"
)

// WriteJSONAtomic writes v with sorted keys, 2-space indent and a trailing newline.
func WriteJSONAtomic(path string, v any) error {
	b, err := canon.Indented(v)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, b)
}

// MarshalArtifact returns the exact bytes WriteJSONAtomic would write for v.
func MarshalArtifact(v any) ([]byte, error) {
	return canon.Indented(v)
}
