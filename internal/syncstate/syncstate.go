// Package syncstate verifies that a working tree still matches its recorded
// sync manifest before a side-effecting run.
package syncstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/marcohefti/specc/internal/canon"
	"github.com/marcohefti/specc/internal/codes"
	"github.com/marcohefti/specc/internal/store"
)

// FileName is the manifest written at the tree root.
const FileName = ".specc-sync.json"

const manifestVersion = 1

// SyncError carries one of the sync_* codes.
type SyncError struct {
	Code    string
	Message string
}

func (e *SyncError) Error() string { return e.Code + ": " + e.Message }

func IsCode(err error, code string) bool {
	var se *SyncError
	return errors.As(err, &se) && se.Code == code
}

type Manifest struct {
	Version    int               `json:"version"`
	TreeSHA256 string            `json:"tree_sha256"`
	Files      map[string]string `json:"files"`
}

type State struct {
	OK     bool   `json:"ok"`
	SHA256 string `json:"sha256"`
}

// skipDirs are never part of the tree.
var skipDirs = map[string]bool{".git": true, ".specc": true}

// Scan hashes every regular file under root, keyed by slash path.
func Scan(root string) (map[string]string, error) {
	files := map[string]string{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == FileName || strings.HasSuffix(rel, ".lock/owner.json") {
			return nil
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files[rel] = canon.SHA256Hex(b)
		return nil
	})
	return files, err
}

func treeHash(files map[string]string) (string, error) {
	return canon.Fingerprint(files)
}

// Record writes a fresh manifest for root.
func Record(root string) (Manifest, error) {
	files, err := Scan(root)
	if err != nil {
		return Manifest{}, err
	}
	h, err := treeHash(files)
	if err != nil {
		return Manifest{}, err
	}
	m := Manifest{Version: manifestVersion, TreeSHA256: h, Files: files}
	if err := store.WriteJSONAtomic(filepath.Join(root, FileName), m); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// Verify compares root against its manifest.
func Verify(root string) (State, error) {
	raw, err := os.ReadFile(filepath.Join(root, FileName))
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, &SyncError{Code: codes.SyncMissing, Message: FileName + " not found in " + root}
		}
		return State{}, err
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return State{}, &SyncError{Code: codes.SyncInvalidFormat, Message: err.Error()}
	}
	if m.Version != manifestVersion || m.TreeSHA256 == "" || m.Files == nil {
		return State{}, &SyncError{Code: codes.SyncInvalidFormat, Message: "manifest needs version 1, tree_sha256 and files"}
	}
	if h, err := treeHash(m.Files); err != nil || h != m.TreeSHA256 {
		return State{}, &SyncError{Code: codes.SyncInvalidFormat, Message: "tree_sha256 does not match the listed files"}
	}

	current, err := Scan(root)
	if err != nil {
		return State{}, err
	}
	var added, removed, changed []string
	for p, h := range m.Files {
		cur, ok := current[p]
		switch {
		case !ok:
			removed = append(removed, p)
		case cur != h:
			changed = append(changed, p)
		}
	}
	for p := range current {
		if _, ok := m.Files[p]; !ok {
			added = append(added, p)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	sort.Strings(changed)
	if len(added) > 0 || len(removed) > 0 {
		return State{}, &SyncError{
			Code:    codes.SyncTreeMismatch,
			Message: fmt.Sprintf("added %v removed %v", added, removed),
		}
	}
	if len(changed) > 0 {
		return State{}, &SyncError{Code: codes.SyncHashMismatch, Message: fmt.Sprintf("changed %v", changed)}
	}
	return State{OK: true, SHA256: m.TreeSHA256}, nil
}
