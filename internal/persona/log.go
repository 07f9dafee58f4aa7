package persona

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/marcohefti/specc/internal/canon"
	"github.com/marcohefti/specc/internal/events"
	"github.com/marcohefti/specc/internal/redact"
	"github.com/marcohefti/specc/internal/store"
)

// genesis is the prev_hash of the first entry.
const genesis = "0000000000000000000000000000000000000000000000000000000000000000"

// Entry is one line of the persona log. Hash covers every other field.
type Entry struct {
	Seq       int            `json:"seq"`
	PersonaID string         `json:"persona_id"`
	GateID    string         `json:"gate_id"`
	Phase     events.Phase   `json:"phase"`
	Outcome   events.Outcome `json:"outcome"`
	Message   string         `json:"message"`
	PrevHash  string         `json:"prev_hash"`
	Hash      string         `json:"hash"`
}

// Log is the opt-in append-only persona event log. Appends are serialized in
// process by a mutex and across processes by a directory lock.
type Log struct {
	path string
	mu   sync.Mutex
}

func OpenLog(path string) *Log { return &Log{path: path} }

func (l *Log) Path() string { return l.path }

func entryHash(e Entry) (string, error) {
	e.Hash = ""
	b, err := canon.JSON(e)
	if err != nil {
		return "", err
	}
	return canon.SHA256Hex(b), nil
}

// Append chains ev onto the log and returns the written entry. Credentials
// in the message are masked; the log cannot be scrubbed after the fact.
func (l *Log) Append(ev events.Event) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return Entry{}, err
	}
	var out Entry
	err := store.WithDirLock(l.path+".lock", 5*time.Second, func() error {
		entries, err := readEntries(l.path)
		if err != nil {
			return err
		}
		prev := genesis
		if n := len(entries); n > 0 {
			prev = entries[n-1].Hash
		}
		msg, _ := redact.Text(ev.Message)
		out = Entry{
			Seq:       len(entries),
			PersonaID: ev.PersonaID,
			GateID:    ev.GateID,
			Phase:     ev.Phase,
			Outcome:   ev.Outcome,
			Message:   msg,
			PrevHash:  prev,
		}
		h, err := entryHash(out)
		if err != nil {
			return err
		}
		out.Hash = h
		return store.AppendJSONL(l.path, out)
	})
	return out, err
}

// Entries reads the log.
func (l *Log) Entries() ([]Entry, error) {
	return readEntries(l.path)
}

// Verify checks the hash chain and returns the number of entries.
func (l *Log) Verify() (int, error) {
	entries, err := readEntries(l.path)
	if err != nil {
		return 0, err
	}
	prev := genesis
	for i, e := range entries {
		if e.Seq != i {
			return i, fmt.Errorf("%s: entry %d has seq %d", filepath.Base(l.path), i, e.Seq)
		}
		if e.PrevHash != prev {
			return i, fmt.Errorf("%s: entry %d breaks the chain", filepath.Base(l.path), i)
		}
		h, err := entryHash(e)
		if err != nil {
			return i, err
		}
		if h != e.Hash {
			return i, fmt.Errorf("%s: entry %d hash mismatch", filepath.Base(l.path), i)
		}
		prev = e.Hash
	}
	return len(entries), nil
}

func readEntries(path string) ([]Entry, error) {
	lines, err := store.ReadJSONLLines(path)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(lines))
	for i, line := range lines {
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("%s: line %d: %w", filepath.Base(path), i+1, err)
		}
		out = append(out, e)
	}
	return out, nil
}
