package doctor

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/marcohefti/specc/internal/config"
	"github.com/marcohefti/specc/internal/persona"
	"github.com/marcohefti/specc/internal/snapstore"
	"github.com/marcohefti/specc/internal/syncstate"
)

type Check struct {
	ID      string `json:"id"`
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

type Result struct {
	OK      bool    `json:"ok"`
	OutRoot string  `json:"out_root"`
	Checks  []Check `json:"checks"`
}

type Opts struct {
	OutRoot  string
	SyncRoot string
}

func (r *Result) add(c Check) {
	if !c.OK {
		r.OK = false
	}
	r.Checks = append(r.Checks, c)
}

// Run checks that a compile could write its artifacts and that the optional
// collaborators (snapshot db, persona log, sync metadata) are usable.
func Run(opts Opts) (Result, error) {
	m, err := config.LoadMerged(opts.OutRoot)
	if err != nil {
		return Result{}, err
	}
	res := Result{OK: true, OutRoot: m.OutRoot}

	if err := os.MkdirAll(filepath.Join(m.OutRoot, "runs"), 0o755); err != nil {
		res.add(Check{ID: "write_access", Message: err.Error()})
	} else {
		tmp := filepath.Join(m.OutRoot, ".doctor.tmp")
		if err := os.WriteFile(tmp, []byte("ok\n"), 0o644); err != nil {
			res.add(Check{ID: "write_access", Message: err.Error()})
		} else {
			_ = os.Remove(tmp)
			res.add(Check{ID: "write_access", OK: true})
		}
	}

	if _, err := os.Stat(config.DefaultProjectConfigPath); err == nil {
		res.add(Check{ID: "project_config", OK: true, Message: "loaded from " + m.Source})
	} else {
		res.add(Check{ID: "project_config", OK: true, Message: "missing (ok)"})
	}

	if m.SnapshotDB == "" {
		res.add(Check{ID: "snapshot_db", OK: true, Message: "not configured"})
	} else if db, err := snapstore.Open(snapstore.Config{Path: m.SnapshotDB}); err != nil {
		res.add(Check{ID: "snapshot_db", Message: err.Error()})
	} else {
		ids, lerr := db.List()
		_ = db.Close()
		if lerr != nil {
			res.add(Check{ID: "snapshot_db", Message: lerr.Error()})
		} else {
			res.add(Check{ID: "snapshot_db", OK: true, Message: plural(len(ids), "snapshot")})
		}
	}

	if m.PersonaLog == "" {
		res.add(Check{ID: "persona_log", OK: true, Message: "not configured"})
	} else if n, err := persona.OpenLog(m.PersonaLog).Verify(); err != nil {
		res.add(Check{ID: "persona_log", Message: err.Error()})
	} else {
		res.add(Check{ID: "persona_log", OK: true, Message: plural(n, "entry")})
	}

	if opts.SyncRoot != "" {
		if st, err := syncstate.Verify(opts.SyncRoot); err != nil {
			res.add(Check{ID: "sync_state", Message: err.Error()})
		} else {
			res.add(Check{ID: "sync_state", OK: true, Message: "tree " + st.SHA256})
		}
	}
	return res, nil
}

func plural(n int, noun string) string {
	switch {
	case n == 1:
	case noun == "entry":
		noun = "entries"
	default:
		noun += "s"
	}
	return strconv.Itoa(n) + " " + noun
}
