package gc

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/marcohefti/specc/internal/config"
	"github.com/marcohefti/specc/internal/pipeline"
	"github.com/marcohefti/specc/internal/report"
)

type RunInfo struct {
	RunID           string    `json:"run_id"`
	SpecFingerprint string    `json:"spec_fingerprint"`
	Path            string    `json:"path"`
	WrittenAt       time.Time `json:"written_at"`
	Bytes           int64     `json:"bytes"`
}

type Result struct {
	OK          bool      `json:"ok"`
	OutRoot     string    `json:"out_root"`
	DryRun      bool      `json:"dry_run"`
	Deleted     []RunInfo `json:"deleted,omitempty"`
	Kept        []RunInfo `json:"kept,omitempty"`
	Errors      []string  `json:"errors,omitempty"`
	TotalBefore int64     `json:"total_before_bytes"`
	TotalAfter  int64     `json:"total_after_bytes"`
}

type Opts struct {
	OutRoot       string
	Now           time.Time
	MaxAgeDays    int
	MaxTotalBytes int64
	// KeepLatestPerSpec keeps the newest run of each spec fingerprint
	// regardless of age or size limits.
	KeepLatestPerSpec bool
	DryRun            bool
}

// Run removes run directories by age and total size. Artifacts carry no
// timestamps, so a run's age is the modification time of its manifest.
// Directories without a readable manifest are incomplete and left alone.
func Run(opts Opts) (Result, error) {
	outRoot := opts.OutRoot
	if outRoot == "" {
		outRoot = config.DefaultOutRoot
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	runsDir := filepath.Join(outRoot, "runs")
	entries, err := os.ReadDir(runsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{OK: true, OutRoot: outRoot, DryRun: opts.DryRun}, nil
		}
		return Result{}, err
	}

	var runs []RunInfo
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		runDir := filepath.Join(runsDir, e.Name())
		manifestPath := filepath.Join(runDir, pipeline.FileManifest)
		raw, err := os.ReadFile(manifestPath)
		if err != nil {
			continue
		}
		var m report.Manifest
		if err := json.Unmarshal(raw, &m); err != nil || m.SchemaVersion != report.SchemaVersion {
			continue
		}
		info, err := os.Stat(manifestPath)
		if err != nil {
			continue
		}
		size, _ := dirSize(runDir)
		runs = append(runs, RunInfo{
			RunID:           m.RunID,
			SpecFingerprint: m.SpecFingerprint,
			Path:            runDir,
			WrittenAt:       info.ModTime().UTC(),
			Bytes:           size,
		})
	}

	sort.Slice(runs, func(i, j int) bool {
		if runs[i].WrittenAt.Equal(runs[j].WrittenAt) {
			return runs[i].RunID < runs[j].RunID
		}
		return runs[i].WrittenAt.Before(runs[j].WrittenAt)
	})

	protected := map[string]bool{}
	if opts.KeepLatestPerSpec {
		latest := map[string]string{}
		for _, r := range runs {
			latest[r.SpecFingerprint] = r.RunID
		}
		for _, id := range latest {
			protected[id] = true
		}
	}

	var total int64
	for _, r := range runs {
		total += r.Bytes
	}
	res := Result{OK: true, OutRoot: outRoot, DryRun: opts.DryRun, TotalBefore: total, TotalAfter: total}

	shouldDelete := make(map[string]bool)
	if opts.MaxAgeDays > 0 {
		cutoff := now.Add(-time.Duration(opts.MaxAgeDays) * 24 * time.Hour)
		for _, r := range runs {
			if !protected[r.RunID] && r.WrittenAt.Before(cutoff) {
				shouldDelete[r.RunID] = true
			}
		}
	}

	// Oldest first until under the size limit.
	if opts.MaxTotalBytes > 0 {
		for _, r := range runs {
			if shouldDelete[r.RunID] {
				total -= r.Bytes
			}
		}
		for _, r := range runs {
			if total <= opts.MaxTotalBytes {
				break
			}
			if protected[r.RunID] || shouldDelete[r.RunID] {
				continue
			}
			shouldDelete[r.RunID] = true
			total -= r.Bytes
		}
	}

	for _, r := range runs {
		if !shouldDelete[r.RunID] {
			res.Kept = append(res.Kept, r)
			continue
		}
		if !opts.DryRun {
			if err := os.RemoveAll(r.Path); err != nil {
				res.OK = false
				res.Errors = append(res.Errors, r.RunID+": "+err.Error())
				res.Kept = append(res.Kept, r)
				continue
			}
		}
		res.Deleted = append(res.Deleted, r)
		res.TotalAfter -= r.Bytes
	}
	return res, nil
}

func dirSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}
