package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/marcohefti/specc/internal/codes"
	"github.com/marcohefti/specc/internal/config"
	"github.com/marcohefti/specc/internal/determinism"
	"github.com/marcohefti/specc/internal/logging"
	"github.com/marcohefti/specc/internal/pipeline"
	"github.com/marcohefti/specc/internal/report"
	"github.com/marcohefti/specc/internal/snapstore"
)

type replayOutput struct {
	determinism.ReplayResult
	Source string `json:"source"`
}

func (s *session) replayCmd() *cobra.Command {
	var (
		snapshotDB string
		jsonOut    bool
	)
	cmd := &cobra.Command{
		Use:   "replay <run-dir|spec-fingerprint>",
		Short: "Recompile from a determinism snapshot and diff the checklist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := s.logger()
			opts := config.FromEnv(s.r.Environ)
			snap, source, err := s.loadSnapshot(args[0], snapshotDB, &opts, log)
			if err != nil {
				return err
			}
			engine := &pipeline.Engine{Version: s.r.Version, Logger: log}
			res, err := engine.Replay(cmd.Context(), pipeline.RunContext{Options: opts}, snap)
			if err != nil {
				return &CliError{Code: codes.SnapshotInvalid, Message: err.Error()}
			}
			if !res.Match {
				s.setExit(codes.ExitDeterminismMismatch)
			}
			out := replayOutput{ReplayResult: res, Source: source}
			if jsonOut {
				return s.writeJSON(out)
			}
			printReplay(s, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&snapshotDB, "snapshot-db", "", "BadgerDB directory for fingerprint lookups (default from config)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the replay result as JSON")
	return cmd
}

// loadSnapshot reads determinism_snapshot.json from a run directory, or looks
// the argument up as a spec fingerprint in the snapshot db. For run
// directories the recorded strictness levels replace opts'.
func (s *session) loadSnapshot(arg, dbPath string, opts *config.Options, log *logging.Logger) (determinism.Snapshot, string, error) {
	if info, err := os.Stat(arg); err == nil && info.IsDir() {
		var snap determinism.Snapshot
		if err := decodeFile(filepath.Join(arg, pipeline.FileSnapshot), &snap); err != nil {
			return snap, "", err
		}
		var bundle report.GovernanceBundle
		if err := decodeFile(filepath.Join(arg, pipeline.FileGovernanceBundle), &bundle); err == nil {
			opts.StrictnessLevels = bundle.StrictnessLevels
		} else {
			log.Warn("governance bundle unreadable, using environment strictness", "error", err)
		}
		return snap, arg, nil
	}

	if dbPath == "" {
		merged, err := config.LoadMerged("")
		if err != nil {
			return determinism.Snapshot{}, "", usageErr("config: %s", err.Error())
		}
		dbPath = merged.SnapshotDB
	}
	if dbPath == "" {
		return determinism.Snapshot{}, "", usageErr("%s is not a run directory and no --snapshot-db is configured", arg)
	}
	db, err := snapstore.Open(snapstore.Config{Path: dbPath, Logger: log})
	if err != nil {
		return determinism.Snapshot{}, "", ioErr(err)
	}
	defer db.Close()
	snap, err := db.Get(arg)
	if err != nil {
		var se *snapstore.SnapshotError
		if errors.As(err, &se) {
			return determinism.Snapshot{}, "", &CliError{Code: se.Code, Message: se.Message}
		}
		return determinism.Snapshot{}, "", ioErr(err)
	}
	return snap, dbPath, nil
}

func decodeFile(path string, v any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &CliError{Code: codes.MissingArtifact, Message: "missing " + path}
		}
		return ioErr(err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return &CliError{Code: codes.InvalidJSON, Message: fmt.Sprintf("%s: %v", path, err)}
	}
	return nil
}

func printReplay(s *session, out replayOutput) {
	st := stylesFor(s.r.Stdout)
	if out.Match {
		fmt.Fprintf(s.r.Stdout, "%s %s\n", st.ok.Render("match"), st.muted.Render(out.ActualSHA256))
		return
	}
	fmt.Fprintf(s.r.Stdout, "%s expected %s got %s\n", st.bad.Render("mismatch"), out.ExpectedSHA256, out.ActualSHA256)
	for _, d := range out.Diff {
		line := "  " + d.Change + " " + d.Key
		if d.ItemID != "" {
			line += "[" + d.ItemID + "]"
		}
		if len(d.Fields) > 0 {
			line += fmt.Sprintf(" %v", d.Fields)
		}
		fmt.Fprintln(s.r.Stdout, line)
	}
}
