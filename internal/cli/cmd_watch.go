package cli

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/marcohefti/specc/internal/codes"
)

const watchDebounce = 200 * time.Millisecond

func (s *session) watchCmd() *cobra.Command {
	var (
		f       compileFlags
		maxRuns int
	)
	cmd := &cobra.Command{
		Use:   "watch <spec>",
		Short: "Recompile whenever the spec file changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.watch(cmd.Context(), args[0], f, maxRuns)
		},
	}
	f.bind(cmd)
	cmd.Flags().IntVar(&maxRuns, "max-runs", 0, "stop after this many compiles (0: until interrupted)")
	_ = cmd.Flags().MarkHidden("max-runs")
	return cmd
}

// watch compiles once, then again after each debounced change to the spec.
// The parent directory is watched so editors that replace the file on save
// are still seen.
func (s *session) watch(ctx context.Context, specPath string, f compileFlags, maxRuns int) error {
	log := s.logger()
	abs, err := filepath.Abs(specPath)
	if err != nil {
		return ioErr(err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return ioErr(err)
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return ioErr(err)
	}

	runs := 0
	once := func() error {
		runs++
		started := s.r.Now()
		res, err := s.compile(ctx, specPath, f)
		if err != nil {
			// Keep watching through bad edits.
			ce := asCliError(err)
			log.Error("compile failed", "code", ce.Code, "error", ce.Message)
			s.setExit(exitOf(ce))
			return nil
		}
		log.Info("compiled", "run_id", res.RunID, "outcome", res.PrimaryOutcome, "elapsed", s.r.Now().Sub(started))
		return s.emitCompile(res, f)
	}
	done := func() bool { return maxRuns > 0 && runs >= maxRuns }

	if err := once(); err != nil || done() {
		return err
	}

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
				fire = timer.C
			} else {
				timer.Reset(watchDebounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("watch error", "error", err)
		case <-fire:
			timer, fire = nil, nil
			if err := once(); err != nil || done() {
				return err
			}
		}
	}
}

func exitOf(ce *CliError) int {
	if ce.Exit != 0 {
		return ce.Exit
	}
	return codes.ExitValidationFailure
}
