package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marcohefti/specc/internal/codes"
	"github.com/marcohefti/specc/internal/config"
	"github.com/marcohefti/specc/internal/contract"
	"github.com/marcohefti/specc/internal/doctor"
	"github.com/marcohefti/specc/internal/gc"
	"github.com/marcohefti/specc/internal/syncstate"
)

func (s *session) initCmd() *cobra.Command {
	var (
		outRoot    string
		configPath string
		jsonOut    bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the output root and a default project config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := config.InitProject(configPath, outRoot)
			if err != nil {
				return usageErr("init: %s", err.Error())
			}
			if jsonOut {
				return s.writeJSON(res)
			}
			verb := "using existing"
			if res.Created {
				verb = "created"
			}
			fmt.Fprintf(s.r.Stdout, "%s %s (out_root %s)\n", verb, res.ConfigPath, res.OutRoot)
			return nil
		},
	}
	cmd.Flags().StringVar(&outRoot, "out-root", config.DefaultOutRoot, "project output root")
	cmd.Flags().StringVar(&configPath, "config", config.DefaultProjectConfigPath, "project config path")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the result as JSON")
	return cmd
}

func (s *session) syncCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Record or verify sync metadata for a directory tree",
	}
	record := &cobra.Command{
		Use:   "record <root>",
		Short: "Write sync metadata for root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := syncstate.Record(args[0])
			if err != nil {
				return ioErr(err)
			}
			if jsonOut {
				return s.writeJSON(m)
			}
			fmt.Fprintf(s.r.Stdout, "recorded %d files, tree %s\n", len(m.Files), m.TreeSHA256)
			return nil
		},
	}
	verify := &cobra.Command{
		Use:   "verify <root>",
		Short: "Check root against its sync metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := syncstate.Verify(args[0])
			if err != nil {
				var se *syncstate.SyncError
				if errors.As(err, &se) {
					return &CliError{Code: se.Code, Message: se.Message}
				}
				return ioErr(err)
			}
			if jsonOut {
				return s.writeJSON(st)
			}
			fmt.Fprintf(s.r.Stdout, "in sync, tree %s\n", st.SHA256)
			return nil
		},
	}
	cmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "print the result as JSON")
	cmd.AddCommand(record, verify)
	return cmd
}

func (s *session) contractCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "contract",
		Short: "Print the artifact layout, commands and error codes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !jsonOut {
				return &CliError{Code: codes.Usage, Message: "contract: require --json for stable output"}
			}
			return s.writeJSON(contract.Build(s.r.Version))
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print JSON output")
	return cmd
}

func (s *session) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(s.r.Stdout, "%s\n", s.r.Version)
			return nil
		},
	}
}

func (s *session) doctorCmd() *cobra.Command {
	var (
		outRoot  string
		syncRoot string
		jsonOut  bool
	)
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check output root, config and collaborator sanity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := doctor.Run(doctor.Opts{OutRoot: outRoot, SyncRoot: syncRoot})
			if err != nil {
				return usageErr("doctor: %s", err.Error())
			}
			if !res.OK {
				s.setExit(codes.ExitValidationFailure)
			}
			if jsonOut {
				return s.writeJSON(res)
			}
			st := stylesFor(s.r.Stdout)
			for _, c := range res.Checks {
				mark := st.ok.Render("ok  ")
				if !c.OK {
					mark = st.bad.Render("FAIL")
				}
				fmt.Fprintf(s.r.Stdout, "%s %-14s %s\n", mark, c.ID, st.muted.Render(c.Message))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&outRoot, "out-root", "", "output root (default from config)")
	cmd.Flags().StringVar(&syncRoot, "sync-root", "", "also verify this tree's sync metadata")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the result as JSON")
	return cmd
}

func (s *session) gcCmd() *cobra.Command {
	var (
		outRoot    string
		maxAge     int
		maxBytes   int64
		keepLatest bool
		dryRun     bool
		jsonOut    bool
	)
	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Remove old run directories by age and total size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := config.LoadMerged(outRoot)
			if err != nil {
				return usageErr("config: %s", err.Error())
			}
			res, err := gc.Run(gc.Opts{
				OutRoot:           m.OutRoot,
				Now:               s.r.Now(),
				MaxAgeDays:        maxAge,
				MaxTotalBytes:     maxBytes,
				KeepLatestPerSpec: keepLatest,
				DryRun:            dryRun,
			})
			if err != nil {
				return ioErr(err)
			}
			if !res.OK {
				s.setExit(codes.ExitValidationFailure)
			}
			if jsonOut {
				return s.writeJSON(res)
			}
			verb := "deleted"
			if dryRun {
				verb = "would delete"
			}
			fmt.Fprintf(s.r.Stdout, "%s %d runs, kept %d (%d -> %d bytes)\n", verb, len(res.Deleted), len(res.Kept), res.TotalBefore, res.TotalAfter)
			return nil
		},
	}
	cmd.Flags().StringVar(&outRoot, "out-root", "", "output root (default from config)")
	cmd.Flags().IntVar(&maxAge, "max-age-days", 30, "delete runs older than this (0 disables)")
	cmd.Flags().Int64Var(&maxBytes, "max-total-bytes", 0, "delete oldest runs until under this size (0 disables)")
	cmd.Flags().BoolVar(&keepLatest, "keep-latest", true, "always keep the newest run of each spec")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report without deleting")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the result as JSON")
	return cmd
}
