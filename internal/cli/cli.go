package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcohefti/specc/internal/codes"
	"github.com/marcohefti/specc/internal/logging"
	"github.com/marcohefti/specc/internal/report"
	"github.com/marcohefti/specc/internal/validate"
)

// CliError is printed as "<code>: <message>" on stderr. Exit defaults to
// ExitValidationFailure.
type CliError struct {
	Code    string
	Message string
	Exit    int
}

func (e *CliError) Error() string { return e.Message }

type Runner struct {
	Version string
	Now     func() time.Time
	Stdout  io.Writer
	Stderr  io.Writer
	// Environ feeds config.FromEnv. Defaults to os.Environ().
	Environ []string
}

// session is the state shared by one Run invocation.
type session struct {
	r        Runner
	exit     int
	logLevel string
	logJSON  bool
}

func (r Runner) Run(args []string) int {
	if r.Stdout == nil {
		r.Stdout = os.Stdout
	}
	if r.Stderr == nil {
		r.Stderr = os.Stderr
	}
	if r.Now == nil {
		r.Now = time.Now
	}
	if r.Environ == nil {
		r.Environ = os.Environ()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s := &session{r: r}
	root := s.rootCmd()
	root.SetArgs(args)
	root.SetOut(r.Stdout)
	root.SetErr(r.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		return s.fail(err)
	}
	return s.exit
}

func (s *session) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "specc",
		Short:         "Compile specs into deterministic, auditable implementation checklists",
		Version:       s.r.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate("{{.Version}}\n")
	root.PersistentFlags().StringVar(&s.logLevel, "log-level", "warn", "log level: debug|info|warn|error")
	root.PersistentFlags().BoolVar(&s.logJSON, "log-json", false, "emit logs as JSON on stderr")
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &CliError{Code: codes.Usage, Message: err.Error()}
	})

	root.AddCommand(
		s.compileCmd(),
		s.replayCmd(),
		s.validateCmd(),
		s.watchCmd(),
		s.initCmd(),
		s.syncCmd(),
		s.doctorCmd(),
		s.gcCmd(),
		s.contractCmd(),
		s.versionCmd(),
	)
	return root
}

func (s *session) logger() *logging.Logger {
	lvl, ok := logging.ParseLevel(s.logLevel)
	if !ok {
		lvl = logging.LevelWarn
	}
	return logging.New(logging.Config{Level: lvl, JSON: s.logJSON, Writer: s.r.Stderr})
}

func (s *session) writeJSON(v any) error {
	enc := json.NewEncoder(s.r.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return &CliError{Code: codes.IO, Message: "failed to encode json"}
	}
	return nil
}

// setExit keeps the most severe exit code seen.
func (s *session) setExit(code int) {
	if code > s.exit {
		s.exit = code
	}
}

func (s *session) fail(err error) int {
	ce := asCliError(err)
	fmt.Fprintf(s.r.Stderr, "%s: %s\n", ce.Code, ce.Message)
	return exitOf(ce)
}

func asCliError(err error) *CliError {
	var ce *CliError
	if errors.As(err, &ce) {
		return ce
	}
	var re *report.CliError
	if errors.As(err, &re) {
		return &CliError{Code: re.Code, Message: re.Message}
	}
	var ve *validate.CliError
	if errors.As(err, &ve) {
		msg := ve.Message
		if ve.Path != "" {
			msg += " (" + ve.Path + ")"
		}
		return &CliError{Code: ve.Code, Message: msg}
	}
	// cobra reports unknown commands and bad args as plain errors.
	return &CliError{Code: codes.Usage, Message: err.Error()}
}

func usageErr(format string, args ...any) error {
	return &CliError{Code: codes.Usage, Message: fmt.Sprintf(format, args...)}
}

func ioErr(err error) error {
	return &CliError{Code: codes.IO, Message: err.Error()}
}
