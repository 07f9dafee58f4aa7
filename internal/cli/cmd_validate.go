package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marcohefti/specc/internal/codes"
	"github.com/marcohefti/specc/internal/validate"
)

func (s *session) validateCmd() *cobra.Command {
	var strict, jsonOut bool
	cmd := &cobra.Command{
		Use:   "validate <run-dir>",
		Short: "Check a run directory against its audit index and manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := validate.ValidatePath(args[0], strict)
			if err != nil {
				ce := asCliError(err)
				if ce.Code == codes.Usage && !validate.IsCliError(err, codes.Usage) {
					// Not a typed validation error: the path itself is unreadable.
					ce = &CliError{Code: codes.IO, Message: err.Error()}
				}
				if !jsonOut {
					return ce
				}
				s.setExit(codes.ExitValidationFailure)
				return s.writeJSON(validate.Result{
					OK:     false,
					Strict: strict,
					Path:   args[0],
					Errors: []validate.Finding{{Code: ce.Code, Message: ce.Message}},
				})
			}
			if !res.OK {
				s.setExit(codes.ExitValidationFailure)
			}
			if jsonOut {
				return s.writeJSON(res)
			}
			st := stylesFor(s.r.Stdout)
			status := st.ok.Render("ok")
			if !res.OK {
				status = st.bad.Render("invalid")
			}
			fmt.Fprintf(s.r.Stdout, "%s %s (%d files)\n", status, res.Path, res.Files)
			for _, f := range res.Errors {
				fmt.Fprintf(s.r.Stdout, "  error   %s %s: %s\n", f.Code, f.Path, f.Message)
			}
			for _, f := range res.Warnings {
				fmt.Fprintf(s.r.Stdout, "  warning %s %s: %s\n", f.Code, f.Path, f.Message)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "treat unindexed files and soft findings as errors")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the result as JSON")
	return cmd
}
