package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/marcohefti/specc/internal/finalize"
	"github.com/marcohefti/specc/internal/report"
)

var (
	colorOK   = lipgloss.Color("#2CD7C7")
	colorWarn = lipgloss.Color("#F4D03F")
	colorBad  = lipgloss.Color("#E74C3C")
	colorDim  = lipgloss.Color("#2C4A54")
)

type styles struct {
	title lipgloss.Style
	ok    lipgloss.Style
	warn  lipgloss.Style
	bad   lipgloss.Style
	muted lipgloss.Style
	box   lipgloss.Style
}

// stylesFor returns colored styles only when w is a terminal, so piped output
// and test buffers stay plain text.
func stylesFor(w io.Writer) styles {
	f, ok := w.(*os.File)
	if !ok || !(isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		plain := lipgloss.NewStyle()
		return styles{title: plain, ok: plain, warn: plain, bad: plain, muted: plain, box: plain}
	}
	return styles{
		title: lipgloss.NewStyle().Bold(true),
		ok:    lipgloss.NewStyle().Foreground(colorOK).Bold(true),
		warn:  lipgloss.NewStyle().Foreground(colorWarn).Bold(true),
		bad:   lipgloss.NewStyle().Foreground(colorBad).Bold(true),
		muted: lipgloss.NewStyle().Foreground(colorDim),
		box:   lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorDim).Padding(0, 1),
	}
}

var titleCaser = cases.Title(language.English)

// outcomeLabel renders an outcome such as DIAGNOSTIC as "Diagnostic".
func outcomeLabel(o string) string {
	return titleCaser.String(strings.ToLower(o))
}

func (st styles) outcome(o string) string {
	label := outcomeLabel(o)
	switch finalize.Outcome(o) {
	case finalize.OutcomeSuccess, finalize.OutcomeDiagnostic:
		return st.ok.Render(label)
	case finalize.OutcomeBlocked, finalize.OutcomeAction:
		return st.warn.Render(label)
	default:
		return st.bad.Render(label)
	}
}

func printSummary(w io.Writer, sum report.Summary, runDir string, dryRun bool) {
	st := stylesFor(w)
	validity := st.ok.Render(sum.ValidityStatus)
	if sum.ValidityStatus != "pass" {
		validity = st.bad.Render(sum.ValidityStatus)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s  validity %s\n", st.title.Render("specc"), st.outcome(sum.PrimaryOutcome), validity)
	fmt.Fprintf(&b, "run        %s\n", sum.RunID)
	fmt.Fprintf(&b, "checklist  %s\n", sum.ChecklistFile)
	fmt.Fprintf(&b, "items      %d (requirements %d, coverage %.0f%%, quality %d)\n",
		sum.ItemCount, sum.RequirementCount, sum.CoveredPct*100, sum.QualityScore)
	fmt.Fprintf(&b, "conversion %s %s", sum.ConversionState, st.muted.Render(sum.StateReason))
	fmt.Fprintln(w, st.box.Render(b.String()))
	if dryRun {
		fmt.Fprintln(w, st.muted.Render("dry run: nothing written"))
		return
	}
	fmt.Fprintf(w, "%s\n", st.muted.Render(runDir))
}
