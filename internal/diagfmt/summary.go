package diagfmt

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize/english"
	"github.com/fatih/color"

	"kiln/internal/diag"
)

// Summary prints one line counting the errors and warnings in report.
func Summary(w io.Writer, report *diag.Report, useColor bool) {
	p := newPalette(useColor)
	errs, warns := report.ErrorCount(), report.WarningCount()
	if errs == 0 && warns == 0 {
		ok := color.New(color.FgGreen, color.Bold)
		if !useColor {
			ok.DisableColor()
		} else {
			ok.EnableColor()
		}
		fmt.Fprintln(w, ok.Sprint("no problems"))
		return
	}
	var parts []string
	if errs > 0 {
		parts = append(parts, p.err.Sprint(english.Plural(errs, "error", "")))
	}
	if warns > 0 {
		parts = append(parts, p.warn.Sprint(english.Plural(warns, "warning", "")))
	}
	fmt.Fprintln(w, strings.Join(parts, ", "))
}
