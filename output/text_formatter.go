package output

import (
	"fmt"
	"io"
	"os"

	"github.com/avlsec/solanalyzer/report"
)

// TextFormatter formats TOD findings as human-readable text.
type TextFormatter struct {
	writer io.Writer
}

// NewTextFormatter creates a text formatter writing to stdout.
func NewTextFormatter() *TextFormatter {
	return &TextFormatter{writer: os.Stdout}
}

// NewTextFormatterWithWriter creates a formatter with a custom writer
// (for testing).
func NewTextFormatterWithWriter(w io.Writer) *TextFormatter {
	return &TextFormatter{writer: w}
}

// Format writes a header with the finding count, then one line per
// finding (or a single "no findings" line when there are none).
func (f *TextFormatter) Format(findings []report.Finding) error {
	if len(findings) == 0 {
		fmt.Fprintln(f.writer, "No transaction-ordering-dependence findings.")
		return nil
	}

	fmt.Fprintf(f.writer, "%d finding(s):\n\n", len(findings))
	for _, fnd := range findings {
		fmt.Fprintf(f.writer, "  [%s] %s\n", fnd.Severity, fnd.Message())
	}
	return nil
}
