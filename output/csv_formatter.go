package output

import (
	"encoding/csv"
	"io"
	"os"

	"github.com/avlsec/solanalyzer/report"
)

// CSVFormatter formats TOD findings as CSV.
type CSVFormatter struct {
	writer io.Writer
}

// NewCSVFormatter creates a CSV formatter writing to stdout.
func NewCSVFormatter() *CSVFormatter {
	return &CSVFormatter{writer: os.Stdout}
}

// NewCSVFormatterWithWriter creates a formatter with a custom writer
// (for testing).
func NewCSVFormatterWithWriter(w io.Writer) *CSVFormatter {
	return &CSVFormatter{writer: w}
}

// CSVHeaders returns the CSV column headers.
func CSVHeaders() []string {
	return []string{"variable", "severity", "intra", "def_node", "def_func", "use_node", "use_func", "message"}
}

// Format writes one row per finding.
func (f *CSVFormatter) Format(findings []report.Finding) error {
	w := csv.NewWriter(f.writer)
	defer w.Flush()

	if err := w.Write(CSVHeaders()); err != nil {
		return err
	}
	for _, fnd := range findings {
		intra := "false"
		if fnd.Intra {
			intra = "true"
		}
		row := []string{fnd.Variable, string(fnd.Severity), intra, fnd.DefNode, fnd.DefFunc, fnd.UseNode, fnd.UseFunc, fnd.Message()}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}
