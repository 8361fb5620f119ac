package output

import (
	"io"
	"os"
	"time"

	"github.com/goccy/go-json"

	"github.com/avlsec/solanalyzer/report"
)

// JSONFormatter formats TOD findings as JSON.
type JSONFormatter struct {
	writer io.Writer
}

// NewJSONFormatter creates a JSON formatter writing to stdout.
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{writer: os.Stdout}
}

// NewJSONFormatterWithWriter creates a formatter with a custom writer
// (for testing).
func NewJSONFormatterWithWriter(w io.Writer) *JSONFormatter {
	return &JSONFormatter{writer: w}
}

// JSONOutput is the complete JSON output structure.
type JSONOutput struct {
	Tool    JSONTool     `json:"tool"`
	Scan    JSONScan     `json:"scan"`
	Results []JSONResult `json:"results"`
	Summary JSONSummary  `json:"summary"`
}

// JSONTool contains tool metadata.
type JSONTool struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// JSONScan contains scan metadata.
type JSONScan struct {
	Target    string  `json:"target"`
	Timestamp string  `json:"timestamp"`
	Duration  float64 `json:"duration"`
}

// JSONResult represents a single TOD finding.
type JSONResult struct {
	Variable string `json:"variable"`
	Severity string `json:"severity"`
	DefNode  string `json:"def_node,omitempty"`  //nolint:tagliatelle
	DefFunc  string `json:"def_func,omitempty"`  //nolint:tagliatelle
	UseNode  string `json:"use_node,omitempty"`  //nolint:tagliatelle
	UseFunc  string `json:"use_func,omitempty"`  //nolint:tagliatelle
	Intra    bool   `json:"intra"`
	Message  string `json:"message"`
}

// JSONSummary contains aggregated statistics.
type JSONSummary struct {
	Total      int            `json:"total"`
	BySeverity map[string]int `json:"by_severity"` //nolint:tagliatelle
}

// ScanInfo contains metadata about the run.
type ScanInfo struct {
	Target   string
	Version  string
	Duration time.Duration
}

// Format writes every finding as JSON.
func (f *JSONFormatter) Format(findings []report.Finding, scanInfo ScanInfo) error {
	version := scanInfo.Version
	if version == "" {
		version = "unknown"
	}

	out := JSONOutput{
		Tool: JSONTool{Name: "solanalyzer", Version: version},
		Scan: JSONScan{
			Target:    scanInfo.Target,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Duration:  scanInfo.Duration.Seconds(),
		},
		Results: buildResults(findings),
		Summary: buildSummary(findings),
	}

	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

func buildResults(findings []report.Finding) []JSONResult {
	results := make([]JSONResult, 0, len(findings))
	for _, fnd := range findings {
		results = append(results, JSONResult{
			Variable: fnd.Variable,
			Severity: string(fnd.Severity),
			DefNode:  fnd.DefNode,
			DefFunc:  fnd.DefFunc,
			UseNode:  fnd.UseNode,
			UseFunc:  fnd.UseFunc,
			Intra:    fnd.Intra,
			Message:  fnd.Message(),
		})
	}
	return results
}

func buildSummary(findings []report.Finding) JSONSummary {
	bySeverity := map[string]int{}
	for _, fnd := range findings {
		bySeverity[string(fnd.Severity)]++
	}
	return JSONSummary{Total: len(findings), BySeverity: bySeverity}
}
