// Package baseline persists a set of previously-seen TOD findings so
// repeat runs can suppress what has already been triaged
// (SPEC_FULL.md "Baseline persistence").
package baseline

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/avlsec/solanalyzer/report"
)

// Entry identifies one suppressed finding. Two findings match when every
// field is equal; Note is excluded since timestamp-influence notes embed
// a node id that is otherwise already captured by UseNode.
type Entry struct {
	Variable string `yaml:"variable"`
	DefNode  string `yaml:"def_node"`
	DefFunc  string `yaml:"def_func"`
	UseNode  string `yaml:"use_node"`
	UseFunc  string `yaml:"use_func"`
	Intra    bool   `yaml:"intra"`
}

// File is the on-disk baseline document.
type File struct {
	Entries []Entry `yaml:"entries"`
}

// Load reads a baseline file. A missing file yields an empty baseline,
// not an error, so --baseline can point at a file that is created on
// first run.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &File{}, nil
	}
	if err != nil {
		return nil, err
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Save writes the baseline file, overwriting any existing content.
func Save(path string, f *File) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// FromFindings builds a baseline entry set from the current findings.
func FromFindings(findings []report.Finding) *File {
	f := &File{Entries: make([]Entry, 0, len(findings))}
	for _, fnd := range findings {
		f.Entries = append(f.Entries, Entry{
			Variable: fnd.Variable,
			DefNode:  fnd.DefNode,
			DefFunc:  fnd.DefFunc,
			UseNode:  fnd.UseNode,
			UseFunc:  fnd.UseFunc,
			Intra:    fnd.Intra,
		})
	}
	return f
}

func (e Entry) matches(f report.Finding) bool {
	return e.Variable == f.Variable && e.DefNode == f.DefNode && e.DefFunc == f.DefFunc &&
		e.UseNode == f.UseNode && e.UseFunc == f.UseFunc && e.Intra == f.Intra
}

// Filter returns the findings not present in the baseline.
func (f *File) Filter(findings []report.Finding) []report.Finding {
	if f == nil || len(f.Entries) == 0 {
		return findings
	}
	out := make([]report.Finding, 0, len(findings))
	for _, fnd := range findings {
		suppressed := false
		for _, e := range f.Entries {
			if e.matches(fnd) {
				suppressed = true
				break
			}
		}
		if !suppressed {
			out = append(out, fnd)
		}
	}
	return out
}
