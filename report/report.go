// Package report defines the TOD finding type shared by every output
// formatter, and the text renderers for the reaching-definitions table,
// the abstract-interpretation dump and invariant lines. They return
// strings; the analyze command logs them and writes no separate report
// files.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/avlsec/solanalyzer/absint"
	"github.com/avlsec/solanalyzer/cfgbuild"
	"github.com/avlsec/solanalyzer/reaching"
)

// Severity classifies a Finding for --fail-on thresholding
// (SPEC_FULL.md "Exit-code policy").
type Severity string

const (
	SeverityHigh Severity = "high"
	SeverityLow  Severity = "low"
)

// Finding is one reportable entry: a TOD warning or a timestamp-influence
// note.
type Finding struct {
	Variable string
	DefNode  string
	DefFunc  string
	UseNode  string
	UseFunc  string
	Intra    bool
	Severity Severity
	Note     string // human-readable detail, e.g. timestamp-influence explanation.
}

// Message renders the canonical one-line form from spec.md §4.2
// "Output": "var: defined in <def> (<func>), used in <use> (<func>) [TOD|INTRA-TOD]".
func (f Finding) Message() string {
	tag := "TOD"
	if f.Intra {
		tag = "INTRA-TOD"
	}
	if f.Note != "" {
		return fmt.Sprintf("%s: %s", f.Variable, f.Note)
	}
	return fmt.Sprintf("%s: defined in %s (%s), used in %s (%s) [%s]", f.Variable, f.DefNode, f.DefFunc, f.UseNode, f.UseFunc, tag)
}

// FromTOD converts reaching-definitions TOD findings into report
// findings (always SeverityHigh, per SPEC_FULL.md's "Exit-code policy").
func FromTOD(findings []reaching.Finding) []Finding {
	out := make([]Finding, 0, len(findings))
	for _, f := range findings {
		out = append(out, Finding{
			Variable: f.Variable, DefNode: f.DefNode, DefFunc: f.DefFunc,
			UseNode: f.UseNode, UseFunc: f.UseFunc, Intra: f.Intra,
			Severity: SeverityHigh,
		})
	}
	return out
}

// TimestampFindings converts per-node timestamp-influence markers into
// low-severity report findings.
func TimestampFindings(store *reaching.Store, cfg *cfgbuild.CFG) []Finding {
	var out []Finding
	for _, id := range cfg.Meta.AllNodeIDs() {
		for _, v := range store.UsedVars(id) {
			if !isTimestampSource(v) {
				continue
			}
			out = append(out, Finding{
				Variable: v,
				UseNode:  id,
				Severity: SeverityLow,
				Note:     fmt.Sprintf("timestamp-influenced use at %s", id),
			})
		}
	}
	return out
}

func isTimestampSource(name string) bool {
	switch name {
	case "blocktimestamp", "block.timestamp", "now", "BLOCK_TIMESTAMP":
		return true
	default:
		return false
	}
}

// ReachingDefinitionsText renders the reaching-definitions report: the
// worklist's iteration count, one use/def table of the converged per-node
// sets (not one table per iteration), and the TOD summary, with the
// optional dependency tables when annotateDependencies is set
// (SPEC_FULL.md "--annotate-dependencies detail").
func ReachingDefinitionsText(store *reaching.Store, cfg *cfgbuild.CFG, findings []Finding, annotateDependencies bool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Reaching definitions (%d iterations to fixed point)\n\n", store.Iterations())

	ids := cfg.Meta.AllNodeIDs()
	for _, id := range ids {
		used := store.UsedVars(id)
		defined := store.DefinedVars(id)
		if len(used) == 0 && len(defined) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "%s: uses=%v defines=%v\n", id, used, defined)
	}

	sb.WriteString("\nTOD summary:\n")
	if len(findings) == 0 {
		sb.WriteString("  (none)\n")
	}
	for _, f := range findings {
		fmt.Fprintf(&sb, "  %s\n", f.Message())
	}

	if annotateDependencies {
		sb.WriteString("\nVariable dependencies:\n")
		for _, v := range store.StateVariables() {
			deps := store.VariableDependencies(v)
			if len(deps) == 0 {
				continue
			}
			fmt.Fprintf(&sb, "  %s:\n", v)
			for _, d := range deps {
				fmt.Fprintf(&sb, "    used in %s, defined in %s\n", d.Use, d.Def)
			}
		}
		sb.WriteString("\nControl dependencies:\n")
		cd := store.ControlDependencies()
		children := make([]string, 0, len(cd))
		for c := range cd {
			children = append(children, c)
		}
		sort.Strings(children)
		for _, c := range children {
			fmt.Fprintf(&sb, "  %s controlled by %s\n", c, cd[c])
		}
	}

	return sb.String()
}

// AnalysisDumpText renders the abstract-interpretation dump: a
// `dict_keys(...)` header, then per node in order one `ENTRY <cfg_id>
// <bounds>` line and one `EXIT <cfg_id> <next> <bounds>` line per exit
// key. The lines carry no iteration number.
func AnalysisDumpText(vars []string, points map[string]absint.PointState, order []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "dict_keys(%s)\n", strings.Join(vars, ", "))

	for _, id := range order {
		ps, ok := points[id]
		if !ok {
			continue
		}
		fmt.Fprintf(&sb, "ENTRY %s %s\n", id, boundsLine(vars, ps.Entry))
		nexts := make([]string, 0, len(ps.Exit))
		for n := range ps.Exit {
			nexts = append(nexts, n)
		}
		sort.Strings(nexts)
		for _, n := range nexts {
			fmt.Fprintf(&sb, "EXIT %s %s %s\n", id, n, boundsLine(vars, ps.Exit[n]))
		}
	}
	return sb.String()
}

func boundsLine(vars []string, s absint.State) string {
	parts := make([]string, 0, len(vars))
	for _, v := range vars {
		val := s.Get(v)
		if val.Bottom {
			parts = append(parts, "[bottom,bottom]")
			continue
		}
		parts = append(parts, val.Bound.String())
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Invariants renders one invariant per variable from the given state:
// `a == 5` for a single value, `0 <= b <= 10` for a range. Bottom and
// Top variables are skipped, and relational forms such as `a <= b` are
// not produced.
func Invariants(vars []string, final absint.State) []string {
	var out []string
	for _, v := range vars {
		val := final.Get(v)
		if val.Bottom || val.IsTop() {
			continue
		}
		if val.Bound.Lo == val.Bound.Hi {
			out = append(out, fmt.Sprintf("%s == %d", v, val.Bound.Lo))
		} else {
			out = append(out, fmt.Sprintf("%d <= %s <= %d", val.Bound.Lo, v, val.Bound.Hi))
		}
	}
	return out
}
