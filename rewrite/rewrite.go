// Package rewrite implements the pre-analysis source rewriter
// (SPEC_FULL.md §4.4): a pure, idempotent source-to-source pass that
// scalarizes mapping declarations/accesses and normalizes value-transfer
// idioms into a guarded decrement of a synthetic balance variable.
package rewrite

import (
	"fmt"
	"regexp"
	"strings"
)

// MappingInfo records the provenance of one scalarized mapping, threaded
// through to the reaching-definitions package so it can exclude
// mapping-origin scalars from TOD findings (SPEC_FULL.md "Mapping-origin
// classification").
type MappingInfo struct {
	Name         string
	ValueType    string
	DefaultValue string
}

// Result is the rewriter's output: the rewritten source plus the
// provenance needed by later stages.
type Result struct {
	Source   string
	Mappings []MappingInfo
}

var (
	contractDeclPattern = regexp.MustCompile(`(contract\s+\w+\s*\{)`)
	balAlreadyInjected  = regexp.MustCompile(`uint\s+public\s+BAL\s*=\s*100\s*;`)

	// mapping(K => V) public|private name;
	mappingPattern = regexp.MustCompile(`mapping\s*\([^)]*=>\s*([^)]+)\)\s*(?:public|private|internal)?\s*(\w+)\s*;`)

	structDefPattern = regexp.MustCompile(`struct\s+(\w+)\s*\{[^}]*\}`)

	// Recognized key expressions for mapping access rewriting.
	keyExprAlt = `msg\.sender|recipient|_addr|_to|_from|_h|from|owner|_owner|to|_participant|investor|_pd|0x[0-9a-fA-F]+|\w+`

	// Value-transfer idioms, each converging on the canonical guarded
	// decrement. Order matters: more specific patterns run first so a
	// generic pattern does not eat part of a more specific one.
	callValuePattern   = regexp.MustCompile(`([\w.]+)\.call\.value\(([^)]+)\)\(\)\s*;`)
	sendPattern        = regexp.MustCompile(`([\w.]+)\.send\(([^)]+)\)\s*;`)
	transferPattern    = regexp.MustCompile(`([\w.]+)\.transfer\(([^)]+)\)\s*;`)
	requireCallPattern = regexp.MustCompile(`require\s*\(\s*([\w.]+)\.call\.value\(([^)]+)\)\(\)\s*\)\s*;`)
	assertCallPattern  = regexp.MustCompile(`assert\s*\(\s*([\w.]+)\.call\.value\(([^)]+)\)\(\)\s*\)\s*;`)

	// if (x.call.value(v)()) { ... } — with and without an else branch.
	ifCallPattern = regexp.MustCompile(`if\s*\(\s*([\w.]+)\.call\.value\(([^)]+)\)\(\)\s*\)\s*\{([^}]*)\}`)
	// if (!x.call.value(v)()) { throw; } / { revert(); }
	ifNegatedCallThrowPattern = regexp.MustCompile(`if\s*\(\s*!\s*([\w.]+)\.call\.value\(([^)]+)\)\(\)\s*\)\s*\{\s*(?:throw|revert\(\))\s*;\s*\}`)

	// if (!x.call.value(v)()) { failBody } else { successBody } — the
	// else-preserving negated-call idiom; must run before
	// ifNegatedCallThrowPattern so a throw-bodied if with a trailing else
	// does not lose the else block.
	ifNegatedCallElsePattern = regexp.MustCompile(`if\s*\(\s*!\s*([\w.]+)\.call\.value\(([^)]+)\)\(\)\s*\)\s*\{([^{}]*)\}\s*else\s*\{([^{}]*)\}`)

	// bool result = x.call.value(v)();
	callValueAssignPattern = regexp.MustCompile(`(?:bool\s+)?(\w+)\s*=\s*([\w.]+)\.call\.value\(([^)]+)\)\(\)\s*;`)

	// direct mapping balance mutation: balances[k] -= v; / balances[k] += v;
	mappingDecrementPattern = regexp.MustCompile(`(\w+)\[[^\]]+\]\s*-=\s*([^;]+);`)
	mappingIncrementPattern = regexp.MustCompile(`(\w+)\[[^\]]+\]\s*\+=\s*([^;]+);`)

	// lhs = token.balanceOf(this); — a contract reading an external
	// token's balance rather than its own tracked mapping.
	tokenBalanceAssignmentPattern = regexp.MustCompile(`(\w+)\s*=\s*(\w+)\.balanceOf\s*\(\s*this\s*\)\s*;`)

	// bare mapping access: m[key] -> m, once m is known to be a tracked mapping.
)

func defaultForType(valueType string) string {
	vt := strings.TrimSpace(valueType)
	switch {
	case vt == "bool":
		return "false"
	case vt == "string":
		return `"default"`
	case vt == "address":
		return "address(0)"
	case strings.HasPrefix(vt, "uint") || strings.HasPrefix(vt, "int"):
		return "40"
	default:
		return "40"
	}
}

// Rewrite applies the full idiom catalogue to source and returns the
// rewritten text plus mapping provenance. It is safe to call repeatedly:
// Rewrite(Rewrite(s).Source).Source == Rewrite(s).Source for any s (the
// second call's Mappings is empty, since the declarations are already
// scalar; idempotence,
// SPEC_FULL.md §8 invariant 7), because every output form (the canonical
// guarded-decrement, and bare scalar names) fails to match the trigger
// patterns that produced it.
func Rewrite(source string) Result {
	mappings := trackMappings(source)

	out := injectBAL(source)
	out = scalarizeMappings(out, mappings)
	out = flattenStructs(out)
	out = rewriteMappingAccesses(out, mappings)
	out = rewriteTransferIdioms(out, mappings)

	return Result{Source: out, Mappings: mappings}
}

func injectBAL(source string) string {
	if balAlreadyInjected.MatchString(source) {
		return source
	}
	return contractDeclPattern.ReplaceAllString(source, "${1}\n    uint public BAL = 100;")
}

func trackMappings(source string) []MappingInfo {
	var infos []MappingInfo
	for _, m := range mappingPattern.FindAllStringSubmatch(source, -1) {
		valueType := strings.TrimSpace(m[1])
		name := m[2]
		infos = append(infos, MappingInfo{
			Name:         name,
			ValueType:    valueType,
			DefaultValue: defaultForType(valueType),
		})
	}
	return infos
}

func scalarizeMappings(source string, mappings []MappingInfo) string {
	out := mappingPattern.ReplaceAllStringFunc(source, func(decl string) string {
		m := mappingPattern.FindStringSubmatch(decl)
		if m == nil {
			return decl
		}
		valueType := strings.TrimSpace(m[1])
		name := m[2]
		return fmt.Sprintf("uint %s = %s;", name, defaultForType(valueType))
	})
	return out
}

func flattenStructs(source string) string {
	structNames := map[string]bool{}
	for _, m := range structDefPattern.FindAllStringSubmatch(source, -1) {
		structNames[m[1]] = true
	}
	out := structDefPattern.ReplaceAllString(source, "")
	// obj.field -> field, for any remaining dotted access that is not a
	// recognized built-in member (value/sender/timestamp/...).
	fieldAccess := regexp.MustCompile(`\b\w+\.(\w+)\b`)
	builtins := map[string]bool{
		"sender": true, "value": true, "timestamp": true, "number": true,
		"origin": true, "gasprice": true, "balance": true, "call": true,
		"send": true, "transfer": true, "length": true,
	}
	if len(structNames) == 0 {
		return out
	}
	out = fieldAccess.ReplaceAllStringFunc(out, func(m string) string {
		parts := fieldAccess.FindStringSubmatch(m)
		field := parts[1]
		if builtins[field] {
			return m
		}
		return field
	})
	return out
}

func rewriteMappingAccesses(source string, mappings []MappingInfo) string {
	if len(mappings) == 0 {
		return source
	}
	out := source
	for _, mp := range mappings {
		accessPattern := regexp.MustCompile(fmt.Sprintf(`\b%s\s*\[\s*(?:%s)\s*\]`, regexp.QuoteMeta(mp.Name), keyExprAlt))
		out = accessPattern.ReplaceAllString(out, mp.Name)
	}
	return out
}

// canonical renders the canonical guarded-decrement form. guardVar, when
// non-empty, adds the scalarized-balance lower-bound check (spec.md §4.4
// scenario D: "if (BAL > 0 && balances >= v)"); it is empty when the
// contract tracks no mapping, in which case the guard degrades to a bare
// BAL check. resultVar, when non-empty, also assigns the boolean outcome.
func canonical(guardVar, amountExpr, resultVar string) string {
	body := fmt.Sprintf("BAL = BAL - %s;", amountExpr)
	if resultVar != "" {
		body += fmt.Sprintf(" %s = true;", resultVar)
	}
	if guardVar == "" {
		return fmt.Sprintf("if (BAL > 0) { %s }", body)
	}
	return fmt.Sprintf("if (BAL > 0 && %s >= %s) { %s }", guardVar, amountExpr, body)
}

// balanceGuard picks the scalarized mapping that stands in for the
// contract's per-account balance bookkeeping. A receiver-addressed
// transfer idiom (x.transfer(v), x.send(v), x.call.value(v)()) checks
// that guard, not the receiver expression itself, against the amount
// being moved.
func balanceGuard(mappings []MappingInfo) string {
	if len(mappings) == 0 {
		return ""
	}
	return mappings[0].Name
}

// canonicalWithElse renders the guarded-decrement form for the
// else-preserving negated-call idiom: the call-succeeded branch (the
// original else block) gets the decrement plus its own body, and the
// call-failed branch (the original if body) is preserved verbatim as the
// new else.
func canonicalWithElse(guardVar, amountExpr, successBody, failBody string) string {
	guarded := canonical(guardVar, amountExpr, "")
	if successBody != "" {
		guarded = strings.TrimSuffix(guarded, "}") + successBody + "}"
	}
	return fmt.Sprintf("%s else { %s }", guarded, failBody)
}

func rewriteTransferIdioms(source string, mappings []MappingInfo) string {
	out := source
	guard := balanceGuard(mappings)

	out = requireCallPattern.ReplaceAllStringFunc(out, func(s string) string {
		m := requireCallPattern.FindStringSubmatch(s)
		return canonical(guard, m[2], "")
	})
	out = assertCallPattern.ReplaceAllStringFunc(out, func(s string) string {
		m := assertCallPattern.FindStringSubmatch(s)
		return canonical(guard, m[2], "")
	})
	out = ifNegatedCallElsePattern.ReplaceAllStringFunc(out, func(s string) string {
		m := ifNegatedCallElsePattern.FindStringSubmatch(s)
		failBody := strings.TrimSpace(m[3])
		successBody := strings.TrimSpace(m[4])
		return canonicalWithElse(guard, m[2], successBody, failBody)
	})
	out = ifNegatedCallThrowPattern.ReplaceAllStringFunc(out, func(s string) string {
		m := ifNegatedCallThrowPattern.FindStringSubmatch(s)
		return canonical(guard, m[2], "")
	})
	out = callValueAssignPattern.ReplaceAllStringFunc(out, func(s string) string {
		m := callValueAssignPattern.FindStringSubmatch(s)
		return canonical(guard, m[3], m[1])
	})
	out = ifCallPattern.ReplaceAllStringFunc(out, func(s string) string {
		m := ifCallPattern.FindStringSubmatch(s)
		inner := strings.TrimSpace(m[3])
		guarded := canonical(guard, m[2], "")
		if inner == "" {
			return guarded
		}
		return strings.TrimSuffix(guarded, "}") + inner + "}"
	})
	out = callValuePattern.ReplaceAllStringFunc(out, func(s string) string {
		m := callValuePattern.FindStringSubmatch(s)
		return canonical(guard, m[2], "")
	})
	out = sendPattern.ReplaceAllStringFunc(out, func(s string) string {
		m := sendPattern.FindStringSubmatch(s)
		return canonical(guard, m[2], "")
	})
	out = transferPattern.ReplaceAllStringFunc(out, func(s string) string {
		m := transferPattern.FindStringSubmatch(s)
		return canonical(guard, m[2], "")
	})
	out = mappingDecrementPattern.ReplaceAllStringFunc(out, func(s string) string {
		m := mappingDecrementPattern.FindStringSubmatch(s)
		return canonical(m[1], strings.TrimSpace(m[2]), "")
	})
	out = mappingIncrementPattern.ReplaceAllStringFunc(out, func(s string) string {
		m := mappingIncrementPattern.FindStringSubmatch(s)
		return fmt.Sprintf("BAL = BAL + %s;", strings.TrimSpace(m[2]))
	})
	out = tokenBalanceAssignmentPattern.ReplaceAllStringFunc(out, func(s string) string {
		m := tokenBalanceAssignmentPattern.FindStringSubmatch(s)
		lhs, tokenVar := m[1], m[2]
		return fmt.Sprintf("uint simulated_token_balance = 60; /* call to %s.balanceOf(this) */ %s = simulated_token_balance;", tokenVar, lhs)
	})

	return out
}
