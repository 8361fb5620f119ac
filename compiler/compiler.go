// Package compiler implements the AST compiler external collaborator
// named in SPEC_FULL.md §6: given rewritten source text, it yields the
// list of contracts found and the AST of each.
package compiler

import (
	"bytes"
	"os"
	"os/exec"
	"strings"

	"github.com/avlsec/solanalyzer/ast"
	"github.com/avlsec/solanalyzer/errs"
)

// Provider compiles source text into an ast.CompileResult. SolcProvider
// is the implementation used by the analyze command and by the tests,
// which point it at a stand-in binary.
type Provider interface {
	Compile(source string) (*ast.CompileResult, error)
}

// SolcProvider shells out to a solc-compatible binary with
// --ast-compact-json and parses its stdout. The binary is resolved from
// $SOLC_PATH, falling back to "solc" on $PATH.
type SolcProvider struct {
	BinaryPath string
}

// NewSolcProvider returns a SolcProvider resolved from the environment.
func NewSolcProvider() *SolcProvider {
	bin := os.Getenv("SOLC_PATH")
	if bin == "" {
		bin = "solc"
	}
	return &SolcProvider{BinaryPath: bin}
}

// Compile invokes the compiler binary against source passed on stdin
// and decodes its compact-JSON AST output into one Contract per
// top-level ContractDefinition node.
func (p *SolcProvider) Compile(source string) (*ast.CompileResult, error) {
	cmd := exec.Command(p.BinaryPath, "--ast-compact-json", "-")
	cmd.Stdin = strings.NewReader(source)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, errs.Wrap(errs.CompileFailure, err, "solc invocation failed: %s", stderr.String())
	}

	root, err := ast.Unmarshal(stdout.Bytes())
	if err != nil {
		return nil, errs.Wrap(errs.CompileFailure, err, "malformed AST compiler output")
	}

	contracts := extractContracts(root)
	if len(contracts) == 0 {
		return nil, errs.New(errs.CompileFailure, "compiler produced zero contracts")
	}
	return ast.NewCompileResult(contracts), nil
}

// extractContracts walks the top-level source-unit node collecting every
// ContractDefinition child.
func extractContracts(root *ast.Node) []ast.Contract {
	var out []ast.Contract
	if root == nil {
		return out
	}
	if root.Kind == ast.KindContractDefinition {
		out = append(out, ast.Contract{Name: root.Name, Root: root})
	}
	for _, child := range root.Nodes {
		out = append(out, extractContracts(child)...)
	}
	return out
}
