package compiler

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avlsec/solanalyzer/ast"
	"github.com/avlsec/solanalyzer/errs"
)

func TestNewSolcProviderDefaultsToPath(t *testing.T) {
	p := NewSolcProvider()
	assert.Equal(t, "solc", p.BinaryPath)
}

func TestCompileMissingBinaryWrapsCompileFailure(t *testing.T) {
	p := &SolcProvider{BinaryPath: "/nonexistent/solc-binary"}
	_, err := p.Compile("contract C {}")

	require.Error(t, err)
	var target *errs.Error
	require.True(t, errors.As(err, &target))
	assert.Equal(t, errs.CompileFailure, target.Kind)
}

// catCompiler writes a stand-in compiler script that ignores its
// arguments (plain cat would reject --ast-compact-json) and runs cat,
// copying stdin to stdout verbatim.
func catCompiler(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "solc")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nexec cat\n"), 0o755))
	return path
}

// TestCompileEchoesAST uses catCompiler as the compiler binary, letting
// the test feed a compact-JSON AST directly through Compile's decode
// path without a real solc installation.
func TestCompileEchoesAST(t *testing.T) {
	p := &SolcProvider{BinaryPath: catCompiler(t)}
	doc := `{"id":1,"nodeType":"ContractDefinition","name":"Bank"}`

	result, err := p.Compile(doc)
	require.NoError(t, err)
	require.Equal(t, []string{"Bank"}, result.Names)
	assert.Equal(t, ast.KindContractDefinition, result.AST("Bank").Kind)
}

func TestCompileZeroContractsIsCompileFailure(t *testing.T) {
	p := &SolcProvider{BinaryPath: catCompiler(t)}
	doc := `{"id":1,"nodeType":"SourceUnit"}`

	_, err := p.Compile(doc)
	require.Error(t, err)
	var target *errs.Error
	require.True(t, errors.As(err, &target))
	assert.Equal(t, errs.CompileFailure, target.Kind)
}

func TestExtractContractsWalksNestedNodes(t *testing.T) {
	root := &ast.Node{
		ID:   1,
		Kind: "SourceUnit",
		Nodes: []*ast.Node{
			{ID: 2, Kind: ast.KindContractDefinition, Name: "A"},
			{ID: 3, Kind: "PragmaDirective"},
			{ID: 4, Kind: ast.KindContractDefinition, Name: "B"},
		},
	}

	contracts := extractContracts(root)
	require.Len(t, contracts, 2)
	assert.Equal(t, "A", contracts[0].Name)
	assert.Equal(t, "B", contracts[1].Name)
}

func TestExtractContractsNilRoot(t *testing.T) {
	assert.Empty(t, extractContracts(nil))
}
