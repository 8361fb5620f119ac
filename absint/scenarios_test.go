package absint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avlsec/solanalyzer/ast"
	"github.com/avlsec/solanalyzer/cfgbuild"
)

// The following mirror spec.md §8's end-to-end scenarios A, B, C, and F
// (D and E belong to rewrite/rewrite_test.go and reaching/reaching_test.go
// respectively, since they exercise the rewriter and the TOD detector).

// Scenario A: contract C { uint x = 5; function f() public { x = x + 1; } }
// x flows from the contract-level declaration's own initializer through
// SourceExit_0 into FunctionEntry_0 (spec.md §4.1 "Contract-level
// declarations precede the first function entry"); the driver supplies no
// constants here since spec.md §3 reserves those for function parameters.
func TestScenarioA_StraightLineIncrement(t *testing.T) {
	stateVar := &ast.Node{ID: 2, Kind: ast.KindVariableDeclaration, Name: "x", StateVariable: true, InitialValue: lit("5")}
	fn := &ast.Node{
		ID: 3, Kind: ast.KindFunctionDefinition, Name: "f",
		Body: &ast.Node{ID: 4, Kind: ast.KindBlock, Statements: []*ast.Node{
			assignStmtExpr("x", binop("+", ident("x"), lit("1"))),
		}},
	}
	root := &ast.Node{ID: 1, Kind: ast.KindContractDefinition, Name: "C", Nodes: []*ast.Node{stateVar, fn}}
	cfg, err := cfgbuild.Build(root)
	require.NoError(t, err)

	e := NewEngine(cfg, Interval, nil)
	pts, _, converged := e.Run()
	require.True(t, converged)

	exit, ok := pts["FunctionExit_0"]
	require.True(t, ok)
	assert.Equal(t, BoundValue(6, 6), exit.Entry.Get("x"))
}

// Scenario A extended to two functions: deposit() sets the state variable
// BAL = 10, withdraw() reads it without ever assigning it itself. Proves
// spec.md §4.3 step 1a's "importing the FunctionExit state of the last
// preceding function" actually carries a bound across a FunctionEntry
// that cfgbuild now wires with a real predecessor (spec.md §4.1).
func TestScenarioA_CrossFunctionBoundPropagation(t *testing.T) {
	stateVar := &ast.Node{ID: 2, Kind: ast.KindVariableDeclaration, Name: "BAL", StateVariable: true}
	deposit := &ast.Node{
		ID: 3, Kind: ast.KindFunctionDefinition, Name: "deposit",
		Body: &ast.Node{ID: 4, Kind: ast.KindBlock, Statements: []*ast.Node{
			assignStmtExpr("BAL", lit("10")),
		}},
	}
	withdraw := &ast.Node{
		ID: 5, Kind: ast.KindFunctionDefinition, Name: "withdraw",
		Body: &ast.Node{ID: 6, Kind: ast.KindBlock, Statements: []*ast.Node{
			assignStmtExpr("seen", ident("BAL")),
		}},
	}
	root := &ast.Node{ID: 1, Kind: ast.KindContractDefinition, Name: "C", Nodes: []*ast.Node{stateVar, deposit, withdraw}}
	cfg, err := cfgbuild.Build(root)
	require.NoError(t, err)

	e := NewEngine(cfg, Interval, nil)
	pts, _, converged := e.Run()
	require.True(t, converged)

	withdrawEntry, ok := pts["FunctionEntry_1"]
	require.True(t, ok)
	assert.Equal(t, BoundValue(10, 10), withdrawEntry.Entry.Get("BAL"))

	exit, ok := pts["FunctionExit_1"]
	require.True(t, ok)
	assert.Equal(t, BoundValue(10, 10), exit.Entry.Get("seen"))
}

// Scenario A's invariants-file assertion ("x == 6") is covered in
// report.TestScenarioAInvariantsFile, since
// report.Invariants lives in the package that consumes absint.State
// without creating an import cycle back into absint's own test package.

// Scenario B: function g(uint a) public { if (a < 10) { a = a + 1; } else
// { a = a - 1; } } driven with a in [10,10]: after the if-join, a in [9,9].
func TestScenarioB_IfJoinWithDriverConstant(t *testing.T) {
	ifStmt := &ast.Node{
		Kind:      ast.KindIfStatement,
		Condition: binop("<", ident("a"), lit("10")),
		TrueBody:  &ast.Node{Kind: ast.KindBlock, Statements: []*ast.Node{assignStmtExpr("a", binop("+", ident("a"), lit("1")))}},
		FalseBody: &ast.Node{Kind: ast.KindBlock, Statements: []*ast.Node{assignStmtExpr("a", binop("-", ident("a"), lit("1")))}},
	}
	fn := &ast.Node{
		Kind: ast.KindFunctionDefinition, Name: "g",
		Body: &ast.Node{Kind: ast.KindBlock, Statements: []*ast.Node{ifStmt}},
	}
	root := &ast.Node{ID: 1, Kind: ast.KindContractDefinition, Name: "C", Nodes: []*ast.Node{fn}}
	cfg, err := cfgbuild.Build(root)
	require.NoError(t, err)

	e := NewEngine(cfg, Interval, map[string]Bound{"a": {Lo: 10, Hi: 10}})
	pts, _, converged := e.Run()
	require.True(t, converged)

	join, ok := pts["IfConditionJoin_0"]
	require.True(t, ok)
	assert.Equal(t, BoundValue(9, 9), join.Entry.Get("a"))
}

// Scenario C: while (i < 3) { i = i + 1; } with i in [0,0] at entry and
// widening disabled: at the while-join fixed point, i in [0,3]; exit i in [3,3].
func TestScenarioC_BoundedLoopWithoutWidening(t *testing.T) {
	whileStmt := &ast.Node{
		Kind:      ast.KindWhileStatement,
		Condition: binop("<", ident("i"), lit("3")),
		Body:      &ast.Node{Kind: ast.KindBlock, Statements: []*ast.Node{assignStmtExpr("i", binop("+", ident("i"), lit("1")))}},
	}
	fn := &ast.Node{
		Kind: ast.KindFunctionDefinition, Name: "loop",
		Body: &ast.Node{Kind: ast.KindBlock, Statements: []*ast.Node{whileStmt}},
	}
	root := &ast.Node{ID: 1, Kind: ast.KindContractDefinition, Name: "C", Nodes: []*ast.Node{fn}}
	cfg, err := cfgbuild.Build(root)
	require.NoError(t, err)

	e := NewEngine(cfg, Interval, map[string]Bound{"i": {Lo: 0, Hi: 0}})
	e.SetWidenThreshold(1 << 20) // disable widening: threshold never reached for a 3-iteration loop.
	pts, _, converged := e.Run()
	require.True(t, converged)

	join, ok := pts["WhileJoin_0"]
	require.True(t, ok)
	assert.Equal(t, BoundValue(0, 3), join.Entry.Get("i"))

	exit, ok := pts["FunctionExit_0"]
	require.True(t, ok)
	assert.Equal(t, BoundValue(3, 3), exit.Entry.Get("i"))
}

// Scenario F: function h() public returns (uint) { return a + b; } with
// a in [10,10], b in [2,2] yields [12,12] for the Return node.
func TestScenarioF_ReturnExpressionEvaluation(t *testing.T) {
	retStmt := &ast.Node{Kind: ast.KindReturn, ReturnExpr: binop("+", ident("a"), ident("b"))}
	fn := &ast.Node{
		Kind: ast.KindFunctionDefinition, Name: "h",
		Body: &ast.Node{Kind: ast.KindBlock, Statements: []*ast.Node{retStmt}},
	}
	root := &ast.Node{ID: 1, Kind: ast.KindContractDefinition, Name: "C", Nodes: []*ast.Node{fn}}
	cfg, err := cfgbuild.Build(root)
	require.NoError(t, err)

	e := NewEngine(cfg, Interval, map[string]Bound{"a": {Lo: 10, Hi: 10}, "b": {Lo: 2, Hi: 2}})
	pts, _, converged := e.Run()
	require.True(t, converged)

	retNode, ok := pts["Return_0"]
	require.True(t, ok)
	for _, exit := range retNode.Exit {
		assert.Equal(t, BoundValue(12, 12), exit.Get("$return"))
	}
}
