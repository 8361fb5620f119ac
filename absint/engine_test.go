package absint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avlsec/solanalyzer/ast"
	"github.com/avlsec/solanalyzer/cfgbuild"
)

func declStmt(name string, init *ast.Node) *ast.Node {
	return &ast.Node{
		Kind:         ast.KindVariableDeclarationStatement,
		Declaration:  &ast.Node{Kind: ast.KindVariableDeclaration, Name: name},
		InitialValue: init,
	}
}

func assignStmtExpr(name string, rhs *ast.Node) *ast.Node {
	return &ast.Node{
		Kind: ast.KindExpressionStatement,
		Expression: &ast.Node{
			Kind: ast.KindAssignment, LeftHandSide: ident(name), RightHandSide: rhs,
		},
	}
}

func TestNewEngineCollectsVariables(t *testing.T) {
	fn := &ast.Node{
		Kind: ast.KindFunctionDefinition, Name: "f",
		Body: &ast.Node{Kind: ast.KindBlock, Statements: []*ast.Node{declStmt("x", lit("5"))}},
	}
	root := &ast.Node{ID: 1, Kind: ast.KindContractDefinition, Name: "C", Nodes: []*ast.Node{fn}}
	cfg, err := cfgbuild.Build(root)
	require.NoError(t, err)

	e := NewEngine(cfg, Interval, nil)
	assert.Contains(t, e.vars, "x")
}

func TestRunStraightLineConverges(t *testing.T) {
	fn := &ast.Node{
		Kind: ast.KindFunctionDefinition, Name: "f",
		Body: &ast.Node{Kind: ast.KindBlock, Statements: []*ast.Node{
			declStmt("x", lit("5")),
			assignStmtExpr("y", binop("+", ident("x"), lit("1"))),
		}},
	}
	root := &ast.Node{ID: 1, Kind: ast.KindContractDefinition, Name: "C", Nodes: []*ast.Node{fn}}
	cfg, err := cfgbuild.Build(root)
	require.NoError(t, err)

	e := NewEngine(cfg, Interval, nil)
	pts, _, converged := e.Run()
	require.True(t, converged)

	exit, ok := pts["FunctionExit_0"]
	require.True(t, ok)
	assert.Equal(t, BoundValue(5, 5), exit.Entry.Get("x"))
	assert.Equal(t, BoundValue(6, 6), exit.Entry.Get("y"))
}

func TestRunIfStatementSplitsBranchStates(t *testing.T) {
	ifStmt := &ast.Node{
		Kind:      ast.KindIfStatement,
		Condition: binop(">", ident("x"), lit("0")),
		TrueBody:  &ast.Node{Kind: ast.KindBlock, Statements: []*ast.Node{assignStmtExpr("y", lit("1"))}},
		FalseBody: &ast.Node{Kind: ast.KindBlock, Statements: []*ast.Node{assignStmtExpr("y", lit("0"))}},
	}
	fn := &ast.Node{
		Kind: ast.KindFunctionDefinition, Name: "f",
		Body: &ast.Node{Kind: ast.KindBlock, Statements: []*ast.Node{declStmt("x", lit("5")), ifStmt}},
	}
	root := &ast.Node{ID: 1, Kind: ast.KindContractDefinition, Name: "C", Nodes: []*ast.Node{fn}}
	cfg, err := cfgbuild.Build(root)
	require.NoError(t, err)

	e := NewEngine(cfg, Interval, nil)
	pts, _, converged := e.Run()
	require.True(t, converged)

	join, ok := pts["IfConditionJoin_0"]
	require.True(t, ok)
	assert.Equal(t, BoundValue(0, 1), join.Entry.Get("y"))
}

func TestRunWidensUnboundedLoop(t *testing.T) {
	whileStmt := &ast.Node{
		Kind:      ast.KindWhileStatement,
		Condition: binop("<", ident("x"), lit("1000000")),
		Body:      &ast.Node{Kind: ast.KindBlock, Statements: []*ast.Node{assignStmtExpr("x", binop("+", ident("x"), lit("1")))}},
	}
	fn := &ast.Node{
		Kind: ast.KindFunctionDefinition, Name: "loop",
		Body: &ast.Node{Kind: ast.KindBlock, Statements: []*ast.Node{declStmt("x", lit("0")), whileStmt}},
	}
	root := &ast.Node{ID: 1, Kind: ast.KindContractDefinition, Name: "C", Nodes: []*ast.Node{fn}}
	cfg, err := cfgbuild.Build(root)
	require.NoError(t, err)

	e := NewEngine(cfg, Interval, nil)
	e.SetWidenThreshold(2)
	pts, _, converged := e.Run()
	assert.True(t, converged)

	join, ok := pts["WhileJoin_0"]
	require.True(t, ok)
	assert.Equal(t, BoundValue(0, topHi), join.Entry.Get("x"))
}

func TestSetWidenThresholdIgnoresNonPositive(t *testing.T) {
	e := &Engine{widenThreshold: WidenThreshold}
	e.SetWidenThreshold(0)
	assert.Equal(t, WidenThreshold, e.widenThreshold)
	e.SetWidenThreshold(-1)
	assert.Equal(t, WidenThreshold, e.widenThreshold)
	e.SetWidenThreshold(7)
	assert.Equal(t, 7, e.widenThreshold)
}

func TestRunFunctionEntryResetsLocalsToTop(t *testing.T) {
	fn := &ast.Node{
		Kind: ast.KindFunctionDefinition, Name: "f",
		Body: &ast.Node{Kind: ast.KindBlock, Statements: []*ast.Node{declStmt("x", lit("5"))}},
	}
	root := &ast.Node{ID: 1, Kind: ast.KindContractDefinition, Name: "C", Nodes: []*ast.Node{fn}}
	cfg, err := cfgbuild.Build(root)
	require.NoError(t, err)

	e := NewEngine(cfg, Interval, nil)
	pts, _, converged := e.Run()
	require.True(t, converged)

	entry, ok := pts["FunctionEntry_0"]
	require.True(t, ok)
	assert.True(t, entry.Entry.Get("x").IsTop())
}
