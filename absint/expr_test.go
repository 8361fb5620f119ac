package absint

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/avlsec/solanalyzer/ast"
)

func lit(v string) *ast.Node { return &ast.Node{Kind: ast.KindLiteral, Value: v} }
func ident(name string) *ast.Node { return &ast.Node{Kind: ast.KindIdentifier, Name: name} }
func binop(op string, l, r *ast.Node) *ast.Node {
	return &ast.Node{Kind: ast.KindBinaryOperation, Operator: op, LeftExpr: l, RightExpr: r}
}

func TestEvalLiteral(t *testing.T) {
	assert.Equal(t, BoundValue(42, 42), Eval(Interval, lit("42"), State{}))
}

func TestEvalLiteralNonNumericIsTop(t *testing.T) {
	v := Eval(Interval, lit("not-a-number"), State{})
	assert.True(t, v.IsTop())
}

func TestEvalIdentifierLooksUpState(t *testing.T) {
	s := NewState(map[string]Value{"x": BoundValue(3, 7)})
	assert.Equal(t, BoundValue(3, 7), Eval(Interval, ident("x"), s))
}

func TestEvalNilIsBottom(t *testing.T) {
	assert.True(t, Eval(Interval, nil, State{}).Bottom)
}

func TestEvalArithmetic(t *testing.T) {
	s := NewState(map[string]Value{"x": BoundValue(1, 3), "y": BoundValue(2, 4)})

	assert.Equal(t, BoundValue(3, 7), Eval(Interval, binop("+", ident("x"), ident("y")), s))
	assert.Equal(t, BoundValue(-3, 1), Eval(Interval, binop("-", ident("x"), ident("y")), s))
	assert.Equal(t, BoundValue(2, 12), Eval(Interval, binop("*", ident("x"), ident("y")), s))
}

func TestEvalDivisionByZeroInRangeIsTop(t *testing.T) {
	s := NewState(map[string]Value{"x": BoundValue(10, 10), "y": BoundValue(-1, 1)})
	v := Eval(Interval, binop("/", ident("x"), ident("y")), s)
	assert.True(t, v.IsTop())
}

func TestEvalBottomPropagates(t *testing.T) {
	s := NewState(map[string]Value{"x": BottomValue(), "y": BoundValue(1, 1)})
	v := Eval(Interval, binop("+", ident("x"), ident("y")), s)
	assert.True(t, v.Bottom)
}

func TestEvalUnaryMinus(t *testing.T) {
	s := NewState(map[string]Value{"x": BoundValue(1, 5)})
	v := Eval(Interval, &ast.Node{Kind: ast.KindUnaryOperation, Operator: "-", SubExpr: ident("x")}, s)
	assert.Equal(t, BoundValue(-5, -1), v)
}

func TestEvalBooleanComparison(t *testing.T) {
	s := NewState(map[string]Value{"x": BoundValue(5, 5)})
	assert.Equal(t, boolTrue, EvalBoolean(Interval, binop(">", ident("x"), lit("0")), s))
	assert.Equal(t, boolFalse, EvalBoolean(Interval, binop("<", ident("x"), lit("0")), s))
}

func TestEvalBooleanComparisonUnknownWhenStraddling(t *testing.T) {
	s := NewState(map[string]Value{"x": BoundValue(-5, 5)})
	assert.Equal(t, boolUnknown, EvalBoolean(Interval, binop(">", ident("x"), lit("0")), s))
}

func TestEvalBooleanLogicalAnd(t *testing.T) {
	s := NewState(map[string]Value{"x": BoundValue(5, 5), "y": BoundValue(0, 0)})
	cond := binop("&&", binop(">", ident("x"), lit("0")), binop(">", ident("y"), lit("0")))
	assert.Equal(t, boolFalse, EvalBoolean(Interval, cond, s))
}

func TestEvalBooleanLogicalOr(t *testing.T) {
	s := NewState(map[string]Value{"x": BoundValue(5, 5), "y": BoundValue(0, 0)})
	cond := binop("||", binop(">", ident("x"), lit("0")), binop(">", ident("y"), lit("0")))
	assert.Equal(t, boolTrue, EvalBoolean(Interval, cond, s))
}

func TestEvalBooleanNegation(t *testing.T) {
	s := NewState(map[string]Value{"x": BoundValue(5, 5)})
	cond := &ast.Node{Kind: ast.KindUnaryOperation, Operator: "!", SubExpr: binop(">", ident("x"), lit("0"))}
	assert.Equal(t, boolFalse, EvalBoolean(Interval, cond, s))
}

func TestEvalConditional(t *testing.T) {
	s := NewState(map[string]Value{"x": BoundValue(5, 5)})
	cond := &ast.Node{
		Kind:      ast.KindConditional,
		Condition: binop(">", ident("x"), lit("0")),
		TrueExpr:  lit("1"),
		FalseExpr: lit("0"),
	}
	assert.Equal(t, BoundValue(1, 1), Eval(Interval, cond, s))
}

func TestRefineIdentifierLessThan(t *testing.T) {
	s := NewState(map[string]Value{"x": BoundValue(0, 10)})
	cond := binop("<", ident("x"), lit("5"))

	refined := Refine(Interval, cond, s, true)
	assert.Equal(t, BoundValue(0, 4), refined.Get("x"))
}

func TestRefineIdentifierFalseBranchNegatesOperator(t *testing.T) {
	s := NewState(map[string]Value{"x": BoundValue(0, 10)})
	cond := binop("<", ident("x"), lit("5"))

	refined := Refine(Interval, cond, s, false)
	assert.Equal(t, BoundValue(5, 10), refined.Get("x"))
}

func TestRefineIdentifierEquality(t *testing.T) {
	s := NewState(map[string]Value{"x": BoundValue(0, 10)})
	cond := binop("==", ident("x"), lit("7"))

	refined := Refine(Interval, cond, s, true)
	assert.Equal(t, BoundValue(7, 7), refined.Get("x"))
}

func TestRefineNonComparisonIsNoop(t *testing.T) {
	s := NewState(map[string]Value{"x": BoundValue(0, 10)})
	refined := Refine(Interval, ident("x"), s, true)
	assert.Equal(t, s.Get("x"), refined.Get("x"))
}
