package absint

import (
	"strconv"

	"github.com/avlsec/solanalyzer/ast"
)

// Eval recursively evaluates an expression subtree against an entry
// state, producing a Value or Bottom (spec.md §4.3 "Expression
// evaluation"). Identifier lookups, arithmetic and unary operators turn
// a Bottom operand into a Bottom result. Comparisons, && and || do not:
// a Bottom operand counts as an unknown truth value, so the result is
// [0,1] unless the other operand of &&/|| decides it; a Conditional
// whose condition is unknown yields the join of both branches.
func Eval(kind DomainKind, n *ast.Node, state State) Value {
	if n == nil {
		return BottomValue()
	}
	switch n.Kind {
	case ast.KindLiteral:
		i, err := strconv.ParseInt(n.Value, 10, 64)
		if err != nil {
			return TopValue()
		}
		return BoundValue(i, i)

	case ast.KindIdentifier:
		return state.Get(n.Name)

	case ast.KindMemberAccess:
		if n.Expression != nil && n.Expression.Kind == ast.KindIdentifier {
			return state.Get(n.Expression.Name + "." + n.MemberName)
		}
		return TopValue()

	case ast.KindUnaryOperation:
		return evalUnary(kind, n, state)

	case ast.KindBinaryOperation:
		return evalBinary(kind, n, state)

	case ast.KindConditional:
		cond := EvalBoolean(kind, n.Condition, state)
		switch cond {
		case boolTrue:
			return Eval(kind, n.TrueExpr, state)
		case boolFalse:
			return Eval(kind, n.FalseExpr, state)
		default:
			return joinValue(Eval(kind, n.TrueExpr, state), Eval(kind, n.FalseExpr, state))
		}

	default:
		return TopValue()
	}
}

func evalUnary(kind DomainKind, n *ast.Node, state State) Value {
	operand := Eval(kind, n.SubExpr, state)
	if operand.Bottom {
		return BottomValue()
	}
	switch n.Operator {
	case "-":
		return BoundValue(-operand.Bound.Hi, -operand.Bound.Lo)
	case "!":
		b := EvalBoolean(kind, n.SubExpr, state)
		switch b {
		case boolTrue:
			return BoundValue(0, 0)
		case boolFalse:
			return BoundValue(1, 1)
		default:
			return BoundValue(0, 1)
		}
	default:
		return operand
	}
}

func evalBinary(kind DomainKind, n *ast.Node, state State) Value {
	switch n.Operator {
	case "&&", "||":
		return evalLogical(kind, n, state)
	case "<", "<=", ">", ">=", "==", "!=":
		return evalComparison(kind, n, state)
	}

	l := Eval(kind, n.LeftExpr, state)
	r := Eval(kind, n.RightExpr, state)
	if l.Bottom || r.Bottom {
		return BottomValue()
	}
	switch n.Operator {
	case "+":
		return BoundValue(l.Bound.Lo+r.Bound.Lo, l.Bound.Hi+r.Bound.Hi)
	case "-":
		return BoundValue(l.Bound.Lo-r.Bound.Hi, l.Bound.Hi-r.Bound.Lo)
	case "*":
		return Value{Bound: multiplyBound(kind, l.Bound, r.Bound)}
	case "/":
		if r.Bound.Lo <= 0 && 0 <= r.Bound.Hi {
			return TopValue() // DomainLimitation: divide-by-zero in range.
		}
		return BoundValue(divFloor(l.Bound.Lo, r.Bound.Hi), divFloor(l.Bound.Hi, r.Bound.Lo))
	case "%":
		if r.Bound.Lo <= 0 && 0 <= r.Bound.Hi {
			return TopValue()
		}
		return TopValue() // modulo is not interval-closed; sound over-approximation.
	default:
		return TopValue()
	}
}

func divFloor(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

type boolResult int

const (
	boolUnknown boolResult = iota
	boolTrue
	boolFalse
)

// EvalBoolean implements spec.md §4.3's nonzero-interval boolean test:
// "checking whether either operand's interval excludes zero" for &&/||,
// and bound-comparison for relational operators.
func EvalBoolean(kind DomainKind, n *ast.Node, state State) boolResult {
	if n == nil {
		return boolUnknown
	}
	switch n.Kind {
	case ast.KindBinaryOperation:
		switch n.Operator {
		case "&&":
			l := EvalBoolean(kind, n.LeftExpr, state)
			r := EvalBoolean(kind, n.RightExpr, state)
			if l == boolFalse || r == boolFalse {
				return boolFalse
			}
			if l == boolTrue && r == boolTrue {
				return boolTrue
			}
			return boolUnknown
		case "||":
			l := EvalBoolean(kind, n.LeftExpr, state)
			r := EvalBoolean(kind, n.RightExpr, state)
			if l == boolTrue || r == boolTrue {
				return boolTrue
			}
			if l == boolFalse && r == boolFalse {
				return boolFalse
			}
			return boolUnknown
		case "<", "<=", ">", ">=", "==", "!=":
			return compareIntervals(n.Operator, Eval(kind, n.LeftExpr, state), Eval(kind, n.RightExpr, state))
		}
	case ast.KindUnaryOperation:
		if n.Operator == "!" {
			switch EvalBoolean(kind, n.SubExpr, state) {
			case boolTrue:
				return boolFalse
			case boolFalse:
				return boolTrue
			default:
				return boolUnknown
			}
		}
	}
	v := Eval(kind, n, state)
	if v.Bottom {
		return boolUnknown
	}
	if v.Bound.ExcludesZero() {
		return boolTrue
	}
	if v.Bound.Lo == 0 && v.Bound.Hi == 0 {
		return boolFalse
	}
	return boolUnknown
}

func evalLogical(kind DomainKind, n *ast.Node, state State) Value {
	switch EvalBoolean(kind, n, state) {
	case boolTrue:
		return BoundValue(1, 1)
	case boolFalse:
		return BoundValue(0, 0)
	default:
		return BoundValue(0, 1)
	}
}

func evalComparison(kind DomainKind, n *ast.Node, state State) Value {
	switch EvalBoolean(kind, n, state) {
	case boolTrue:
		return BoundValue(1, 1)
	case boolFalse:
		return BoundValue(0, 0)
	default:
		return BoundValue(0, 1)
	}
}

// compareIntervals implements bound-endpoint comparison (spec.md §4.3).
func compareIntervals(op string, l, r Value) boolResult {
	if l.Bottom || r.Bottom {
		return boolUnknown
	}
	a, b := l.Bound, r.Bound
	switch op {
	case "<":
		if a.Hi < b.Lo {
			return boolTrue
		}
		if a.Lo >= b.Hi {
			return boolFalse
		}
	case "<=":
		if a.Hi <= b.Lo {
			return boolTrue
		}
		if a.Lo > b.Hi {
			return boolFalse
		}
	case ">":
		if a.Lo > b.Hi {
			return boolTrue
		}
		if a.Hi <= b.Lo {
			return boolFalse
		}
	case ">=":
		if a.Lo >= b.Hi {
			return boolTrue
		}
		if a.Hi < b.Lo {
			return boolFalse
		}
	case "==":
		if a.Lo == a.Hi && b.Lo == b.Hi && a.Lo == b.Lo {
			return boolTrue
		}
		if a.Hi < b.Lo || b.Hi < a.Lo {
			return boolFalse
		}
	case "!=":
		if a.Hi < b.Lo || b.Hi < a.Lo {
			return boolTrue
		}
		if a.Lo == a.Hi && b.Lo == b.Hi && a.Lo == b.Lo {
			return boolFalse
		}
	}
	return boolUnknown
}

// Refine narrows state by applying a condition's constraint (used when
// splitting an IfStatement/WhileStatement's two exit states). Where a
// domain cannot represent the constraint, state is returned unchanged
// (spec.md §4.3 "sound over-approximation").
func Refine(kind DomainKind, cond *ast.Node, state State, truth bool) State {
	if cond == nil || cond.Kind != ast.KindBinaryOperation {
		return state
	}
	op := cond.Operator
	if !truth {
		op = negate(op)
		if op == "" {
			return state
		}
	}
	left := cond.LeftExpr
	right := cond.RightExpr
	if left == nil || right == nil {
		return state
	}
	if left.Kind == ast.KindIdentifier && right.Kind == ast.KindLiteral {
		return refineIdentifier(kind, state, left.Name, op, Eval(kind, right, state).Bound)
	}
	if right.Kind == ast.KindIdentifier && left.Kind == ast.KindLiteral {
		return refineIdentifier(kind, state, right.Name, flip(op), Eval(kind, left, state).Bound)
	}
	return state
}

func negate(op string) string {
	switch op {
	case "<":
		return ">="
	case "<=":
		return ">"
	case ">":
		return "<="
	case ">=":
		return "<"
	case "==":
		return "!="
	case "!=":
		return "=="
	default:
		return ""
	}
}

func flip(op string) string {
	switch op {
	case "<":
		return ">"
	case "<=":
		return ">="
	case ">":
		return "<"
	case ">=":
		return "<="
	default:
		return op
	}
}

func refineIdentifier(kind DomainKind, state State, name, op string, bound Bound) State {
	cur := state.Get(name)
	if cur.Bottom {
		return state
	}
	var constraint Value
	switch op {
	case "<":
		constraint = BoundValue(topLo, bound.Hi-1)
	case "<=":
		constraint = BoundValue(topLo, bound.Hi)
	case ">":
		constraint = BoundValue(bound.Lo+1, topHi)
	case ">=":
		constraint = BoundValue(bound.Lo, topHi)
	case "==":
		return state.Assign(name, meetValue(cur, Value{Bound: bound}))
	default:
		return state // != is not interval-representable: DomainLimitation.
	}
	return state.Assign(name, meetValue(cur, constraint))
}
