// Package ast models the external AST compiler's output: a read-only tree
// of typed nodes describing a single compiled contract.
package ast

import "github.com/goccy/go-json"

// Kind tags the type of an AST node. Recognized kinds mirror the
// source-language constructs the CFG builder and semantics engines know
// how to dispatch on; anything else is treated as a generic, identity
// statement.
type Kind string

const (
	KindContractDefinition           Kind = "ContractDefinition"
	KindFunctionDefinition           Kind = "FunctionDefinition"
	KindVariableDeclaration          Kind = "VariableDeclaration"
	KindVariableDeclarationStatement Kind = "VariableDeclarationStatement"
	KindAssignment                   Kind = "Assignment"
	KindBinaryOperation              Kind = "BinaryOperation"
	KindUnaryOperation               Kind = "UnaryOperation"
	KindConditional                  Kind = "Conditional"
	KindIdentifier                   Kind = "Identifier"
	KindLiteral                      Kind = "Literal"
	KindMemberAccess                 Kind = "MemberAccess"
	KindFunctionCall                 Kind = "FunctionCall"
	KindIfStatement                  Kind = "IfStatement"
	KindWhileStatement               Kind = "WhileStatement"
	KindExpressionStatement          Kind = "ExpressionStatement"
	KindReturn                       Kind = "Return"
	KindThrow                        Kind = "Throw"
	KindStructDefinition             Kind = "StructDefinition"
	KindEnumDefinition               Kind = "EnumDefinition"
	KindBlock                        Kind = "Block"
)

// Node is a single AST node. The AST compiler produces these directly
// from its compact-JSON output; fields not relevant to a given Kind are
// left zero.
type Node struct {
	ID   int    `json:"id"`
	Kind Kind   `json:"nodeType"`
	Name string `json:"name,omitempty"`

	// Value carries literal text/number payloads for Literal nodes.
	Value string `json:"value,omitempty"`

	// Operator carries the operator text for BinaryOperation/
	// UnaryOperation/Assignment nodes (e.g. "+", "&&", "=").
	Operator string `json:"operator,omitempty"`

	// TypeName carries the declared type for VariableDeclaration nodes
	// (e.g. "uint256", "mapping(address => uint256)", "bool").
	TypeName string `json:"typeName,omitempty"`

	// StateVariable is true for ContractDefinition-level
	// VariableDeclaration nodes (as opposed to function locals).
	StateVariable bool `json:"stateVariable,omitempty"`

	// Expression-shaped children.
	LeftHandSide  *Node `json:"leftHandSide,omitempty"`
	RightHandSide *Node `json:"rightHandSide,omitempty"`
	LeftExpr      *Node `json:"leftExpression,omitempty"`
	RightExpr     *Node `json:"rightExpression,omitempty"`
	SubExpr       *Node `json:"subExpression,omitempty"`
	Expression    *Node `json:"expression,omitempty"`
	Condition     *Node `json:"condition,omitempty"`
	TrueExpr      *Node `json:"trueExpression,omitempty"`
	FalseExpr     *Node `json:"falseExpression,omitempty"`
	MemberName    string `json:"memberName,omitempty"`

	// Statement-shaped children.
	TrueBody    *Node   `json:"trueBody,omitempty"`
	FalseBody   *Node   `json:"falseBody,omitempty"`
	Body        *Node   `json:"body,omitempty"`
	Statements  []*Node `json:"statements,omitempty"`
	Declaration *Node   `json:"declaration,omitempty"` // VariableDeclarationStatement
	InitialValue *Node  `json:"initialValue,omitempty"`
	Arguments   []*Node `json:"arguments,omitempty"`
	Parameters  []*Node `json:"parameters,omitempty"`
	ReturnExpr  *Node   `json:"returnExpression,omitempty"`

	// ContractDefinition/FunctionDefinition container.
	Nodes []*Node `json:"nodes,omitempty"`
}

// Contract is one compiled contract: its name and root AST node.
type Contract struct {
	Name string
	Root *Node
}

// CompileResult is the output of the external AST compiler collaborator
// (SPEC_FULL.md "AST compiler, made concrete"): the ordered list of
// contract names found in the source and a lookup from name to AST.
type CompileResult struct {
	Names     []string
	contracts map[string]*Node
}

// NewCompileResult builds a CompileResult from parsed contracts.
func NewCompileResult(contracts []Contract) *CompileResult {
	cr := &CompileResult{contracts: make(map[string]*Node, len(contracts))}
	for _, c := range contracts {
		cr.Names = append(cr.Names, c.Name)
		cr.contracts[c.Name] = c.Root
	}
	return cr
}

// AST returns the root node for the named contract, or nil if absent.
func (cr *CompileResult) AST(name string) *Node {
	return cr.contracts[name]
}

// Marshal renders a node tree as the on-disk AST JSON dump
// (SPEC_FULL.md §6, `./gen/ast.json`).
func Marshal(n *Node) ([]byte, error) {
	return json.MarshalIndent(n, "", "  ")
}

// Unmarshal parses a node tree from the AST compiler's JSON output.
func Unmarshal(data []byte) (*Node, error) {
	var n Node
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// Children returns the direct AST children relevant to a linear
// traversal (used when a node kind is unrecognized and must be treated
// generically). Order follows typical textual layout.
func (n *Node) Children() []*Node {
	if n == nil {
		return nil
	}
	var out []*Node
	appendIf := func(c *Node) {
		if c != nil {
			out = append(out, c)
		}
	}
	appendIf(n.LeftHandSide)
	appendIf(n.RightHandSide)
	appendIf(n.LeftExpr)
	appendIf(n.RightExpr)
	appendIf(n.SubExpr)
	appendIf(n.Expression)
	appendIf(n.Condition)
	appendIf(n.TrueExpr)
	appendIf(n.FalseExpr)
	appendIf(n.TrueBody)
	appendIf(n.FalseBody)
	appendIf(n.Body)
	appendIf(n.Declaration)
	appendIf(n.InitialValue)
	appendIf(n.ReturnExpr)
	out = append(out, n.Statements...)
	out = append(out, n.Arguments...)
	out = append(out, n.Parameters...)
	out = append(out, n.Nodes...)
	return out
}
