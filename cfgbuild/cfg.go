// Package cfgbuild builds a control-flow graph from a compiled contract
// AST (SPEC_FULL.md §4.1). Construction rules, synthetic node kinds, and
// the metadata table are ported from the same dominator/edge-bookkeeping
// shape the teacher uses for its call-graph basic blocks, generalized
// from language basic blocks to one node per AST statement/expression.
package cfgbuild

import (
	"fmt"
	"sort"
	"strings"

	"github.com/avlsec/solanalyzer/ast"
	"github.com/avlsec/solanalyzer/errs"
)

// Synthetic node kinds not present in the AST proper.
const (
	KindSourceEntry     ast.Kind = "SourceEntry"
	KindSourceExit      ast.Kind = "SourceExit"
	KindFunctionEntry   ast.Kind = "FunctionEntry"
	KindFunctionExit    ast.Kind = "FunctionExit"
	KindIfConditionJoin ast.Kind = "IfConditionJoin"
	KindWhileJoin       ast.Kind = "WhileJoin"
)

// Node is one CFG node: spec.md §3 "CFG node".
type Node struct {
	ID   string
	Kind ast.Kind

	// AST is the owned expression/statement subtree this node
	// represents; nil for pure synthetic nodes.
	AST *ast.Node

	// FunctionName is the enclosing function's name, empty at
	// contract (source) scope.
	FunctionName string

	Prev map[string]bool
	Next map[string]bool

	// Leaves are the cfg_ids that act as exit leaves when this node's
	// subtree is spliced into surrounding flow.
	Leaves []string
}

func newNode(id string, kind ast.Kind, n *ast.Node, fn string) *Node {
	return &Node{ID: id, Kind: kind, AST: n, FunctionName: fn, Prev: map[string]bool{}, Next: map[string]bool{}}
}

// Metadata is the CFG metadata table: cfg_id -> node, plus ast-id
// reverse lookup, per spec.md §3.
type Metadata struct {
	nodes    map[string]*Node
	byASTID  map[int]*Node
	counters map[ast.Kind]int
}

func newMetadata() *Metadata {
	return &Metadata{
		nodes:    map[string]*Node{},
		byASTID:  map[int]*Node{},
		counters: map[ast.Kind]int{},
	}
}

// GetNode implements metadata.get_node(cfg_id).
func (m *Metadata) GetNode(cfgID string) (*Node, bool) {
	n, ok := m.nodes[cfgID]
	return n, ok
}

// GetNodeByASTID implements metadata.get_node_by_ast_id(ast_id).
func (m *Metadata) GetNodeByASTID(astID int) (*Node, bool) {
	n, ok := m.byASTID[astID]
	return n, ok
}

// AllNodeIDs returns every registered cfg_id, sorted for deterministic
// iteration in reporting and tests.
func (m *Metadata) AllNodeIDs() []string {
	ids := make([]string, 0, len(m.nodes))
	for id := range m.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *Metadata) register(kind ast.Kind, n *ast.Node, fn string) *Node {
	count := m.counters[kind]
	id := fmt.Sprintf("%s_%d", kind, count)
	m.counters[kind] = count + 1
	node := newNode(id, kind, n, fn)
	m.nodes[id] = node
	if n != nil {
		m.byASTID[n.ID] = node
	}
	return node
}

// CFG is the control-flow graph of an entire contract (spec.md §4.1:
// "Contract-level declarations precede the first function entry,
// bracketed by SourceEntry_0 / SourceExit_0").
type CFG struct {
	Meta        *Metadata
	SourceEntry string
	SourceExit  string
}

func addEdge(meta *Metadata, from, to string) {
	if from == "" || to == "" {
		return
	}
	f, okF := meta.GetNode(from)
	t, okT := meta.GetNode(to)
	if !okF || !okT {
		return
	}
	f.Next[to] = true
	t.Prev[from] = true
}

// builder holds per-build mutable state threaded through the recursive
// descent (spec.md §9: "encapsulate in an analyzer context object passed
// explicitly; avoid process-wide singletons").
type builder struct {
	meta *CFG
}

// Build materializes a CFG from a contract's AST root
// (metadata.build(ast_root) -> (cfg, metadata) in spec.md §4.1).
func Build(root *ast.Node) (*CFG, error) {
	if root == nil {
		return nil, errs.New(errs.MalformedAst, "nil contract root")
	}
	meta := newMetadata()
	cfg := &CFG{Meta: meta}

	entry := meta.register(KindSourceEntry, nil, "")
	exit := meta.register(KindSourceExit, nil, "")
	cfg.SourceEntry = entry.ID
	cfg.SourceExit = exit.ID

	b := &builder{meta: cfg}

	cursor := entry.ID
	var pendingFunctions []*ast.Node
	for _, child := range root.Nodes {
		switch child.Kind {
		case ast.KindFunctionDefinition:
			pendingFunctions = append(pendingFunctions, child)
		case ast.KindVariableDeclaration:
			declNode := meta.register(ast.KindVariableDeclaration, child, "")
			addEdge(meta, cursor, declNode.ID)
			cursor = declNode.ID
		case ast.KindStructDefinition, ast.KindEnumDefinition:
			declNode := meta.register(child.Kind, child, "")
			addEdge(meta, cursor, declNode.ID)
			cursor = declNode.ID
		default:
			// Unknown contract-level kinds are registered generically
			// (spec.md §4.1 failure semantics).
			declNode := meta.register(child.Kind, child, "")
			addEdge(meta, cursor, declNode.ID)
			cursor = declNode.ID
		}
	}
	addEdge(meta, cursor, exit.ID)

	prevExit := exit.ID
	for _, fn := range pendingFunctions {
		entryID, exitID, err := b.buildFunction(fn)
		if err != nil {
			return nil, err
		}
		addEdge(meta, prevExit, entryID)
		prevExit = exitID
	}

	return cfg, nil
}

// buildFunction registers the function's FunctionEntry_k/FunctionExit_k
// pair and wires its body between them, returning both ids so the caller
// can chain the contract's functions together (spec.md §4.1 "Contract-level
// declarations precede the first function entry"): SourceExit_0 feeds
// FunctionEntry_0, and each function's FunctionExit_k feeds the next
// function's FunctionEntry_k+1, so cross-function bound propagation
// (spec.md §4.3 step 1a) has real predecessors to read from.
func (b *builder) buildFunction(fn *ast.Node) (entryID, exitID string, err error) {
	meta := b.meta.Meta
	fnName := fn.Name

	entry := meta.register(KindFunctionEntry, fn, fnName)
	exit := meta.register(KindFunctionExit, fn, fnName)

	body := fn.Body
	if body == nil {
		// A function with no body (an interface/abstract stub) is
		// legal; entry flows directly to exit.
		addEdge(meta, entry.ID, exit.ID)
		return entry.ID, exit.ID, nil
	}

	last, leaves, err := b.buildBlock(body.Statements, fnName, exit.ID)
	if err != nil {
		return "", "", err
	}
	if last == "" {
		addEdge(meta, entry.ID, exit.ID)
		return entry.ID, exit.ID, nil
	}
	addEdge(meta, entry.ID, last)
	for _, leaf := range leaves {
		addEdge(meta, leaf, exit.ID)
	}
	return entry.ID, exit.ID, nil
}

// buildBlock threads a sequential statement list into the CFG, returning
// the id of the first node in the chain and the set of leaf cfg_ids that
// fall through to whatever follows the block (function exit, loop join,
// if-join, ...).
func (b *builder) buildBlock(stmts []*ast.Node, fnName, fnExitID string) (first string, leaves []string, err error) {
	meta := b.meta.Meta
	cursor := ""
	for _, stmt := range stmts {
		headID, tailLeaves, terminal, err := b.buildStatement(stmt, fnName, fnExitID)
		if err != nil {
			return "", nil, err
		}
		if headID == "" {
			continue
		}
		if first == "" {
			first = headID
		}
		if cursor != "" {
			addEdge(meta, cursor, headID)
		}
		if terminal {
			// Return/Throw: no fallthrough; tailLeaves (if any) were
			// already wired to their own terminal target.
			cursor = ""
			continue
		}
		if len(tailLeaves) == 1 {
			cursor = tailLeaves[0]
		} else {
			// Multiple leaves (e.g. an if with no following join yet
			// created): synthesize nothing here; caller of buildBlock
			// sees these as block leaves only when this is the final
			// statement.
			cursor = ""
			leaves = append(leaves, tailLeaves...)
		}
	}
	if cursor != "" {
		leaves = append(leaves, cursor)
	}
	return first, leaves, nil
}

// buildStatement constructs one statement's CFG fragment and reports its
// entry id, its fallthrough leaves, and whether it terminates the
// enclosing function's linear flow (Return/Throw).
func (b *builder) buildStatement(stmt *ast.Node, fnName, fnExitID string) (head string, leaves []string, terminal bool, err error) {
	meta := b.meta.Meta

	switch stmt.Kind {
	case ast.KindIfStatement:
		return b.buildIf(stmt, fnName, fnExitID)
	case ast.KindWhileStatement:
		return b.buildWhile(stmt, fnName, fnExitID)
	case ast.KindReturn:
		n := meta.register(ast.KindReturn, stmt, fnName)
		addEdge(meta, n.ID, fnExitID)
		return n.ID, nil, true, nil
	case ast.KindThrow:
		// spec.md §4.1: Throw has no successor; engines treat it as
		// bottom-propagating.
		n := meta.register(ast.KindThrow, stmt, fnName)
		return n.ID, nil, true, nil
	case nil:
		return "", nil, false, nil
	default:
		if stmt.Condition == nil && stmt.LeftHandSide == nil && len(stmt.Statements) == 0 && stmt.Kind != ast.KindVariableDeclarationStatement &&
			stmt.Kind != ast.KindExpressionStatement && stmt.Kind != ast.KindVariableDeclaration {
			// Nothing is rejected here: missing conditions are fatal
			// only for If/While (buildIf, buildWhile); every other
			// kind, known or not, is registered generically.
		}
		n := meta.register(stmt.Kind, stmt, fnName)
		return n.ID, []string{n.ID}, false, nil
	}
}

func (b *builder) buildIf(stmt *ast.Node, fnName, fnExitID string) (head string, leaves []string, terminal bool, err error) {
	meta := b.meta.Meta
	if stmt.Condition == nil {
		return "", nil, false, errs.New(errs.MalformedAst, "IfStatement missing condition")
	}

	cond := meta.register(ast.KindIfStatement, stmt, fnName)
	join := meta.register(KindIfConditionJoin, nil, fnName)

	trueStmts := blockStatements(stmt.TrueBody)
	trueHead, trueLeaves, trueErr := b.buildBlock(trueStmts, fnName, fnExitID)
	if trueErr != nil {
		return "", nil, false, trueErr
	}
	if trueHead == "" {
		addEdge(meta, cond.ID, join.ID)
	} else {
		addEdge(meta, cond.ID, trueHead)
		for _, l := range trueLeaves {
			addEdge(meta, l, join.ID)
		}
	}

	if stmt.FalseBody != nil {
		falseStmts := blockStatements(stmt.FalseBody)
		falseHead, falseLeaves, falseErr := b.buildBlock(falseStmts, fnName, fnExitID)
		if falseErr != nil {
			return "", nil, false, falseErr
		}
		if falseHead == "" {
			addEdge(meta, cond.ID, join.ID)
		} else {
			addEdge(meta, cond.ID, falseHead)
			for _, l := range falseLeaves {
				addEdge(meta, l, join.ID)
			}
		}
	} else {
		addEdge(meta, cond.ID, join.ID)
	}

	return cond.ID, []string{join.ID}, false, nil
}

func (b *builder) buildWhile(stmt *ast.Node, fnName, fnExitID string) (head string, leaves []string, terminal bool, err error) {
	meta := b.meta.Meta
	if stmt.Condition == nil {
		return "", nil, false, errs.New(errs.MalformedAst, "WhileStatement missing condition")
	}

	join := meta.register(KindWhileJoin, nil, fnName)
	cond := meta.register(ast.KindWhileStatement, stmt, fnName)
	addEdge(meta, join.ID, cond.ID)

	bodyStmts := blockStatements(stmt.Body)
	bodyHead, bodyLeaves, bodyErr := b.buildBlock(bodyStmts, fnName, fnExitID)
	if bodyErr != nil {
		return "", nil, false, bodyErr
	}
	if bodyHead == "" {
		// Degenerate empty loop body: true-exit loops straight back.
		addEdge(meta, cond.ID, join.ID)
	} else {
		addEdge(meta, cond.ID, bodyHead)
		for _, l := range bodyLeaves {
			addEdge(meta, l, join.ID)
		}
	}

	return join.ID, []string{cond.ID}, false, nil
}

// blockStatements normalizes a statement-or-Block AST child into a flat
// statement list.
func blockStatements(n *ast.Node) []*ast.Node {
	if n == nil {
		return nil
	}
	if n.Kind == ast.KindBlock || len(n.Statements) > 0 {
		return n.Statements
	}
	return []*ast.Node{n}
}

// SpliceEdge implements the post-build manual edge splicing spec.md §4.1
// describes for re-entrancy modeling: it redirects the given source
// node's outgoing edges to target instead, leaving the original
// destination(s) only reachable if some other edge still points to them.
// Per spec.md §9 Open Questions, this is treated as a configurable,
// caller-invoked operation rather than something Build performs
// automatically.
func (cfg *CFG) SpliceEdge(from, target string) error {
	meta := cfg.Meta
	fromNode, ok := meta.GetNode(from)
	if !ok {
		return errs.New(errs.MalformedAst, "splice source %q not found", from)
	}
	if _, ok := meta.GetNode(target); !ok {
		return errs.New(errs.MalformedAst, "splice target %q not found", target)
	}
	if fromNode.Next[target] {
		return nil // idempotent: already spliced.
	}
	for next := range fromNode.Next {
		delete(fromNode.Next, next)
		if n, ok := meta.GetNode(next); ok {
			delete(n.Prev, from)
		}
	}
	addEdge(meta, from, target)
	return nil
}

// GenerateDot emits textual DOT listing every registered node's outgoing
// edges, nodes in sorted cfg_id order.
func (cfg *CFG) GenerateDot() string {
	return cfg.generateDot(false)
}

// GenerateDotBottomUp emits textual DOT built from every registered
// node's incoming edges (each printed as pred -> node), nodes in sorted
// cfg_id order; the edge set is the same as GenerateDot's.
func (cfg *CFG) GenerateDotBottomUp() string {
	return cfg.generateDot(true)
}

func (cfg *CFG) generateDot(reverse bool) string {
	var sb strings.Builder
	sb.WriteString("digraph CFG {\n")
	for _, id := range cfg.Meta.AllNodeIDs() {
		n := cfg.Meta.nodes[id]
		edges := n.Next
		if reverse {
			edges = n.Prev
		}
		targets := make([]string, 0, len(edges))
		for t := range edges {
			targets = append(targets, t)
		}
		sort.Strings(targets)
		for _, t := range targets {
			if reverse {
				fmt.Fprintf(&sb, "  %q -> %q;\n", t, id)
			} else {
				fmt.Fprintf(&sb, "  %q -> %q;\n", id, t)
			}
		}
	}
	sb.WriteString("}\n")
	return sb.String()
}

// ComputeDominators computes dominator sets for every node, iterating
// predecessor-dominator-set intersection to a fixed point (adapted from
// the teacher's basic-block dominator pass).
func (cfg *CFG) ComputeDominators() map[string][]string {
	ids := cfg.Meta.AllNodeIDs()
	dom := make(map[string][]string, len(ids))
	dom[cfg.SourceEntry] = []string{cfg.SourceEntry}
	for _, id := range ids {
		if id == cfg.SourceEntry {
			continue
		}
		dom[id] = append([]string{}, ids...)
	}

	changed := true
	for changed {
		changed = false
		for _, id := range ids {
			if id == cfg.SourceEntry {
				continue
			}
			node := cfg.Meta.nodes[id]
			preds := make([]string, 0, len(node.Prev))
			for p := range node.Prev {
				preds = append(preds, p)
			}
			sort.Strings(preds)

			var newDom []string
			if len(preds) > 0 {
				newDom = append([]string{}, dom[preds[0]]...)
				for _, p := range preds[1:] {
					newDom = intersect(newDom, dom[p])
				}
			}
			if !contains(newDom, id) {
				newDom = append(newDom, id)
			}
			sort.Strings(newDom)
			if !equalStrings(dom[id], newDom) {
				dom[id] = newDom
				changed = true
			}
		}
	}
	return dom
}

// GetAllPaths enumerates every path from SourceEntry to SourceExit via
// DFS with a visited set, per spec.md §9 "Recursion".
func (cfg *CFG) GetAllPaths() [][]string {
	var paths [][]string
	visited := map[string]bool{}
	cfg.dfsAllPaths(cfg.SourceEntry, nil, visited, &paths)
	return paths
}

func (cfg *CFG) dfsAllPaths(id string, path []string, visited map[string]bool, paths *[][]string) {
	if visited[id] {
		return
	}
	path = append(path, id)
	visited[id] = true
	defer func() { visited[id] = false }()

	if id == cfg.SourceExit {
		cp := append([]string{}, path...)
		*paths = append(*paths, cp)
		return
	}
	node, ok := cfg.Meta.nodes[id]
	if !ok {
		return
	}
	next := make([]string, 0, len(node.Next))
	for n := range node.Next {
		next = append(next, n)
	}
	sort.Strings(next)
	for _, n := range next {
		cfg.dfsAllPaths(n, path, visited, paths)
	}
}

func intersect(a, b []string) []string {
	set := map[string]bool{}
	for _, x := range b {
		set[x] = true
	}
	var out []string
	for _, x := range a {
		if set[x] {
			out = append(out, x)
		}
	}
	return out
}

func contains(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
