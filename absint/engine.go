package absint

import (
	"sort"

	"github.com/avlsec/solanalyzer/ast"
	"github.com/avlsec/solanalyzer/cfgbuild"
)

// WidenThreshold is the default iteration count after which widening is
// applied at a WhileJoin node (spec.md §4.3 "Widening").
const WidenThreshold = 3

// PointState is the point-state table of spec.md §3: for a node, the
// entry state and, per successor, the exit state ("*" when uniform).
type PointState struct {
	Entry State
	Exit  map[string]State // next_cfg_id -> state; "*" if uniform.
}

// Engine runs the collecting-semantics fixed point over a CFG
// (spec.md §4.3).
type Engine struct {
	cfg       *cfgbuild.CFG
	kind      DomainKind
	vars      []string
	stateVars map[string]bool  // spec.md §4.3 step 1a "registry": which names survive a scope reset.
	registry  map[string]Bound // last known bound per state variable, reinjected when scope-reset would leave it Top.
	constants map[string]Bound // driver-supplied constants, e.g. function parameters.

	iterationCap   int
	widenThreshold int
	loopVisits     map[string]int

	history []map[string]PointState // not written by Run, which keeps only the previous and current round's entry states in locals.
}

// NewEngine constructs an engine over cfg for the given domain kind,
// registering every variable referenced anywhere in the CFG
// (spec.md §4.3 "Initialization" step 1).
func NewEngine(cfg *cfgbuild.CFG, kind DomainKind, constants map[string]Bound) *Engine {
	vars := collectVariables(cfg)
	return &Engine{
		cfg:            cfg,
		kind:           kind,
		vars:           vars,
		stateVars:      collectStateVariables(cfg),
		registry:       map[string]Bound{},
		constants:      constants,
		iterationCap:   200,
		widenThreshold: WidenThreshold,
		loopVisits:     map[string]int{},
	}
}

// collectStateVariables mirrors collectVariables but keeps only the names
// declared with StateVariable:true, the set spec.md §4.3 step 1a calls the
// "registry" of names that survive a FunctionEntry scope reset.
func collectStateVariables(cfg *cfgbuild.CFG) map[string]bool {
	out := map[string]bool{}
	for _, id := range cfg.Meta.AllNodeIDs() {
		n, _ := cfg.Meta.GetNode(id)
		if n.AST == nil {
			continue
		}
		if n.AST.Kind == ast.KindVariableDeclaration && n.AST.StateVariable && n.AST.Name != "" {
			out[n.AST.Name] = true
		}
	}
	return out
}

// SetWidenThreshold overrides the default loop-iteration count after
// which widening is applied at a WhileJoin (--widen-threshold).
func (e *Engine) SetWidenThreshold(n int) {
	if n > 0 {
		e.widenThreshold = n
	}
}

func collectVariables(cfg *cfgbuild.CFG) []string {
	seen := map[string]bool{}
	var out []string
	add := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		out = append(out, name)
	}
	for _, id := range cfg.Meta.AllNodeIDs() {
		n, _ := cfg.Meta.GetNode(id)
		if n.AST == nil {
			continue
		}
		walkNames(n.AST, add)
	}
	sort.Strings(out)
	return out
}

func walkNames(n *ast.Node, add func(string)) {
	if n == nil {
		return
	}
	switch n.Kind {
	case ast.KindIdentifier:
		add(n.Name)
	case ast.KindVariableDeclaration:
		add(n.Name)
	case ast.KindMemberAccess:
		if n.Expression != nil && n.Expression.Kind == ast.KindIdentifier {
			add(n.Expression.Name + "." + n.MemberName)
		}
	}
	for _, c := range n.Children() {
		walkNames(c, add)
	}
}

// Run iterates to a fixed point (or the iteration cap) and returns the
// final per-node point-state table, the number of rounds run, and
// whether the fixed point was reached.
func (e *Engine) Run() (map[string]PointState, int, bool) {
	order := e.dfsOrder()

	prevEntry := map[string]State{}
	for _, id := range order {
		prevEntry[id] = BottomState(e.vars)
	}
	entryInit := TopState(e.vars)
	for name, b := range e.constants {
		entryInit = entryInit.Assign(name, Value{Bound: b})
	}
	prevEntry[e.cfg.SourceEntry] = entryInit

	var latest map[string]PointState
	converged := false
	round := 0
	for round = 1; round <= e.iterationCap; round++ {
		curEntry := map[string]State{}
		exitStates := map[string]map[string]State{}

		for _, id := range order {
			node, _ := e.cfg.Meta.GetNode(id)
			entry := e.computeEntry(id, node, order, prevEntry, round)
			curEntry[id] = entry
			exitStates[id] = e.computeExit(node, entry)
		}

		latest = map[string]PointState{}
		for _, id := range order {
			latest[id] = PointState{Entry: curEntry[id], Exit: exitStates[id]}
		}

		stable := true
		for _, id := range order {
			if !curEntry[id].IsEqual(prevEntry[id]) {
				stable = false
				break
			}
		}
		prevEntry = curEntry
		if stable {
			converged = true
			break
		}
	}
	if !converged {
		round = e.iterationCap
	}

	return latest, round, converged
}

// computeEntry joins the exit states of every predecessor that target
// this node, applying the FunctionEntry scope-reset rule of spec.md
// §4.3 step 1a.
func (e *Engine) computeEntry(id string, node *cfgbuild.Node, order []string, prevEntry map[string]State, round int) State {
	if id == e.cfg.SourceEntry {
		return prevEntry[id]
	}

	var joined State
	have := false
	preds := make([]string, 0, len(node.Prev))
	for p := range node.Prev {
		preds = append(preds, p)
	}
	sort.Strings(preds)
	for _, p := range preds {
		ps, ok := e.lastExit(p, id, prevEntry, order)
		if !ok {
			continue
		}
		exitForThis := ps
		if !have {
			joined = exitForThis
			have = true
		} else {
			joined = joined.Join(exitForThis)
		}
	}
	if !have {
		joined = BottomState(e.vars)
	}

	if node.Kind == cfgbuild.KindWhileJoin {
		e.loopVisits[id]++
		if e.loopVisits[id] > e.widenThreshold {
			joined = joined.Widen(prevEntry[id])
		}
	}

	if node.Kind == cfgbuild.KindFunctionEntry {
		reset := TopState(e.vars)
		for name, b := range e.constants {
			reset = reset.Assign(name, Value{Bound: b})
		}
		for name := range e.stateVars {
			v := joined.Get(name)
			if !v.Bottom && !v.IsTop() {
				reset = reset.Assign(name, v)
				continue
			}
			if last, ok := e.registry[name]; ok {
				reset = reset.Assign(name, Value{Bound: last})
			}
		}
		return reset
	}

	return joined
}

// lastExit recomputes the exit state of p toward target under the entry
// p had last round, approximating "exit[p, i-1][next=target]" (spec.md
// §4.3 step 1a) without keeping more than the current/previous iteration
// in memory.
func (e *Engine) lastExit(p, target string, prevEntry map[string]State, order []string) (State, bool) {
	node, ok := e.cfg.Meta.GetNode(p)
	if !ok {
		return State{}, false
	}
	entry, ok := prevEntry[p]
	if !ok {
		entry = BottomState(e.vars)
	}
	exits := e.computeExit(node, entry)
	if s, ok := exits["*"]; ok {
		return s, true
	}
	// Non-uniform exit (a branch): select the state keyed for target.
	if s, ok := exits[target]; ok {
		return s, true
	}
	// No key for target: approximate with the join of all branches.
	var joined State
	have := false
	for _, s := range exits {
		if !have {
			joined = s
			have = true
		} else {
			joined = joined.Join(s)
		}
	}
	if !have {
		return BottomState(e.vars), true
	}
	return joined, true
}

// computeExit dispatches on node kind per spec.md §4.3 step 1b.
func (e *Engine) computeExit(node *cfgbuild.Node, entry State) map[string]State {
	switch node.Kind {
	case ast.KindVariableDeclaration:
		if node.AST != nil && node.AST.InitialValue != nil {
			v := Eval(e.kind, node.AST.InitialValue, entry)
			e.noteStateVar(node.AST.Name, v)
			return uniform(entry.Assign(node.AST.Name, v))
		}
		return uniform(entry)

	case ast.KindVariableDeclarationStatement:
		if node.AST != nil && node.AST.Declaration != nil && node.AST.InitialValue != nil {
			v := Eval(e.kind, node.AST.InitialValue, entry)
			e.noteStateVar(node.AST.Declaration.Name, v)
			return uniform(entry.Assign(node.AST.Declaration.Name, v))
		}
		return uniform(entry)

	case ast.KindAssignment, ast.KindExpressionStatement:
		target := node.AST
		if target != nil && target.Kind != ast.KindAssignment && target.Expression != nil {
			target = target.Expression
		}
		if target != nil && target.Kind == ast.KindAssignment && target.LeftHandSide != nil && target.LeftHandSide.Kind == ast.KindIdentifier {
			v := Eval(e.kind, target.RightHandSide, entry)
			e.noteStateVar(target.LeftHandSide.Name, v)
			return uniform(entry.Assign(target.LeftHandSide.Name, v))
		}
		return uniform(entry)

	case ast.KindIfStatement, ast.KindWhileStatement:
		if node.AST == nil || node.AST.Condition == nil {
			return uniformAll(node, entry)
		}
		trueState := Refine(e.kind, node.AST.Condition, entry, true)
		falseState := Refine(e.kind, node.AST.Condition, entry, false)
		out := map[string]State{}
		succs := sortedKeys(node.Next)
		for i, s := range succs {
			if i == 0 {
				out[s] = trueState
			} else {
				out[s] = falseState
			}
		}
		return out

	case ast.KindReturn:
		if node.AST != nil && node.AST.ReturnExpr != nil {
			v := Eval(e.kind, node.AST.ReturnExpr, entry)
			return uniform(entry.Assign("$return", v))
		}
		return uniform(entry)

	case ast.KindThrow:
		return uniform(BottomState(e.vars))

	default:
		return uniform(entry)
	}
}

// noteStateVar records name's last known non-Top, non-Bottom bound in the
// registry (spec.md §4.3 step 1a), so a later FunctionEntry scope reset
// that would otherwise leave a state variable at Top can reinject it
// instead of discarding everything known about it.
func (e *Engine) noteStateVar(name string, v Value) {
	if !e.stateVars[name] || v.Bottom || v.IsTop() {
		return
	}
	e.registry[name] = v.Bound
}

func uniform(s State) map[string]State {
	return map[string]State{"*": s}
}

func uniformAll(node *cfgbuild.Node, s State) map[string]State {
	out := map[string]State{}
	for n := range node.Next {
		out[n] = s
	}
	if len(out) == 0 {
		out["*"] = s
	}
	return out
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// dfsOrder returns every node reachable from SourceEntry, in DFS
// pre-order, with a visited set to bound recursion on the cyclic graph
// (spec.md §9 "Recursion").
func (e *Engine) dfsOrder() []string {
	var order []string
	visited := map[string]bool{}
	var walk func(id string)
	walk = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		order = append(order, id)
		node, ok := e.cfg.Meta.GetNode(id)
		if !ok {
			return
		}
		next := sortedKeys(node.Next)
		for _, n := range next {
			walk(n)
		}
	}
	walk(e.cfg.SourceEntry)
	// Include any node not reachable by forward DFS (e.g. isolated
	// contract-level declarations) so the point-state table still
	// covers every registered cfg_id.
	for _, id := range e.cfg.Meta.AllNodeIDs() {
		if !visited[id] {
			walk(id)
		}
	}
	return order
}
