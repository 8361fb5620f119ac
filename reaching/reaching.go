// Package reaching implements the reaching-definitions, use-def,
// control-dependence, and transaction-ordering-dependence (TOD) detector
// (SPEC_FULL.md §4.2), generalizing the teacher's Statement/DefUseChain
// types (graph/callgraph/core/statement.go) from single-function Python
// statements to a whole-contract, multi-function CFG.
package reaching

import (
	"fmt"
	"sort"

	"github.com/avlsec/solanalyzer/ast"
	"github.com/avlsec/solanalyzer/cfgbuild"
	"github.com/avlsec/solanalyzer/rewrite"
)

// timestampSources are the symbolic names whose use marks a node
// timestamp-influenced (spec.md §4.2 step 7, glossary "Timestamp
// influence").
var timestampSources = map[string]bool{
	"blocktimestamp":   true,
	"block.timestamp":  true,
	"now":              true,
	"BLOCK_TIMESTAMP":  true,
}

// defUsePair is one (use_cfg_id, def_cfg_id) entry in
// variable_dependencies[v], per spec.md §3.
type defUsePair struct {
	Use string
	Def string
}

// Store is the reaching-definitions store of spec.md §3.
type Store struct {
	cfg *cfgbuild.CFG

	// used/defined per node, spec.md §3 "Reaching-definitions store".
	usedVars    map[string][]string
	definedVars map[string][]string

	// latestDefinitions: name -> cfg_id of the last node, in sorted id
	// order, that defines the name (set by fixedPoint's second pass).
	latestDefinitions map[string]string

	// variableDependencies: name -> set of (use, def) pairs.
	variableDependencies map[string][]defUsePair

	// statementDependencies: node -> set of (def, var) pairs it depends on.
	statementDependencies map[string][]defUsePair

	// controlDependencies: child -> controlling branch node.
	controlDependencies map[string]string

	// timestampInfluence: cfg_id -> set of timestamp source names used there.
	timestampInfluence map[string]map[string]bool

	// nodeToFunction: cfg_id -> function name ("" at contract scope).
	nodeToFunction map[string]string

	// stateVariables is the set of contract-level and symbolic
	// pseudo-state variable names (spec.md §3 + SPEC_FULL.md
	// "Symbolic pseudo-state injection").
	stateVariables map[string]bool

	// mappingOrigin holds names the rewriter scalarized from a
	// mapping declaration (SPEC_FULL.md "Mapping-origin
	// classification"); TOD findings exclude these.
	mappingOrigin map[string]bool

	// reaching: node -> IN set as (var, defNode) pairs, result of the
	// GEN/KILL worklist fixed point (spec.md §4.2 steps 1-3).
	reachingIn map[string]map[defUsePair]bool

	iterations int
}

// Finding is one TOD report entry (timestamp-influence notes are built
// separately, by report.TimestampFindings).
type Finding struct {
	Variable  string
	DefNode   string
	DefFunc   string
	UseNode   string
	UseFunc   string
	Intra     bool // true => "[INTRA-TOD]", false => "[TOD]"
}

func (f Finding) String() string {
	tag := "TOD"
	if f.Intra {
		tag = "INTRA-TOD"
	}
	return fmt.Sprintf("%s: defined in %s (%s), used in %s (%s) [%s]", f.Variable, f.DefNode, f.DefFunc, f.UseNode, f.UseFunc, tag)
}

// Analyze runs the worklist to a fixed point and returns the populated
// store plus the TOD findings (spec.md §4.2 "Output").
func Analyze(cfg *cfgbuild.CFG, mappings []rewrite.MappingInfo) (*Store, []Finding) {
	s := &Store{
		cfg:                    cfg,
		usedVars:               map[string][]string{},
		definedVars:            map[string][]string{},
		latestDefinitions:      map[string]string{},
		variableDependencies:   map[string][]defUsePair{},
		statementDependencies:  map[string][]defUsePair{},
		controlDependencies:    map[string]string{},
		timestampInfluence:     map[string]map[string]bool{},
		nodeToFunction:         map[string]string{},
		stateVariables:         map[string]bool{},
		mappingOrigin:          map[string]bool{},
		reachingIn:             map[string]map[defUsePair]bool{},
	}
	for _, m := range mappings {
		s.mappingOrigin[m.Name] = true
	}

	s.collectStateVariables()
	s.extractUseDef()
	s.computeControlDependence()
	s.fixedPoint()
	s.promoteTransitiveStateInfluence()

	findings := s.detectTOD()
	return s, findings
}

// collectStateVariables seeds the state-variable set from
// contract-level VariableDeclaration nodes plus a fixed list of symbolic
// pseudo-state names (CONTRACT_BALANCE, BLOCK_TIMESTAMP, BLOCK_NUMBER,
// msg.value, tx.origin, tx.gasprice). Only the names are added: no source
// expression such as address(this).balance is renamed to one of them.
func (s *Store) collectStateVariables() {
	for _, id := range s.cfg.Meta.AllNodeIDs() {
		n, _ := s.cfg.Meta.GetNode(id)
		if n.AST != nil && n.Kind == ast.KindVariableDeclaration && n.AST.StateVariable {
			s.stateVariables[n.AST.Name] = true
		}
	}
	for _, sym := range []string{"CONTRACT_BALANCE", "BLOCK_TIMESTAMP", "BLOCK_NUMBER", "msg.value", "tx.origin", "tx.gasprice"} {
		s.stateVariables[sym] = true
	}
}

// extractUseDef populates usedVars/definedVars/nodeToFunction and raw
// timestamp-influence per node, by AST kind, per spec.md §4.2 step 4.
func (s *Store) extractUseDef() {
	for _, id := range s.cfg.Meta.AllNodeIDs() {
		n, _ := s.cfg.Meta.GetNode(id)
		s.nodeToFunction[id] = n.FunctionName
		if n.AST == nil {
			continue
		}
		var uses, defs []string
		switch n.Kind {
		case ast.KindVariableDeclaration:
			defs = append(defs, n.AST.Name)
			if n.AST.InitialValue != nil {
				uses = append(uses, extractVariables(n.AST.InitialValue)...)
			}
		case ast.KindVariableDeclarationStatement:
			if n.AST.Declaration != nil {
				defs = append(defs, n.AST.Declaration.Name)
			}
			if n.AST.InitialValue != nil {
				uses = append(uses, extractVariables(n.AST.InitialValue)...)
			}
		case ast.KindAssignment, ast.KindExpressionStatement, ast.KindBinaryOperation, ast.KindUnaryOperation, ast.KindFunctionCall:
			target := n.AST
			if target.Kind != ast.KindAssignment && target.Expression != nil {
				target = target.Expression
			}
			if target.Kind == ast.KindAssignment && target.LeftHandSide != nil {
				defs = append(defs, extractLHSNames(target.LeftHandSide)...)
				if target.RightHandSide != nil {
					uses = append(uses, extractVariables(target.RightHandSide)...)
				}
			} else {
				uses = append(uses, extractVariables(target)...)
			}
		case ast.KindIfStatement, ast.KindWhileStatement:
			if n.AST.Condition != nil {
				uses = append(uses, extractVariables(n.AST.Condition)...)
			}
		case ast.KindReturn:
			if n.AST.ReturnExpr != nil {
				uses = append(uses, extractVariables(n.AST.ReturnExpr)...)
			}
		}
		s.definedVars[id] = dedupe(defs)
		s.usedVars[id] = dedupe(uses)

		for _, v := range uses {
			if timestampSources[v] {
				if s.timestampInfluence[id] == nil {
					s.timestampInfluence[id] = map[string]bool{}
				}
				s.timestampInfluence[id][v] = true
			}
		}
	}
}

// computeControlDependence performs a DFS from every branch's true/false
// bodies to their join, per spec.md §4.2 "Control dependence".
func (s *Store) computeControlDependence() {
	for _, id := range s.cfg.Meta.AllNodeIDs() {
		n, _ := s.cfg.Meta.GetNode(id)
		if n.Kind != ast.KindIfStatement && n.Kind != ast.KindWhileStatement {
			continue
		}
		var joinKind ast.Kind = cfgbuild.KindIfConditionJoin
		if n.Kind == ast.KindWhileStatement {
			joinKind = cfgbuild.KindWhileJoin
		}
		visited := map[string]bool{}
		var walk func(cur string)
		walk = func(cur string) {
			if visited[cur] {
				return
			}
			visited[cur] = true
			cn, ok := s.cfg.Meta.GetNode(cur)
			if !ok {
				return
			}
			if cn.Kind == joinKind && cur != id {
				return
			}
			if cur != id {
				if _, already := s.controlDependencies[cur]; !already {
					s.controlDependencies[cur] = id
				}
			}
			for next := range cn.Next {
				if nn, ok := s.cfg.Meta.GetNode(next); ok && nn.Kind == joinKind {
					continue
				}
				walk(next)
			}
		}
		for next := range n.Next {
			walk(next)
		}
	}
}

// fixedPoint runs the GEN/KILL worklist of spec.md §4.2 steps 1-3 to
// convergence, then walks the nodes once more in sorted id order to populate
// latestDefinitions/variableDependencies/statementDependencies from the
// converged IN sets (steps 5-6).
func (s *Store) fixedPoint() {
	ids := s.cfg.Meta.AllNodeIDs()
	out := make(map[string]map[defUsePair]bool, len(ids))
	for _, id := range ids {
		s.reachingIn[id] = map[defUsePair]bool{}
		out[id] = map[defUsePair]bool{}
	}

	changed := true
	for changed && s.iterations < 1000 {
		changed = false
		s.iterations++
		for _, id := range ids {
			n, _ := s.cfg.Meta.GetNode(id)
			in := map[defUsePair]bool{}
			preds := make([]string, 0, len(n.Prev))
			for p := range n.Prev {
				preds = append(preds, p)
			}
			sort.Strings(preds)
			for _, p := range preds {
				for pair := range out[p] {
					in[pair] = true
				}
			}
			s.reachingIn[id] = in

			newOut := map[defUsePair]bool{}
			for pair := range in {
				killed := false
				for _, def := range s.definedVars[id] {
					if pair.Use == def {
						killed = true
						break
					}
				}
				if !killed {
					newOut[pair] = true
				}
			}
			for _, def := range s.definedVars[id] {
				newOut[defUsePair{Use: def, Def: id}] = true
			}
			if !sameSet(out[id], newOut) {
				out[id] = newOut
				changed = true
			}
		}
	}

	// Second pass: derive variable_dependencies/statement_dependencies
	// and latest_definitions from the converged per-node IN sets,
	// walking nodes in id order for reproducibility.
	for _, id := range ids {
		in := s.reachingIn[id]
		for _, used := range s.usedVars[id] {
			for pair := range in {
				if pair.Use == used {
					s.variableDependencies[used] = append(s.variableDependencies[used], defUsePair{Use: id, Def: pair.Def})
					s.statementDependencies[id] = append(s.statementDependencies[id], defUsePair{Use: used, Def: pair.Def})
				}
			}
		}
		for _, def := range s.definedVars[id] {
			s.latestDefinitions[def] = id
		}
	}
}

func sameSet(a, b map[defUsePair]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

// promoteTransitiveStateInfluence extends the state-variable set to
// locals defined from a state variable (SPEC_FULL.md "Transitive
// state-influence promotion"): a single BFS over variable_dependencies,
// run once after the worklist has converged. It does not run between
// worklist rounds, and the worklist is not re-run after it; the promoted
// set is used by detectTOD only.
func (s *Store) promoteTransitiveStateInfluence() {
	queue := make([]string, 0, len(s.stateVariables))
	for v := range s.stateVariables {
		queue = append(queue, v)
	}
	visited := map[string]bool{}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		if visited[v] {
			continue
		}
		visited[v] = true
		for _, pair := range s.variableDependencies[v] {
			n, ok := s.cfg.Meta.GetNode(pair.Use)
			if !ok {
				continue
			}
			for _, def := range s.definedVars[pair.Use] {
				if !s.stateVariables[def] {
					s.stateVariables[def] = true
					queue = append(queue, def)
				}
			}
			_ = n
		}
	}
}

// detectTOD implements spec.md §4.2 "TOD detection": intra- and
// inter-function definitions of a state variable reaching a
// control-or-transfer-sensitive use, excluding mapping-origin scalars
// and timestamp-influenced uses.
func (s *Store) detectTOD() []Finding {
	var findings []Finding
	seen := map[string]bool{}

	for v := range s.stateVariables {
		if s.mappingOrigin[v] {
			continue
		}
		for _, pair := range s.variableDependencies[v] {
			useID, defID := pair.Use, pair.Def
			if len(s.timestampInfluence[useID]) > 0 {
				continue
			}
			if !s.isControlOrTransferSensitive(useID) {
				continue
			}
			useFunc := s.nodeToFunction[useID]
			defFunc := s.nodeToFunction[defID]
			intra := useFunc == defFunc && useFunc != ""
			key := fmt.Sprintf("%s|%s|%s|%v", v, defID, useID, intra)
			if seen[key] {
				continue
			}
			seen[key] = true
			findings = append(findings, Finding{
				Variable: v, DefNode: defID, DefFunc: defFunc,
				UseNode: useID, UseFunc: useFunc, Intra: intra,
			})
		}
	}

	sort.Slice(findings, func(i, j int) bool {
		if findings[i].Variable != findings[j].Variable {
			return findings[i].Variable < findings[j].Variable
		}
		if findings[i].DefNode != findings[j].DefNode {
			return findings[i].DefNode < findings[j].DefNode
		}
		return findings[i].UseNode < findings[j].UseNode
	})
	return findings
}

// isControlOrTransferSensitive reports whether a use appears inside an
// expression performing an external call/send/transfer, or inside a
// require/assert whose successors (before the next join) contain such a
// call (spec.md §4.2).
func (s *Store) isControlOrTransferSensitive(nodeID string) bool {
	n, ok := s.cfg.Meta.GetNode(nodeID)
	if !ok {
		return false
	}
	if n.AST != nil && containsCallValue(n.AST) {
		return true
	}
	if n.AST != nil && isRequireOrAssert(n.AST) {
		visited := map[string]bool{nodeID: true}
		queue := []string{}
		for next := range n.Next {
			queue = append(queue, next)
		}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			if visited[cur] {
				continue
			}
			visited[cur] = true
			cn, ok := s.cfg.Meta.GetNode(cur)
			if !ok {
				continue
			}
			if cn.Kind == cfgbuild.KindIfConditionJoin || cn.Kind == cfgbuild.KindWhileJoin {
				continue
			}
			if cn.AST != nil && containsCallValue(cn.AST) {
				return true
			}
			for next := range cn.Next {
				queue = append(queue, next)
			}
		}
	}
	return false
}

func isRequireOrAssert(n *ast.Node) bool {
	if n == nil {
		return false
	}
	if n.Kind == ast.KindFunctionCall && n.Expression != nil && (n.Expression.Name == "require" || n.Expression.Name == "assert") {
		return true
	}
	if n.Expression != nil {
		return isRequireOrAssert(n.Expression)
	}
	return false
}

// containsCallValue recursively checks the expression subtree for any
// member access named `value`, `call`, `send` or `transfer` (so
// `.call.value(...)`, `.send`, `.transfer`, and also a plain `msg.value`
// read, all count).
func containsCallValue(n *ast.Node) bool {
	if n == nil {
		return false
	}
	if n.Kind == ast.KindMemberAccess && (n.MemberName == "value" || n.MemberName == "send" || n.MemberName == "transfer" || n.MemberName == "call") {
		return true
	}
	if n.Kind == ast.KindFunctionCall && n.Expression != nil {
		if n.Expression.MemberName == "send" || n.Expression.MemberName == "transfer" || n.Expression.MemberName == "value" {
			return true
		}
	}
	for _, c := range n.Children() {
		if containsCallValue(c) {
			return true
		}
	}
	return false
}

// extractVariables recursively collects identifier/member-access names
// used in an expression subtree (spec.md §4.2 step 4).
func extractVariables(n *ast.Node) []string {
	if n == nil {
		return nil
	}
	var out []string
	switch n.Kind {
	case ast.KindIdentifier:
		out = append(out, n.Name)
	case ast.KindMemberAccess:
		if n.Expression != nil && n.Expression.Kind == ast.KindIdentifier {
			out = append(out, n.Expression.Name+"."+n.MemberName)
		}
	case ast.KindBinaryOperation:
		out = append(out, extractVariables(n.LeftExpr)...)
		out = append(out, extractVariables(n.RightExpr)...)
	case ast.KindUnaryOperation:
		out = append(out, extractVariables(n.SubExpr)...)
	case ast.KindConditional:
		out = append(out, extractVariables(n.Condition)...)
		out = append(out, extractVariables(n.TrueExpr)...)
		out = append(out, extractVariables(n.FalseExpr)...)
	case ast.KindFunctionCall:
		if n.Expression != nil {
			out = append(out, extractVariables(n.Expression)...)
		}
		for _, a := range n.Arguments {
			out = append(out, extractVariables(a)...)
		}
	default:
		for _, c := range n.Children() {
			out = append(out, extractVariables(c)...)
		}
	}
	return out
}

func extractLHSNames(n *ast.Node) []string {
	if n == nil {
		return nil
	}
	if n.Kind == ast.KindIdentifier {
		return []string{n.Name}
	}
	return extractVariables(n)
}

func dedupe(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, v := range in {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// UsedVars returns the used-variable set recorded for a node.
func (s *Store) UsedVars(id string) []string { return s.usedVars[id] }

// DefinedVars returns the defined-variable set recorded for a node.
func (s *Store) DefinedVars(id string) []string { return s.definedVars[id] }

// VariableDependencies returns the (use, def) pairs recorded for a name.
func (s *Store) VariableDependencies(name string) []struct{ Use, Def string } {
	var out []struct{ Use, Def string }
	for _, p := range s.variableDependencies[name] {
		out = append(out, struct{ Use, Def string }{p.Use, p.Def})
	}
	return out
}

// ControlDependencies returns the child->branch map.
func (s *Store) ControlDependencies() map[string]string {
	return s.controlDependencies
}

// Iterations reports how many fixed-point rounds the worklist needed.
func (s *Store) Iterations() int { return s.iterations }

// StateVariables returns the (possibly transitively promoted) state
// variable set.
func (s *Store) StateVariables() []string {
	var out []string
	for v := range s.stateVariables {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
