// Package absint implements the abstract collecting-semantics
// fixed-point engine (SPEC_FULL.md §4.3), parametric in a numeric
// abstract domain. The capability set (bottom, top, join, meet,
// is_equal, assign, get, widen) is provided by the State methods below;
// every DomainKind in select.go shares this one bounded-interval State.
package absint

import "fmt"

// Bound is a closed integer interval [Lo, Hi]; Lo > Hi is never
// constructed (use IsBottom instead).
type Bound struct {
	Lo, Hi int64
}

func (b Bound) String() string {
	return fmt.Sprintf("[%d,%d]", b.Lo, b.Hi)
}

// ExcludesZero reports whether the bound's range does not include zero,
// used by boolean short-circuit evaluation (spec.md §4.3 "Logical &&,
// || are short-circuit predicates evaluated by checking whether either
// operand's interval excludes zero").
func (b Bound) ExcludesZero() bool {
	return !(b.Lo <= 0 && 0 <= b.Hi)
}

// Value is one dimension's abstract value: either Bottom, or a concrete
// Bound (Top is represented as the domain's widest representable
// Bound, since every backing domain here is bounded-interval-shaped).
type Value struct {
	Bottom bool
	Bound  Bound
}

// BottomValue is unreachable.
func BottomValue() Value { return Value{Bottom: true} }

// BoundValue wraps a concrete bound.
func BoundValue(lo, hi int64) Value { return Value{Bound: Bound{Lo: lo, Hi: hi}} }

const (
	// topLo/topHi approximate an unbounded domain element; real
	// unboundedness is unnecessary for this analyzer's fixture scale
	// and keeps widening arithmetic simple.
	topLo = -1 << 40
	topHi = 1 << 40
)

// TopValue is the domain's greatest element.
func TopValue() Value { return Value{Bound: Bound{Lo: topLo, Hi: topHi}} }

func (v Value) IsTop() bool {
	return !v.Bottom && v.Bound.Lo <= topLo && v.Bound.Hi >= topHi
}

// State is an immutable abstract state: one Value per registered
// variable dimension (spec.md §3 "Abstract state").
type State struct {
	dims map[string]Value
}

// NewState builds a state from a dimension->value map; the caller must
// not mutate the map afterward (State treats it as owned).
func NewState(dims map[string]Value) State {
	return State{dims: dims}
}

// BottomState returns a state whose every dimension is Bottom.
func BottomState(vars []string) State {
	dims := make(map[string]Value, len(vars))
	for _, v := range vars {
		dims[v] = BottomValue()
	}
	return State{dims: dims}
}

// TopState returns a state whose every dimension is Top.
func TopState(vars []string) State {
	dims := make(map[string]Value, len(vars))
	for _, v := range vars {
		dims[v] = TopValue()
	}
	return State{dims: dims}
}

// Get returns the value bound to a dimension, or Bottom if unregistered.
func (s State) Get(name string) Value {
	v, ok := s.dims[name]
	if !ok {
		return BottomValue()
	}
	return v
}

// Assign returns a new state with name rebound to value (assign(var,
// expr) in spec.md §3 — states are immutable; update yields a new
// state).
func (s State) Assign(name string, value Value) State {
	next := make(map[string]Value, len(s.dims)+1)
	for k, v := range s.dims {
		next[k] = v
	}
	next[name] = value
	return State{dims: next}
}

// Names returns the registered dimension names, in no particular order.
func (s State) Names() []string {
	out := make([]string, 0, len(s.dims))
	for k := range s.dims {
		out = append(out, k)
	}
	return out
}

// Join computes the least upper bound of two states dimension-wise
// (interval union).
func (s State) Join(o State) State {
	next := make(map[string]Value, len(s.dims))
	for k, v := range s.dims {
		next[k] = joinValue(v, o.Get(k))
	}
	for k, v := range o.dims {
		if _, ok := s.dims[k]; !ok {
			next[k] = v
		}
	}
	return State{dims: next}
}

func joinValue(a, b Value) Value {
	if a.Bottom {
		return b
	}
	if b.Bottom {
		return a
	}
	lo := a.Bound.Lo
	if b.Bound.Lo < lo {
		lo = b.Bound.Lo
	}
	hi := a.Bound.Hi
	if b.Bound.Hi > hi {
		hi = b.Bound.Hi
	}
	return BoundValue(lo, hi)
}

// Meet computes the greatest lower bound (interval intersection); an
// empty intersection yields Bottom.
func (s State) Meet(o State) State {
	next := make(map[string]Value, len(s.dims))
	for k, v := range s.dims {
		next[k] = meetValue(v, o.Get(k))
	}
	return State{dims: next}
}

func meetValue(a, b Value) Value {
	if a.Bottom || b.Bottom {
		return BottomValue()
	}
	lo := a.Bound.Lo
	if b.Bound.Lo > lo {
		lo = b.Bound.Lo
	}
	hi := a.Bound.Hi
	if b.Bound.Hi < hi {
		hi = b.Bound.Hi
	}
	if lo > hi {
		return BottomValue()
	}
	return BoundValue(lo, hi)
}

// IsEqual implements is_equal for fixed-point detection (spec.md §3).
func (s State) IsEqual(o State) bool {
	if len(s.dims) != len(o.dims) {
		return false
	}
	for k, v := range s.dims {
		ov := o.Get(k)
		if v.Bottom != ov.Bottom {
			return false
		}
		if !v.Bottom && v.Bound != ov.Bound {
			return false
		}
	}
	return true
}

// Widen widens s against prior by jumping each bound that grew since
// prior to the matching end of Top (stable bounds are kept), per
// spec.md §4.3 "Widening": applied at
// WhileJoin once the iteration count exceeds the configured threshold.
func (s State) Widen(prior State) State {
	next := make(map[string]Value, len(s.dims))
	for k, v := range s.dims {
		p := prior.Get(k)
		next[k] = widenValue(p, v)
	}
	return State{dims: next}
}

func widenValue(prior, cur Value) Value {
	if prior.Bottom {
		return cur
	}
	if cur.Bottom {
		return prior
	}
	lo := prior.Bound.Lo
	if cur.Bound.Lo < lo {
		lo = topLo
	}
	hi := prior.Bound.Hi
	if cur.Bound.Hi > hi {
		hi = topHi
	}
	return BoundValue(lo, hi)
}
