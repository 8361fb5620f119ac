package absint

import (
	"math/big"

	"github.com/remyoudompheng/bigfft"
)

// DomainKind selects the backing numeric abstract domain (spec.md §4.3
// "Parameterization"). Interval is the default; Octagon and Polyhedra
// are both implemented atop the same bounded-interval State, with
// Polyhedra additionally using exact big-integer multiplication so that
// large bound products (beyond a widened interval's normal magnitude)
// do not overflow machine int64 arithmetic before they are clamped.
type DomainKind string

const (
	Interval  DomainKind = "interval"
	Octagon   DomainKind = "octagon"
	Polyhedra DomainKind = "polyhedra"
)

// multiplyBound computes the product interval of two bounds. For the
// Polyhedra domain, the four corner products are computed with exact
// big-integer arithmetic (via bigfft's big.Int multiplication path) to
// avoid int64 overflow on the corner products before the result is
// clamped back into the representable range.
func multiplyBound(kind DomainKind, a, b Bound) Bound {
	if kind != Polyhedra {
		return multiplyBoundMachine(a, b)
	}
	corners := [4]*big.Int{
		bigMul(a.Lo, b.Lo),
		bigMul(a.Lo, b.Hi),
		bigMul(a.Hi, b.Lo),
		bigMul(a.Hi, b.Hi),
	}
	lo, hi := corners[0], corners[0]
	for _, c := range corners[1:] {
		if c.Cmp(lo) < 0 {
			lo = c
		}
		if c.Cmp(hi) > 0 {
			hi = c
		}
	}
	return clampBig(lo, hi)
}

func multiplyBoundMachine(a, b Bound) Bound {
	corners := [4]int64{a.Lo * b.Lo, a.Lo * b.Hi, a.Hi * b.Lo, a.Hi * b.Hi}
	lo, hi := corners[0], corners[0]
	for _, c := range corners[1:] {
		if c < lo {
			lo = c
		}
		if c > hi {
			hi = c
		}
	}
	return Bound{Lo: lo, Hi: hi}
}

// bigMul returns the exact product of x and y as a big.Int, computed
// with bigfft.Mul: the Polyhedra domain's corner products can exceed
// int64 before clampBig brings them back into the representable range.
func bigMul(x, y int64) *big.Int {
	return bigfft.Mul(big.NewInt(x), big.NewInt(y))
}

func clampBig(lo, hi *big.Int) Bound {
	loBound, hiBound := big.NewInt(topLo), big.NewInt(topHi)
	if lo.Cmp(loBound) < 0 {
		lo = loBound
	}
	if lo.Cmp(hiBound) > 0 {
		lo = hiBound
	}
	if hi.Cmp(hiBound) > 0 {
		hi = hiBound
	}
	if hi.Cmp(loBound) < 0 {
		hi = loBound
	}
	return Bound{Lo: lo.Int64(), Hi: hi.Int64()}
}
