// Package pruner implements the pruning oracles used at internal VP-tree
// nodes.
//
// The classic metric-space pruning rule skips a subtree when
//
//	MaxDist < | M - d(q, pivot) |
//
// where M is the node's median distance. Relaxing this with per-side stretch
// coefficients and, more generally, a polynomial of the distance gap
//
//	MaxDist < alphaLeft  * (M - d(q, pivot))^expLeft    (left side)
//	MaxDist < alphaRight * (d(q, pivot) - M)^expRight   (right side)
//
// trades recall against distance computations and remains usable when the
// distance is non-metric. The variant set is closed: polynomial and the
// stretch-only special case.
package pruner

import (
	"fmt"

	"github.com/hupe1980/metrigo/params"
)

// Parameter keys understood by FromParams.
const (
	ParamAlphaLeft  = "alphaLeft"
	ParamAlphaRight = "alphaRight"
	ParamExpLeft    = "expLeft"
	ParamExpRight   = "expRight"
	ParamType       = "prunerType"
)

// Decision tells the search which subtrees it may need to visit.
type Decision uint8

const (
	// VisitLeft means only the left subtree can contain results.
	VisitLeft Decision = 1
	// VisitRight means only the right subtree can contain results.
	VisitRight Decision = 2
	// VisitBoth means neither subtree can be ruled out.
	VisitBoth Decision = VisitLeft | VisitRight
)

func (d Decision) String() string {
	switch d {
	case VisitLeft:
		return "left"
	case VisitRight:
		return "right"
	case VisitBoth:
		return "both"
	default:
		return fmt.Sprintf("Decision(%d)", uint8(d))
	}
}

// Kind selects the oracle variant.
type Kind int

const (
	// Polynomial applies per-side stretch coefficients and integer exponents.
	Polynomial Kind = iota
	// Stretch applies per-side stretch coefficients with exponent 1.
	Stretch
)

// Pruner is an immutable pruning oracle. All arithmetic is float64
// regardless of the index's distance scalar, so exponents > 1 cannot
// overflow integer distances.
type Pruner struct {
	kind       Kind
	alphaLeft  float64
	alphaRight float64
	expLeft    int
	expRight   int
}

// NewPolynomial creates a polynomial oracle. Alphas must be positive and
// exponents >= 1.
func NewPolynomial(alphaLeft float64, expLeft int, alphaRight float64, expRight int) (*Pruner, error) {
	if alphaLeft <= 0 || alphaRight <= 0 {
		return nil, fmt.Errorf("pruner: stretch coefficients must be positive (got %v, %v)", alphaLeft, alphaRight)
	}
	if expLeft < 1 || expRight < 1 {
		return nil, fmt.Errorf("pruner: exponents must be >= 1 (got %d, %d)", expLeft, expRight)
	}
	return &Pruner{
		kind:       Polynomial,
		alphaLeft:  alphaLeft,
		alphaRight: alphaRight,
		expLeft:    expLeft,
		expRight:   expRight,
	}, nil
}

// NewStretch creates a stretch-only oracle (exponents fixed at 1).
func NewStretch(alphaLeft, alphaRight float64) (*Pruner, error) {
	p, err := NewPolynomial(alphaLeft, 1, alphaRight, 1)
	if err != nil {
		return nil, err
	}
	p.kind = Stretch
	return p, nil
}

// Default is the identity oracle (alpha = 1, exp = 1), equivalent to the
// classic VP-tree rule under a metric distance.
func Default() *Pruner {
	p, _ := NewPolynomial(1, 1, 1, 1)
	return p
}

// FromParams builds an oracle from "alphaLeft", "alphaRight", "expLeft",
// "expRight" and "prunerType" ("polynomial" or "stretch"). Missing keys fall
// back to the identity values.
func FromParams(m *params.Manager) (*Pruner, error) {
	alphaLeft, err := m.Float(ParamAlphaLeft, 1)
	if err != nil {
		return nil, err
	}
	alphaRight, err := m.Float(ParamAlphaRight, 1)
	if err != nil {
		return nil, err
	}
	expLeft, err := m.Int(ParamExpLeft, 1)
	if err != nil {
		return nil, err
	}
	expRight, err := m.Int(ParamExpRight, 1)
	if err != nil {
		return nil, err
	}

	switch kind := m.String(ParamType, "polynomial"); kind {
	case "polynomial":
		return NewPolynomial(alphaLeft, expLeft, alphaRight, expRight)
	case "stretch":
		if m.Has(ParamExpLeft) || m.Has(ParamExpRight) {
			return nil, fmt.Errorf("pruner: stretch oracle does not take exponents")
		}
		return NewStretch(alphaLeft, alphaRight)
	default:
		return nil, fmt.Errorf("pruner: unknown prunerType %q", kind)
	}
}

// Kind returns the oracle variant.
func (p *Pruner) Kind() Kind { return p.kind }

// AlphaLeft returns the left stretch coefficient.
func (p *Pruner) AlphaLeft() float64 { return p.alphaLeft }

// AlphaRight returns the right stretch coefficient.
func (p *Pruner) AlphaRight() float64 { return p.alphaRight }

// ExpLeft returns the left exponent.
func (p *Pruner) ExpLeft() int { return p.expLeft }

// ExpRight returns the right exponent.
func (p *Pruner) ExpRight() int { return p.expRight }

// Classify decides which subtrees a query with pruning radius rmax must
// visit, given dq = d(query, pivot) and the node median.
//
// The comparisons are strict: when the median sits in both subtrees and
// dq == median, 0 < 0 is false even for rmax == 0, so both subtrees are
// visited and nothing at the boundary is lost.
func (p *Pruner) Classify(dq, rmax, median float64) Decision {
	if dq <= median {
		if rmax < p.alphaLeft*ipow(median-dq, p.expLeft) {
			return VisitLeft
		}
	}
	if dq >= median {
		if rmax < p.alphaRight*ipow(dq-median, p.expRight) {
			return VisitRight
		}
	}
	return VisitBoth
}

// Params renders the oracle's configuration in the canonical parameter form.
func (p *Pruner) Params() params.Params {
	out := params.Params{
		ParamAlphaLeft:  fmt.Sprintf("%g", p.alphaLeft),
		ParamAlphaRight: fmt.Sprintf("%g", p.alphaRight),
	}
	if p.kind == Polynomial {
		out[ParamExpLeft] = fmt.Sprintf("%d", p.expLeft)
		out[ParamExpRight] = fmt.Sprintf("%d", p.expRight)
	} else {
		out[ParamType] = "stretch"
	}
	return out
}

// String describes the oracle for logs.
func (p *Pruner) String() string {
	if p.kind == Stretch {
		return fmt.Sprintf("stretch(alphaLeft=%g, alphaRight=%g)", p.alphaLeft, p.alphaRight)
	}
	return fmt.Sprintf("polynomial(alphaLeft=%g, expLeft=%d, alphaRight=%g, expRight=%d)",
		p.alphaLeft, p.expLeft, p.alphaRight, p.expRight)
}

// ipow computes x^e for small positive integer e by repeated squaring.
func ipow(x float64, e int) float64 {
	result := 1.0
	for e > 0 {
		if e&1 == 1 {
			result *= x
		}
		x *= x
		e >>= 1
	}
	return result
}
