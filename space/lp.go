package space

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// Lp is a dense float32 vector space under an L_p norm (p = 1, 2 or ∞).
// L2 reports the true Euclidean distance, not its square, so that medians
// and pruning radii live on the same scale as range-query radii.
type Lp struct {
	p    int // 0 means L∞
	name string
}

var _ Space[float32] = (*Lp)(nil)

// NewL2 creates the Euclidean space.
func NewL2() *Lp { return &Lp{p: 2, name: "l2"} }

// NewL1 creates the Manhattan space.
func NewL1() *Lp { return &Lp{p: 1, name: "l1"} }

// NewLInf creates the Chebyshev space.
func NewLInf() *Lp { return &Lp{p: 0, name: "linf"} }

// NewLp creates the space for the given name ("l1", "l2", "linf").
func NewLp(name string) (*Lp, error) {
	switch name {
	case "l1":
		return NewL1(), nil
	case "l2":
		return NewL2(), nil
	case "linf":
		return NewLInf(), nil
	default:
		return nil, fmt.Errorf("space: unknown Lp space %q", name)
	}
}

// Name returns the space identifier.
func (s *Lp) Name() string { return s.name }

// Distance computes the L_p distance between two dense vectors.
func (s *Lp) Distance(a, b *Object) float32 {
	x := BytesToFloat32s(a.Data())
	y := BytesToFloat32s(b.Data())

	switch s.p {
	case 2:
		var sum float32
		for i := range x {
			d := x[i] - y[i]
			sum += d * d
		}
		return float32(math.Sqrt(float64(sum)))
	case 1:
		var sum float32
		for i := range x {
			d := x[i] - y[i]
			if d < 0 {
				d = -d
			}
			sum += d
		}
		return sum
	default:
		var max float32
		for i := range x {
			d := x[i] - y[i]
			if d < 0 {
				d = -d
			}
			if d > max {
				max = d
			}
		}
		return max
	}
}

// CreateObjFromVector materializes a dense vector object.
func (s *Lp) CreateObjFromVector(id uint32, label int32, values []float32) (*Object, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("space: empty vector for object %d", id)
	}
	v := make([]float32, len(values))
	copy(v, values)
	return NewObject(id, label, Float32sToBytes(v)), nil
}

// Vector decodes a dense vector payload.
func (s *Lp) Vector(o *Object) []float32 { return BytesToFloat32s(o.Data()) }

// ReadDataset reads a whitespace- or comma-separated text file of dense
// vectors, one per line. A leading "label:<int>" token sets the label.
// Blank lines and lines starting with '#' are skipped. IDs are assigned
// sequentially in file order.
func (s *Lp) ReadDataset(path string) ([]*Object, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("space: open dataset: %w", err)
	}
	defer f.Close()

	var (
		data []*Object
		dim  int
	)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<16), 1<<22)

	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		label := int32(-1)
		if rest, ok := strings.CutPrefix(line, "label:"); ok {
			tok, tail, _ := strings.Cut(rest, " ")
			l, err := strconv.ParseInt(tok, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("space: line %d: bad label %q", lineNo, tok)
			}
			label = int32(l)
			line = tail
		}

		fields := strings.FieldsFunc(line, func(r rune) bool {
			return r == ' ' || r == '\t' || r == ','
		})
		if len(fields) == 0 {
			continue
		}

		vec := make([]float32, 0, len(fields))
		for _, tok := range fields {
			v, err := strconv.ParseFloat(tok, 32)
			if err != nil {
				return nil, fmt.Errorf("space: line %d: bad value %q", lineNo, tok)
			}
			vec = append(vec, float32(v))
		}

		if dim == 0 {
			dim = len(vec)
		} else if len(vec) != dim {
			return nil, fmt.Errorf("space: line %d: dimension %d differs from %d", lineNo, len(vec), dim)
		}

		obj, err := s.CreateObjFromVector(uint32(len(data)), label, vec)
		if err != nil {
			return nil, err
		}
		data = append(data, obj)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("space: read dataset: %w", err)
	}
	return data, nil
}
