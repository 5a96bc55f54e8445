// Package interpolation reads an image at fractional voxel positions.
//
// A Sampler wraps a voxel accessor. The three spatial axes are positioned with
// Voxel, Image or Scanner coordinates; any further axes are addressed through
// SetIndex exactly as on the accessor. Every kernel is separable: per-axis tap
// indices and weights are computed when a coordinate changes and combined as
// a tensor product when Value is called.
package interpolation

import (
	"fmt"
	"math"
	"strings"

	"mrvoxel/pkg/header"
	"mrvoxel/pkg/loop"
	"mrvoxel/pkg/transform"
	"mrvoxel/pkg/voxel"
)

// Sampler returns interpolated values at real-valued positions.
type Sampler interface {
	loop.Positioner

	// Voxel moves to a position in voxel coordinates and reports whether it
	// lies outside the interpolation domain.
	Voxel(pos [3]float64) bool

	// Image moves to a position in image coordinates (mm from voxel 0).
	Image(pos [3]float64) bool

	// Scanner moves to a position in scanner coordinates.
	Scanner(pos [3]float64) bool

	// Value returns the interpolated value, or the out-of-bounds value when
	// the current position lies outside the domain.
	Value() float64

	OutOfBounds() bool
	OutOfBoundsValue() float64
	Header() *header.Header
	Kind() Kind

	// Clone returns an independent sampler over the same image.
	Clone() Sampler
}

// Kind selects an interpolation kernel.
type Kind int

const (
	Nearest Kind = iota
	Linear
	Cubic
	Sinc
)

var kindNames = []string{"nearest", "linear", "cubic", "sinc"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind converts a kernel name to a Kind. Case is ignored.
func ParseKind(s string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range kindNames {
		if n == name {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown interpolation kernel %q (expected one of %s)",
		s, strings.Join(kindNames, ", "))
}

// DefaultSincWindow is the number of taps per axis of the sinc kernel.
const DefaultSincWindow = 7

type settings struct {
	oob    float64
	window int
}

// Option configures a sampler.
type Option func(*settings)

// WithOutOfBounds sets the value returned outside the domain (default NaN).
func WithOutOfBounds(v float64) Option {
	return func(s *settings) { s.oob = v }
}

// WithWindow sets the odd window width of the sinc kernel.
func WithWindow(w int) Option {
	return func(s *settings) { s.window = w }
}

// New creates a sampler of the given kind over acc. The sampler takes
// ownership of acc.
func New(kind Kind, acc *voxel.Accessor, opts ...Option) (Sampler, error) {
	cfg := settings{oob: math.NaN(), window: DefaultSincWindow}
	for _, o := range opts {
		o(&cfg)
	}
	xf, err := transform.New(acc.Header())
	if err != nil {
		return nil, err
	}

	var k kernel
	switch kind {
	case Nearest:
		k = nearestKernel{}
	case Linear:
		k = linearKernel{}
	case Cubic:
		k = cubicKernel{}
	case Sinc:
		if cfg.window < 1 || cfg.window%2 == 0 {
			return nil, fmt.Errorf("sinc window must be a positive odd number, got %d", cfg.window)
		}
		k = sincKernel{half: cfg.window / 2}
	default:
		return nil, fmt.Errorf("unknown interpolation kernel %d", int(kind))
	}

	s := &sampler{
		kind:   kind,
		kernel: k,
		acc:    acc,
		xf:     xf,
		oob:    cfg.oob,
		nsp:    min(3, acc.NDim()),
	}
	for axis := 0; axis < 3; axis++ {
		s.size[axis] = 1
		if axis < s.nsp {
			s.size[axis] = acc.Size(axis)
		}
		s.cached[axis] = math.NaN()
		s.idx[axis] = []int{0}
		s.w[axis] = []float64{1}
	}
	s.Voxel([3]float64{})
	return s, nil
}

// kernel computes the taps along one axis for coordinate c on an axis of
// size n. The returned slices may reuse idx and w.
type kernel interface {
	taps(c float64, n int, idx []int, w []float64) ([]int, []float64)
	margin() float64
}

type sampler struct {
	kind   Kind
	kernel kernel
	acc    *voxel.Accessor
	xf     *transform.Transform
	oob    float64
	nsp    int
	size   [3]int

	pos    [3]float64
	out    bool
	cached [3]float64 // coordinate the taps below were computed for
	idx    [3][]int
	w      [3][]float64
}

func (s *sampler) Kind() Kind                { return s.kind }
func (s *sampler) Header() *header.Header    { return s.acc.Header() }
func (s *sampler) OutOfBounds() bool         { return s.out }
func (s *sampler) OutOfBoundsValue() float64 { return s.oob }
func (s *sampler) NDim() int                 { return s.acc.NDim() }
func (s *sampler) Size(axis int) int         { return s.acc.Size(axis) }

// Index returns the nearest integer coordinate on spatial axes and the
// accessor's coordinate on the others.
func (s *sampler) Index(axis int) int {
	if axis < s.nsp {
		return int(math.Round(s.pos[axis]))
	}
	return s.acc.Index(axis)
}

// SetIndex places a spatial axis on an integer coordinate, or moves a
// non-spatial axis.
func (s *sampler) SetIndex(axis, v int) {
	if axis < s.nsp {
		p := s.pos
		p[axis] = float64(v)
		s.Voxel(p)
		return
	}
	s.acc.SetIndex(axis, v)
}

func (s *sampler) Voxel(pos [3]float64) bool {
	s.pos = pos
	m := s.kernel.margin()
	s.out = false
	for axis := 0; axis < 3; axis++ {
		c := pos[axis]
		n := s.size[axis]
		if !(c >= -0.5-m && c <= float64(n)-0.5+m) {
			s.out = true
		}
	}
	if s.out {
		return true
	}
	for axis := 0; axis < s.nsp; axis++ {
		if pos[axis] == s.cached[axis] {
			continue
		}
		s.idx[axis], s.w[axis] = s.kernel.taps(pos[axis], s.size[axis], s.idx[axis], s.w[axis])
		s.cached[axis] = pos[axis]
	}
	return false
}

func (s *sampler) Image(pos [3]float64) bool {
	return s.Voxel(s.xf.Image2Voxel.Apply(pos))
}

func (s *sampler) Scanner(pos [3]float64) bool {
	return s.Voxel(s.xf.Scanner2Voxel.Apply(pos))
}

func (s *sampler) Value() float64 {
	if s.out {
		return s.oob
	}
	var sum float64
	for k, wz := range s.w[2] {
		if wz == 0 {
			continue
		}
		if s.nsp > 2 {
			s.acc.SetIndex(2, s.idx[2][k])
		}
		for j, wy := range s.w[1] {
			if wy == 0 {
				continue
			}
			if s.nsp > 1 {
				s.acc.SetIndex(1, s.idx[1][j])
			}
			for i, wx := range s.w[0] {
				if wx == 0 {
					continue
				}
				s.acc.SetIndex(0, s.idx[0][i])
				sum += wz * wy * wx * s.acc.Value()
			}
		}
	}
	return sum
}

func (s *sampler) Clone() Sampler {
	c := *s
	c.acc = s.acc.Clone()
	for axis := 0; axis < 3; axis++ {
		c.idx[axis] = append([]int(nil), s.idx[axis]...)
		c.w[axis] = append([]float64(nil), s.w[axis]...)
	}
	return &c
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func clampCoord(c float64, n int) float64 {
	return math.Max(0, math.Min(c, float64(n-1)))
}
