// Package header describes the metadata of an N-dimensional image: the ordered
// list of axes with their sizes, voxel spacings and strides, the datatype tag,
// the voxel-to-scanner transform and the free-form information carried along
// by format handlers.
//
// A Header is treated as immutable while data is being read or written. Views
// that reorder or drop axes are derived as new headers with Permute and
// Extract rather than by modifying a header in place.
package header

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	// ErrInvalidAxis is returned when an axis index or axis count is out of range.
	ErrInvalidAxis = errors.New("invalid axis")

	// ErrInvalidVoxelSize is returned for zero, negative or non-finite voxel spacings.
	ErrInvalidVoxelSize = errors.New("invalid voxel size")

	// ErrUnknownDataType is returned when a datatype specifier cannot be parsed.
	ErrUnknownDataType = errors.New("unknown data type")
)

// Axis holds the per-axis geometry of an image.
type Axis struct {
	// Size is the number of voxels along the axis.
	Size int `yaml:"size"`

	// Spacing is the physical extent of a voxel along the axis, in mm for spatial axes.
	Spacing float64 `yaml:"spacing"`

	// Stride is the symbolic stride: its magnitude ranks the axis in memory order
	// (1 is contiguous) and its sign gives the traversal direction. Zero means unset.
	Stride int `yaml:"stride"`
}

// Transform is a 3x4 affine matrix; the implicit fourth row is [0 0 0 1].
type Transform [3][4]float64

// IdentityTransform returns the identity affine.
func IdentityTransform() Transform {
	return Transform{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}}
}

// IsZero reports whether no transform has been set.
func (t Transform) IsZero() bool {
	return t == Transform{}
}

// Header is the metadata of one image.
type Header struct {
	Name     string    `yaml:"name,omitempty"`
	Axes     []Axis    `yaml:"axes"`
	DataType DataType  `yaml:"datatype"`
	Affine   Transform `yaml:"transform,flow"`

	// IntensityOffset and IntensityScale map stored values s to offset + scale*s.
	IntensityOffset float64 `yaml:"intensity_offset"`
	IntensityScale  float64 `yaml:"intensity_scale"`

	// GradScheme is passed through untouched for diffusion-weighted data.
	GradScheme [][]float64 `yaml:"dw_scheme,omitempty,flow"`
	Comments   []string    `yaml:"comments,omitempty"`
}

// New creates a header with the given sizes. Spacings default to 1 and strides
// to the contiguous order [1 2 ... N]. If spacing is shorter than sizes the
// remaining axes get a spacing of 1.
func New(sizes []int, spacing ...float64) *Header {
	h := &Header{
		Axes:           make([]Axis, len(sizes)),
		DataType:       Native,
		IntensityScale: 1,
	}
	for i, s := range sizes {
		h.Axes[i] = Axis{Size: s, Spacing: 1, Stride: i + 1}
		if i < len(spacing) {
			h.Axes[i].Spacing = spacing[i]
		}
	}
	return h
}

// NDim returns the number of axes.
func (h *Header) NDim() int { return len(h.Axes) }

// Size returns the number of voxels along axis. Axes beyond NDim have size 1.
func (h *Header) Size(axis int) int {
	if axis >= len(h.Axes) {
		return 1
	}
	return h.Axes[axis].Size
}

// Spacing returns the voxel extent along axis.
func (h *Header) Spacing(axis int) float64 {
	if axis >= len(h.Axes) {
		return 1
	}
	return h.Axes[axis].Spacing
}

// Stride returns the symbolic stride of axis.
func (h *Header) Stride(axis int) int { return h.Axes[axis].Stride }

// Sizes returns a copy of all axis sizes.
func (h *Header) Sizes() []int {
	sizes := make([]int, len(h.Axes))
	for i, a := range h.Axes {
		sizes[i] = a.Size
	}
	return sizes
}

// Spacings returns a copy of all voxel spacings.
func (h *Header) Spacings() []float64 {
	sp := make([]float64, len(h.Axes))
	for i, a := range h.Axes {
		sp[i] = a.Spacing
	}
	return sp
}

// Strides returns a copy of the symbolic strides.
func (h *Header) Strides() []int {
	strides := make([]int, len(h.Axes))
	for i, a := range h.Axes {
		strides[i] = a.Stride
	}
	return strides
}

// SetStrides overwrites the symbolic strides. Missing entries are set to zero.
func (h *Header) SetStrides(strides []int) {
	for i := range h.Axes {
		h.Axes[i].Stride = 0
		if i < len(strides) {
			h.Axes[i].Stride = strides[i]
		}
	}
}

// HasTransform reports whether an explicit voxel-to-scanner transform is set.
func (h *Header) HasTransform() bool { return !h.Affine.IsZero() }

// EffectiveTransform returns the stored transform, or if none is set an identity
// rotation with the translation chosen so the volume is centred on the origin.
func (h *Header) EffectiveTransform() Transform {
	if h.HasTransform() {
		return h.Affine
	}
	t := IdentityTransform()
	for i := 0; i < 3; i++ {
		t[i][3] = -0.5 * float64(h.Size(i)-1) * h.Spacing(i)
	}
	return t
}

// Scaling returns the intensity offset and scale, treating an unset scale as 1.
func (h *Header) Scaling() (offset, scale float64) {
	scale = h.IntensityScale
	if scale == 0 {
		scale = 1
	}
	return h.IntensityOffset, scale
}

// Validate checks the header for configuration errors.
func (h *Header) Validate() error {
	if len(h.Axes) == 0 {
		return fmt.Errorf("%w: image must have at least one axis", ErrInvalidAxis)
	}
	seen := make(map[int]int, len(h.Axes))
	for i, a := range h.Axes {
		if a.Size < 0 {
			return fmt.Errorf("%w: axis %d has negative size %d", ErrInvalidAxis, i, a.Size)
		}
		if i < 3 && (a.Spacing <= 0 || math.IsNaN(a.Spacing) || math.IsInf(a.Spacing, 0)) {
			return fmt.Errorf("%w: axis %d has spacing %g", ErrInvalidVoxelSize, i, a.Spacing)
		}
		if a.Stride == 0 {
			continue
		}
		r := a.Stride
		if r < 0 {
			r = -r
		}
		if prev, ok := seen[r]; ok {
			return fmt.Errorf("%w: axes %d and %d share stride %d", ErrInvalidAxis, prev, i, r)
		}
		seen[r] = i
	}
	if h.DataType != Undefined && h.DataType.Bits() == 0 {
		return fmt.Errorf("%w: %#x", ErrUnknownDataType, uint8(h.DataType))
	}
	return nil
}

// Clone returns a deep copy of h.
func (h *Header) Clone() *Header {
	c := *h
	c.Axes = append([]Axis(nil), h.Axes...)
	if h.GradScheme != nil {
		c.GradScheme = make([][]float64, len(h.GradScheme))
		for i, row := range h.GradScheme {
			c.GradScheme[i] = append([]float64(nil), row...)
		}
	}
	c.Comments = append([]string(nil), h.Comments...)
	return &c
}

// Permute returns a new header whose axis i is axis order[i] of h. The order must
// be a permutation of [0, NDim). The transform columns are permuted accordingly
// for the spatial axes, which must remain within the first three.
func (h *Header) Permute(order []int) (*Header, error) {
	if len(order) != len(h.Axes) {
		return nil, fmt.Errorf("%w: permutation has %d entries for %d axes", ErrInvalidAxis, len(order), len(h.Axes))
	}
	used := make([]bool, len(order))
	for _, a := range order {
		if a < 0 || a >= len(order) || used[a] {
			return nil, fmt.Errorf("%w: invalid permutation %v", ErrInvalidAxis, order)
		}
		used[a] = true
	}
	for i := 0; i < 3 && i < len(order); i++ {
		if order[i] >= 3 {
			return nil, fmt.Errorf("%w: permutation %v moves a non-spatial axis into the first three", ErrInvalidAxis, order)
		}
	}

	c := h.Clone()
	for i, a := range order {
		c.Axes[i] = h.Axes[a]
	}
	if h.HasTransform() {
		for row := 0; row < 3; row++ {
			for i := 0; i < 3 && i < len(order); i++ {
				c.Affine[row][i] = h.Affine[row][order[i]]
			}
		}
	}
	return c, nil
}

// Extract returns a new header restricted to the listed axes, in order. The first
// three spatial axes must be kept in place for the transform to stay meaningful.
func (h *Header) Extract(axes []int) (*Header, error) {
	if len(axes) == 0 {
		return nil, fmt.Errorf("%w: no axes to extract", ErrInvalidAxis)
	}
	c := h.Clone()
	c.Axes = c.Axes[:0]
	for _, a := range axes {
		if a < 0 || a >= len(h.Axes) {
			return nil, fmt.Errorf("%w: axis %d out of range [0,%d)", ErrInvalidAxis, a, len(h.Axes))
		}
		c.Axes = append(c.Axes, h.Axes[a])
	}
	return c, nil
}

// String returns a short human-readable description.
func (h *Header) String() string {
	var dims, vox []string
	for _, a := range h.Axes {
		dims = append(dims, fmt.Sprint(a.Size))
		vox = append(vox, fmt.Sprintf("%g", a.Spacing))
	}
	return fmt.Sprintf("%q: [%s] voxels of [%s] mm, %s",
		h.Name, strings.Join(dims, " "), strings.Join(vox, " "), h.DataType)
}
