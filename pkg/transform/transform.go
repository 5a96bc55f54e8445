// Package transform implements the affine maps between voxel, image and
// scanner coordinates of an image.
//
// Voxel coordinates index the grid; image coordinates are voxel coordinates
// scaled by the voxel spacing (mm relative to voxel [0 0 0]); scanner
// coordinates are the physical positions given by the header transform.
package transform

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"mrvoxel/pkg/header"
)

// ErrSingular is returned when an affine transform cannot be inverted.
var ErrSingular = errors.New("transform is singular")

// Affine is a 3x4 affine matrix with an implicit [0 0 0 1] last row.
type Affine [3][4]float64

// Identity returns the identity transform.
func Identity() Affine {
	return Affine{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}}
}

// FromHeader returns the voxel-to-scanner map of h: the header transform
// applied after scaling by the voxel spacing.
func FromHeader(h *header.Header) Affine {
	vox := Scale(h.Spacing(0), h.Spacing(1), h.Spacing(2))
	return Compose(Affine(h.EffectiveTransform()), vox)
}

// Scale returns a diagonal scaling transform.
func Scale(x, y, z float64) Affine {
	return Affine{{x, 0, 0, 0}, {0, y, 0, 0}, {0, 0, z, 0}}
}

// Translation returns a pure translation.
func Translation(x, y, z float64) Affine {
	return Affine{{1, 0, 0, x}, {0, 1, 0, y}, {0, 0, 1, z}}
}

// Dense returns the full 4x4 matrix.
func (t Affine) Dense() *mat.Dense {
	m := mat.NewDense(4, 4, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 4; j++ {
			m.Set(i, j, t[i][j])
		}
	}
	m.Set(3, 3, 1)
	return m
}

// FromDense takes the top three rows of a 4x4 matrix.
func FromDense(m mat.Matrix) Affine {
	var t Affine
	for i := 0; i < 3; i++ {
		for j := 0; j < 4; j++ {
			t[i][j] = m.At(i, j)
		}
	}
	return t
}

// Compose returns the transform applying the arguments right to left, so
// Compose(a, b).Apply(p) == a.Apply(b.Apply(p)).
func Compose(ts ...Affine) Affine {
	if len(ts) == 0 {
		return Identity()
	}
	result := ts[0].Dense()
	for _, t := range ts[1:] {
		var m mat.Dense
		m.Mul(result, t.Dense())
		result = &m
	}
	return FromDense(result)
}

// Inverse returns the inverse transform.
func (t Affine) Inverse() (Affine, error) {
	var inv mat.Dense
	if err := inv.Inverse(t.Dense()); err != nil {
		return Affine{}, fmt.Errorf("%w: %v", ErrSingular, err)
	}
	return FromDense(&inv), nil
}

// Apply maps a point.
func (t Affine) Apply(p [3]float64) [3]float64 {
	var r [3]float64
	for i := 0; i < 3; i++ {
		r[i] = t[i][0]*p[0] + t[i][1]*p[1] + t[i][2]*p[2] + t[i][3]
	}
	return r
}

// ApplyLinear maps a direction, ignoring the translation.
func (t Affine) ApplyLinear(v [3]float64) [3]float64 {
	var r [3]float64
	for i := 0; i < 3; i++ {
		r[i] = t[i][0]*v[0] + t[i][1]*v[1] + t[i][2]*v[2]
	}
	return r
}

// IsIdentity reports whether t is the identity within tol.
func (t Affine) IsIdentity(tol float64) bool {
	id := Identity()
	for i := range t {
		for j := range t[i] {
			if math.Abs(t[i][j]-id[i][j]) > tol {
				return false
			}
		}
	}
	return true
}

// Transform holds the maps between the coordinate systems of one image.
type Transform struct {
	Voxel2Scanner Affine
	Scanner2Voxel Affine
	Voxel2Image   Affine
	Image2Voxel   Affine
}

// New computes the coordinate maps of an image from its header.
func New(h *header.Header) (*Transform, error) {
	vox := Scale(h.Spacing(0), h.Spacing(1), h.Spacing(2))
	v2s := FromHeader(h)
	s2v, err := v2s.Inverse()
	if err != nil {
		return nil, fmt.Errorf("image %q: %w", h.Name, err)
	}
	i2v, err := vox.Inverse()
	if err != nil {
		return nil, fmt.Errorf("image %q: %w", h.Name, err)
	}
	return &Transform{
		Voxel2Scanner: v2s,
		Scanner2Voxel: s2v,
		Voxel2Image:   vox,
		Image2Voxel:   i2v,
	}, nil
}
