package voxel

import (
	"fmt"

	"mrvoxel/pkg/header"
)

// View presents an accessor through a selection of coordinates and a
// reordering of axes. Axis i of the view is axis axes[i] of the parent; its
// coordinate x maps to coords[i][x], or to x itself when coords[i] is nil.
// Parent axes dropped from the view keep the coordinate they had when the
// view was built.
//
// Views are cursors like Accessor and can be used with the loop and threaded
// packages. Each view owns its accessor; Clone gives an independent cursor.
type View struct {
	acc    *Accessor
	axes   []int
	coords [][]int
	pos    []int
	hdr    *header.Header
}

// NewView returns the identity view of acc at its current position.
func NewView(acc *Accessor) *View {
	n := acc.NDim()
	v := &View{
		acc:    acc.Clone(),
		axes:   make([]int, n),
		coords: make([][]int, n),
		pos:    acc.Position(),
		hdr:    acc.Header(),
	}
	for i := range v.axes {
		v.axes[i] = i
	}
	return v
}

// Header returns the header describing the view. It must not be modified.
func (v *View) Header() *header.Header { return v.hdr }

// NDim returns the number of view axes.
func (v *View) NDim() int { return len(v.axes) }

// Size returns the number of voxels along view axis i.
func (v *View) Size(i int) int {
	if v.coords[i] != nil {
		return len(v.coords[i])
	}
	return v.acc.Size(v.axes[i])
}

// Stride returns the stride of the parent axis behind view axis i, so loops
// ordered by stride follow the memory layout of the parent.
func (v *View) Stride(i int) int { return v.acc.Stride(v.axes[i]) }

// Index returns the current coordinate along view axis i.
func (v *View) Index(i int) int { return v.pos[i] }

// SetIndex moves the view to coordinate x along axis i.
func (v *View) SetIndex(i, x int) {
	v.pos[i] = x
	if x >= 0 && x < v.Size(i) {
		v.acc.SetIndex(v.axes[i], v.parent(i, x))
	}
}

func (v *View) parent(i, x int) int {
	if v.coords[i] != nil {
		return v.coords[i][x]
	}
	return x
}

// Value reads the voxel at the current position.
func (v *View) Value() float64 { return v.acc.Value() }

// SetValue writes the voxel at the current position.
func (v *View) SetValue(x float64) { v.acc.SetValue(x) }

// Clone returns an independent cursor over the same view.
func (v *View) Clone() *View {
	return &View{
		acc:    v.acc.Clone(),
		axes:   v.axes,
		coords: v.coords,
		pos:    append([]int(nil), v.pos...),
		hdr:    v.hdr,
	}
}

// Extract returns a view restricted to the listed coordinates. coords[i]
// lists the coordinates kept along view axis i, in order; an empty entry
// keeps the whole axis. The transform of the new header is shifted so that
// scanner positions of the kept voxels do not change.
func (v *View) Extract(coords [][]int) (*View, error) {
	n := v.NDim()
	if len(coords) > n {
		return nil, fmt.Errorf("%w: %d coordinate lists for %d axes", header.ErrInvalidAxis, len(coords), n)
	}

	hdr := v.hdr.Clone()
	t := v.hdr.EffectiveTransform()
	out := v.Clone()
	out.coords = make([][]int, n)
	copy(out.coords, v.coords)

	for i, c := range coords {
		if len(c) == 0 {
			continue
		}
		mapped := make([]int, len(c))
		for k, x := range c {
			if x < 0 || x >= v.Size(i) {
				return nil, fmt.Errorf("%w: coordinate %d outside axis %d of size %d", header.ErrInvalidAxis, x, i, v.Size(i))
			}
			mapped[k] = v.parent(i, x)
		}
		out.coords[i] = mapped
		hdr.Axes[i].Size = len(c)

		if i < 3 {
			shift := float64(c[0]) * v.hdr.Spacing(i)
			for row := 0; row < 3; row++ {
				t[row][3] += t[row][i] * shift
			}
		}
		out.SetIndex(i, 0)
	}
	hdr.Affine = t
	out.hdr = hdr
	return out, nil
}

// Permute returns a view whose axis i is axis order[i] of v. Axes of size one
// may be left out of order; they are dropped from the view.
func (v *View) Permute(order []int) (*View, error) {
	n := v.NDim()
	seen := make([]bool, n)
	full := make([]int, 0, n)
	for _, a := range order {
		if a < 0 || a >= n || seen[a] {
			return nil, fmt.Errorf("%w: invalid axis order %v for %d axes", header.ErrInvalidAxis, order, n)
		}
		seen[a] = true
		full = append(full, a)
	}
	for a := 0; a < n; a++ {
		if seen[a] {
			continue
		}
		if v.Size(a) != 1 {
			return nil, fmt.Errorf("%w: axis %d has size %d and cannot be dropped", header.ErrInvalidAxis, a, v.Size(a))
		}
		full = append(full, a)
	}

	src := v.hdr.Clone()
	src.Affine = v.hdr.EffectiveTransform()
	hdr, err := src.Permute(full)
	if err != nil {
		return nil, err
	}
	if len(order) < n {
		kept := make([]int, len(order))
		for i := range kept {
			kept[i] = i
		}
		if hdr, err = hdr.Extract(kept); err != nil {
			return nil, err
		}
	}

	out := &View{
		acc:    v.acc.Clone(),
		axes:   make([]int, len(order)),
		coords: make([][]int, len(order)),
		pos:    make([]int, len(order)),
		hdr:    hdr,
	}
	for i, a := range order {
		out.axes[i] = v.axes[a]
		out.coords[i] = v.coords[a]
		out.pos[i] = v.pos[a]
	}
	for _, a := range full[len(order):] {
		out.acc.SetIndex(v.axes[a], v.parent(a, 0))
	}
	return out, nil
}
