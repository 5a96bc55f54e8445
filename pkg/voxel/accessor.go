package voxel

import "mrvoxel/pkg/header"

// Accessor is a cursor over an Image. Value and SetValue address the voxel at
// the current position without bounds checking; callers working near the
// edges of the volume should check WithinBounds or InBounds first.
type Accessor struct {
	img *Image
	pos []int
	off int
}

// Image returns the image the accessor reads from.
func (a *Accessor) Image() *Image { return a.img }

// Header returns the header of the underlying image.
func (a *Accessor) Header() *header.Header { return a.img.hdr }

// NDim returns the number of axes.
func (a *Accessor) NDim() int { return len(a.pos) }

// Size returns the number of voxels along axis.
func (a *Accessor) Size(axis int) int { return a.img.sizes[axis] }

// Spacing returns the voxel extent along axis.
func (a *Accessor) Spacing(axis int) float64 { return a.img.hdr.Spacing(axis) }

// Stride returns the actual element stride of axis.
func (a *Accessor) Stride(axis int) int { return a.img.strides[axis] }

// Index returns the current coordinate along axis.
func (a *Accessor) Index(axis int) int { return a.pos[axis] }

// SetIndex moves the cursor to coordinate v along axis.
func (a *Accessor) SetIndex(axis, v int) {
	a.off += a.img.strides[axis] * (v - a.pos[axis])
	a.pos[axis] = v
}

// Move shifts the cursor by delta voxels along axis.
func (a *Accessor) Move(axis, delta int) {
	a.off += a.img.strides[axis] * delta
	a.pos[axis] += delta
}

// Position returns a copy of the current coordinates.
func (a *Accessor) Position() []int {
	return append([]int(nil), a.pos...)
}

// SetPosition moves the cursor to pos. Axes beyond len(pos) are left alone.
func (a *Accessor) SetPosition(pos []int) {
	for axis, v := range pos {
		if axis >= len(a.pos) {
			break
		}
		a.SetIndex(axis, v)
	}
}

// Reset moves the cursor back to the origin.
func (a *Accessor) Reset() {
	for i := range a.pos {
		a.pos[i] = 0
	}
	a.off = a.img.offset
}

// Offset returns the linear element offset of the current position.
func (a *Accessor) Offset() int { return a.off }

// Value reads the voxel at the current position.
func (a *Accessor) Value() float64 {
	v := a.img.store.Get(a.off)
	if a.img.scaled {
		return a.img.scaleOffset + a.img.scaleFactor*v
	}
	return v
}

// SetValue writes the voxel at the current position. It panics with
// ErrReadOnly if the image is not writable.
func (a *Accessor) SetValue(v float64) {
	if a.img.scaled {
		v = (v - a.img.scaleOffset) / a.img.scaleFactor
	}
	a.img.store.Set(a.off, v)
}

// WithinBounds reports whether pos lies inside the image on every axis.
func (a *Accessor) WithinBounds(pos []int) bool {
	if len(pos) != len(a.pos) {
		return false
	}
	for axis, p := range pos {
		if p < 0 || p >= a.img.sizes[axis] {
			return false
		}
	}
	return true
}

// InBounds reports whether the current position lies inside the image.
func (a *Accessor) InBounds() bool { return a.WithinBounds(a.pos) }

// Clone returns an independent cursor at the same position over the same image.
func (a *Accessor) Clone() *Accessor {
	return &Accessor{
		img: a.img,
		pos: append([]int(nil), a.pos...),
		off: a.off,
	}
}
