package voxel

// Navigation helpers for code that works with whole coordinate vectors.

import "mrvoxel/pkg/loop"

// Positioner is the subset of cursor behaviour the helpers need.
type Positioner = loop.Positioner

// SetPos sets the coordinates of p from pos for axes [0, len(pos)).
func SetPos(p Positioner, pos []int) {
	for axis := 0; axis < len(pos) && axis < p.NDim(); axis++ {
		p.SetIndex(axis, pos[axis])
	}
}

// GetPos returns the current coordinates of p.
func GetPos(p Positioner) []int {
	pos := make([]int, p.NDim())
	for axis := range pos {
		pos[axis] = p.Index(axis)
	}
	return pos
}

// StepPos moves p by step along each axis.
func StepPos(p Positioner, step []int) {
	for axis := 0; axis < len(step) && axis < p.NDim(); axis++ {
		p.SetIndex(axis, p.Index(axis)+step[axis])
	}
}

// WithinBounds reports whether pos lies within the extent of p.
func WithinBounds(p Positioner, pos []int) bool {
	for axis := 0; axis < p.NDim(); axis++ {
		v := 0
		if axis < len(pos) {
			v = pos[axis]
		}
		if v < 0 || v >= p.Size(axis) {
			return false
		}
	}
	return true
}

// ValueAt moves a to pos and returns the value there.
func ValueAt(a *Accessor, pos []int) float64 {
	SetPos(a, pos)
	return a.Value()
}

// SetValueAt moves a to pos and writes v there.
func SetValueAt(a *Accessor, pos []int, v float64) {
	SetPos(a, pos)
	a.SetValue(v)
}
