// Package stride maps logical image axes onto linear memory.
//
// Strides come in two flavours. Symbolic strides rank the axes in memory order
// (1 is the fastest varying axis, the sign gives the direction) and are what
// headers carry. Actual strides are element offsets derived from the symbolic
// ones and the axis sizes, and are what accessors use to address voxels.
package stride

import (
	"fmt"
	"sort"
)

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// Order returns the axes in [from, to) sorted by ascending absolute stride.
// Ties keep the original axis order and axes with a zero stride come last.
// An axis range outside the stride list is a programming error and panics.
func Order(strides []int, from, to int) []int {
	if from < 0 || to > len(strides) || from > to {
		panic(fmt.Sprintf("stride: axis range [%d,%d) invalid for %d axes", from, to, len(strides)))
	}
	axes := make([]int, 0, to-from)
	for a := from; a < to; a++ {
		axes = append(axes, a)
	}
	sort.SliceStable(axes, func(i, j int) bool {
		si, sj := abs(strides[axes[i]]), abs(strides[axes[j]])
		if si == 0 {
			return false
		}
		if sj == 0 {
			return true
		}
		return si < sj
	})
	return axes
}

// VoxelCount returns the product of the sizes of the listed axes, or of all
// axes when none are listed.
func VoxelCount(sizes []int, axes ...int) int64 {
	count := int64(1)
	if len(axes) == 0 {
		for _, s := range sizes {
			count *= int64(s)
		}
		return count
	}
	for _, a := range axes {
		count *= int64(sizes[a])
	}
	return count
}

// VoxelCountRange returns the product of the sizes of axes in [from, to).
func VoxelCountRange(sizes []int, from, to int) int64 {
	if to > len(sizes) {
		to = len(sizes)
	}
	count := int64(1)
	for a := from; a < to; a++ {
		count *= int64(sizes[a])
	}
	return count
}

// Contiguous returns the default symbolic strides [1 2 ... n].
func Contiguous(n int) []int {
	s := make([]int, n)
	for i := range s {
		s[i] = i + 1
	}
	return s
}

// Symbolise converts strides to ranks 1..N, keeping the signs. Zero strides
// are ranked after all non-zero ones in axis order.
func Symbolise(strides []int) []int {
	out := make([]int, len(strides))
	for rank, a := range Order(strides, 0, len(strides)) {
		if strides[a] < 0 {
			out[a] = -(rank + 1)
		} else {
			out[a] = rank + 1
		}
	}
	return out
}

// Sanitise returns a valid symbolic stride list: duplicate magnitudes are
// cleared (the first occurrence wins) and cleared or unset axes are given
// ranks after the explicitly ordered ones.
func Sanitise(strides []int) []int {
	out := append([]int(nil), strides...)
	seen := make(map[int]bool, len(out))
	for i, s := range out {
		if s == 0 {
			continue
		}
		if seen[abs(s)] {
			out[i] = 0
			continue
		}
		seen[abs(s)] = true
	}
	return Symbolise(out)
}

// Actualise converts symbolic strides into element offsets for the given sizes.
// Axes of size zero are treated as size one so that every axis keeps a distinct
// non-zero stride.
func Actualise(symbolic []int, sizes []int) []int {
	actual := make([]int, len(symbolic))
	step := 1
	for _, a := range Order(Sanitise(symbolic), 0, len(symbolic)) {
		if symbolic[a] < 0 {
			actual[a] = -step
		} else {
			actual[a] = step
		}
		if sizes[a] > 1 {
			step *= sizes[a]
		}
	}
	return actual
}

// DataOffset returns the element offset of voxel [0 0 ... 0] so that negative
// strides address memory within [0, VoxelCount).
func DataOffset(actual []int, sizes []int) int {
	offset := 0
	for a, s := range actual {
		if s < 0 && sizes[a] > 0 {
			offset -= s * (sizes[a] - 1)
		}
	}
	return offset
}

// Offset returns the linear element offset of pos for the given actual strides
// and data offset.
func Offset(actual []int, dataOffset int, pos []int) int {
	off := dataOffset
	for a, p := range pos {
		off += actual[a] * p
	}
	return off
}

// Equivalent reports whether two stride lists describe the same memory order.
func Equivalent(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	sa, sb := Symbolise(a), Symbolise(b)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

// NearestMatch returns the symbolic strides closest to desired: axes with a
// non-zero desired stride are ordered as requested and placed first, the
// remaining axes follow in their current order.
func NearestMatch(current, desired []int) []int {
	in := Symbolise(current)
	out := make([]int, len(in))
	maxDesired := 0
	for i := range out {
		if i < len(desired) && desired[i] != 0 {
			out[i] = desired[i]
			if abs(desired[i]) > maxDesired {
				maxDesired = abs(desired[i])
			}
		}
	}
	for i := range out {
		if out[i] == 0 {
			if in[i] < 0 {
				out[i] = in[i] - maxDesired
			} else {
				out[i] = in[i] + maxDesired
			}
		}
	}
	return Sanitise(out)
}
