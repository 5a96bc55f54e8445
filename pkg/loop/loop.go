// Package loop drives one or more cursors through an N-dimensional index space.
//
// A Loop advances the cursors passed to it in lockstep, innermost axis first,
// carrying over into outer axes like an odometer. The nesting order of the
// axes is either the natural one (from, from+1, ..., to-1), an explicit list,
// or the order of increasing stride of a reference cursor so that memory is
// visited sequentially. The idiom is:
//
//	l := loop.New(0, 3)
//	for l.Start(in, out); l.OK(); l.Next(in, out) {
//		out.SetValue(in.Value())
//	}
package loop

import (
	"fmt"
	"io"

	"mrvoxel/pkg/progress"
	"mrvoxel/pkg/stride"
)

// Positioner is anything with a settable position in an N-dimensional grid.
type Positioner interface {
	NDim() int
	Size(axis int) int
	Index(axis int) int
	SetIndex(axis, v int)
}

// Strided positioners expose their memory strides so loops can follow them.
type Strided interface {
	Positioner
	Stride(axis int) int
}

// All can be passed as the upper axis bound to loop over every axis.
const All = -1

// Loop is a reusable iteration over a set of axes. A Loop is not safe for
// concurrent use; parallel workers each need their own.
type Loop struct {
	from, to int
	order    []int

	axes []int
	ok   bool

	label    string
	out      io.Writer
	reporter *progress.Reporter
}

// Option configures a Loop.
type Option func(*Loop)

// WithProgress makes the loop report progress under the given label.
func WithProgress(label string) Option {
	return func(l *Loop) { l.label = label }
}

// WithProgressWriter sends progress output to w instead of stderr.
func WithProgressWriter(w io.Writer) Option {
	return func(l *Loop) { l.out = w }
}

// New returns a loop over axes [from, to) in natural order. Pass All as to for
// every axis of the first cursor given to Start.
func New(from, to int, opts ...Option) *Loop {
	l := &Loop{from: from, to: to}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// InOrder returns a loop over the given axes, the first one innermost.
func InOrder(axes []int, opts ...Option) *Loop {
	seen := make(map[int]bool, len(axes))
	for _, a := range axes {
		if a < 0 || seen[a] {
			panic(fmt.Sprintf("loop: invalid axis order %v", axes))
		}
		seen[a] = true
	}
	l := &Loop{order: append([]int(nil), axes...)}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ByStride returns a loop over axes [from, to) of ref nested so that the axis
// with the smallest absolute stride is innermost.
func ByStride(ref Strided, from, to int, opts ...Option) *Loop {
	if to == All || to > ref.NDim() {
		to = ref.NDim()
	}
	strides := make([]int, ref.NDim())
	for a := range strides {
		strides[a] = ref.Stride(a)
	}
	return InOrder(stride.Order(strides, from, to), opts...)
}

// Axes returns the axes of the current run, innermost first. It is only
// meaningful after Start.
func (l *Loop) Axes() []int { return l.axes }

// Start resets the loop axes of every cursor to zero. The first cursor
// determines the extent of the loop.
func (l *Loop) Start(vox ...Positioner) {
	ref := vox[0]
	if l.order != nil {
		l.axes = l.order
		for _, a := range l.axes {
			if a >= ref.NDim() {
				panic(fmt.Sprintf("loop: axis %d out of range for %d-dimensional cursor", a, ref.NDim()))
			}
		}
	} else {
		to := l.to
		if to == All || to > ref.NDim() {
			to = ref.NDim()
		}
		l.axes = l.axes[:0]
		for a := l.from; a < to; a++ {
			l.axes = append(l.axes, a)
		}
	}

	l.ok = true
	sizes := make([]int, ref.NDim())
	for _, a := range l.axes {
		sizes[a] = ref.Size(a)
		if sizes[a] <= 0 {
			l.ok = false
		}
		for _, v := range vox {
			v.SetIndex(a, 0)
		}
	}

	if l.label != "" {
		var opts []progress.Option
		if l.out != nil {
			opts = append(opts, progress.WithWriter(l.out))
		}
		l.reporter = progress.New(l.label, stride.VoxelCount(sizes, l.axes...), opts...)
	}
}

// OK reports whether the loop has a current position.
func (l *Loop) OK() bool { return l.ok }

// Next advances every cursor by one step. Calling Next after OK has returned
// false is a programming error and panics.
func (l *Loop) Next(vox ...Positioner) {
	if !l.ok {
		panic("loop: Next called on a finished loop")
	}
	l.reporter.Inc()

	ref := vox[0]
	for n, a := range l.axes {
		i := ref.Index(a) + 1
		if i >= ref.Size(a) {
			continue
		}
		for _, v := range vox {
			v.SetIndex(a, i)
			for _, inner := range l.axes[:n] {
				v.SetIndex(inner, 0)
			}
		}
		return
	}
	// the outermost axis overflowed: cursors stay on the last position
	l.ok = false
	l.reporter.Done()
}

// SetPosition copies the coordinates of ref along the loop axes onto targets.
func (l *Loop) SetPosition(ref Positioner, targets ...Positioner) {
	for _, a := range l.axes {
		i := ref.Index(a)
		for _, t := range targets {
			t.SetIndex(a, i)
		}
	}
}

// ForEach runs fn at every position of the loop, stopping at the first error.
func (l *Loop) ForEach(fn func() error, vox ...Positioner) error {
	for l.Start(vox...); l.OK(); l.Next(vox...) {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}
