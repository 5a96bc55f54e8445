// Package threaded runs loops over an image in parallel.
//
// The iteration space is split along one outer axis into contiguous,
// disjoint chunks, one per worker. Each worker gets private copies of the
// cursors and runs an ordinary loop over its chunk and all remaining axes.
// Because chunks never overlap, writing through the cursors gives the same
// result as a sequential loop regardless of scheduling.
package threaded

import (
	"fmt"
	"io"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"mrvoxel/pkg/logging"
	"mrvoxel/pkg/loop"
	"mrvoxel/pkg/progress"
	"mrvoxel/pkg/stride"
)

// Cloner is a cursor that can hand out independent copies of itself.
type Cloner[T any] interface {
	loop.Positioner
	Clone() T
}

// Source is a cloneable cursor that can be read.
type Source[T any] interface {
	Cloner[T]
	Value() float64
}

// Sink is a cloneable cursor that can be written.
type Sink[T any] interface {
	Cloner[T]
	SetValue(v float64)
}

// Options controls a threaded run.
type Options struct {
	// Threads is the number of workers; zero or less means runtime.NumCPU().
	Threads int

	// Label enables progress reporting under this name.
	Label string

	// ProgressOutput receives progress lines; nil means stderr.
	ProgressOutput io.Writer

	// ProgressInterval throttles progress lines; zero keeps the default.
	ProgressInterval time.Duration
}

func (o Options) threads() int {
	if o.Threads > 0 {
		return o.Threads
	}
	return runtime.NumCPU()
}

// Range is a half-open interval [Lo, Hi) of indices along the outer axis.
type Range struct {
	Lo, Hi int
}

// Partition splits [0, size) into at most workers contiguous ranges of
// ceil(size/workers) indices. The ranges are disjoint, cover the whole
// interval and none is empty, so fewer ranges are returned when size is
// small.
func Partition(size, workers int) []Range {
	if size <= 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}
	if workers > size {
		workers = size
	}
	chunk := (size + workers - 1) / workers
	ranges := make([]Range, 0, workers)
	for lo := 0; lo < size; lo += chunk {
		hi := lo + chunk
		if hi > size {
			hi = size
		}
		ranges = append(ranges, Range{Lo: lo, Hi: hi})
	}
	return ranges
}

// traversal returns the loop axes of ref, innermost first, following its
// strides when it exposes them.
func traversal(ref loop.Positioner) []int {
	n := ref.NDim()
	if s, ok := ref.(loop.Strided); ok {
		strides := make([]int, n)
		for a := range strides {
			strides[a] = s.Stride(a)
		}
		return stride.Order(strides, 0, n)
	}
	axes := make([]int, n)
	for a := range axes {
		axes[a] = a
	}
	return axes
}

// outerAxis picks the axis to split: the outermost axis in traversal order
// whose size is at least the number of workers, or else the largest one.
func outerAxis(ref loop.Positioner, axes []int, workers int) int {
	best := -1
	for i := len(axes) - 1; i >= 0; i-- {
		a := axes[i]
		if ref.Size(a) >= workers {
			return a
		}
		if best < 0 || ref.Size(a) > ref.Size(best) {
			best = a
		}
	}
	return best
}

// worker builds the private cursors of one worker and the body to run at each
// position. The first cursor is the reference for sizes and strides.
type worker func() (vox []loop.Positioner, body func() error)

func run(opts Options, ref loop.Positioner, newWorker worker) error {
	log := logging.For("threaded")
	axes := traversal(ref)
	sizes := make([]int, ref.NDim())
	for a := range sizes {
		sizes[a] = ref.Size(a)
	}
	total := stride.VoxelCount(sizes)
	if total == 0 {
		return nil
	}

	var reporter *progress.Reporter
	if opts.Label != "" {
		var popts []progress.Option
		if opts.ProgressOutput != nil {
			popts = append(popts, progress.WithWriter(opts.ProgressOutput))
		}
		if opts.ProgressInterval > 0 {
			popts = append(popts, progress.WithInterval(opts.ProgressInterval))
		}
		reporter = progress.New(opts.Label, total, popts...)
	}

	// zero-dimensional: a single voxel
	if len(axes) == 0 {
		_, body := newWorker()
		if err := body(); err != nil {
			return err
		}
		reporter.Done()
		return nil
	}

	threads := opts.threads()
	outer := outerAxis(ref, axes, threads)
	inner := make([]int, 0, len(axes)-1)
	for _, a := range axes {
		if a != outer {
			inner = append(inner, a)
		}
	}
	innerCount := total / int64(sizes[outer])
	ranges := Partition(sizes[outer], threads)
	if len(ranges) < threads {
		log.Debug().
			Int("requested", threads).
			Int("workers", len(ranges)).
			Int("axis", outer).
			Msg("outer axis smaller than thread count, reducing workers")
	}

	var (
		g       errgroup.Group
		stopped atomic.Bool
	)
	for _, r := range ranges {
		g.Go(func() (err error) {
			defer func() {
				if p := recover(); p != nil {
					err = fmt.Errorf("worker on %v panicked: %v", r, p)
				}
				if err != nil {
					stopped.Store(true)
				}
			}()

			vox, body := newWorker()
			l := loop.InOrder(inner)
			for idx := r.Lo; idx < r.Hi; idx++ {
				if stopped.Load() {
					return nil
				}
				for _, v := range vox {
					v.SetIndex(outer, idx)
				}
				for l.Start(vox...); l.OK(); l.Next(vox...) {
					if err := body(); err != nil {
						return err
					}
				}
				reporter.Add(innerCount)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	reporter.Done()
	return nil
}

// Run1 calls fn at every voxel of a, in parallel. fn receives the worker's
// private copy of the cursor.
func Run1[A Cloner[A]](opts Options, a A, fn func(a A) error) error {
	return run(opts, a, func() ([]loop.Positioner, func() error) {
		ca := a.Clone()
		return []loop.Positioner{ca}, func() error { return fn(ca) }
	})
}

// Run2 calls fn at every voxel with a and b advanced in lockstep. The
// traversal order follows a.
func Run2[A Cloner[A], B Cloner[B]](opts Options, a A, b B, fn func(a A, b B) error) error {
	return run(opts, a, func() ([]loop.Positioner, func() error) {
		ca, cb := a.Clone(), b.Clone()
		return []loop.Positioner{ca, cb}, func() error { return fn(ca, cb) }
	})
}

// Run3 is Run2 for three cursors.
func Run3[A Cloner[A], B Cloner[B], C Cloner[C]](opts Options, a A, b B, c C, fn func(a A, b B, c C) error) error {
	return run(opts, a, func() ([]loop.Positioner, func() error) {
		ca, cb, cc := a.Clone(), b.Clone(), c.Clone()
		return []loop.Positioner{ca, cb, cc}, func() error { return fn(ca, cb, cc) }
	})
}

// Copy writes every value of src into dst. Both must have the same extent.
func Copy[S Source[S], D Sink[D]](opts Options, src S, dst D) error {
	if err := sameExtent(src, dst); err != nil {
		return err
	}
	return Run2(opts, src, dst, func(s S, d D) error {
		d.SetValue(s.Value())
		return nil
	})
}

// Transform writes f(v) into dst for every value v of src.
func Transform[S Source[S], D Sink[D]](opts Options, src S, dst D, f func(float64) float64) error {
	if err := sameExtent(src, dst); err != nil {
		return err
	}
	return Run2(opts, src, dst, func(s S, d D) error {
		d.SetValue(f(s.Value()))
		return nil
	})
}

func sameExtent(a, b loop.Positioner) error {
	if a.NDim() != b.NDim() {
		return fmt.Errorf("dimension mismatch: %d vs %d axes", a.NDim(), b.NDim())
	}
	for axis := 0; axis < a.NDim(); axis++ {
		if a.Size(axis) != b.Size(axis) {
			return fmt.Errorf("dimension mismatch on axis %d: %d vs %d", axis, a.Size(axis), b.Size(axis))
		}
	}
	return nil
}
