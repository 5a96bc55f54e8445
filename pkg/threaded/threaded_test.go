package threaded_test

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mrvoxel/pkg/header"
	"mrvoxel/pkg/loop"
	"mrvoxel/pkg/threaded"
	"mrvoxel/pkg/voxel"
)

func newImage(t *testing.T, sizes []int, strides []int, fill func(pos []int) float64) *voxel.Image {
	t.Helper()
	h := header.New(sizes)
	img, err := voxel.NewScratch(h, strides...)
	require.NoError(t, err)
	if fill != nil {
		a := img.Accessor()
		l := loop.New(0, loop.All)
		for l.Start(a); l.OK(); l.Next(a) {
			a.SetValue(fill(a.Position()))
		}
	}
	return img
}

func TestPartition(t *testing.T) {
	tests := []struct {
		size, workers int
		want          []threaded.Range
	}{
		{10, 4, []threaded.Range{{0, 3}, {3, 6}, {6, 9}, {9, 10}}},
		{8, 4, []threaded.Range{{0, 2}, {2, 4}, {4, 6}, {6, 8}}},
		{3, 8, []threaded.Range{{0, 1}, {1, 2}, {2, 3}}},
		{5, 1, []threaded.Range{{0, 5}}},
		{0, 4, nil},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d", tt.size, tt.workers), func(t *testing.T) {
			got := threaded.Partition(tt.size, tt.workers)
			assert.Equal(t, tt.want, got)

			covered := 0
			for i, r := range got {
				assert.Less(t, r.Lo, r.Hi, "range %d is empty", i)
				if i > 0 {
					assert.Equal(t, got[i-1].Hi, r.Lo, "ranges must be contiguous")
				}
				covered += r.Hi - r.Lo
			}
			assert.Equal(t, tt.size, covered)
		})
	}
}

func TestCopyConstantVolume(t *testing.T) {
	src := newImage(t, []int{4, 4, 4}, nil, func([]int) float64 { return 7 })
	dst := newImage(t, []int{4, 4, 4}, nil, nil)
	require.Equal(t, []int{1, 4, 16}, src.Strides())

	err := threaded.Copy(threaded.Options{Threads: 4}, src.Accessor(), dst.Accessor())
	require.NoError(t, err)

	mismatches, visited := 0, 0
	a := dst.Accessor()
	l := loop.New(0, loop.All)
	for l.Start(a); l.OK(); l.Next(a) {
		visited++
		if a.Value() != 7 {
			mismatches++
		}
	}
	assert.Equal(t, 64, visited)
	assert.Zero(t, mismatches)
}

func TestThreadedMatchesSequential(t *testing.T) {
	sizes := []int{7, 5, 3, 2}
	fill := func(p []int) float64 { return float64(p[0] + 10*p[1] + 100*p[2] + 1000*p[3]) }
	src := newImage(t, sizes, []int{3, 1, 4, 2}, fill)

	want := newImage(t, sizes, nil, nil)
	in, out := src.Accessor(), want.Accessor()
	l := loop.New(0, loop.All)
	for l.Start(in, out); l.OK(); l.Next(in, out) {
		out.SetValue(2*in.Value() + 1)
	}

	for threads := 1; threads <= 9; threads++ {
		t.Run(fmt.Sprintf("threads=%d", threads), func(t *testing.T) {
			got := newImage(t, sizes, []int{-1, 2, 3, 4}, nil)
			err := threaded.Transform(threaded.Options{Threads: threads}, src.Accessor(), got.Accessor(),
				func(v float64) float64 { return 2*v + 1 })
			require.NoError(t, err)

			g, w := got.Accessor(), want.Accessor()
			for l.Start(g, w); l.OK(); l.Next(g, w) {
				if g.Value() != w.Value() {
					t.Fatalf("Mismatch at %v: %g vs %g", g.Position(), g.Value(), w.Value())
				}
			}
		})
	}
}

func TestRunVisitsEachVoxelOnce(t *testing.T) {
	img := newImage(t, []int{6, 3, 5}, nil, nil)
	var calls atomic.Int64
	err := threaded.Run1(threaded.Options{Threads: 4}, img.Accessor(), func(a *voxel.Accessor) error {
		calls.Add(1)
		a.SetValue(a.Value() + 1)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(90), calls.Load())

	a := img.Accessor()
	l := loop.New(0, loop.All)
	for l.Start(a); l.OK(); l.Next(a) {
		require.Equal(t, 1.0, a.Value(), "voxel %v", a.Position())
	}
}

func TestRunPropagatesFirstError(t *testing.T) {
	img := newImage(t, []int{16, 16}, nil, nil)
	boom := errors.New("boom")

	err := threaded.Run1(threaded.Options{Threads: 4}, img.Accessor(), func(a *voxel.Accessor) error {
		if a.Index(1) == 9 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)

	err = threaded.Run1(threaded.Options{Threads: 3}, img.Accessor(), func(a *voxel.Accessor) error {
		if a.Index(0) == 3 {
			panic("bad voxel")
		}
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad voxel")
}

func TestCopyRejectsMismatchedExtent(t *testing.T) {
	a := newImage(t, []int{4, 4}, nil, nil)
	b := newImage(t, []int{4, 5}, nil, nil)
	err := threaded.Copy(threaded.Options{}, a.Accessor(), b.Accessor())
	assert.Error(t, err)
}
