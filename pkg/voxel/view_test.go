package voxel

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mrvoxel/pkg/header"
	"mrvoxel/pkg/loop"
	"mrvoxel/pkg/threaded"
)

func TestViewExtract(t *testing.T) {
	img, err := NewScratch(header.New([]int{4, 3, 2}))
	require.NoError(t, err)
	fill(t, img)

	v, err := NewView(img.Accessor()).Extract([][]int{{1, 3}, nil, {1}})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 1}, v.Header().Sizes())
	assert.Equal(t, []int{0, 0, 0}, GetPos(v))

	SetPos(v, []int{1, 2, 0})
	assert.Equal(t, 123.0, v.Value())

	// the first kept voxel keeps its scanner position
	parent := img.Header().EffectiveTransform()
	assert.InDelta(t, parent[0][3]+1, v.Header().Affine[0][3], 1e-12)
	assert.InDelta(t, parent[1][3], v.Header().Affine[1][3], 1e-12)
	assert.InDelta(t, parent[2][3]+1, v.Header().Affine[2][3], 1e-12)

	w, err := v.Extract([][]int{{1}})
	require.NoError(t, err)
	SetPos(w, []int{0, 0, 0})
	assert.Equal(t, 103.0, w.Value())
	assert.Equal(t, []int{1, 3, 1}, w.Header().Sizes())

	_, err = v.Extract([][]int{{2}})
	assert.True(t, errors.Is(err, header.ErrInvalidAxis), "got %v", err)
}

func TestViewPermute(t *testing.T) {
	img, err := NewScratch(header.New([]int{4, 3, 2}))
	require.NoError(t, err)
	fill(t, img)

	v, err := NewView(img.Accessor()).Permute([]int{1, 0, 2})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4, 2}, v.Header().Sizes())
	SetPos(v, []int{2, 1, 1})
	assert.Equal(t, 121.0, v.Value())
	assert.Equal(t, img.Strides()[0], v.Stride(1))

	_, err = NewView(img.Accessor()).Permute([]int{0, 0, 2})
	assert.True(t, errors.Is(err, header.ErrInvalidAxis), "got %v", err)

	flat, err := NewScratch(header.New([]int{4, 3, 1}))
	require.NoError(t, err)
	fill(t, flat)
	p, err := NewView(flat.Accessor()).Permute([]int{1, 0})
	require.NoError(t, err)
	assert.Equal(t, 2, p.NDim())
	assert.Equal(t, []int{3, 4}, p.Header().Sizes())
	SetPos(p, []int{2, 3})
	assert.Equal(t, 23.0, p.Value())

	_, err = NewView(flat.Accessor()).Permute([]int{0, 2})
	assert.True(t, errors.Is(err, header.ErrInvalidAxis), "got %v", err)
}

func TestViewThreadedCopy(t *testing.T) {
	img, err := NewScratch(header.New([]int{5, 4, 3}))
	require.NoError(t, err)
	fill(t, img)

	v, err := NewView(img.Accessor()).Permute([]int{2, 0, 1})
	require.NoError(t, err)
	v, err = v.Extract([][]int{{2, 0}})
	require.NoError(t, err)

	out, err := NewScratch(v.Header())
	require.NoError(t, err)
	require.NoError(t, threaded.Copy(threaded.Options{Threads: 3}, v, out.Accessor()))

	o := out.Accessor()
	l := loop.New(0, loop.All)
	for l.Start(o); l.OK(); l.Next(o) {
		z := []int{2, 0}[o.Index(0)]
		want := float64(o.Index(1) + 10*o.Index(2) + 100*z)
		require.Equal(t, want, o.Value(), "at %v", o.Position())
	}
}

func TestConcatenate(t *testing.T) {
	newImage := func(sizes []int, base float64) *Image {
		img, err := NewScratch(header.New(sizes))
		require.NoError(t, err)
		fill(t, img)
		a := img.Accessor()
		l := loop.New(0, loop.All)
		for l.Start(a); l.OK(); l.Next(a) {
			a.SetValue(a.Value() + base)
		}
		return img
	}
	a := newImage([]int{2, 2, 2}, 0)
	b := newImage([]int{2, 2, 2}, 1000)
	a.hdr.GradScheme = [][]float64{{0, 0, 1, 1000}}
	b.hdr.GradScheme = [][]float64{{1, 0, 0, 1000}}

	t.Run("new axis", func(t *testing.T) {
		h, axis, err := ConcatHeader([]*header.Header{a.Header(), b.Header()}, -1)
		require.NoError(t, err)
		assert.Equal(t, 3, axis)
		assert.Equal(t, []int{2, 2, 2, 2}, h.Sizes())
		assert.Len(t, h.GradScheme, 2)

		out, err := NewScratch(h)
		require.NoError(t, err)
		require.NoError(t, Concatenate(out, []*Image{a, b}, axis, threaded.Options{Threads: 2}))
		acc := out.Accessor()
		assert.Equal(t, 111.0, ValueAt(acc, []int{1, 1, 1, 0}))
		assert.Equal(t, 1111.0, ValueAt(acc, []int{1, 1, 1, 1}))
	})

	t.Run("spatial axis", func(t *testing.T) {
		h, axis, err := ConcatHeader([]*header.Header{a.Header(), b.Header()}, 2)
		require.NoError(t, err)
		assert.Equal(t, []int{2, 2, 4}, h.Sizes())
		assert.Nil(t, h.GradScheme)

		out, err := NewScratch(h)
		require.NoError(t, err)
		require.NoError(t, Concatenate(out, []*Image{a, b}, axis, threaded.Options{Threads: 4}))
		acc := out.Accessor()
		assert.Equal(t, 110.0, ValueAt(acc, []int{0, 1, 1}))
		assert.Equal(t, 1001.0, ValueAt(acc, []int{1, 0, 2}))
		assert.Equal(t, 1111.0, ValueAt(acc, []int{1, 1, 3}))
	})

	t.Run("mismatch", func(t *testing.T) {
		c := newImage([]int{3, 2, 2}, 0)
		_, _, err := ConcatHeader([]*header.Header{a.Header(), c.Header()}, -1)
		assert.True(t, errors.Is(err, header.ErrInvalidAxis), "got %v", err)
	})
}

func TestWithNDim(t *testing.T) {
	img, err := NewScratch(header.New([]int{3, 2}))
	require.NoError(t, err)
	fill(t, img)

	up, err := img.WithNDim(4)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2, 1, 1}, up.Sizes())
	assert.Equal(t, 12.0, ValueAt(up.Accessor(), []int{2, 1, 0, 0}))

	down, err := up.WithNDim(2)
	require.NoError(t, err)
	assert.Equal(t, 12.0, ValueAt(down.Accessor(), []int{2, 1}))

	_, err = img.WithNDim(1)
	assert.True(t, errors.Is(err, header.ErrInvalidAxis), "got %v", err)
}
