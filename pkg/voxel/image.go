// Package voxel provides images and the cursors used to read and write them.
//
// An Image couples a header with its backing Store and the actual strides
// derived from the header's symbolic strides. An Accessor is a cheap cursor
// over an Image: it holds a position per axis and the matching linear offset,
// which is updated incrementally as coordinates change.
//
// Accessors are owned by whoever created them. Several accessors may read the
// same image concurrently; concurrent writers must confine themselves to
// disjoint voxels.
package voxel

import (
	"fmt"

	"mrvoxel/pkg/header"
	"mrvoxel/pkg/logging"
	"mrvoxel/pkg/stride"
)

// Segments is the view of a format handler needed to build an image on top of
// its mapped or loaded data.
type Segments interface {
	SegmentCount() int
	Address(segment int) []byte
	Writable() bool
}

// Image is an N-dimensional voxel array described by a header.
type Image struct {
	hdr     *header.Header
	sizes   []int
	strides []int
	offset  int
	store   Store

	scaled      bool
	scaleOffset float64
	scaleFactor float64
}

// NewImage builds an image over store. The header is cloned; its strides are
// sanitised and actualised for addressing.
func NewImage(h *header.Header, store Store) (*Image, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	hdr := h.Clone()
	hdr.SetStrides(stride.Sanitise(hdr.Strides()))
	sizes := hdr.Sizes()
	strides := stride.Actualise(hdr.Strides(), sizes)

	count := stride.VoxelCount(sizes)
	if int64(store.Len()) < count {
		return nil, fmt.Errorf("store holds %d values, image %q needs %d", store.Len(), hdr.Name, count)
	}

	img := &Image{
		hdr:     hdr,
		sizes:   sizes,
		strides: strides,
		offset:  stride.DataOffset(strides, sizes),
		store:   store,
	}
	img.scaleOffset, img.scaleFactor = hdr.Scaling()
	img.scaled = img.scaleOffset != 0 || img.scaleFactor != 1
	return img, nil
}

// NewScratch allocates a zeroed float64 image with the geometry of h. If
// strides are given they replace the header's symbolic strides.
func NewScratch(h *header.Header, strides ...int) (*Image, error) {
	hdr := h.Clone()
	hdr.DataType = header.Float64
	hdr.IntensityOffset, hdr.IntensityScale = 0, 1
	if len(strides) > 0 {
		hdr.SetStrides(strides)
	}
	if err := hdr.Validate(); err != nil {
		return nil, err
	}
	data := make([]float64, stride.VoxelCount(hdr.Sizes()))
	return NewImage(hdr, NewSliceStore(data))
}

// FromSegments builds an image over the raw data exposed by a format handler.
// Intensity scaling from the header is applied on read and inverted on write.
func FromSegments(h *header.Header, src Segments) (*Image, error) {
	segs := make([][]byte, src.SegmentCount())
	for i := range segs {
		segs[i] = src.Address(i)
	}
	raw, err := NewRawStore(h.DataType, segs...)
	if err != nil {
		return nil, fmt.Errorf("image %q: %w", h.Name, err)
	}
	var store Store = raw
	if !src.Writable() {
		store = ReadOnly(raw)
	}
	logging.For("voxel").Debug().
		Str("image", h.Name).
		Int("segments", len(segs)).
		Str("datatype", h.DataType.String()).
		Msg("wrapping handler data")
	return NewImage(h, store)
}

// Header returns the image header. It must not be modified.
func (img *Image) Header() *header.Header { return img.hdr }

// Store returns the backing store.
func (img *Image) Store() Store { return img.store }

// NDim returns the number of axes.
func (img *Image) NDim() int { return len(img.sizes) }

// Size returns the number of voxels along axis.
func (img *Image) Size(axis int) int { return img.sizes[axis] }

// Sizes returns the axis sizes. The slice must not be modified.
func (img *Image) Sizes() []int { return img.sizes }

// Strides returns the actual element strides. The slice must not be modified.
func (img *Image) Strides() []int { return img.strides }

// Writable reports whether values can be written.
func (img *Image) Writable() bool {
	_, ro := img.store.(readOnlyStore)
	return !ro
}

// Accessor returns a new cursor positioned at the origin.
func (img *Image) Accessor() *Accessor {
	return &Accessor{
		img: img,
		pos: make([]int, len(img.sizes)),
		off: img.offset,
	}
}
