package voxel

import (
	"fmt"

	"mrvoxel/pkg/logging"
	"mrvoxel/pkg/stride"
	"mrvoxel/pkg/threaded"
)

// Preload returns an in-memory copy of img whose memory layout matches
// desired as closely as possible. Axes with a zero desired stride keep their
// relative order after the requested ones. If img is already held in a
// float64 heap buffer with an equivalent layout it is returned unchanged.
func Preload(img *Image, desired []int, opts threaded.Options) (*Image, error) {
	target := stride.NearestMatch(img.hdr.Strides(), desired)

	if _, ok := img.store.(*SliceStore[float64]); ok && !img.scaled &&
		stride.Equivalent(target, img.hdr.Strides()) {
		return img, nil
	}

	out, err := NewScratch(img.hdr, target...)
	if err != nil {
		return nil, fmt.Errorf("preload %q: %w", img.hdr.Name, err)
	}
	logging.For("voxel").Debug().
		Str("image", img.hdr.Name).
		Ints("strides", target).
		Msg("preloading image")

	if err := threaded.Copy(opts, img.Accessor(), out.Accessor()); err != nil {
		return nil, fmt.Errorf("preload %q: %w", img.hdr.Name, err)
	}
	return out, nil
}
