package reslice

import (
	"fmt"

	"mrvoxel/pkg/header"
	"mrvoxel/pkg/interpolation"
	"mrvoxel/pkg/logging"
	"mrvoxel/pkg/threaded"
	"mrvoxel/pkg/voxel"
)

// Resample fills dst with src sampled on the grid of dst's header.
func Resample(src, dst *voxel.Image, kind interpolation.Kind, opts Options, topts threaded.Options, iopts ...interpolation.Option) error {
	sampler, err := interpolation.New(kind, src.Accessor(), iopts...)
	if err != nil {
		return err
	}
	r, err := New(sampler, dst.Header(), opts)
	if err != nil {
		return err
	}
	if topts.Label == "" {
		topts.Label = fmt.Sprintf("reslicing %q", src.Header().Name)
	}
	if sameGrid(r, src) {
		logging.For("reslice").Debug().
			Str("image", src.Header().Name).
			Msg("output grid matches input, copying without interpolation")
		return threaded.Copy(topts, src.Accessor(), dst.Accessor())
	}
	return threaded.Copy(topts, r, dst.Accessor())
}

// sameGrid reports whether every output voxel of r falls exactly on the
// matching voxel of src.
func sameGrid(r *Reslice, src *voxel.Image) bool {
	if r.Oversample() != [3]int{1, 1, 1} || !r.Direct().IsIdentity(1e-6) {
		return false
	}
	if r.NDim() != src.NDim() {
		return false
	}
	for axis := 0; axis < src.NDim(); axis++ {
		if r.Size(axis) != src.Size(axis) {
			return false
		}
	}
	return true
}

// Template returns a header for the output of reslicing src onto reference:
// the reference grid on the spatial axes and the extra axes of src.
func Template(src, reference *header.Header) *header.Header {
	h := src.Clone()
	h.Name = reference.Name
	n := max(3, src.NDim())
	axes := make([]header.Axis, n)
	for axis := range axes {
		switch {
		case axis < 3:
			axes[axis] = header.Axis{Size: reference.Size(axis), Spacing: reference.Spacing(axis)}
		case axis < len(h.Axes):
			axes[axis] = h.Axes[axis]
		}
		axes[axis].Stride = axis + 1
	}
	h.Axes = axes
	h.Affine = reference.EffectiveTransform()
	return h
}
