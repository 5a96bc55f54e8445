package voxel

import (
	"fmt"

	"mrvoxel/pkg/header"
	"mrvoxel/pkg/stride"
	"mrvoxel/pkg/threaded"
)

// WithNDim returns img described with n axes, sharing its data. Missing axes
// are appended with size one; trailing axes are dropped only if they have
// size one.
func (img *Image) WithNDim(n int) (*Image, error) {
	if n == img.NDim() {
		return img, nil
	}
	h := img.hdr.Clone()
	for axis := n; axis < len(h.Axes); axis++ {
		if h.Axes[axis].Size != 1 {
			return nil, fmt.Errorf("%w: cannot drop axis %d of size %d", header.ErrInvalidAxis, axis, h.Axes[axis].Size)
		}
	}
	if n < len(h.Axes) {
		h.Axes = h.Axes[:n]
	}
	for len(h.Axes) < n {
		h.Axes = append(h.Axes, header.Axis{Size: 1, Spacing: 1})
	}
	return NewImage(h, img.store)
}

// ConcatHeader returns the header of the images described by hdrs placed one
// after the other along axis, and the axis used. With a negative axis the last
// non-singleton axis beyond the spatial ones is used, or a new axis 3 if
// there is none. All other axes must match.
func ConcatHeader(hdrs []*header.Header, axis int) (*header.Header, int, error) {
	if len(hdrs) == 0 {
		return nil, 0, fmt.Errorf("no images to concatenate")
	}
	last := -1
	for _, h := range hdrs {
		d := h.NDim() - 1
		for d >= 0 && h.Size(d) <= 1 {
			d--
		}
		last = max(last, d)
	}
	if axis < 0 {
		axis = max(3, last)
	}
	ndim := max(last+1, axis+1)

	for i := 0; i < ndim; i++ {
		if i == axis {
			continue
		}
		for _, h := range hdrs[1:] {
			if h.Size(i) != hdrs[0].Size(i) {
				return nil, 0, fmt.Errorf("%w: images %q and %q differ along axis %d (%d vs %d)",
					header.ErrInvalidAxis, hdrs[0].Name, h.Name, i, hdrs[0].Size(i), h.Size(i))
			}
		}
	}

	out := hdrs[0].Clone()
	if len(out.Axes) > ndim {
		out.Axes = out.Axes[:ndim]
	}
	for i := len(out.Axes); i < ndim; i++ {
		a := header.Axis{Size: 1, Spacing: 1}
		for _, h := range hdrs {
			if i < h.NDim() {
				a.Size, a.Spacing = h.Size(i), h.Spacing(i)
				break
			}
		}
		out.Axes = append(out.Axes, a)
	}

	size := 0
	for _, h := range hdrs {
		size += h.Size(axis)
	}
	out.Axes[axis].Size = size
	out.SetStrides(stride.Sanitise(out.Strides()))

	out.GradScheme = nil
	if axis > 2 {
		out.GradScheme = concatSchemes(hdrs)
	}
	if err := out.Validate(); err != nil {
		return nil, 0, err
	}
	return out, axis, nil
}

// concatSchemes joins the gradient tables of hdrs, or returns nil unless all
// of them carry one with four columns.
func concatSchemes(hdrs []*header.Header) [][]float64 {
	var rows [][]float64
	for _, h := range hdrs {
		if len(h.GradScheme) == 0 {
			return nil
		}
		for _, row := range h.GradScheme {
			if len(row) != 4 {
				return nil
			}
			rows = append(rows, append([]float64(nil), row...))
		}
	}
	return rows
}

// Concatenate copies srcs one after the other along axis into dst, whose
// header is typically derived with ConcatHeader.
func Concatenate(dst *Image, srcs []*Image, axis int, opts threaded.Options) error {
	if axis < 0 || axis >= dst.NDim() {
		return fmt.Errorf("%w: axis %d out of range for %d axes", header.ErrInvalidAxis, axis, dst.NDim())
	}
	label := opts.Label
	offset := 0
	for _, src := range srcs {
		in, err := src.WithNDim(dst.NDim())
		if err != nil {
			return fmt.Errorf("concatenating %q: %w", src.hdr.Name, err)
		}
		n := in.Sizes()[axis]
		if n == 0 {
			continue
		}
		if offset+n > dst.Size(axis) {
			return fmt.Errorf("concatenating %q: output axis %d too small", src.hdr.Name, axis)
		}
		coords := make([][]int, dst.NDim())
		coords[axis] = make([]int, n)
		for k := range coords[axis] {
			coords[axis][k] = offset + k
		}
		part, err := NewView(dst.Accessor()).Extract(coords)
		if err != nil {
			return err
		}
		if label != "" {
			opts.Label = fmt.Sprintf("%s %q", label, src.hdr.Name)
		}
		if err := threaded.Copy(opts, in.Accessor(), part); err != nil {
			return fmt.Errorf("concatenating %q: %w", src.hdr.Name, err)
		}
		offset += n
	}
	if offset != dst.Size(axis) {
		return fmt.Errorf("concatenated %d voxels along axis %d, output has %d", offset, axis, dst.Size(axis))
	}
	return nil
}
