// Package reslice presents an image on the voxel grid of another.
//
// A Reslice has the sizes, spacing and transform of a reference header on its
// three spatial axes and the source's remaining axes beyond. Reading a value
// maps the current reference voxel into the source's voxel space and samples
// it with an interpolation kernel. When the reference grid is coarser than the
// source, several sub-voxel samples are averaged to limit aliasing.
package reslice

import (
	"errors"
	"fmt"
	"math"

	"mrvoxel/pkg/header"
	"mrvoxel/pkg/interpolation"
	"mrvoxel/pkg/logging"
	"mrvoxel/pkg/transform"
)

// ErrOversample is returned for oversampling factors below one.
var ErrOversample = errors.New("oversampling factors must be greater than zero")

// Options controls how a source is resampled.
type Options struct {
	// Transform is an additional scanner-space transform mapping reference
	// scanner positions to source scanner positions. Nil means none.
	Transform *transform.Affine

	// Oversample sets the number of sub-samples per axis. Nil selects the
	// factors automatically from the relative voxel sizes; [1 1 1] disables
	// oversampling.
	Oversample []int
}

// Reslice is a read-only cursor over a source sampled on a reference grid.
type Reslice struct {
	interp interpolation.Sampler
	hdr    *header.Header
	size   [3]int
	x      [3]int

	direct       transform.Affine
	os           [3]int
	oversampling bool
	from, inc    [3]float64
	norm         float64
}

// New creates a reslicing cursor reading from src on the grid of reference.
func New(src interpolation.Sampler, reference *header.Header, opts Options) (*Reslice, error) {
	refXf := transform.FromHeader(reference)
	srcXf, err := transform.New(src.Header())
	if err != nil {
		return nil, err
	}
	mo := srcXf.Scanner2Voxel
	if opts.Transform != nil {
		mo = transform.Compose(mo, *opts.Transform)
	}

	r := &Reslice{
		interp: src,
		hdr:    outputHeader(src, reference),
		direct: transform.Compose(mo, refXf),
	}
	for axis := 0; axis < 3; axis++ {
		r.size[axis] = reference.Size(axis)
	}

	if opts.Oversample != nil {
		if len(opts.Oversample) != 3 {
			return nil, fmt.Errorf("%w: need 3 factors, got %d", ErrOversample, len(opts.Oversample))
		}
		for axis, f := range opts.Oversample {
			if f < 1 {
				return nil, fmt.Errorf("%w: axis %d has %d", ErrOversample, axis, f)
			}
			r.os[axis] = f
		}
	} else {
		r.os = AutoOversample(r.direct)
	}

	if r.os[0]*r.os[1]*r.os[2] > 1 {
		r.oversampling = true
		r.norm = 1
		for axis := 0; axis < 3; axis++ {
			r.inc[axis] = 1 / float64(r.os[axis])
			r.from[axis] = 0.5 * (r.inc[axis] - 1)
			r.norm *= float64(r.os[axis])
		}
		r.norm = 1 / r.norm
		logging.For("reslice").Info().
			Ints("oversample", r.os[:]).
			Str("source", src.Header().Name).
			Msg("using oversampling")
	}
	return r, nil
}

// AutoOversample returns the sub-sampling factors for a reference-voxel to
// source-voxel map: the distance one reference voxel step covers in the
// source, rounded up.
func AutoOversample(direct transform.Affine) [3]int {
	var os [3]int
	for axis := 0; axis < 3; axis++ {
		var e [3]float64
		e[axis] = 1
		d := direct.ApplyLinear(e)
		n := math.Sqrt(d[0]*d[0] + d[1]*d[1] + d[2]*d[2])
		os[axis] = max(1, int(math.Ceil(0.999*n)))
	}
	return os
}

// outputHeader is the Template of src on reference, holding unscaled values.
func outputHeader(src interpolation.Sampler, reference *header.Header) *header.Header {
	h := Template(src.Header(), reference)
	h.DataType = header.Float32LE
	h.IntensityOffset, h.IntensityScale = 0, 1
	return h
}

// Header describes the resliced image.
func (r *Reslice) Header() *header.Header { return r.hdr }

// Oversample returns the sub-sampling factors in use.
func (r *Reslice) Oversample() [3]int { return r.os }

// Direct returns the map from reference voxels to source voxels.
func (r *Reslice) Direct() transform.Affine { return r.direct }

func (r *Reslice) NDim() int { return len(r.hdr.Axes) }

func (r *Reslice) Size(axis int) int {
	if axis < 3 {
		return r.size[axis]
	}
	return r.interp.Size(axis)
}

func (r *Reslice) Index(axis int) int {
	if axis < 3 {
		return r.x[axis]
	}
	return r.interp.Index(axis)
}

func (r *Reslice) SetIndex(axis, v int) {
	if axis < 3 {
		r.x[axis] = v
		return
	}
	r.interp.SetIndex(axis, v)
}

// Reset moves back to the first voxel on every axis.
func (r *Reslice) Reset() {
	r.x = [3]int{}
	for axis := 3; axis < r.interp.NDim(); axis++ {
		r.interp.SetIndex(axis, 0)
	}
}

// Value samples the source at the current reference voxel. With oversampling,
// sub-samples outside the source are skipped but still count towards the
// normalisation; if every sub-sample is outside, the sampler's
// out-of-bounds value is returned.
func (r *Reslice) Value() float64 {
	x := [3]float64{float64(r.x[0]), float64(r.x[1]), float64(r.x[2])}
	if !r.oversampling {
		r.interp.Voxel(r.direct.Apply(x))
		return r.interp.Value()
	}

	var sum float64
	hits := 0
	var s [3]float64
	for k := 0; k < r.os[2]; k++ {
		s[2] = x[2] + r.from[2] + float64(k)*r.inc[2]
		for j := 0; j < r.os[1]; j++ {
			s[1] = x[1] + r.from[1] + float64(j)*r.inc[1]
			for i := 0; i < r.os[0]; i++ {
				s[0] = x[0] + r.from[0] + float64(i)*r.inc[0]
				if r.interp.Voxel(r.direct.Apply(s)) {
					continue
				}
				sum += r.interp.Value()
				hits++
			}
		}
	}
	if hits == 0 {
		return r.interp.OutOfBoundsValue()
	}
	return sum * r.norm
}

// Clone returns an independent cursor at the same position.
func (r *Reslice) Clone() *Reslice {
	c := *r
	c.interp = r.interp.Clone()
	return &c
}
