package interpolation

import "math"

type nearestKernel struct{}

func (nearestKernel) margin() float64 { return 0 }

func (nearestKernel) taps(c float64, n int, idx []int, w []float64) ([]int, []float64) {
	return append(idx[:0], clampIndex(int(math.Round(c)), n)), append(w[:0], 1)
}

type linearKernel struct{}

func (linearKernel) margin() float64 { return 0 }

func (linearKernel) taps(c float64, n int, idx []int, w []float64) ([]int, []float64) {
	c = clampCoord(c, n)
	i := int(math.Floor(c))
	f := c - float64(i)
	idx = append(idx[:0], i, clampIndex(i+1, n))
	w = append(w[:0], 1-f, f)
	return idx, w
}

// cubicKernel is the Catmull-Rom cubic Hermite spline. Taps beyond the edge
// repeat the border voxel.
type cubicKernel struct{}

func (cubicKernel) margin() float64 { return 0 }

func (cubicKernel) taps(c float64, n int, idx []int, w []float64) ([]int, []float64) {
	c = clampCoord(c, n)
	i := int(math.Floor(c))
	t := c - float64(i)
	t2, t3 := t*t, t*t*t
	idx = append(idx[:0],
		clampIndex(i-1, n), clampIndex(i, n), clampIndex(i+1, n), clampIndex(i+2, n))
	w = append(w[:0],
		0.5*(-t3+2*t2-t),
		0.5*(3*t3-5*t2+2),
		0.5*(-3*t3+4*t2+t),
		0.5*(t3-t2))
	return idx, w
}

// sincKernel is a Lanczos-windowed sinc over 2*half+1 taps centred on the
// nearest voxel. Taps outside the image are mirrored about its edge and the
// weights are normalised to sum to one.
type sincKernel struct {
	half int
}

func (k sincKernel) margin() float64 { return float64(k.half) }

func (k sincKernel) taps(c float64, n int, idx []int, w []float64) ([]int, []float64) {
	idx, w = idx[:0], w[:0]
	centre := int(math.Round(c))
	scale := math.Pi / (float64(k.half) + 0.5)
	var sum float64
	for v := centre - k.half; v <= centre+k.half; v++ {
		m := v
		if m < 0 {
			m = -m - 1
		} else if m >= n {
			m = 2*n - m - 1
		}
		idx = append(idx, clampIndex(m, n))

		x := c - float64(v)
		weight := sinc(math.Pi*x) * sinc(math.Abs(scale*x))
		if math.Abs(scale*x) >= math.Pi {
			weight = 0
		}
		w = append(w, weight)
		sum += weight
	}
	for i := range w {
		w[i] /= sum
	}
	return idx, w
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	return math.Sin(x) / x
}
