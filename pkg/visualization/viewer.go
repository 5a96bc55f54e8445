package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gonum.org/v1/gonum/stat"

	"mrvoxel/pkg/logging"
	"mrvoxel/pkg/loop"
	"mrvoxel/pkg/voxel"
)

// Viewer renders orthogonal slices of an image as grayscale pictures.
type Viewer struct {
	// acc is the cursor slices are read through; non-spatial axes keep
	// whatever position it has
	acc *voxel.Accessor

	// intensity window mapped to black and white
	low  float64
	high float64
}

// NewViewer creates a viewer over acc with the intensity window set to the
// 1st and 99th percentiles of the current volume.
func NewViewer(acc *voxel.Accessor) (*Viewer, error) {
	if acc.NDim() < 2 {
		return nil, fmt.Errorf("viewer needs at least 2 axes, image has %d", acc.NDim())
	}
	v := &Viewer{acc: acc}
	v.AutoWindow(0.01, 0.99)
	return v, nil
}

// AutoWindow sets the intensity window to the given quantiles of the finite
// values in the current volume.
func (v *Viewer) AutoWindow(lowQ, highQ float64) {
	a := v.acc.Clone()
	values := make([]float64, 0, spatialCount(a))
	l := loop.New(0, min(3, a.NDim()))
	for l.Start(a); l.OK(); l.Next(a) {
		if x := a.Value(); !math.IsNaN(x) && !math.IsInf(x, 0) {
			values = append(values, x)
		}
	}
	if len(values) == 0 {
		v.low, v.high = 0, 1
		return
	}
	slices.Sort(values)
	v.low = stat.Quantile(lowQ, stat.Empirical, values, nil)
	v.high = stat.Quantile(highQ, stat.Empirical, values, nil)
	logging.For("visualization").Debug().
		Float64("low", v.low).
		Float64("high", v.high).
		Msg("intensity window")
}

func spatialCount(a *voxel.Accessor) int {
	n := 1
	for axis := 0; axis < min(3, a.NDim()); axis++ {
		n *= a.Size(axis)
	}
	return n
}

// SetWindow sets the intensity window explicitly.
func (v *Viewer) SetWindow(low, high float64) {
	v.low, v.high = low, high
}

// Window returns the intensity window.
func (v *Viewer) Window() (low, high float64) {
	return v.low, v.high
}

func parseAxis(axis string) (int, error) {
	switch strings.ToLower(axis) {
	case "x":
		return 0, nil
	case "y":
		return 1, nil
	case "z":
		return 2, nil
	}
	return 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
}

// planeAxes returns the image columns and rows for a slice normal to axis.
func planeAxes(axis int) (col, row int) {
	switch axis {
	case 0:
		return 1, 2
	case 1:
		return 0, 2
	}
	return 0, 1
}

func (v *Viewer) gray(x float64) color.Gray16 {
	if v.high <= v.low || math.IsNaN(x) {
		return color.Gray16{}
	}
	t := (x - v.low) / (v.high - v.low)
	return color.Gray16{Y: uint16(math.Round(65535 * math.Max(0, math.Min(1, t))))}
}

// ExtractSlice extracts a 2D slice normal to the given axis
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	n, err := parseAxis(axis)
	if err != nil {
		return nil, err
	}
	a := v.acc.Clone()
	if position < 0 || position >= sizeOf(a, n) {
		return nil, fmt.Errorf("position %d outside [0, %d) along %s", position, sizeOf(a, n), axis)
	}

	col, row := planeAxes(n)
	width, height := sizeOf(a, col), sizeOf(a, row)
	img := image.NewGray16(image.Rect(0, 0, width, height))

	if n < a.NDim() {
		a.SetIndex(n, position)
	}
	axes := []int{col}
	if row < a.NDim() {
		axes = append(axes, row)
	}
	l := loop.InOrder(axes)
	for l.Start(a); l.OK(); l.Next(a) {
		y := 0
		if row < a.NDim() {
			y = a.Index(row)
		}
		// flip so the first row index ends up at the bottom
		img.SetGray16(a.Index(col), height-1-y, v.gray(a.Value()))
	}
	return img, nil
}

func sizeOf(a *voxel.Accessor, axis int) int {
	if axis >= a.NDim() {
		return 1
	}
	return a.Size(axis)
}

// ExtractRegion copies a box of the current volume into a new image
func (v *Viewer) ExtractRegion(start, size [3]int) (*voxel.Image, error) {
	src := v.acc.Clone()
	nsp := min(3, src.NDim())
	for axis := 0; axis < nsp; axis++ {
		if start[axis] < 0 {
			return nil, fmt.Errorf("start coordinates must be non-negative")
		}
		if size[axis] <= 0 {
			return nil, fmt.Errorf("size dimensions must be positive")
		}
		if start[axis]+size[axis] > src.Size(axis) {
			return nil, fmt.Errorf("region extends beyond volume boundaries")
		}
	}

	coords := make([][]int, src.NDim())
	keep := make([]int, nsp)
	for axis := range keep {
		keep[axis] = axis
		coords[axis] = make([]int, size[axis])
		for i := range coords[axis] {
			coords[axis][i] = start[axis] + i
		}
	}
	view, err := voxel.NewView(src).Extract(coords)
	if err != nil {
		return nil, err
	}
	h, err := view.Header().Extract(keep)
	if err != nil {
		return nil, err
	}
	region, err := voxel.NewScratch(h)
	if err != nil {
		return nil, err
	}
	dst := region.Accessor()
	l := loop.New(0, nsp)
	for l.Start(dst); l.OK(); l.Next(dst) {
		l.SetPosition(dst, view)
		dst.SetValue(view.Value())
	}
	return region, nil
}

// SaveSlice saves an extracted slice as PNG or JPEG, chosen by extension
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png":
		return png.Encode(file, img)
	case ".jpg", ".jpeg":
		return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
	}
	return fmt.Errorf("unsupported image extension %q (use .png or .jpg)", filepath.Ext(filename))
}

// SaveSliceSequence extracts and saves every slice along the specified axis
func (v *Viewer) SaveSliceSequence(axis string, outputDir string, ext string) error {
	n, err := parseAxis(axis)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}
	if ext == "" {
		ext = ".png"
	}

	for pos := 0; pos < sizeOf(v.acc, n); pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d%s", strings.ToLower(axis), pos, ext))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}
