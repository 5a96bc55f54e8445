package visualization

import (
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"testing"

	"mrvoxel/pkg/header"
	"mrvoxel/pkg/loop"
	"mrvoxel/pkg/voxel"
)

// newVolume creates a scratch image filled by fn
func newVolume(t *testing.T, sizes []int, fn func(pos []int) float64) *voxel.Accessor {
	t.Helper()
	img, err := voxel.NewScratch(header.New(sizes))
	if err != nil {
		t.Fatalf("Failed to create image: %v", err)
	}
	a := img.Accessor()
	l := loop.New(0, loop.All)
	for l.Start(a); l.OK(); l.Next(a) {
		a.SetValue(fn(a.Position()))
	}
	a.Reset()
	return a
}

// TestNewViewer verifies the automatic intensity window
func TestNewViewer(t *testing.T) {
	acc := newVolume(t, []int{10, 10, 1}, func(pos []int) float64 {
		return float64(pos[0] + 10*pos[1])
	})

	viewer, err := NewViewer(acc)
	if err != nil {
		t.Fatalf("Failed to create viewer: %v", err)
	}
	low, high := viewer.Window()
	if low != 0 {
		t.Errorf("Expected window low 0, got %f", low)
	}
	if high != 98 {
		t.Errorf("Expected window high 98, got %f", high)
	}

	one := newVolume(t, []int{4}, func([]int) float64 { return 0 })
	if _, err := NewViewer(one); err == nil {
		t.Error("Expected error for 1D image, got nil")
	}
}

// TestExtractSlice verifies slice geometry and intensities
func TestExtractSlice(t *testing.T) {
	width, height, depth := 10, 8, 5
	acc := newVolume(t, []int{width, height, depth}, func(pos []int) float64 {
		return float64(pos[2])
	})
	viewer, err := NewViewer(acc)
	if err != nil {
		t.Fatalf("Failed to create viewer: %v", err)
	}
	viewer.SetWindow(0, float64(depth-1))

	for z := 0; z < depth; z++ {
		img, err := viewer.ExtractSlice("z", z)
		if err != nil {
			t.Fatalf("Failed to extract Z slice at position %d: %v", z, err)
		}
		bounds := img.Bounds()
		if bounds.Dx() != width || bounds.Dy() != height {
			t.Errorf("Expected Z slice dimensions %dx%d, got %dx%d",
				width, height, bounds.Dx(), bounds.Dy())
		}

		gray, ok := img.(*image.Gray16)
		if !ok {
			t.Fatalf("Expected *image.Gray16, got %T", img)
		}
		expected := uint16(math.Round(65535 * float64(z) / float64(depth-1)))
		if got := gray.Gray16At(width/2, height/2).Y; got != expected {
			t.Errorf("Expected Z slice value %d at center, got %d", expected, got)
		}
	}

	imgX, err := viewer.ExtractSlice("X", width/2)
	if err != nil {
		t.Fatalf("Failed to extract X slice: %v", err)
	}
	if b := imgX.Bounds(); b.Dx() != height || b.Dy() != depth {
		t.Errorf("Expected X slice dimensions %dx%d, got %dx%d", height, depth, b.Dx(), b.Dy())
	}
	// z increases upwards
	if got := imgX.(*image.Gray16).Gray16At(0, depth-1).Y; got != 0 {
		t.Errorf("Expected black bottom row, got %d", got)
	}

	imgY, err := viewer.ExtractSlice("y", height/2)
	if err != nil {
		t.Fatalf("Failed to extract Y slice: %v", err)
	}
	if b := imgY.Bounds(); b.Dx() != width || b.Dy() != depth {
		t.Errorf("Expected Y slice dimensions %dx%d, got %dx%d", width, depth, b.Dx(), b.Dy())
	}

	if _, err := viewer.ExtractSlice("invalid", 0); err == nil {
		t.Error("Expected error for invalid axis, got nil")
	}
	if _, err := viewer.ExtractSlice("z", depth); err == nil {
		t.Error("Expected error for out of bounds position, got nil")
	}
}

// TestExtractSliceOfVolumeSeries verifies that non-spatial axes are honoured
func TestExtractSliceOfVolumeSeries(t *testing.T) {
	acc := newVolume(t, []int{3, 3, 2, 2}, func(pos []int) float64 {
		return float64(pos[3])
	})
	viewer, err := NewViewer(acc)
	if err != nil {
		t.Fatalf("Failed to create viewer: %v", err)
	}
	viewer.SetWindow(0, 1)
	acc.SetIndex(3, 1)

	img, err := viewer.ExtractSlice("z", 1)
	if err != nil {
		t.Fatalf("Failed to extract slice: %v", err)
	}
	if got := img.(*image.Gray16).Gray16At(1, 1).Y; got != 65535 {
		t.Errorf("Expected white pixel from second volume, got %d", got)
	}
}

// TestExtractRegion verifies that 3D regions are correctly extracted
func TestExtractRegion(t *testing.T) {
	value := func(pos []int) float64 { return float64(pos[0] + 100*pos[1] + 10000*pos[2]) }
	acc := newVolume(t, []int{10, 10, 5}, value)
	viewer, err := NewViewer(acc)
	if err != nil {
		t.Fatalf("Failed to create viewer: %v", err)
	}

	start, size := [3]int{2, 3, 1}, [3]int{4, 3, 2}
	region, err := viewer.ExtractRegion(start, size)
	if err != nil {
		t.Fatalf("Failed to extract region: %v", err)
	}
	for axis, s := range size {
		if region.Sizes()[axis] != s {
			t.Errorf("Expected region size %d along axis %d, got %d", s, axis, region.Sizes()[axis])
		}
	}

	parent := acc.Header().EffectiveTransform()
	for axis := 0; axis < 3; axis++ {
		want := parent[axis][3] + float64(start[axis])
		if got := region.Header().Affine[axis][3]; math.Abs(got-want) > 1e-12 {
			t.Errorf("Expected region origin %f along axis %d, got %f", want, axis, got)
		}
	}

	r := region.Accessor()
	l := loop.New(0, loop.All)
	for l.Start(r); l.OK(); l.Next(r) {
		pos := r.Position()
		want := value([]int{pos[0] + start[0], pos[1] + start[1], pos[2] + start[2]})
		if r.Value() != want {
			t.Errorf("Region value mismatch at %v: expected %f, got %f", pos, want, r.Value())
		}
	}

	invalid := []struct{ start, size [3]int }{
		{[3]int{-1, 0, 0}, [3]int{1, 1, 1}},
		{[3]int{0, 0, 0}, [3]int{0, 1, 1}},
		{[3]int{8, 0, 0}, [3]int{3, 1, 1}},
	}
	for _, tc := range invalid {
		if _, err := viewer.ExtractRegion(tc.start, tc.size); err == nil {
			t.Errorf("Expected error for region %v+%v, got nil", tc.start, tc.size)
		}
	}
}

// TestSaveSliceSequence verifies that one file is written per slice
func TestSaveSliceSequence(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping image encoding test in short mode")
	}
	acc := newVolume(t, []int{6, 5, 4}, func(pos []int) float64 {
		return float64(pos[0] * pos[1] * pos[2])
	})
	viewer, err := NewViewer(acc)
	if err != nil {
		t.Fatalf("Failed to create viewer: %v", err)
	}

	dir := t.TempDir()
	for _, ext := range []string{".png", ".jpg"} {
		if err := viewer.SaveSliceSequence("y", dir, ext); err != nil {
			t.Fatalf("Failed to save %s slices: %v", ext, err)
		}
		for pos := 0; pos < 5; pos++ {
			name := filepath.Join(dir, fmt.Sprintf("slice_y_%03d%s", pos, ext))
			if _, err := os.Stat(name); err != nil {
				t.Errorf("Expected slice file %s: %v", name, err)
			}
		}
	}

	img, _ := viewer.ExtractSlice("z", 0)
	if err := viewer.SaveSlice(img, filepath.Join(dir, "slice.bmp")); err == nil {
		t.Error("Expected error for unsupported extension, got nil")
	}
}

// TestLoadSliceStack verifies that saved slices load back into a volume
func TestLoadSliceStack(t *testing.T) {
	acc := newVolume(t, []int{5, 4, 12}, func(pos []int) float64 {
		return float64(pos[0]+pos[1]) + 0.5*float64(pos[2])
	})
	viewer, err := NewViewer(acc)
	if err != nil {
		t.Fatalf("Failed to create viewer: %v", err)
	}
	viewer.SetWindow(0, 13.5)

	dir := t.TempDir()
	if err := viewer.SaveSliceSequence("z", dir, ".png"); err != nil {
		t.Fatalf("Failed to save slices: %v", err)
	}

	vol, err := LoadSliceStack(dir, 2.5)
	if err != nil {
		t.Fatalf("Failed to load slices: %v", err)
	}
	sizes := vol.Sizes()
	if sizes[0] != 5 || sizes[1] != 4 || sizes[2] != 12 {
		t.Fatalf("Expected 5x4x12 volume, got %v", sizes)
	}
	if gap := vol.Header().Spacing(2); gap != 2.5 {
		t.Errorf("Expected slice gap 2.5, got %f", gap)
	}

	a := vol.Accessor()
	l := loop.New(0, loop.All)
	for l.Start(a); l.OK(); l.Next(a) {
		pos := a.Position()
		want := (float64(pos[0]+pos[1]) + 0.5*float64(pos[2])) / 13.5
		if math.Abs(a.Value()-want) > 1e-4 {
			t.Fatalf("Expected %f at %v, got %f", want, pos, a.Value())
		}
	}

	if _, err := LoadSliceStack(t.TempDir(), 1); err == nil {
		t.Error("Expected error for empty directory, got nil")
	}
}

// TestExtractNumber verifies numeric ordering of slice file names
func TestExtractNumber(t *testing.T) {
	tests := map[string]int{
		"slice_z_010.png": 10,
		"img2.jpg":        2,
		"noDigits.png":    0,
	}
	for name, want := range tests {
		if got := extractNumber(name); got != want {
			t.Errorf("Expected %d for %s, got %d", want, name, got)
		}
	}
}
