package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"mrvoxel/pkg/header"
	"mrvoxel/pkg/logging"
	"mrvoxel/pkg/loop"
	"mrvoxel/pkg/voxel"
)

// LoadSliceStack reads the PNG and JPEG files in dir into a volume with one
// slice per file along z, in the order given by the number in each file
// name. Intensities are scaled to [0, 1]. The in-plane spacing is 1 and
// sliceGap is the spacing between slices.
func LoadSliceStack(dir string, sliceGap float64) (*voxel.Image, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg":
			files = append(files, e.Name())
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no PNG or JPEG images found in %s", dir)
	}

	// slices are ordered by their number, not lexically
	sort.SliceStable(files, func(i, j int) bool {
		return extractNumber(files[i]) < extractNumber(files[j])
	})

	var (
		vol *voxel.Image
		acc *voxel.Accessor
	)
	for z, name := range files {
		img, err := loadImage(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to load image %s: %w", name, err)
		}
		b := img.Bounds()
		if vol == nil {
			h := header.New([]int{b.Dx(), b.Dy(), len(files)}, 1, 1, sliceGap)
			h.Name = filepath.Base(dir)
			if vol, err = voxel.NewScratch(h); err != nil {
				return nil, err
			}
			acc = vol.Accessor()
		} else if b.Dx() != acc.Size(0) || b.Dy() != acc.Size(1) {
			return nil, fmt.Errorf("image %s is %dx%d, expected %dx%d", name, b.Dx(), b.Dy(), acc.Size(0), acc.Size(1))
		}

		acc.SetIndex(2, z)
		l := loop.New(0, 2)
		for l.Start(acc); l.OK(); l.Next(acc) {
			// first row at the bottom, matching ExtractSlice
			c := img.At(b.Min.X+acc.Index(0), b.Max.Y-1-acc.Index(1))
			acc.SetValue(float64(color.Gray16Model.Convert(c).(color.Gray16).Y) / 65535)
		}
	}

	logging.For("visualization").Debug().
		Int("slices", len(files)).
		Ints("size", vol.Sizes()).
		Msg("loaded slice stack")
	return vol, nil
}

// extractNumber extracts the numeric part from a filename
func extractNumber(filename string) int {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	var digits strings.Builder
	for _, c := range base {
		if c >= '0' && c <= '9' {
			digits.WriteRune(c)
		}
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil {
		return 0
	}
	return n
}

func loadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if strings.ToLower(filepath.Ext(path)) == ".png" {
		return png.Decode(file)
	}
	return jpeg.Decode(file)
}
