package reslice

import (
	"fmt"
	"math"

	"mrvoxel/pkg/header"
)

// ByVoxelSize returns the header of h regridded to the given voxel size. The
// number of voxels is the original extent divided by the new size, rounded
// with halves going down, and the translation is adjusted so the new grid
// stays centred on the original extent.
func ByVoxelSize(h *header.Header, voxelSize [3]float64) (*header.Header, error) {
	out := h.Clone()
	for len(out.Axes) < 3 {
		out.Axes = append(out.Axes, header.Axis{Size: 1, Spacing: 1, Stride: len(out.Axes) + 1})
	}
	out.Affine = h.EffectiveTransform()
	for j := 0; j < 3; j++ {
		if !(voxelSize[j] > 0) {
			return nil, fmt.Errorf("voxel size must be larger than zero, got %g on axis %d", voxelSize[j], j)
		}
		ax := &out.Axes[j]
		extent := float64(ax.Size) * ax.Spacing
		ax.Size = int(math.Round(extent/voxelSize[j] - 0.0001))
		if ax.Size < 1 {
			ax.Size = 1
		}
		shift := 0.5 * ((voxelSize[j] - ax.Spacing) + (extent - float64(ax.Size)*voxelSize[j]))
		for i := 0; i < 3; i++ {
			out.Affine[i][3] += shift * out.Affine[i][j]
		}
		ax.Spacing = voxelSize[j]
	}
	return out, nil
}

// BySize returns the header of h regridded to the given number of voxels,
// keeping the spatial extent.
func BySize(h *header.Header, size [3]int) (*header.Header, error) {
	var vox [3]float64
	for d := 0; d < 3; d++ {
		if size[d] <= 0 {
			return nil, fmt.Errorf("image size must be larger than zero, got %d on axis %d", size[d], d)
		}
		vox[d] = float64(h.Size(d)) * h.Spacing(d) / float64(size[d])
	}
	return ByVoxelSize(h, vox)
}

// ByScale returns the header of h with the number of voxels on each spatial
// axis multiplied by scale and rounded up.
func ByScale(h *header.Header, scale [3]float64) (*header.Header, error) {
	var vox [3]float64
	for d := 0; d < 3; d++ {
		if !(scale[d] > 0) {
			return nil, fmt.Errorf("scale factor must be larger than zero, got %g on axis %d", scale[d], d)
		}
		n := float64(h.Size(d))
		vox[d] = n * h.Spacing(d) / math.Ceil(n*scale[d])
	}
	return ByVoxelSize(h, vox)
}
