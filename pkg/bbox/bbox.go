// Package bbox locates the non-background region of a volume.
package bbox

import (
	"errors"

	"brainprep/internal/models"
)

// ErrEmptyVolume is returned when a volume has no non-zero voxel
var ErrEmptyVolume = errors.New("volume has no non-zero voxel")

// FindBoundingBox returns the minimal index range containing every non-zero
// voxel, widened by the margin and clamped to the volume extent.
//
// An all-zero volume returns ErrEmptyVolume rather than the full extent.
func FindBoundingBox(v *models.Volume, margin Margin) (models.IndexRange, error) {
	var r models.IndexRange

	m, err := margin.Resolve(3)
	if err != nil {
		return r, err
	}
	if err := v.Validate(); err != nil {
		return r, err
	}

	tight, ok := nonZeroRange(v)
	if !ok {
		return r, ErrEmptyVolume
	}

	shape := v.Shape()
	for i := 0; i < 3; i++ {
		r.Min[i] = max(tight.Min[i]-m[i], 0)
		r.Max[i] = min(tight.Max[i]+m[i], shape[i]-1)
	}
	return r, nil
}

// nonZeroRange scans the volume once and tracks per-axis extremes
func nonZeroRange(v *models.Volume) (models.IndexRange, bool) {
	r := models.IndexRange{
		Min: [3]int{v.Depth, v.Height, v.Width},
		Max: [3]int{-1, -1, -1},
	}
	found := false

	idx := 0
	for d := 0; d < v.Depth; d++ {
		for h := 0; h < v.Height; h++ {
			for w := 0; w < v.Width; w++ {
				if v.Data[idx] != 0 {
					found = true
					coord := [3]int{d, h, w}
					for i, c := range coord {
						if c < r.Min[i] {
							r.Min[i] = c
						}
						if c > r.Max[i] {
							r.Max[i] = c
						}
					}
				}
				idx++
			}
		}
	}
	return r, found
}
