// Package crop extracts fixed-size sub-volumes around a region of interest.
package crop

import (
	"errors"
	"fmt"
	"math"

	"brainprep/internal/models"
)

// DefaultSlack is the extra shift applied when a centered crop runs off an edge
const DefaultSlack = 2

// ErrSizeExceedsVolume is returned when a target size is larger than the volume
var ErrSizeExceedsVolume = errors.New("target size exceeds volume")

// SizeExceedsVolumeError reports the first axis where the target does not fit
type SizeExceedsVolumeError struct {
	Axis   int
	Size   int
	Extent int
}

func (e *SizeExceedsVolumeError) Error() string {
	return fmt.Sprintf("target size %d exceeds volume extent %d on axis %d", e.Size, e.Extent, e.Axis)
}

// Is lets errors.Is match against ErrSizeExceedsVolume
func (e *SizeExceedsVolumeError) Is(target error) bool {
	return target == ErrSizeExceedsVolume
}

// Window is a crop region with inclusive Min and exclusive Max per axis
type Window struct {
	Min [3]int
	Max [3]int
}

// Size returns the extent of the window on every axis
func (w Window) Size() [3]int {
	return [3]int{w.Max[0] - w.Min[0], w.Max[1] - w.Min[1], w.Max[2] - w.Min[2]}
}

// Center returns the midpoint of the half-open window
func (w Window) Center() [3]float64 {
	var c [3]float64
	for i := range c {
		c[i] = float64(w.Min[i]+w.Max[i]) / 2
	}
	return c
}

// CropToSize is ToSize with DefaultSlack
func CropToSize(v *models.Volume, r models.IndexRange, size models.TargetSize) (*models.Volume, error) {
	return ToSize(v, r, size, DefaultSlack)
}

// ToSize returns a sub-volume of exactly size, centered on r and shifted to
// stay inside v. Sizes larger than the volume fail with ErrSizeExceedsVolume.
func ToSize(v *models.Volume, r models.IndexRange, size models.TargetSize, slack int) (*models.Volume, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	w, err := Bounds(v.Shape(), r, size, slack)
	if err != nil {
		return nil, err
	}
	return Extract(v, w)
}

// Bounds computes the crop window ToSize would extract from a volume of the
// given shape, so one window can be applied to several co-registered volumes.
func Bounds(shape [3]int, r models.IndexRange, size models.TargetSize, slack int) (Window, error) {
	var w Window

	if err := size.Validate(); err != nil {
		return w, err
	}
	if slack < 0 {
		return w, fmt.Errorf("slack must be non-negative, got %d", slack)
	}
	if err := r.Validate(shape); err != nil {
		return w, err
	}
	for i := 0; i < 3; i++ {
		if size[i] > shape[i] {
			return w, &SizeExceedsVolumeError{Axis: i, Size: size[i], Extent: shape[i]}
		}
	}

	center := r.Center()
	for i := 0; i < 3; i++ {
		lo := int(math.Floor(center[i] - float64(size[i])/2))
		hi := lo + size[i]

		if over := hi - (shape[i] - 1); over > 0 {
			lo -= over + slack
			hi -= over + slack
		}
		if lo < 0 {
			shift := -lo + slack
			lo += shift
			hi += shift
		}
		if hi-lo != size[i] {
			hi = lo + size[i]
		}

		// slack can push a near-full-size crop past the opposite edge
		if lo+size[i] > shape[i] {
			lo = shape[i] - size[i]
		}
		if lo < 0 {
			lo = 0
		}

		w.Min[i] = lo
		w.Max[i] = lo + size[i]
	}
	return w, nil
}

// Extract copies the window out of v into a new volume
func Extract(v *models.Volume, w Window) (*models.Volume, error) {
	shape := v.Shape()
	for i := 0; i < 3; i++ {
		if w.Min[i] < 0 || w.Max[i] > shape[i] || w.Min[i] >= w.Max[i] {
			return nil, fmt.Errorf("%w: window axis %d [%d, %d) outside shape %v",
				models.ErrInvalidRange, i, w.Min[i], w.Max[i], shape)
		}
	}

	size := w.Size()
	out := models.NewVolumeFromShape(size)
	for d := 0; d < size[0]; d++ {
		for h := 0; h < size[1]; h++ {
			src := v.Index(w.Min[0]+d, w.Min[1]+h, w.Min[2])
			dst := out.Index(d, h, 0)
			copy(out.Data[dst:dst+size[2]], v.Data[src:src+size[2]])
		}
	}
	return out, nil
}

// CenterFit aligns the volume center with the center of a box of the given
// size. Axes where the volume is larger are cropped and axes where it is
// smaller are zero padded.
func CenterFit(v *models.Volume, size models.TargetSize) (*models.Volume, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	if err := size.Validate(); err != nil {
		return nil, err
	}

	shape := v.Shape()
	// offset maps an output index to a source index on each axis
	var offset [3]int
	for i := 0; i < 3; i++ {
		offset[i] = shape[i]/2 - size[i]/2
	}

	out := models.NewVolumeFromShape(size)
	for d := 0; d < size[0]; d++ {
		sd := d + offset[0]
		if sd < 0 || sd >= shape[0] {
			continue
		}
		for h := 0; h < size[1]; h++ {
			sh := h + offset[1]
			if sh < 0 || sh >= shape[1] {
				continue
			}
			for w := 0; w < size[2]; w++ {
				sw := w + offset[2]
				if sw < 0 || sw >= shape[2] {
					continue
				}
				out.Set(d, h, w, v.At(sd, sh, sw))
			}
		}
	}
	return out, nil
}
