package models

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidVolume is returned when a volume's data does not match its dimensions
	ErrInvalidVolume = errors.New("invalid volume")

	// ErrInvalidRange is returned when an index range does not fit a volume
	ErrInvalidRange = errors.New("invalid index range")

	// ErrInvalidTargetSize is returned when a target size has a non-positive axis
	ErrInvalidTargetSize = errors.New("invalid target size")
)

// Volume represents a 3D scan or label map
type Volume struct {
	// Data is the 3D volume data as a 1D array in row-major order,
	// axes ordered (depth, height, width)
	Data []float64

	// Depth is the number of slices
	Depth int

	// Height is the height of each slice in voxels
	Height int

	// Width is the width of each slice in voxels
	Width int
}

// NewVolume allocates a zero-filled volume with the given dimensions
func NewVolume(depth, height, width int) *Volume {
	return &Volume{
		Data:   make([]float64, depth*height*width),
		Depth:  depth,
		Height: height,
		Width:  width,
	}
}

// NewVolumeFromShape allocates a zero-filled volume of the given shape
func NewVolumeFromShape(shape [3]int) *Volume {
	return NewVolume(shape[0], shape[1], shape[2])
}

// Shape returns the dimensions as (depth, height, width)
func (v *Volume) Shape() [3]int {
	return [3]int{v.Depth, v.Height, v.Width}
}

// Len returns the number of voxels
func (v *Volume) Len() int {
	return v.Depth * v.Height * v.Width
}

// Index returns the offset of voxel (d, h, w) in Data
func (v *Volume) Index(d, h, w int) int {
	return d*v.Height*v.Width + h*v.Width + w
}

// At returns the value at (d, h, w)
func (v *Volume) At(d, h, w int) float64 {
	return v.Data[v.Index(d, h, w)]
}

// Set stores a value at (d, h, w)
func (v *Volume) Set(d, h, w int, value float64) {
	v.Data[v.Index(d, h, w)] = value
}

// Clone returns a deep copy
func (v *Volume) Clone() *Volume {
	out := &Volume{
		Data:   make([]float64, len(v.Data)),
		Depth:  v.Depth,
		Height: v.Height,
		Width:  v.Width,
	}
	copy(out.Data, v.Data)
	return out
}

// SameShape reports whether both volumes have identical dimensions
func (v *Volume) SameShape(other *Volume) bool {
	return v.Shape() == other.Shape()
}

// Validate checks that the dimensions are positive and match the data length
func (v *Volume) Validate() error {
	if v == nil {
		return fmt.Errorf("%w: nil volume", ErrInvalidVolume)
	}
	if v.Depth <= 0 || v.Height <= 0 || v.Width <= 0 {
		return fmt.Errorf("%w: non-positive shape %v", ErrInvalidVolume, v.Shape())
	}
	if len(v.Data) != v.Len() {
		return fmt.Errorf("%w: shape %v needs %d voxels, got %d",
			ErrInvalidVolume, v.Shape(), v.Len(), len(v.Data))
	}
	return nil
}

// IndexRange is a region of interest with inclusive bounds per axis
type IndexRange struct {
	Min [3]int
	Max [3]int
}

// Center returns the real-valued midpoint of the range on every axis
func (r IndexRange) Center() [3]float64 {
	var c [3]float64
	for i := range c {
		c[i] = float64(r.Min[i]+r.Max[i]) / 2
	}
	return c
}

// Size returns the number of voxels covered on every axis
func (r IndexRange) Size() [3]int {
	var s [3]int
	for i := range s {
		s[i] = r.Max[i] - r.Min[i] + 1
	}
	return s
}

// Contains reports whether other lies inside r
func (r IndexRange) Contains(other IndexRange) bool {
	for i := 0; i < 3; i++ {
		if other.Min[i] < r.Min[i] || other.Max[i] > r.Max[i] {
			return false
		}
	}
	return true
}

// Validate checks that 0 <= Min[i] <= Max[i] <= shape[i]-1 on every axis
func (r IndexRange) Validate(shape [3]int) error {
	for i := 0; i < 3; i++ {
		if r.Min[i] < 0 || r.Min[i] > r.Max[i] || r.Max[i] > shape[i]-1 {
			return fmt.Errorf("%w: axis %d [%d, %d] outside shape %v",
				ErrInvalidRange, i, r.Min[i], r.Max[i], shape)
		}
	}
	return nil
}

// FullRange returns the range covering an entire volume of the given shape
func FullRange(shape [3]int) IndexRange {
	return IndexRange{
		Max: [3]int{shape[0] - 1, shape[1] - 1, shape[2] - 1},
	}
}

// TargetSize is the exact output shape demanded by a fixed-size crop
type TargetSize [3]int

// Validate checks that every axis is positive
func (s TargetSize) Validate() error {
	for i, n := range s {
		if n <= 0 {
			return fmt.Errorf("%w: axis %d must be positive, got %d", ErrInvalidTargetSize, i, n)
		}
	}
	return nil
}
