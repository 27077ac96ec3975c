// Package normalize rescales voxel intensities.
package normalize

import (
	"errors"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"brainprep/internal/models"
)

var (
	// ErrNoForeground is returned when a volume has no voxel above zero
	ErrNoForeground = errors.New("volume has no foreground voxel")

	// ErrZeroVariance is returned when the foreground is constant
	ErrZeroVariance = errors.New("foreground intensity has zero variance")
)

// Foreground returns the voxels strictly above zero
func Foreground(v *models.Volume) []float64 {
	pixels := make([]float64, 0, len(v.Data))
	for _, value := range v.Data {
		if value > 0 {
			pixels = append(pixels, value)
		}
	}
	return pixels
}

// ZScore subtracts the foreground mean and divides by the foreground
// population standard deviation. Background voxels are transformed too, so
// they map to -mean/std.
func ZScore(v *models.Volume) (*models.Volume, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}

	pixels := Foreground(v)
	if len(pixels) == 0 {
		return nil, ErrNoForeground
	}
	mean, std := stat.PopMeanStdDev(pixels, nil)
	if std == 0 {
		return nil, ErrZeroVariance
	}

	out := v.Clone()
	floats.AddConst(-mean, out.Data)
	floats.Scale(1/std, out.Data)
	return out, nil
}

// UnitRange maps data linearly onto [0, 1]. Flat data is returned as an
// unchanged copy.
func UnitRange(data []float64) []float64 {
	out := make([]float64, len(data))
	copy(out, data)
	if len(data) == 0 {
		return out
	}

	lo, hi := floats.Min(data), floats.Max(data)
	if hi-lo == 0 {
		return out
	}
	floats.AddConst(-lo, out)
	floats.Scale(1/(hi-lo), out)
	return out
}

// UnitRangeVolume applies UnitRange to a whole volume
func UnitRangeVolume(v *models.Volume) *models.Volume {
	return &models.Volume{
		Data:   UnitRange(v.Data),
		Depth:  v.Depth,
		Height: v.Height,
		Width:  v.Width,
	}
}
