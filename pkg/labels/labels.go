// Package labels derives binary masks from integer label maps.
//
// Label values follow the BraTS convention: 0 background, 1 necrotic core,
// 2 edema, 3 non-enhancing core, 4 enhancing tumor.
package labels

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"brainprep/internal/models"
)

// ErrUnknownMode is returned when a label mode name is not recognised
var ErrUnknownMode = errors.New("unknown label mode")

// Mask returns a 0/1 volume marking voxels whose label satisfies keep.
// Values are rounded to the nearest integer label first.
func Mask(v *models.Volume, keep func(label int) bool) (*models.Volume, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	out := models.NewVolume(v.Depth, v.Height, v.Width)
	for i, value := range v.Data {
		if keep(int(math.Round(value))) {
			out.Data[i] = 1
		}
	}
	return out, nil
}

// InSet marks voxels whose label is one of labels
func InSet(v *models.Volume, labels ...int) (*models.Volume, error) {
	set := make(map[int]struct{}, len(labels))
	for _, l := range labels {
		set[l] = struct{}{}
	}
	return Mask(v, func(label int) bool {
		_, ok := set[label]
		return ok
	})
}

// WholeTumor marks every labelled voxel (1, 2, 3 and 4)
func WholeTumor(v *models.Volume) (*models.Volume, error) {
	return Mask(v, func(label int) bool { return label > 0 })
}

// TumorCore marks labels 1, 3 and 4
func TumorCore(v *models.Volume) (*models.Volume, error) {
	return InSet(v, 1, 3, 4)
}

// EnhancingTumor marks label 4
func EnhancingTumor(v *models.Volume) (*models.Volume, error) {
	return InSet(v, 4)
}

// OneHot stacks a binary mask with its complement as (foreground, background)
func OneHot(mask *models.Volume) ([2]*models.Volume, error) {
	if err := mask.Validate(); err != nil {
		return [2]*models.Volume{}, err
	}
	fg := mask.Clone()
	bg := models.NewVolume(mask.Depth, mask.Height, mask.Width)
	for i, value := range mask.Data {
		bg.Data[i] = 1 - value
	}
	return [2]*models.Volume{fg, bg}, nil
}

// Mode selects which tumor region a label map is reduced to
type Mode int

const (
	Whole Mode = iota
	Core
	Enhancing
)

func (m Mode) String() string {
	switch m {
	case Whole:
		return "whole"
	case Core:
		return "core"
	case Enhancing:
		return "enhancing"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode accepts "whole", "core" or "enhancing"
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "whole", "wholetumor", "wt":
		return Whole, nil
	case "core", "tumorcore", "tc":
		return Core, nil
	case "enhancing", "et":
		return Enhancing, nil
	}
	return Whole, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Apply reduces a label map with the selected mode
func (m Mode) Apply(v *models.Volume) (*models.Volume, error) {
	switch m {
	case Whole:
		return WholeTumor(v)
	case Core:
		return TumorCore(v)
	case Enhancing:
		return EnhancingTumor(v)
	}
	return nil, fmt.Errorf("%w: %v", ErrUnknownMode, m)
}
