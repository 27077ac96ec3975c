// Package orientation reorders volume axes so slices can be taken along
// the axial, sagittal or coronal direction.
package orientation

import (
	"errors"
	"fmt"
	"strings"

	"gorgonia.org/tensor"

	"brainprep/internal/models"
)

// ErrUnknownOrientation is returned for an orientation name or value that is not defined
var ErrUnknownOrientation = errors.New("unknown slice orientation")

// Orientation names the direction slices are taken along
type Orientation int

const (
	// Axial keeps the (depth, height, width) layout
	Axial Orientation = iota
	// Sagittal moves width to the slice axis: (width, depth, height)
	Sagittal
	// Coronal moves height to the slice axis: (height, depth, width)
	Coronal
)

func (o Orientation) String() string {
	switch o {
	case Axial:
		return "axial"
	case Sagittal:
		return "sagittal"
	case Coronal:
		return "coronal"
	}
	return fmt.Sprintf("Orientation(%d)", int(o))
}

// Parse accepts "axial", "sagittal" or "coronal"
func Parse(s string) (Orientation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "axial":
		return Axial, nil
	case "sagittal":
		return Sagittal, nil
	case "coronal":
		return Coronal, nil
	}
	return Axial, fmt.Errorf("%w: %q", ErrUnknownOrientation, s)
}

// Axes returns the source axis feeding each output axis
func (o Orientation) Axes() ([3]int, error) {
	switch o {
	case Axial:
		return [3]int{0, 1, 2}, nil
	case Sagittal:
		return [3]int{2, 0, 1}, nil
	case Coronal:
		return [3]int{1, 0, 2}, nil
	}
	return [3]int{}, fmt.Errorf("%w: %v", ErrUnknownOrientation, o)
}

// Transpose returns a new volume with its axes reordered for o
func Transpose(v *models.Volume, o Orientation) (*models.Volume, error) {
	axes, err := o.Axes()
	if err != nil {
		return nil, err
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	if o == Axial {
		return v.Clone(), nil
	}

	backing := make([]float64, len(v.Data))
	copy(backing, v.Data)
	dense := tensor.New(tensor.WithShape(v.Depth, v.Height, v.Width), tensor.WithBacking(backing))

	transposed, err := tensor.Transpose(dense, axes[0], axes[1], axes[2])
	if err != nil {
		return nil, fmt.Errorf("transpose to %v: %w", o, err)
	}

	data, ok := transposed.Data().([]float64)
	if !ok {
		return nil, fmt.Errorf("transpose to %v: unexpected backing %T", o, transposed.Data())
	}
	shape := transposed.Shape()
	return &models.Volume{
		Data:   data,
		Depth:  shape[0],
		Height: shape[1],
		Width:  shape[2],
	}, nil
}

// TransposeAll applies Transpose to every volume
func TransposeAll(vs []*models.Volume, o Orientation) ([]*models.Volume, error) {
	out := make([]*models.Volume, len(vs))
	for i, v := range vs {
		t, err := Transpose(v, o)
		if err != nil {
			return nil, fmt.Errorf("volume %d: %w", i, err)
		}
		out[i] = t
	}
	return out, nil
}
