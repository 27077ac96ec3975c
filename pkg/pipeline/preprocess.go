// Package pipeline chains the preprocessing steps for whole training cases.
package pipeline

import (
	"errors"
	"fmt"

	"brainprep/internal/models"
	"brainprep/pkg/bbox"
	"brainprep/pkg/config"
	"brainprep/pkg/crop"
	"brainprep/pkg/labels"
	"brainprep/pkg/normalize"
	"brainprep/pkg/orientation"
)

// Sample is one case: co-registered modalities and an optional label map
type Sample struct {
	Name       string
	Modalities []*models.Volume
	Label      *models.Volume
}

// Result is a preprocessed sample plus the geometry used to produce it
type Result struct {
	Sample
	BoundingBox models.IndexRange
	Window      crop.Window
}

// IsDataQualityError reports whether err means the sample itself is unusable
// (empty scan, scan smaller than the crop, no foreground to normalize)
// as opposed to a configuration or I/O failure.
func IsDataQualityError(err error) bool {
	return errors.Is(err, bbox.ErrEmptyVolume) ||
		errors.Is(err, crop.ErrSizeExceedsVolume) ||
		errors.Is(err, normalize.ErrNoForeground) ||
		errors.Is(err, normalize.ErrZeroVariance)
}

// Preprocessor applies bounding box, crop, normalization, label remapping and
// orientation in that order
type Preprocessor struct {
	margin      bbox.Margin
	target      models.TargetSize
	slack       int
	orientation orientation.Orientation
	mode        labels.Mode
	normalize   bool
}

// NewPreprocessor resolves the preprocessing section of cfg
func NewPreprocessor(cfg *config.Config) (*Preprocessor, error) {
	pc := cfg.Preprocessing
	if _, err := pc.Margin.Resolve(3); err != nil {
		return nil, err
	}
	target := models.TargetSize(pc.TargetSize)
	if err := target.Validate(); err != nil {
		return nil, err
	}
	if pc.Slack < 0 {
		return nil, fmt.Errorf("slack must be non-negative, got %d", pc.Slack)
	}
	o, err := orientation.Parse(pc.Orientation)
	if err != nil {
		return nil, err
	}
	mode, err := labels.ParseMode(pc.LabelMode)
	if err != nil {
		return nil, err
	}
	return &Preprocessor{
		margin:      pc.Margin,
		target:      target,
		slack:       pc.Slack,
		orientation: o,
		mode:        mode,
		normalize:   pc.Normalize,
	}, nil
}

// Process returns a new preprocessed sample; s is not modified.
// The bounding box comes from the first modality and one crop window is
// applied to every volume so they stay co-registered.
func (p *Preprocessor) Process(s *Sample) (*Result, error) {
	if len(s.Modalities) == 0 {
		return nil, fmt.Errorf("%w: sample %q has no modality", models.ErrInvalidVolume, s.Name)
	}
	ref := s.Modalities[0]
	for i, m := range s.Modalities {
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("modality %d: %w", i, err)
		}
		if !m.SameShape(ref) {
			return nil, fmt.Errorf("%w: modality %d shape %v differs from %v", models.ErrInvalidVolume, i, m.Shape(), ref.Shape())
		}
	}
	if s.Label != nil {
		if err := s.Label.Validate(); err != nil {
			return nil, fmt.Errorf("label: %w", err)
		}
		if !s.Label.SameShape(ref) {
			return nil, fmt.Errorf("%w: label shape %v differs from %v", models.ErrInvalidVolume, s.Label.Shape(), ref.Shape())
		}
	}

	box, err := bbox.FindBoundingBox(ref, p.margin)
	if err != nil {
		return nil, err
	}
	window, err := crop.Bounds(ref.Shape(), box, p.target, p.slack)
	if err != nil {
		return nil, err
	}

	out := &Result{
		Sample:      Sample{Name: s.Name, Modalities: make([]*models.Volume, len(s.Modalities))},
		BoundingBox: box,
		Window:      window,
	}

	for i, m := range s.Modalities {
		v, err := crop.Extract(m, window)
		if err != nil {
			return nil, err
		}
		if p.normalize {
			if v, err = normalize.ZScore(v); err != nil {
				return nil, fmt.Errorf("modality %d: %w", i, err)
			}
		}
		if v, err = orientation.Transpose(v, p.orientation); err != nil {
			return nil, err
		}
		out.Modalities[i] = v
	}

	if s.Label != nil {
		v, err := crop.Extract(s.Label, window)
		if err != nil {
			return nil, err
		}
		if v, err = p.mode.Apply(v); err != nil {
			return nil, err
		}
		if v, err = orientation.Transpose(v, p.orientation); err != nil {
			return nil, err
		}
		out.Label = v
	}

	return out, nil
}
