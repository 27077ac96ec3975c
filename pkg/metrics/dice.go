// Package metrics scores segmentation masks against ground truth.
package metrics

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"brainprep/internal/models"
)

// Smooth keeps the Dice ratio defined when both masks are empty
const Smooth = 1e-8

// ErrShapeMismatch is returned when prediction and target shapes differ
var ErrShapeMismatch = errors.New("prediction and target shapes differ")

// Dice returns (2*|P∩T| + s) / (|P| + |T| + s) for binary masks
func Dice(predict, target *models.Volume) (float64, error) {
	return BatchDice([]*models.Volume{predict}, []*models.Volume{target})
}

// BatchDice computes one Dice score over every item of a batch, summing
// intersections and cardinalities across items before taking the ratio.
func BatchDice(predicts, targets []*models.Volume) (float64, error) {
	if len(predicts) != len(targets) {
		return 0, fmt.Errorf("%w: %d predictions for %d targets", ErrShapeMismatch, len(predicts), len(targets))
	}

	var intersection, sumP, sumT float64
	for i := range predicts {
		p, t := predicts[i], targets[i]
		if err := p.Validate(); err != nil {
			return 0, fmt.Errorf("prediction %d: %w", i, err)
		}
		if err := t.Validate(); err != nil {
			return 0, fmt.Errorf("target %d: %w", i, err)
		}
		if !p.SameShape(t) {
			return 0, fmt.Errorf("%w: item %d %v vs %v", ErrShapeMismatch, i, p.Shape(), t.Shape())
		}
		intersection += floats.Dot(p.Data, t.Data)
		sumP += floats.Sum(p.Data)
		sumT += floats.Sum(t.Data)
	}

	return (2*intersection + Smooth) / (sumP + sumT + Smooth), nil
}
