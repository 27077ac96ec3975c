package bbox

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidMargin is returned when a margin is negative or has the wrong arity
var ErrInvalidMargin = errors.New("invalid margin")

// InvalidMarginError describes why a margin could not be resolved
type InvalidMarginError struct {
	Values []int
	Axes   int
	Reason string
}

func (e *InvalidMarginError) Error() string {
	return fmt.Sprintf("invalid margin %v for %d axes: %s", e.Values, e.Axes, e.Reason)
}

// Is lets errors.Is match against ErrInvalidMargin
func (e *InvalidMarginError) Is(target error) bool {
	return target == ErrInvalidMargin
}

// Margin is extra padding around a bounding box, either one value for every
// axis or one value per axis. The zero value is a uniform margin of 0.
type Margin struct {
	values  []int
	uniform bool
}

// UniformMargin applies m to every axis
func UniformMargin(m int) Margin {
	return Margin{values: []int{m}, uniform: true}
}

// AxisMargin applies one value per axis, ordered (depth, height, width)
func AxisMargin(values ...int) Margin {
	v := make([]int, len(values))
	copy(v, values)
	return Margin{values: v}
}

// IsUniform reports whether the margin was given as a single scalar
func (m Margin) IsUniform() bool {
	return m.uniform || len(m.values) == 0
}

// Values returns the margin as it was given
func (m Margin) Values() []int {
	if len(m.values) == 0 {
		return []int{0}
	}
	v := make([]int, len(m.values))
	copy(v, m.values)
	return v
}

// Resolve broadcasts the margin to ndim axes and validates it
func (m Margin) Resolve(ndim int) ([3]int, error) {
	var out [3]int
	if ndim != len(out) {
		return out, &InvalidMarginError{Values: m.Values(), Axes: ndim, Reason: "only 3D volumes are supported"}
	}

	values := m.Values()
	switch {
	case m.IsUniform():
		for i := range out {
			out[i] = values[0]
		}
	case len(values) == ndim:
		copy(out[:], values)
	default:
		return out, &InvalidMarginError{Values: values, Axes: ndim,
			Reason: fmt.Sprintf("expected 1 or %d values, got %d", ndim, len(values))}
	}

	for _, v := range out {
		if v < 0 {
			return out, &InvalidMarginError{Values: values, Axes: ndim, Reason: "values must be non-negative"}
		}
	}
	return out, nil
}

func (m Margin) String() string {
	values := m.Values()
	if m.IsUniform() {
		return strconv.Itoa(values[0])
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

// ParseMargin accepts "2" or "1,2,2"
func ParseMargin(s string) (Margin, error) {
	fields := strings.Split(s, ",")
	values := make([]int, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return Margin{}, fmt.Errorf("%w: %q is not an integer", ErrInvalidMargin, f)
		}
		values = append(values, v)
	}
	if len(values) == 1 {
		return UniformMargin(values[0]), nil
	}
	return AxisMargin(values...), nil
}

// UnmarshalYAML accepts either a scalar or a sequence
func (m *Margin) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var v int
		if err := node.Decode(&v); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidMargin, err)
		}
		*m = UniformMargin(v)
	case yaml.SequenceNode:
		var v []int
		if err := node.Decode(&v); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidMargin, err)
		}
		*m = AxisMargin(v...)
	default:
		return fmt.Errorf("%w: expected a number or a list", ErrInvalidMargin)
	}
	return nil
}

// MarshalYAML writes a scalar for uniform margins and a list otherwise
func (m Margin) MarshalYAML() (interface{}, error) {
	if m.IsUniform() {
		return m.Values()[0], nil
	}
	return m.Values(), nil
}
