package labels

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brainprep/internal/models"
)

// createLabelVolume lays out labels 0..4 repeatedly along the flat index
func createLabelVolume() *models.Volume {
	v := models.NewVolume(2, 2, 5)
	for i := range v.Data {
		v.Data[i] = float64(i % 5)
	}
	return v
}

func TestWholeTumor(t *testing.T) {
	out, err := WholeTumor(createLabelVolume())
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 1, 1, 1}, out.Data[:5])
	assert.Equal(t, [3]int{2, 2, 5}, out.Shape())
}

func TestTumorCore(t *testing.T) {
	out, err := TumorCore(createLabelVolume())
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 0, 1, 1}, out.Data[:5])
}

func TestEnhancingTumor(t *testing.T) {
	out, err := EnhancingTumor(createLabelVolume())
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0, 0, 1}, out.Data[:5])
}

// TestMaskRoundsLabels verifies float noise around integer labels is tolerated
func TestMaskRoundsLabels(t *testing.T) {
	v := &models.Volume{Data: []float64{0.0001, 0.9999, 2.0001, 3.9999}, Depth: 1, Height: 1, Width: 4}
	out, err := InSet(v, 1, 4)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 0, 1}, out.Data)
}

// TestMaskDoesNotMutateInput verifies the label map is left untouched
func TestMaskDoesNotMutateInput(t *testing.T) {
	v := createLabelVolume()
	before := v.Clone()
	_, err := WholeTumor(v)
	require.NoError(t, err)
	_, err = TumorCore(v)
	require.NoError(t, err)
	assert.Equal(t, before.Data, v.Data)
}

// TestOneHot verifies the two channels are complementary
func TestOneHot(t *testing.T) {
	mask, err := WholeTumor(createLabelVolume())
	require.NoError(t, err)
	channels, err := OneHot(mask)
	require.NoError(t, err)

	require.Len(t, channels, 2)
	assert.Equal(t, mask.Data, channels[0].Data)
	for i := range mask.Data {
		assert.Equal(t, 1.0, channels[0].Data[i]+channels[1].Data[i])
	}
	channels[0].Data[0] = 7
	assert.Equal(t, 0.0, mask.Data[0])
}

func TestParseMode(t *testing.T) {
	tests := map[string]Mode{
		"whole":     Whole,
		"WT":        Whole,
		"core":      Core,
		" tc ":      Core,
		"enhancing": Enhancing,
	}
	for in, want := range tests {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseMode("edema")
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestModeApply(t *testing.T) {
	v := createLabelVolume()
	for _, m := range []Mode{Whole, Core, Enhancing} {
		out, err := m.Apply(v)
		require.NoError(t, err)
		assert.Equal(t, v.Shape(), out.Shape())
	}

	_, err := Mode(9).Apply(v)
	assert.ErrorIs(t, err, ErrUnknownMode)
	assert.Equal(t, "Mode(9)", Mode(9).String())
}

// TestMaskRejectsInconsistentVolume verifies a data length that disagrees with the shape is an error
func TestMaskRejectsInconsistentVolume(t *testing.T) {
	v := &models.Volume{Data: make([]float64, 12), Depth: 1, Height: 2, Width: 5}

	_, err := WholeTumor(v)
	assert.ErrorIs(t, err, models.ErrInvalidVolume)

	_, err = Core.Apply(v)
	assert.ErrorIs(t, err, models.ErrInvalidVolume)

	_, err = OneHot(v)
	assert.ErrorIs(t, err, models.ErrInvalidVolume)

	_, err = Enhancing.Apply(nil)
	assert.ErrorIs(t, err, models.ErrInvalidVolume)
}
