package visualization

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"path"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/viant/afs/url"

	"brainprep/internal/models"
	"brainprep/pkg/normalize"
)

// DefaultGap is the horizontal spacing between montage panels
const DefaultGap = 8

// ErrEmptyBatch is returned when there is nothing to render
var ErrEmptyBatch = errors.New("montage batch is empty")

// Sample groups what is shown for one batch item: every input modality,
// the predicted mask and the ground-truth label, all with the same shape
type Sample struct {
	Modalities []*models.Volume
	Predict    *models.Volume
	Label      *models.Volume
}

// panels returns the volumes in display order
func (s Sample) panels() ([]*models.Volume, error) {
	if len(s.Modalities) == 0 || s.Predict == nil || s.Label == nil {
		return nil, fmt.Errorf("sample needs modalities, a prediction and a label")
	}
	out := make([]*models.Volume, 0, len(s.Modalities)+2)
	out = append(out, s.Modalities...)
	out = append(out, s.Predict, s.Label)
	return out, nil
}

// Montage lays panels side by side, each normalized to the full gray range
type Montage struct {
	// Gap is the number of blank columns after each panel
	Gap int
}

// Compose renders depth slice s of every panel into one image
func (m Montage) Compose(panels []*models.Volume, s int) (*image.NRGBA, error) {
	if len(panels) == 0 {
		return nil, ErrEmptyBatch
	}
	first := panels[0]
	for i, p := range panels {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("panel %d: %w", i, err)
		}
		if p.Height != first.Height || p.Width != first.Width {
			return nil, fmt.Errorf("panel %d is %dx%d, expected %dx%d", i, p.Height, p.Width, first.Height, first.Width)
		}
		if s < 0 || s >= p.Depth {
			return nil, fmt.Errorf("slice %d outside panel %d depth %d", s, i, p.Depth)
		}
	}

	stride := first.Width + max(m.Gap, 0)
	canvas := imaging.New(stride*len(panels), first.Height, color.Black)
	for i, p := range panels {
		tile := sliceImage(p, s)
		canvas = imaging.Paste(canvas, tile, image.Pt(i*stride, 0))
	}
	return canvas, nil
}

// sliceImage renders one depth slice scaled to [0, 1]
func sliceImage(v *models.Volume, s int) *image.Gray {
	n := v.Height * v.Width
	data := normalize.UnitRange(v.Data[s*n : (s+1)*n])

	img := image.NewGray(image.Rect(0, 0, v.Width, v.Height))
	for h := 0; h < v.Height; h++ {
		for w := 0; w < v.Width; w++ {
			value := data[h*v.Width+w]
			img.SetGray(w, h, color.Gray{Y: uint8(max(0, min(255, math.Round(value*255))))})
		}
	}
	return img
}

// EpochDir is the directory montages for an epoch are written to
func EpochDir(saveDir string, epoch int) string {
	return url.Join(saveDir, fmt.Sprintf("epoch%d", epoch))
}

// SaveTrainSlices writes one montage per batch item and depth slice as
// <saveDir>/epoch<N>/b_<b>_s<s>.jpg
func (m Montage) SaveTrainSlices(writer ImageWriter, batch []Sample, epoch int, saveDir string) error {
	if len(batch) == 0 {
		return ErrEmptyBatch
	}
	dir := EpochDir(saveDir, epoch)

	for b, sample := range batch {
		panels, err := sample.panels()
		if err != nil {
			return fmt.Errorf("batch item %d: %w", b, err)
		}
		for s := 0; s < panels[0].Depth; s++ {
			img, err := m.Compose(panels, s)
			if err != nil {
				return fmt.Errorf("batch item %d: %w", b, err)
			}
			name := url.Join(dir, fmt.Sprintf("b_%d_s%d.jpg", b, s))
			if err := writer.WriteImage(name, img); err != nil {
				return err
			}
		}
	}
	return nil
}

// SaveTrainImages writes the first depth slice of each batch item as
// <saveDir>/epoch<N>/b_<b><name>.jpg, where name is the base of names[b]
func (m Montage) SaveTrainImages(writer ImageWriter, batch []Sample, names []string, epoch int, saveDir string) error {
	if len(batch) == 0 {
		return ErrEmptyBatch
	}
	if len(names) != len(batch) {
		return fmt.Errorf("got %d names for %d batch items", len(names), len(batch))
	}
	dir := EpochDir(saveDir, epoch)

	for b, sample := range batch {
		panels, err := sample.panels()
		if err != nil {
			return fmt.Errorf("batch item %d: %w", b, err)
		}
		img, err := m.Compose(panels, 0)
		if err != nil {
			return fmt.Errorf("batch item %d: %w", b, err)
		}
		name := url.Join(dir, fmt.Sprintf("b_%d%s.jpg", b, path.Base(filepath.ToSlash(names[b]))))
		if err := writer.WriteImage(name, img); err != nil {
			return err
		}
	}
	return nil
}
