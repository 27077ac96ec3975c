package visualization

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/viant/afs/url"

	"brainprep/internal/models"
)

// Viewer extracts 2D slices and sub-regions from a volume for inspection
type Viewer struct {
	// volume is the scan or label map being viewed
	volume *models.Volume
}

// NewViewer creates a viewer over v
func NewViewer(v *models.Volume) *Viewer {
	return &Viewer{volume: v}
}

// gray16 maps a value in [0, 1] onto the 16-bit range, clamping outliers
func gray16(value float64) color.Gray16 {
	return color.Gray16{Y: uint16(math.Max(0, math.Min(65535, value*65535)))}
}

// ExtractSlice extracts a 2D slice along the specified axis.
// "x" cuts across width, "y" across height and "z" across depth.
func (v *Viewer) ExtractSlice(axis string, position int) (*image.Gray16, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}

	vol := v.volume
	var img *image.Gray16

	switch axis {
	case "x", "X":
		if position >= vol.Width {
			return nil, fmt.Errorf("position %d exceeds width %d", position, vol.Width)
		}
		img = image.NewGray16(image.Rect(0, 0, vol.Depth, vol.Height))
		for h := 0; h < vol.Height; h++ {
			for d := 0; d < vol.Depth; d++ {
				img.SetGray16(d, h, gray16(vol.At(d, h, position)))
			}
		}

	case "y", "Y":
		if position >= vol.Height {
			return nil, fmt.Errorf("position %d exceeds height %d", position, vol.Height)
		}
		img = image.NewGray16(image.Rect(0, 0, vol.Width, vol.Depth))
		for d := 0; d < vol.Depth; d++ {
			for w := 0; w < vol.Width; w++ {
				img.SetGray16(w, d, gray16(vol.At(d, position, w)))
			}
		}

	case "z", "Z":
		if position >= vol.Depth {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, vol.Depth)
		}
		img = image.NewGray16(image.Rect(0, 0, vol.Width, vol.Height))
		for h := 0; h < vol.Height; h++ {
			for w := 0; w < vol.Width; w++ {
				img.SetGray16(w, h, gray16(vol.At(position, h, w)))
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

// ExtractRegion extracts a 3D subregion of the given size starting at start,
// both ordered (depth, height, width)
func (v *Viewer) ExtractRegion(start, size [3]int) (*models.Volume, error) {
	for i := 0; i < 3; i++ {
		if start[i] < 0 {
			return nil, fmt.Errorf("start coordinates must be non-negative")
		}
		if size[i] <= 0 {
			return nil, fmt.Errorf("size dimensions must be positive")
		}
	}

	shape := v.volume.Shape()
	for i := 0; i < 3; i++ {
		if start[i]+size[i] > shape[i] {
			return nil, fmt.Errorf("region extends beyond volume boundaries")
		}
	}

	region := models.NewVolumeFromShape(size)
	for d := 0; d < size[0]; d++ {
		for h := 0; h < size[1]; h++ {
			for w := 0; w < size[2]; w++ {
				region.Set(d, h, w, v.volume.At(start[0]+d, start[1]+h, start[2]+w))
			}
		}
	}
	return region, nil
}

// SaveSliceSequence extracts every slice along axis and hands each to the writer
func (v *Viewer) SaveSliceSequence(writer ImageWriter, axis string, outputDir string) error {
	var maxPos int
	switch axis {
	case "x", "X":
		maxPos = v.volume.Width
	case "y", "Y":
		maxPos = v.volume.Height
	case "z", "Z":
		maxPos = v.volume.Depth
	default:
		return fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := url.Join(outputDir, fmt.Sprintf("slice_%s_%03d.jpg", axis, pos))
		if err := writer.WriteImage(filename, img); err != nil {
			return err
		}
	}

	return nil
}
