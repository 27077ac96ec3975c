// Package volumeio loads and stores volumes as headerless raw voxel dumps.
//
// Locations are resolved through viant/afs, so plain paths, file:// and
// s3:// URLs are all accepted.
package volumeio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
	_ "github.com/viant/afsc/s3"

	"brainprep/internal/models"
)

// FileSystem is the storage service shared by readers and writers
var FileSystem = afs.New()

// EnsureParent creates the folder that will hold target when it is missing
func EnsureParent(ctx context.Context, target string) error {
	parent, _ := url.Split(target, file.Scheme)
	exists, err := FileSystem.Exists(ctx, parent)
	if err != nil {
		return fmt.Errorf("failed to check %s: %w", parent, err)
	}
	if exists {
		return nil
	}
	if err := FileSystem.Create(ctx, parent, os.ModePerm, true); err != nil {
		return fmt.Errorf("failed to create %s: %w", parent, err)
	}
	return nil
}

var (
	// ErrSizeMismatch is returned when the payload does not hold shape voxels
	ErrSizeMismatch = errors.New("raw payload size does not match shape")

	// ErrUnknownDataType is returned for an unsupported element type
	ErrUnknownDataType = errors.New("unknown raw data type")
)

// Reader loads a volume from a location
type Reader interface {
	ReadVolume(ctx context.Context, url string) (*models.Volume, error)
}

// Writer stores a volume at a location
type Writer interface {
	WriteVolume(ctx context.Context, url string, v *models.Volume) error
}

// DataType is the element type of a raw dump
type DataType string

const (
	Uint8   DataType = "uint8"
	Int16   DataType = "int16"
	Uint16  DataType = "uint16"
	Int32   DataType = "int32"
	Float32 DataType = "float32"
	Float64 DataType = "float64"
)

// Size returns the number of bytes per element
func (t DataType) Size() (int, error) {
	switch t {
	case Uint8:
		return 1, nil
	case Int16, Uint16:
		return 2, nil
	case Int32, Float32:
		return 4, nil
	case Float64:
		return 8, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownDataType, string(t))
}

// ParseByteOrder accepts "little" or "big"; empty selects little endian
func ParseByteOrder(s string) (binary.ByteOrder, error) {
	switch strings.ToLower(s) {
	case "", "little", "le":
		return binary.LittleEndian, nil
	case "big", "be":
		return binary.BigEndian, nil
	}
	return nil, fmt.Errorf("unknown byte order %q", s)
}

// RawReader decodes raw dumps of a fixed shape, ordered (depth, height, width)
type RawReader struct {
	Shape     [3]int
	DataType  DataType
	ByteOrder binary.ByteOrder
}

// ReadVolume reads and decodes url
func (r *RawReader) ReadVolume(ctx context.Context, url string) (*models.Volume, error) {
	reader, err := FileSystem.OpenURL(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", url, err)
	}
	defer reader.Close()

	v, err := r.Decode(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", url, err)
	}
	return v, nil
}

// Decode reads a whole raw payload from src
func (r *RawReader) Decode(src io.Reader) (*models.Volume, error) {
	size, err := r.DataType.Size()
	if err != nil {
		return nil, err
	}
	order := r.ByteOrder
	if order == nil {
		order = binary.LittleEndian
	}

	for i, n := range r.Shape {
		if n <= 0 {
			return nil, fmt.Errorf("%w: shape axis %d is %d", models.ErrInvalidVolume, i, n)
		}
	}

	payload, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}

	v := models.NewVolumeFromShape(r.Shape)
	if len(payload) != v.Len()*size {
		return nil, fmt.Errorf("%w: shape %v of %s needs %d bytes, got %d",
			ErrSizeMismatch, r.Shape, r.DataType, v.Len()*size, len(payload))
	}

	buf := bytes.NewReader(payload)
	switch r.DataType {
	case Uint8:
		for i, b := range payload {
			v.Data[i] = float64(b)
		}
	case Int16:
		raw := make([]int16, v.Len())
		if err := binary.Read(buf, order, raw); err != nil {
			return nil, err
		}
		for i, x := range raw {
			v.Data[i] = float64(x)
		}
	case Uint16:
		raw := make([]uint16, v.Len())
		if err := binary.Read(buf, order, raw); err != nil {
			return nil, err
		}
		for i, x := range raw {
			v.Data[i] = float64(x)
		}
	case Int32:
		raw := make([]int32, v.Len())
		if err := binary.Read(buf, order, raw); err != nil {
			return nil, err
		}
		for i, x := range raw {
			v.Data[i] = float64(x)
		}
	case Float32:
		raw := make([]float32, v.Len())
		if err := binary.Read(buf, order, raw); err != nil {
			return nil, err
		}
		for i, x := range raw {
			v.Data[i] = float64(x)
		}
	case Float64:
		if err := binary.Read(buf, order, v.Data); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// RawWriter encodes volumes as raw dumps of DataType. Integer types round
// and saturate.
type RawWriter struct {
	DataType  DataType
	ByteOrder binary.ByteOrder
}

// WriteVolume encodes v and stores it at target
func (w *RawWriter) WriteVolume(ctx context.Context, target string, v *models.Volume) error {
	if err := v.Validate(); err != nil {
		return err
	}
	payload, err := w.Encode(v)
	if err != nil {
		return err
	}

	if err := EnsureParent(ctx, target); err != nil {
		return err
	}

	writer, err := FileSystem.NewWriter(ctx, target, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s for writing: %w", target, err)
	}
	if _, err := writer.Write(payload); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write %s: %w", target, err)
	}
	return writer.Close()
}

// Encode serializes v without writing it anywhere
func (w *RawWriter) Encode(v *models.Volume) ([]byte, error) {
	if _, err := w.DataType.Size(); err != nil {
		return nil, err
	}
	order := w.ByteOrder
	if order == nil {
		order = binary.LittleEndian
	}

	var data interface{}
	switch w.DataType {
	case Uint8:
		raw := make([]uint8, len(v.Data))
		for i, x := range v.Data {
			raw[i] = uint8(saturate(x, 0, math.MaxUint8))
		}
		data = raw
	case Int16:
		raw := make([]int16, len(v.Data))
		for i, x := range v.Data {
			raw[i] = int16(saturate(x, math.MinInt16, math.MaxInt16))
		}
		data = raw
	case Uint16:
		raw := make([]uint16, len(v.Data))
		for i, x := range v.Data {
			raw[i] = uint16(saturate(x, 0, math.MaxUint16))
		}
		data = raw
	case Int32:
		raw := make([]int32, len(v.Data))
		for i, x := range v.Data {
			raw[i] = int32(saturate(x, math.MinInt32, math.MaxInt32))
		}
		data = raw
	case Float32:
		raw := make([]float32, len(v.Data))
		for i, x := range v.Data {
			raw[i] = float32(x)
		}
		data = raw
	case Float64:
		data = v.Data
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, order, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func saturate(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, math.Round(x)))
}
