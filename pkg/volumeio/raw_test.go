package volumeio

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brainprep/internal/models"
)

func createRampVolume() *models.Volume {
	v := models.NewVolume(2, 3, 4)
	for i := range v.Data {
		v.Data[i] = float64(i * 3)
	}
	return v
}

// TestRoundTrip verifies every data type survives a write and read through afs
func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	v := createRampVolume()

	for _, dt := range []DataType{Uint8, Int16, Uint16, Int32, Float32, Float64} {
		for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
			name := filepath.Join(dir, string(dt)+order.String(), "volume.raw")

			w := &RawWriter{DataType: dt, ByteOrder: order}
			require.NoError(t, w.WriteVolume(ctx, name, v), dt)

			r := &RawReader{Shape: v.Shape(), DataType: dt, ByteOrder: order}
			got, err := r.ReadVolume(ctx, name)
			require.NoError(t, err, dt)
			assert.Equal(t, v, got, dt)
		}
	}
}

// TestDecodeInt16 checks a hand-built little-endian payload
func TestDecodeInt16(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, []int16{-3, 0, 7, 300}))

	r := &RawReader{Shape: [3]int{1, 2, 2}, DataType: Int16}
	v, err := r.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, []float64{-3, 0, 7, 300}, v.Data)
}

func TestDecodeSizeMismatch(t *testing.T) {
	r := &RawReader{Shape: [3]int{2, 2, 2}, DataType: Float32}
	_, err := r.Decode(bytes.NewReader(make([]byte, 31)))
	assert.ErrorIs(t, err, ErrSizeMismatch)
}

func TestUnknownDataType(t *testing.T) {
	r := &RawReader{Shape: [3]int{1, 1, 1}, DataType: "complex64"}
	_, err := r.Decode(bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrUnknownDataType)

	w := &RawWriter{DataType: "bool"}
	_, err = w.Encode(createRampVolume())
	assert.ErrorIs(t, err, ErrUnknownDataType)
}

// TestEncodeSaturates verifies integer outputs round and clamp
func TestEncodeSaturates(t *testing.T) {
	v := &models.Volume{Data: []float64{-5, 1.6, 300}, Depth: 1, Height: 1, Width: 3}
	payload, err := (&RawWriter{DataType: Uint8}).Encode(v)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 2, 255}, payload)
}

func TestReadMissingFile(t *testing.T) {
	r := &RawReader{Shape: [3]int{1, 1, 1}, DataType: Uint8}
	_, err := r.ReadVolume(context.Background(), filepath.Join(t.TempDir(), "missing.raw"))
	assert.Error(t, err)
}

func TestWriteCreatesDirectories(t *testing.T) {
	name := filepath.Join(t.TempDir(), "a", "b", "c.raw")
	require.NoError(t, (&RawWriter{DataType: Float32}).WriteVolume(context.Background(), name, createRampVolume()))

	info, err := os.Stat(name)
	require.NoError(t, err)
	assert.Equal(t, int64(24*4), info.Size())
}

func TestParseByteOrder(t *testing.T) {
	order, err := ParseByteOrder("")
	require.NoError(t, err)
	assert.Equal(t, binary.LittleEndian, order)

	order, err = ParseByteOrder("BIG")
	require.NoError(t, err)
	assert.Equal(t, binary.BigEndian, order)

	_, err = ParseByteOrder("middle")
	assert.Error(t, err)
}

// TestURLLocations verifies file:// URLs write into missing folders and read back
func TestURLLocations(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	target := "file://" + filepath.Join(dir, "a", "b", "vol.raw")

	w := &RawWriter{DataType: Float32}
	require.NoError(t, w.WriteVolume(ctx, target, createRampVolume()))

	_, err := os.Stat(filepath.Join(dir, "a", "b", "vol.raw"))
	require.NoError(t, err)

	r := &RawReader{Shape: [3]int{2, 3, 4}, DataType: Float32}
	v, err := r.ReadVolume(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, createRampVolume().Data, v.Data)

	require.NoError(t, EnsureParent(ctx, "file://"+filepath.Join(dir, "c", "report.json")))
	info, err := os.Stat(filepath.Join(dir, "c"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
