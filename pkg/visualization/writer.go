package visualization

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/disintegration/imaging"

	"brainprep/pkg/volumeio"
)

// ImageWriter accepts a rendered image and persists it under path
type ImageWriter interface {
	WriteImage(path string, img image.Image) error
}

// JPEGWriter saves images as JPEG through the shared storage service,
// so path may be a local path or a URL
type JPEGWriter struct {
	// Quality is the JPEG quality from 1 to 100
	Quality int
}

// NewJPEGWriter creates a writer with the given quality; 0 selects 90
func NewJPEGWriter(quality int) *JPEGWriter {
	if quality <= 0 {
		quality = 90
	}
	return &JPEGWriter{Quality: quality}
}

// WriteImage encodes img to path
func (w *JPEGWriter) WriteImage(path string, img image.Image) error {
	ctx := context.Background()
	if err := volumeio.EnsureParent(ctx, path); err != nil {
		return err
	}
	writer, err := volumeio.FileSystem.NewWriter(ctx, path, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	if err := imaging.Encode(writer, img, imaging.JPEG, imaging.JPEGQuality(w.Quality)); err != nil {
		writer.Close()
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return writer.Close()
}

// MemoryWriter keeps images in memory, keyed by path
type MemoryWriter struct {
	mu     sync.Mutex
	Images map[string]image.Image
}

// NewMemoryWriter creates an empty in-memory sink
func NewMemoryWriter() *MemoryWriter {
	return &MemoryWriter{Images: make(map[string]image.Image)}
}

// WriteImage records img under path
func (w *MemoryWriter) WriteImage(path string, img image.Image) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Images[path] = img
	return nil
}

// Len returns the number of stored images
func (w *MemoryWriter) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.Images)
}
