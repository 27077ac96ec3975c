package pipeline

import (
	"context"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"brainprep/internal/models"
	"brainprep/pkg/crop"
	"brainprep/pkg/volumeio"
)

// Status is the outcome of one case
type Status string

const (
	StatusProcessed Status = "processed"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// CaseReport records what happened to one case
type CaseReport struct {
	Name        string             `json:"name"`
	Status      Status             `json:"status"`
	Error       string             `json:"error,omitempty"`
	BoundingBox *models.IndexRange `json:"boundingBox,omitempty"`
	Window      *crop.Window       `json:"window,omitempty"`
	Elapsed     float64            `json:"elapsedSeconds"`
}

// Report summarises a preprocessing run
type Report struct {
	Cases     []CaseReport `json:"cases"`
	Processed int          `json:"processed"`
	Skipped   int          `json:"skipped"`
	Failed    int          `json:"failed"`
}

func (r *Report) tally() {
	r.Processed, r.Skipped, r.Failed = 0, 0, 0
	for _, c := range r.Cases {
		switch c.Status {
		case StatusProcessed:
			r.Processed++
		case StatusSkipped:
			r.Skipped++
		default:
			r.Failed++
		}
	}
}

// Marshal encodes the report as indented JSON
func (r *Report) Marshal() ([]byte, error) {
	return jsoniter.MarshalIndent(r, "", "  ")
}

// Save writes the report to url
func (r *Report) Save(ctx context.Context, url string) error {
	data, err := r.Marshal()
	if err != nil {
		return fmt.Errorf("error marshaling report: %w", err)
	}
	if err := volumeio.EnsureParent(ctx, url); err != nil {
		return err
	}
	writer, err := volumeio.FileSystem.NewWriter(ctx, url, 0644)
	if err != nil {
		return fmt.Errorf("error opening report: %w", err)
	}
	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return fmt.Errorf("error writing report: %w", err)
	}
	return writer.Close()
}

// LoadReport reads a report written by Save
func LoadReport(ctx context.Context, url string) (*Report, error) {
	reader, err := volumeio.FileSystem.OpenURL(ctx, url)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	var r Report
	if err := jsoniter.NewDecoder(reader).Decode(&r); err != nil {
		return nil, fmt.Errorf("error parsing report: %w", err)
	}
	return &r, nil
}
