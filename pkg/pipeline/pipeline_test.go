package pipeline

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/phuslu/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brainprep/internal/models"
	"brainprep/pkg/bbox"
	"brainprep/pkg/config"
	"brainprep/pkg/crop"
	"brainprep/pkg/normalize"
	"brainprep/pkg/visualization"
	"brainprep/pkg/volumeio"
)

var quietLogger = &log.Logger{Level: log.ErrorLevel, Writer: &log.IOWriter{Writer: io.Discard}}

// createTestConfig returns a small config rooted in a temporary output directory
func createTestConfig(t *testing.T) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Processing.NumCores = 2
	cfg.Preprocessing.TargetSize = [3]int{4, 6, 6}
	cfg.Input.Shape = [3]int{8, 10, 10}
	cfg.Input.DataType = string(volumeio.Float32)
	cfg.Input.LabelDataType = string(volumeio.Uint8)
	cfg.Input.Modalities = []string{"flair.raw", "t2.raw"}
	cfg.Output.Dir = filepath.Join(t.TempDir(), "out")
	cfg.Output.SaveMontage = true
	return cfg
}

// createTestSample builds modalities with a textured cube and a 0..4 label map inside it
func createTestSample() *Sample {
	s := &Sample{Name: "case"}
	for m := 0; m < 2; m++ {
		v := models.NewVolume(8, 10, 10)
		for d := 2; d <= 5; d++ {
			for h := 3; h <= 6; h++ {
				for w := 3; w <= 6; w++ {
					v.Set(d, h, w, float64(1+m+d+h+w))
				}
			}
		}
		s.Modalities = append(s.Modalities, v)
	}
	label := models.NewVolume(8, 10, 10)
	for d := 3; d <= 4; d++ {
		for h := 4; h <= 5; h++ {
			for w := 4; w <= 5; w++ {
				label.Set(d, h, w, float64((d+h+w)%4+1))
			}
		}
	}
	s.Label = label
	return s
}

// writeCase stores a sample under root/name using the configured input format
func writeCase(t *testing.T, cfg *config.Config, root, name string, s *Sample) Case {
	ctx := context.Background()
	dir := filepath.Join(root, name)
	scans := &volumeio.RawWriter{DataType: volumeio.DataType(cfg.Input.DataType)}
	for i, v := range s.Modalities {
		require.NoError(t, scans.WriteVolume(ctx, filepath.Join(dir, cfg.Input.Modalities[i]), v))
	}
	if s.Label != nil {
		lw := &volumeio.RawWriter{DataType: volumeio.DataType(cfg.Input.LabelDataType)}
		require.NoError(t, lw.WriteVolume(ctx, filepath.Join(dir, cfg.Input.Label), s.Label))
	}
	return Case{Name: name, Dir: dir}
}

func TestProcessShapes(t *testing.T) {
	cfg := createTestConfig(t)
	p, err := NewPreprocessor(cfg)
	require.NoError(t, err)

	s := createTestSample()
	before := s.Modalities[0].Clone()

	res, err := p.Process(s)
	require.NoError(t, err)

	assert.Equal(t, models.IndexRange{Min: [3]int{2, 3, 3}, Max: [3]int{5, 6, 6}}, res.BoundingBox)
	assert.Equal(t, crop.Window{Min: [3]int{1, 1, 1}, Max: [3]int{5, 7, 7}}, res.Window)
	for _, v := range res.Modalities {
		assert.Equal(t, [3]int{4, 6, 6}, v.Shape())
	}
	require.NotNil(t, res.Label)
	assert.Equal(t, [3]int{4, 6, 6}, res.Label.Shape())
	for _, value := range res.Label.Data {
		assert.Contains(t, []float64{0, 1}, value)
	}
	assert.Equal(t, before.Data, s.Modalities[0].Data)
}

// TestProcessNormalizes verifies each modality's foreground is z-scored
func TestProcessNormalizes(t *testing.T) {
	cfg := createTestConfig(t)
	p, err := NewPreprocessor(cfg)
	require.NoError(t, err)

	s := createTestSample()
	res, err := p.Process(s)
	require.NoError(t, err)

	cropped, err := crop.Extract(s.Modalities[0], res.Window)
	require.NoError(t, err)
	want, err := normalize.ZScore(cropped)
	require.NoError(t, err)
	assert.InDeltaSlice(t, want.Data, res.Modalities[0].Data, 1e-12)
}

func TestProcessOrientation(t *testing.T) {
	cfg := createTestConfig(t)
	cfg.Preprocessing.Orientation = "sagittal"
	cfg.Preprocessing.Normalize = false
	p, err := NewPreprocessor(cfg)
	require.NoError(t, err)

	res, err := p.Process(createTestSample())
	require.NoError(t, err)
	assert.Equal(t, [3]int{6, 4, 6}, res.Modalities[0].Shape())
	assert.Equal(t, [3]int{6, 4, 6}, res.Label.Shape())
}

func TestProcessErrors(t *testing.T) {
	cfg := createTestConfig(t)
	p, err := NewPreprocessor(cfg)
	require.NoError(t, err)

	_, err = p.Process(&Sample{Modalities: []*models.Volume{models.NewVolume(8, 10, 10)}})
	assert.ErrorIs(t, err, bbox.ErrEmptyVolume)
	assert.True(t, IsDataQualityError(err))

	small := createTestSample()
	for i := range small.Modalities {
		small.Modalities[i] = models.NewVolume(3, 10, 10)
		small.Modalities[i].Set(1, 1, 1, 1)
	}
	small.Label = nil
	_, err = p.Process(small)
	assert.ErrorIs(t, err, crop.ErrSizeExceedsVolume)
	assert.True(t, IsDataQualityError(err))

	mismatched := createTestSample()
	mismatched.Label = models.NewVolume(2, 2, 2)
	_, err = p.Process(mismatched)
	assert.ErrorIs(t, err, models.ErrInvalidVolume)
	assert.False(t, IsDataQualityError(err))

	_, err = p.Process(&Sample{})
	assert.ErrorIs(t, err, models.ErrInvalidVolume)
}

func TestNewPreprocessorInvalid(t *testing.T) {
	cfg := createTestConfig(t)
	cfg.Preprocessing.Margin = bbox.UniformMargin(-2)
	_, err := NewPreprocessor(cfg)
	assert.ErrorIs(t, err, bbox.ErrInvalidMargin)

	cfg = createTestConfig(t)
	cfg.Preprocessing.LabelMode = "edema"
	_, err = NewPreprocessor(cfg)
	assert.Error(t, err)
}

// TestRunCases runs a good, an empty and a broken case through the worker pool
func TestRunCases(t *testing.T) {
	cfg := createTestConfig(t)
	root := t.TempDir()

	good := writeCase(t, cfg, root, "good", createTestSample())

	emptySample := createTestSample()
	for i := range emptySample.Modalities {
		emptySample.Modalities[i] = models.NewVolume(8, 10, 10)
	}
	empty := writeCase(t, cfg, root, "empty", emptySample)

	broken := writeCase(t, cfg, root, "broken", createTestSample())
	require.NoError(t, os.WriteFile(filepath.Join(broken.Dir, "t2.raw"), []byte{1, 2, 3}, 0644))

	cases, err := DiscoverCases(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, cases, 3)
	assert.Equal(t, "broken", cases[0].Name)

	images := visualization.NewMemoryWriter()
	runner, err := NewRunner(cfg)
	require.NoError(t, err)
	runner.WithImageWriter(images).WithLogger(quietLogger)

	report, err := runner.RunCases(context.Background(), []Case{good, empty, broken})
	require.NoError(t, err)
	require.Len(t, report.Cases, 3)

	assert.Equal(t, StatusProcessed, report.Cases[0].Status)
	assert.Equal(t, StatusSkipped, report.Cases[1].Status)
	assert.Equal(t, StatusFailed, report.Cases[2].Status)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Failed)
	assert.NotEmpty(t, report.Cases[1].Error)
	require.NotNil(t, report.Cases[0].Window)

	// outputs keep the input file names and hold the crop as float32
	for _, name := range append(cfg.Input.Modalities, cfg.Input.Label) {
		info, err := os.Stat(filepath.Join(cfg.Output.Dir, "good", name))
		require.NoError(t, err, name)
		assert.Equal(t, int64(4*6*6*4), info.Size())
	}
	assert.Equal(t, 1, images.Len())
	assert.Contains(t, images.Images, filepath.Join(cfg.Output.Dir, "montage", "good.jpg"))

	r := &volumeio.RawReader{Shape: [3]int{4, 6, 6}, DataType: volumeio.Float32}
	label, err := r.ReadVolume(context.Background(), filepath.Join(cfg.Output.Dir, "good", cfg.Input.Label))
	require.NoError(t, err)
	assert.Greater(t, sum(label.Data), 0.0)
}

func TestRunCasesCancelled(t *testing.T) {
	cfg := createTestConfig(t)
	root := t.TempDir()
	c := writeCase(t, cfg, root, "good", createTestSample())

	runner, err := NewRunner(cfg)
	require.NoError(t, err)
	runner.WithLogger(quietLogger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := runner.RunCases(ctx, []Case{c, c, c, c})
	require.NotNil(t, report)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, report.Processed)

	// a single case is usually dispatched before the feeder sees ctx.Done,
	// so every case is attempted and the run must still report the cancellation
	for i := 0; i < 20; i++ {
		report, err := runner.RunCases(ctx, []Case{c})
		require.NotNil(t, report)
		assert.ErrorIs(t, err, context.Canceled)
		for _, cr := range report.Cases {
			assert.Equal(t, StatusFailed, cr.Status)
		}
	}
}

// TestRunCasesURLRoot verifies cases are discovered, read and written through file:// URLs
func TestRunCasesURLRoot(t *testing.T) {
	cfg := createTestConfig(t)
	outDir := t.TempDir()
	cfg.Output.Dir = "file://" + outDir
	root := t.TempDir()

	writeCase(t, cfg, root, "labelled", createTestSample())
	unlabelled := createTestSample()
	unlabelled.Label = nil
	writeCase(t, cfg, root, "unlabelled", unlabelled)
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("not a case"), 0644))

	ctx := context.Background()
	cases, err := DiscoverCases(ctx, "file://"+root)
	require.NoError(t, err)
	require.Len(t, cases, 2)
	assert.Equal(t, "labelled", cases[0].Name)
	assert.True(t, strings.HasPrefix(cases[0].Dir, "file://"), cases[0].Dir)
	assert.True(t, strings.HasSuffix(cases[0].Dir, "/labelled"), cases[0].Dir)
	assert.Equal(t, "unlabelled", cases[1].Name)

	runner, err := NewRunner(cfg)
	require.NoError(t, err)
	runner.WithImageWriter(visualization.NewMemoryWriter()).WithLogger(quietLogger)

	sample, err := runner.LoadCase(ctx, cases[1])
	require.NoError(t, err)
	assert.Nil(t, sample.Label)
	assert.Len(t, sample.Modalities, 2)

	report, err := runner.RunCases(ctx, cases)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Processed, "%+v", report.Cases)

	for _, name := range cfg.Input.Modalities {
		_, err := os.Stat(filepath.Join(outDir, "unlabelled", name))
		assert.NoError(t, err, name)
	}
	_, err = os.Stat(filepath.Join(outDir, "labelled", cfg.Input.Label))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(outDir, "unlabelled", cfg.Input.Label))
	assert.True(t, os.IsNotExist(err))

	reportURL := cfg.Output.Dir + "/nested/report.json"
	require.NoError(t, report.Save(ctx, reportURL))
	loaded, err := LoadReport(ctx, reportURL)
	require.NoError(t, err)
	assert.Equal(t, report, loaded)
}

func TestDiscoverCasesMissingRoot(t *testing.T) {
	_, err := DiscoverCases(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

// TestReportSaveLoad verifies the JSON report round trips through afs
func TestReportSaveLoad(t *testing.T) {
	box := models.IndexRange{Min: [3]int{1, 2, 3}, Max: [3]int{4, 5, 6}}
	report := &Report{Cases: []CaseReport{
		{Name: "a", Status: StatusProcessed, BoundingBox: &box, Window: &crop.Window{Max: [3]int{1, 1, 1}}},
		{Name: "b", Status: StatusSkipped, Error: "volume has no non-zero voxel"},
	}}
	report.tally()

	path := filepath.Join(t.TempDir(), "run", "report.json")
	ctx := context.Background()
	require.NoError(t, report.Save(ctx, path))

	loaded, err := LoadReport(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, report, loaded)

	data, err := report.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"status": "skipped"`)
}

func sum(data []float64) float64 {
	total := 0.0
	for _, v := range data {
		total += v
	}
	return total
}
