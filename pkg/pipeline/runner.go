package pipeline

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/phuslu/log"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"

	"brainprep/internal/models"
	"brainprep/pkg/config"
	"brainprep/pkg/visualization"
	"brainprep/pkg/volumeio"
)

// Case locates one case directory holding the configured modality and label files
type Case struct {
	Name string
	Dir  string
}

// DiscoverCases lists every folder directly under root as a case, sorted by
// name. root may be a local path or any URL the storage layer resolves.
func DiscoverCases(ctx context.Context, root string) ([]Case, error) {
	objects, err := volumeio.FileSystem.List(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("failed to list cases in %s: %w", root, err)
	}
	self := strings.TrimSuffix(url.Normalize(root, file.Scheme), "/")
	base := path.Base(strings.TrimSuffix(root, "/"))

	var cases []Case
	for i, o := range objects {
		if !o.IsDir() || strings.HasPrefix(o.Name(), ".") {
			continue
		}
		// the listing starts with root itself
		if strings.TrimSuffix(o.URL(), "/") == self || (i == 0 && o.Name() == base) {
			continue
		}
		cases = append(cases, Case{Name: o.Name(), Dir: url.Join(root, o.Name())})
	}
	sort.Slice(cases, func(i, j int) bool { return cases[i].Name < cases[j].Name })
	return cases, nil
}

// Runner loads, preprocesses and stores cases as configured
type Runner struct {
	cfg          *config.Config
	preprocessor *Preprocessor
	scans        volumeio.Reader
	labels       volumeio.Reader
	writer       volumeio.Writer
	images       visualization.ImageWriter
	logger       *log.Logger
}

// NewRunner wires raw readers and writers from cfg
func NewRunner(cfg *config.Config) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p, err := NewPreprocessor(cfg)
	if err != nil {
		return nil, err
	}

	order := cfg.ByteOrder()
	return &Runner{
		cfg:          cfg,
		preprocessor: p,
		scans: &volumeio.RawReader{
			Shape:     cfg.Input.Shape,
			DataType:  volumeio.DataType(cfg.Input.DataType),
			ByteOrder: order,
		},
		labels: &volumeio.RawReader{
			Shape:     cfg.Input.Shape,
			DataType:  volumeio.DataType(cfg.Input.LabelDataType),
			ByteOrder: order,
		},
		writer: &volumeio.RawWriter{
			DataType:  volumeio.DataType(cfg.Output.DataType),
			ByteOrder: order,
		},
		images: visualization.NewJPEGWriter(cfg.Output.JPEGQuality),
		logger: &log.DefaultLogger,
	}, nil
}

// WithImageWriter replaces the montage sink
func (r *Runner) WithImageWriter(w visualization.ImageWriter) *Runner {
	r.images = w
	return r
}

// WithLogger replaces the logger
func (r *Runner) WithLogger(l *log.Logger) *Runner {
	r.logger = l
	return r
}

// LoadCase reads every modality and, when present, the label map
func (r *Runner) LoadCase(ctx context.Context, c Case) (*Sample, error) {
	s := &Sample{Name: c.Name}
	for _, name := range r.cfg.Input.Modalities {
		v, err := r.scans.ReadVolume(ctx, url.Join(c.Dir, name))
		if err != nil {
			return nil, err
		}
		s.Modalities = append(s.Modalities, v)
	}

	if r.cfg.Input.Label == "" {
		return s, nil
	}
	labelPath := url.Join(c.Dir, r.cfg.Input.Label)
	exists, err := volumeio.FileSystem.Exists(ctx, labelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to check %s: %w", labelPath, err)
	}
	if !exists {
		r.logger.Debug().Str("case", c.Name).Msg("no label map")
		return s, nil
	}
	label, err := r.labels.ReadVolume(ctx, labelPath)
	if err != nil {
		return nil, err
	}
	s.Label = label
	return s, nil
}

// store writes a result under <output dir>/<case>/, keeping input file names
func (r *Runner) store(ctx context.Context, res *Result) error {
	dir := url.Join(r.cfg.Output.Dir, res.Name)
	for i, v := range res.Modalities {
		if err := r.writer.WriteVolume(ctx, url.Join(dir, r.cfg.Input.Modalities[i]), v); err != nil {
			return err
		}
	}
	if res.Label != nil {
		if err := r.writer.WriteVolume(ctx, url.Join(dir, r.cfg.Input.Label), res.Label); err != nil {
			return err
		}
	}

	if !r.cfg.Output.SaveMontage {
		return nil
	}
	panels := append([]*models.Volume{}, res.Modalities...)
	if res.Label != nil {
		panels = append(panels, res.Label)
	}
	img, err := visualization.Montage{Gap: r.cfg.Output.TileGap}.Compose(panels, panels[0].Depth/2)
	if err != nil {
		return err
	}
	return r.images.WriteImage(url.Join(r.cfg.Output.Dir, "montage", res.Name+".jpg"), img)
}

// RunCase loads, processes and stores one case
func (r *Runner) RunCase(ctx context.Context, c Case) CaseReport {
	start := time.Now()
	report := CaseReport{Name: c.Name}

	finish := func(status Status, err error) CaseReport {
		report.Status = status
		report.Elapsed = time.Since(start).Seconds()
		if err != nil {
			report.Error = err.Error()
		}
		return report
	}

	if err := ctx.Err(); err != nil {
		return finish(StatusFailed, err)
	}

	sample, err := r.LoadCase(ctx, c)
	if err != nil {
		return finish(StatusFailed, err)
	}

	res, err := r.preprocessor.Process(sample)
	if err != nil {
		if IsDataQualityError(err) {
			return finish(StatusSkipped, err)
		}
		return finish(StatusFailed, err)
	}
	report.BoundingBox = &res.BoundingBox
	report.Window = &res.Window

	if err := r.store(ctx, res); err != nil {
		return finish(StatusFailed, err)
	}
	return finish(StatusProcessed, nil)
}

// RunCases processes cases on NumCores workers. Individual case failures
// are recorded in the report. When ctx ends during the run the report
// holds the cases that were attempted and ctx.Err() is returned.
func (r *Runner) RunCases(ctx context.Context, cases []Case) (*Report, error) {
	workers := min(r.cfg.Processing.NumCores, len(cases))

	type caseResult struct {
		index  int
		report CaseReport
	}
	jobs := make(chan int)
	resultChan := make(chan caseResult)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				resultChan <- caseResult{index: i, report: r.RunCase(ctx, cases[i])}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := range cases {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	results := make([]*CaseReport, len(cases))
	completed := 0
	for res := range resultChan {
		completed++
		report := res.report
		results[res.index] = &report
		r.logCase(report, completed, len(cases))
	}

	report := &Report{Cases: []CaseReport{}}
	for _, c := range results {
		if c != nil {
			report.Cases = append(report.Cases, *c)
		}
	}
	report.tally()

	if err := ctx.Err(); err != nil {
		r.logger.Warn().Int("completed", completed).Int("total", len(cases)).Err(err).Msg("preprocessing interrupted")
		return report, err
	}

	r.logger.Info().
		Int("processed", report.Processed).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Msg("preprocessing finished")
	return report, nil
}

func (r *Runner) logCase(c CaseReport, completed, total int) {
	progress := float64(completed) / float64(total) * 100
	switch c.Status {
	case StatusProcessed:
		r.logger.Info().Str("case", c.Name).Float64("seconds", c.Elapsed).Float64("progress", progress).Msg("case processed")
	case StatusSkipped:
		r.logger.Warn().Str("case", c.Name).Str("reason", c.Error).Float64("progress", progress).Msg("case skipped")
	default:
		r.logger.Error().Str("case", c.Name).Str("error", c.Error).Float64("progress", progress).Msg("case failed")
	}
}
