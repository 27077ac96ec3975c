package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	jsoniter "github.com/json-iterator/go"
	"github.com/phuslu/log"
	"github.com/urfave/cli/v2"
	"github.com/viant/afs/url"

	"brainprep/internal/models"
	"brainprep/pkg/bbox"
	"brainprep/pkg/config"
	"brainprep/pkg/crop"
	"brainprep/pkg/labels"
	"brainprep/pkg/metrics"
	"brainprep/pkg/pipeline"
	"brainprep/pkg/volumeio"
)

var configPath string
var verbose bool
var inputPath string
var outputPath string
var marginFlag string
var sizeFlag string
var centerFit bool
var reportPath string
var predictPath string
var targetPath string
var labelMode string

var bboxCommand = &cli.Command{
	Name:      "bbox",
	Usage:     "Print the bounding box of the non-zero voxels of a raw volume",
	ArgsUsage: "--input <volume.raw> [--margin 2 | --margin 0,4,4]",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:        "input",
			Usage:       "Path or URL of the raw volume",
			Aliases:     []string{"i"},
			Destination: &inputPath,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "margin",
			Usage:       "Margin added around the box, one value or one per axis. Falls back to the config margin",
			Aliases:     []string{"m"},
			Destination: &marginFlag,
		},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := overrideMargin(cfg); err != nil {
			return err
		}

		reader := scanReader(cfg)
		v, err := reader.ReadVolume(c.Context, inputPath)
		if err != nil {
			return err
		}
		box, err := bbox.FindBoundingBox(v, cfg.Preprocessing.Margin)
		if err != nil {
			return err
		}
		return printJSON(c, box)
	},
}

var cropCommand = &cli.Command{
	Name:  "crop",
	Usage: "Crop a raw volume to a fixed size around its non-zero voxels",
	Description: `Crop reads one raw volume with the input shape and data type from the config,
				finds the bounding box of its non-zero voxels and cuts a window of the target size
				centered on it. With --center-fit the volume is instead cropped or zero padded
				around its geometric center.`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:        "input",
			Usage:       "Path or URL of the raw volume",
			Aliases:     []string{"i"},
			Destination: &inputPath,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "output",
			Usage:       "Path or URL of the cropped volume",
			Aliases:     []string{"o"},
			Destination: &outputPath,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "size",
			Usage:       "Target size as depth,height,width. Falls back to the config target size",
			Aliases:     []string{"s"},
			Destination: &sizeFlag,
		},
		&cli.StringFlag{
			Name:        "margin",
			Usage:       "Margin added around the box before cropping",
			Aliases:     []string{"m"},
			Destination: &marginFlag,
		},
		&cli.BoolFlag{
			Name:        "center-fit",
			Usage:       "Crop or pad around the volume center instead of the bounding box",
			Destination: &centerFit,
		},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := overrideMargin(cfg); err != nil {
			return err
		}
		size := models.TargetSize(cfg.Preprocessing.TargetSize)
		if sizeFlag != "" {
			s, err := parseTriple(sizeFlag)
			if err != nil {
				return fmt.Errorf("invalid --size: %w", err)
			}
			size = models.TargetSize(s)
		}

		v, err := scanReader(cfg).ReadVolume(c.Context, inputPath)
		if err != nil {
			return err
		}

		var out *models.Volume
		if centerFit {
			out, err = crop.CenterFit(v, size)
		} else {
			var box models.IndexRange
			if box, err = bbox.FindBoundingBox(v, cfg.Preprocessing.Margin); err != nil {
				return err
			}
			log.Debug().Ints("min", box.Min[:]).Ints("max", box.Max[:]).Msg("bounding box")
			out, err = crop.ToSize(v, box, size, cfg.Preprocessing.Slack)
		}
		if err != nil {
			return err
		}

		writer := &volumeio.RawWriter{DataType: volumeio.DataType(cfg.Output.DataType), ByteOrder: cfg.ByteOrder()}
		if err := writer.WriteVolume(c.Context, outputPath, out); err != nil {
			return err
		}
		log.Info().Str("output", outputPath).Ints("shape", []int{out.Depth, out.Height, out.Width}).Msg("volume cropped")
		return nil
	},
}

var preprocessCommand = &cli.Command{
	Name:  "preprocess",
	Usage: "Preprocess every case directory under an input folder",
	Description: `Preprocess treats each subdirectory of --input as one case holding the modality
				and label files named in the config. Every case is cropped, normalized, relabeled
				and oriented, then written under --output with the same file names. A JSON report
				with the outcome of each case is written to --report.`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:        "input",
			Usage:       "Folder of case directories",
			Aliases:     []string{"i"},
			Destination: &inputPath,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "output",
			Usage:       "Output folder. Falls back to the config output dir",
			Aliases:     []string{"o"},
			Destination: &outputPath,
		},
		&cli.StringFlag{
			Name:        "report",
			Usage:       "Report path. Defaults to <output>/report.json",
			Aliases:     []string{"r"},
			Destination: &reportPath,
		},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if outputPath != "" {
			cfg.Output.Dir = outputPath
		}
		if reportPath == "" {
			reportPath = url.Join(cfg.Output.Dir, "report.json")
		}

		ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()

		cases, err := pipeline.DiscoverCases(ctx, inputPath)
		if err != nil {
			return err
		}
		if len(cases) == 0 {
			return fmt.Errorf("no case directories found in %s", inputPath)
		}

		runner, err := pipeline.NewRunner(cfg)
		if err != nil {
			return err
		}

		log.Info().Int("cases", len(cases)).Int("workers", cfg.Processing.NumCores).Str("output", cfg.Output.Dir).Msg("starting preprocessing")
		report, runErr := runner.RunCases(ctx, cases)
		if err := report.Save(c.Context, reportPath); err != nil {
			return err
		}
		log.Info().Str("report", reportPath).Msg("report written")
		return runErr
	},
}

var diceCommand = &cli.Command{
	Name:      "dice",
	Usage:     "Print the Dice coefficient between a predicted and a target label map",
	ArgsUsage: "--predict <labels.raw> --target <labels.raw> [--mode whole|core|enhancing]",
	Description: `Dice reads both files with the input shape and label data type from the config.
				Each label map is reduced to a binary mask with the label mode (--mode, else the
				config labelMode) before scoring, so BraTS label values 0..4 and 0/1 masks both work.`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:        "predict",
			Usage:       "Path or URL of the predicted mask",
			Aliases:     []string{"p"},
			Destination: &predictPath,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "target",
			Usage:       "Path or URL of the ground truth mask",
			Aliases:     []string{"t"},
			Destination: &targetPath,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "mode",
			Usage:       "Tumor region scored: whole, core or enhancing. Falls back to the config labelMode",
			Aliases:     []string{"m"},
			Destination: &labelMode,
		},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		reader := &volumeio.RawReader{
			Shape:     cfg.Input.Shape,
			DataType:  volumeio.DataType(cfg.Input.LabelDataType),
			ByteOrder: cfg.ByteOrder(),
		}
		predict, err := reader.ReadVolume(c.Context, predictPath)
		if err != nil {
			return err
		}
		target, err := reader.ReadVolume(c.Context, targetPath)
		if err != nil {
			return err
		}
		if labelMode == "" {
			labelMode = cfg.Preprocessing.LabelMode
		}
		mode, err := labels.ParseMode(labelMode)
		if err != nil {
			return err
		}
		if predict, err = mode.Apply(predict); err != nil {
			return err
		}
		if target, err = mode.Apply(target); err != nil {
			return err
		}
		log.Debug().Str("mode", mode.String()).Msg("label maps binarized")

		score, err := metrics.Dice(predict, target)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(c.App.Writer, "%.6f\n", score)
		return err
	},
}

var configCommand = &cli.Command{
	Name:  "config",
	Usage: "Manage the configuration file",
	Subcommands: []*cli.Command{
		{
			Name:  "init",
			Usage: "Write the default configuration",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:        "output",
					Usage:       "Where to write the file. Defaults to --config",
					Aliases:     []string{"o"},
					Destination: &outputPath,
				},
			},
			Action: func(c *cli.Context) error {
				path := outputPath
				if path == "" {
					path = configPath
				}
				if err := config.CreateDefaultConfigFile(path); err != nil {
					return err
				}
				log.Info().Str("path", path).Msg("default config written")
				return nil
			},
		},
	},
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "brainprep",
		Usage: "Preprocessing for volumetric brain MRI segmentation datasets",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Usage:       "Path to the YAML config. A missing file means defaults",
				Aliases:     []string{"c"},
				Destination: &configPath,
				Value:       "brainprep.yaml",
			},
			&cli.BoolFlag{
				Name:        "verbose",
				Usage:       "Enable debug logging",
				Aliases:     []string{"v"},
				Destination: &verbose,
			},
		},
		Before: func(c *cli.Context) error {
			log.DefaultLogger.Level = log.InfoLevel
			if verbose {
				log.DefaultLogger.Level = log.DebugLevel
			}
			return nil
		},
		Commands: []*cli.Command{bboxCommand, cropCommand, preprocessCommand, diceCommand, configCommand},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("brainprep failed")
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if verbose || cfg.Processing.Verbose {
		log.DefaultLogger.Level = log.DebugLevel
	}
	return cfg, nil
}

func overrideMargin(cfg *config.Config) error {
	if marginFlag == "" {
		return nil
	}
	m, err := bbox.ParseMargin(marginFlag)
	if err != nil {
		return err
	}
	cfg.Preprocessing.Margin = m
	return nil
}

func scanReader(cfg *config.Config) *volumeio.RawReader {
	return &volumeio.RawReader{
		Shape:     cfg.Input.Shape,
		DataType:  volumeio.DataType(cfg.Input.DataType),
		ByteOrder: cfg.ByteOrder(),
	}
}

func parseTriple(s string) ([3]int, error) {
	var out [3]int
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return out, fmt.Errorf("expected three comma separated values, got %q", s)
	}
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return out, err
		}
		out[i] = n
	}
	return out, nil
}

func printJSON(c *cli.Context, v interface{}) error {
	data, err := jsoniter.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.App.Writer, string(data))
	return err
}
