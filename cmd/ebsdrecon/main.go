package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"ebsdrecon/internal/synthetic"
	"ebsdrecon/pkg/config"
	"ebsdrecon/pkg/reconstruction"
	"ebsdrecon/pkg/report"
	"ebsdrecon/pkg/store"
	"ebsdrecon/pkg/visualization"
	"ebsdrecon/pkg/voxel"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "config.yaml", "YAML configuration file")
	initConfig := flag.Bool("init-config", false, "Write a default configuration file and exit")
	input := flag.String("input", "", "Voxel table to reconstruct (empty generates a synthetic microstructure)")
	grains := flag.Int("synthetic-grains", 40, "Number of grains in the synthetic microstructure")
	seed := flag.Int64("seed", 1, "Random seed of the synthetic microstructure")
	tolerance := flag.Float64("tolerance", 0, "Misorientation tolerance in degrees (overrides config)")
	minSize := flag.Int("min-size", 0, "Minimum grain size in voxels (overrides config)")
	dbPath := flag.String("db", "", "SQLite database receiving the grain table (overrides config)")
	histogram := flag.String("histogram", "", "Image file receiving the grain size histogram (overrides config)")
	extractSlices := flag.Bool("extract-slices", false, "Save grain id sections along all axes")
	slicesDir := flag.String("slices-dir", "reconstructed_slices", "Directory to save extracted slices")
	verbose := flag.Bool("verbose", false, "Human readable debug logging (overrides config)")
	flag.Parse()

	if *initConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Flags given on the command line win over the file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "tolerance":
			cfg.Processing.MisorientationTolerance = *tolerance
		case "min-size":
			cfg.Processing.MinGrainSize = *minSize
		case "db":
			cfg.Output.DatabasePath = *dbPath
		case "histogram":
			cfg.Output.HistogramPath = *histogram
		case "verbose":
			cfg.Output.Verbose = *verbose
		}
	})

	logger := initLogger(cfg.Output.Verbose)
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}
	phases, err := cfg.PhaseTable()
	if err != nil {
		logger.WithError(err).Fatal("Invalid phase table")
	}

	grid, err := loadGrid(cfg, *input, *grains, *seed, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load input")
	}

	var sinks []reconstruction.Sink
	if cfg.Output.DatabasePath != "" {
		db, err := store.Open(cfg.Output.DatabasePath)
		if err != nil {
			logger.WithError(err).Fatal("Failed to open database")
		}
		defer db.Close()
		sinks = append(sinks, db)
	}
	if cfg.Output.HistogramPath != "" {
		sinks = append(sinks, report.NewHistogram(cfg.Output.HistogramPath))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := reconstruction.NewReconstructor(grid, phases, cfg.Params(),
		reconstruction.WithLogger(logger),
		reconstruction.WithSinks(sinks...),
		reconstruction.WithProgress(func(stage string, percent int) {
			logger.WithFields(logrus.Fields{"stage": stage, "percent": percent}).Debug("Progress")
		}),
	)

	logger.WithFields(logrus.Fields{
		"voxels":    grid.Len(),
		"tolerance": cfg.Processing.MisorientationTolerance,
		"minSize":   cfg.Processing.MinGrainSize,
	}).Info("Starting reconstruction")
	startTime := time.Now()
	res, err := r.Process(ctx)
	if err != nil {
		if errors.Is(err, reconstruction.ErrCanceled) {
			logger.Warn("Reconstruction canceled")
			os.Exit(130)
		}
		logger.WithError(err).Fatal("Reconstruction failed")
	}

	s := res.Stats
	logger.WithFields(logrus.Fields{
		"run":           res.RunID.String(),
		"elapsed":       time.Since(startTime).String(),
		"grains":        s.GrainCount,
		"unbiased":      s.UnbiasedCount,
		"meanESD":       s.MeanESD,
		"stdESD":        s.StdESD,
		"logMu":         s.LogMu,
		"logSigma":      s.LogSigma,
		"meanNeighbors": s.MeanNeighbors,
		"meanOmega3":    s.MeanOmega3,
	}).Info("Reconstruction completed")
	for phase, f := range s.PhaseFractions {
		logger.WithFields(logrus.Fields{"phase": phase, "fraction": f}).Info("Phase volume fraction")
	}
	if cfg.Output.Verbose {
		for _, gr := range res.Graph.Active() {
			logger.WithFields(logrus.Fields{
				"grain":     gr.ID,
				"size":      gr.Size(),
				"euler":     gr.Euler.Degrees(),
				"twin":      gr.TwinMerged,
				"colony":    gr.ColonyMerged,
				"neighbors": len(gr.Neighbors),
			}).Debug("Grain")
		}
	}

	if *extractSlices {
		viewer := visualization.NewViewer(res.Grid, visualization.ByGrain)
		for _, axis := range []string{"x", "y", "z"} {
			axisDir := filepath.Join(*slicesDir, axis)
			if err := viewer.SaveSliceSequence(axis, axisDir); err != nil {
				logger.WithError(err).WithField("axis", axis).Warn("Failed to save slices")
				continue
			}
			logger.WithFields(logrus.Fields{"axis": axis, "dir": axisDir}).Info("Slices saved")
		}
	}
}

// initLogger configures logrus: coloured text with debug output in verbose
// mode, JSON at info level otherwise.
func initLogger(verbose bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	if verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   true,
		})
		logger.Debug("Debug logging enabled")
	} else {
		logger.SetLevel(logrus.InfoLevel)
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	return logger
}

// loadGrid reads the voxel table at path, or generates a synthetic
// microstructure over the configured geometry when path is empty.
func loadGrid(cfg *config.Config, path string, grains int, seed int64, logger *logrus.Logger) (*voxel.Grid, error) {
	if path == "" {
		logger.WithFields(logrus.Fields{"grains": grains, "seed": seed}).Info("Generating synthetic microstructure")
		grid, _, err := synthetic.Generate(synthetic.Params{
			Geometry:    cfg.Geometry,
			Grains:      grains,
			Phase:       cfg.Phases[0].ID,
			Scatter:     0.2 * cfg.Processing.MisorientationTolerance * math.Pi / 180,
			BadFraction: 0.01,
			Seed:        seed,
		})
		return grid, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	logger.WithField("file", path).Info("Reading voxel table")
	return voxel.ReadTable(f, cfg.Geometry)
}
