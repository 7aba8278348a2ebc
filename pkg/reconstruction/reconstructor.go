// Package reconstruction runs the complete microstructure reconstruction of
// an EBSD voxel grid: optional low-confidence filling, segmentation into
// grains, grain graph construction, the cleanup merges, renumbering and the
// final per-grain and per-run statistics.
package reconstruction

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"ebsdrecon/pkg/cleanup"
	"ebsdrecon/pkg/grain"
	"ebsdrecon/pkg/segmentation"
	"ebsdrecon/pkg/symmetry"
	"ebsdrecon/pkg/visualization"
	"ebsdrecon/pkg/voxel"
)

// Stage names, in execution order.
const (
	StageValidate        = "validate"
	StageFill            = "fill-low-confidence"
	StageSegment         = "segment"
	StageBuildGraph      = "build-graph"
	StageMergeSmall      = "merge-small"
	StageMergeTwins      = "merge-twins"
	StageMergeColonies   = "merge-colonies"
	StageMergeContained  = "merge-contained"
	StageRenumber        = "renumber"
	StageMisorientations = "misorientations"
	StageNeighborhoods   = "neighborhoods"
	StageStatistics      = "statistics"
	StageSinks           = "sinks"
)

var (
	// ErrCanceled is returned when the context is done between stages.
	ErrCanceled = errors.New("reconstruction: canceled")

	// ErrInvalidParams is returned by Params.Validate.
	ErrInvalidParams = errors.New("reconstruction: invalid parameters")
)

// StageError wraps the failure of one stage.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("reconstruction: stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Params holds the reconstruction parameters.
type Params struct {
	// MisorientationTolerance is the segmentation tolerance in radians.
	MisorientationTolerance float64

	// MinGrainSize is the smallest grain, in voxels, kept by the small grain
	// merge. Values below 2 disable that stage.
	MinGrainSize int

	// MinSeedImageQuality is the lowest image quality allowed for a
	// segmentation seed.
	MinSeedImageQuality float64

	// FillLowConfidence enables the fill stage for voxels whose confidence is
	// below MinConfidence.
	FillLowConfidence bool
	MinConfidence     float64

	MergeTwins     bool
	MergeColonies  bool
	MergeContained bool

	// SaveIntermediaryResults writes z sections of the grain ids after the
	// segmentation and renumber stages below IntermediaryDir.
	SaveIntermediaryResults bool
	IntermediaryDir         string
}

// Validate checks ranges that no stage can recover from.
func (p Params) Validate() error {
	if math.IsNaN(p.MisorientationTolerance) || p.MisorientationTolerance < 0 || p.MisorientationTolerance > math.Pi {
		return fmt.Errorf("%w: misorientation tolerance %g", ErrInvalidParams, p.MisorientationTolerance)
	}
	if p.MinGrainSize < 0 {
		return fmt.Errorf("%w: minimum grain size %d", ErrInvalidParams, p.MinGrainSize)
	}
	if p.FillLowConfidence && (p.MinConfidence < 0 || p.MinConfidence > 1) {
		return fmt.Errorf("%w: minimum confidence %g", ErrInvalidParams, p.MinConfidence)
	}
	if p.SaveIntermediaryResults && p.IntermediaryDir == "" {
		return fmt.Errorf("%w: intermediary directory not set", ErrInvalidParams)
	}
	return nil
}

// ProgressFunc receives the stage that is about to run and the share of
// stages finished so far, in percent.
type ProgressFunc func(stage string, percent int)

// Sink receives the finished result, for example to persist it.
type Sink interface {
	Name() string
	Consume(ctx context.Context, r *Result) error
}

// Result is the output of a successful run.
type Result struct {
	RunID     uuid.UUID
	Params    Params
	Grid      *voxel.Grid
	Graph     *grain.Graph
	Stats     Stats
	Durations map[string]time.Duration
}

// Option configures a Reconstructor.
type Option func(*Reconstructor)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log logrus.FieldLogger) Option {
	return func(r *Reconstructor) {
		if log != nil {
			r.log = log
		}
	}
}

// WithProgress sets the progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(r *Reconstructor) { r.progress = fn }
}

// WithSinks appends result sinks. They run in order after the statistics.
func WithSinks(sinks ...Sink) Option {
	return func(r *Reconstructor) { r.sinks = append(r.sinks, sinks...) }
}

// Reconstructor runs the pipeline once over a grid.
type Reconstructor struct {
	params   Params
	phases   symmetry.PhaseTable
	log      logrus.FieldLogger
	progress ProgressFunc
	sinks    []Sink

	grid   *voxel.Grid
	graph  *grain.Graph
	engine *cleanup.Engine
	result *Result
}

type stage struct {
	name string
	run  func(ctx context.Context) error
}

// NewReconstructor creates a reconstructor for grid. The grid is modified in
// place by Process.
func NewReconstructor(grid *voxel.Grid, phases symmetry.PhaseTable, params Params, opts ...Option) *Reconstructor {
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	r := &Reconstructor{
		params: params,
		phases: phases,
		log:    discard,
		grid:   grid,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Process runs every stage in order. Cancellation is checked between stages
// and reported as ErrCanceled; any other failure is a *StageError. In both
// cases no result is returned.
func (r *Reconstructor) Process(ctx context.Context) (*Result, error) {
	r.result = &Result{
		RunID:     uuid.New(),
		Params:    r.params,
		Grid:      r.grid,
		Durations: make(map[string]time.Duration),
	}
	log := r.log.WithField("run", r.result.RunID.String())

	stages := r.stages()
	for i, st := range stages {
		if err := ctx.Err(); err != nil {
			log.WithField("stage", st.name).Warn("reconstruction canceled")
			r.release()
			return nil, fmt.Errorf("%w before %s: %w", ErrCanceled, st.name, err)
		}
		if r.progress != nil {
			r.progress(st.name, i*100/len(stages))
		}

		start := time.Now()
		log.WithField("stage", st.name).Info("stage started")
		if err := st.run(ctx); err != nil {
			log.WithFields(logrus.Fields{"stage": st.name, "error": err}).Error("stage failed")
			r.release()
			return nil, &StageError{Stage: st.name, Err: err}
		}
		elapsed := time.Since(start)
		r.result.Durations[st.name] = elapsed
		log.WithFields(logrus.Fields{"stage": st.name, "elapsed": elapsed}).Info("stage finished")
	}
	if r.progress != nil {
		r.progress("done", 100)
	}

	res := r.result
	r.result = nil
	return res, nil
}

func (r *Reconstructor) release() {
	r.graph = nil
	r.engine = nil
	r.result = nil
}

func (r *Reconstructor) stages() []stage {
	return []stage{
		{StageValidate, r.validate},
		{StageFill, r.fill},
		{StageSegment, r.segment},
		{StageBuildGraph, r.buildGraph},
		{StageMergeSmall, r.mergeSmall},
		{StageMergeTwins, r.mergeTwins},
		{StageMergeColonies, r.mergeColonies},
		{StageMergeContained, r.mergeContained},
		{StageRenumber, r.renumber},
		{StageMisorientations, r.misorientations},
		{StageNeighborhoods, r.neighborhoods},
		{StageStatistics, r.statistics},
		{StageSinks, r.runSinks},
	}
}

func (r *Reconstructor) validate(context.Context) error {
	if r.grid == nil {
		return errors.New("no grid")
	}
	if err := r.params.Validate(); err != nil {
		return err
	}
	if err := r.grid.Geometry.Validate(); err != nil {
		return err
	}
	if r.grid.Len() != r.grid.Total() {
		return fmt.Errorf("%w: %d voxels for %d points", voxel.ErrDimensionMismatch, r.grid.Len(), r.grid.Total())
	}
	if err := r.phases.Validate(); err != nil {
		return err
	}
	if r.params.SaveIntermediaryResults {
		if err := os.MkdirAll(r.params.IntermediaryDir, 0755); err != nil {
			return fmt.Errorf("failed to create intermediary directory: %w", err)
		}
	}
	return nil
}

func (r *Reconstructor) fill(context.Context) error {
	if !r.params.FillLowConfidence {
		return nil
	}
	n := voxel.FillLowConfidence(r.grid, r.params.MinConfidence)
	r.log.WithField("voxels", n).Info("filled low confidence voxels")
	return nil
}

func (r *Reconstructor) segment(context.Context) error {
	res, err := segmentation.Run(r.grid, r.phases, segmentation.Params{
		Tolerance:      r.params.MisorientationTolerance,
		MinSeedQuality: r.params.MinSeedImageQuality,
		Progress: func(completed, total int, message string) {
			r.log.WithFields(logrus.Fields{"completed": completed, "total": total}).Debug(message)
		},
	})
	if err != nil {
		return err
	}
	r.log.WithField("grains", res.GrainCount).Info("segmentation finished")
	r.saveIntermediaryResult("01_segmented")
	return nil
}

func (r *Reconstructor) buildGraph(context.Context) error {
	g, err := grain.Build(r.grid, r.phases)
	if err != nil {
		return err
	}
	r.graph = g
	r.engine = cleanup.NewEngine(r.grid, g, r.log)
	return grain.CheckInvariants(r.grid, g)
}

func (r *Reconstructor) mergeSmall(context.Context) error {
	if r.params.MinGrainSize < 2 {
		return nil
	}
	return r.merge("small", func() (int, error) { return r.engine.MergeSmallGrains(r.params.MinGrainSize) })
}

func (r *Reconstructor) mergeTwins(context.Context) error {
	if !r.params.MergeTwins {
		return nil
	}
	return r.merge("twin", r.engine.MergeTwins)
}

func (r *Reconstructor) mergeColonies(context.Context) error {
	if !r.params.MergeColonies {
		return nil
	}
	return r.merge("colony", r.engine.MergeColonies)
}

func (r *Reconstructor) mergeContained(context.Context) error {
	if !r.params.MergeContained {
		return nil
	}
	return r.merge("contained", r.engine.MergeContained)
}

func (r *Reconstructor) merge(kind string, fn func() (int, error)) error {
	n, err := fn()
	if err != nil {
		return err
	}
	r.log.WithFields(logrus.Fields{"kind": kind, "merged": n, "active": r.graph.ActiveCount()}).Info("grains merged")
	return grain.CheckInvariants(r.grid, r.graph)
}

func (r *Reconstructor) renumber(context.Context) error {
	m, err := r.engine.Renumber()
	if err != nil {
		return err
	}
	r.log.WithField("grains", m.Count()).Info("grains renumbered")
	if err := grain.CheckInvariants(r.grid, r.graph); err != nil {
		return err
	}
	r.saveIntermediaryResult("02_renumbered")
	return nil
}

func (r *Reconstructor) misorientations(context.Context) error {
	grain.ComputeMisorientations(r.grid, r.graph)
	return nil
}

func (r *Reconstructor) neighborhoods(context.Context) error {
	grain.FindNeighborhoods(r.graph)
	return nil
}

func (r *Reconstructor) statistics(context.Context) error {
	r.result.Graph = r.graph
	r.result.Stats = ComputeStats(r.graph)
	r.log.WithFields(logrus.Fields{
		"grains":   r.result.Stats.GrainCount,
		"unbiased": r.result.Stats.UnbiasedCount,
		"meanESD":  r.result.Stats.MeanESD,
	}).Info("statistics computed")
	return nil
}

func (r *Reconstructor) runSinks(ctx context.Context) error {
	for _, s := range r.sinks {
		if err := s.Consume(ctx, r.result); err != nil {
			return fmt.Errorf("sink %s: %w", s.Name(), err)
		}
		r.log.WithField("sink", s.Name()).Debug("sink done")
	}
	return nil
}

// saveIntermediaryResult writes the z sections of the current grain ids.
// Failures are logged and otherwise ignored.
func (r *Reconstructor) saveIntermediaryResult(stage string) {
	if !r.params.SaveIntermediaryResults {
		return
	}
	dir := filepath.Join(r.params.IntermediaryDir, stage)
	viewer := visualization.NewViewer(r.grid, visualization.ByGrain)
	if err := viewer.SaveSliceSequence("z", dir); err != nil {
		r.log.WithFields(logrus.Fields{"dir": dir, "error": err}).Warn("failed to save intermediary result")
	}
}
