package reconstruction

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"ebsdrecon/internal/synthetic"
	"ebsdrecon/pkg/grain"
	"ebsdrecon/pkg/orientation"
	"ebsdrecon/pkg/symmetry"
	"ebsdrecon/pkg/voxel"
)

var cubic = symmetry.PhaseTable{1: symmetry.Cubic}

func deg(d float64) float64 { return d * math.Pi / 180 }

func defaultParams() Params {
	return Params{
		MisorientationTolerance: deg(5),
		MinGrainSize:            2,
		FillLowConfidence:       true,
		MinConfidence:           0.1,
		MergeTwins:              true,
		MergeContained:          true,
	}
}

// twoHalves is a 10x10x10 cubic grid split at z=5 into two orientations 30°
// apart about z. One voxel of the upper half is unindexed.
func twoHalves(t *testing.T) *voxel.Grid {
	t.Helper()
	g, err := voxel.New(voxel.Geometry{XPoints: 10, YPoints: 10, ZPoints: 10, XRes: 1, YRes: 1, ZRes: 1})
	require.NoError(t, err)
	other := orientation.AxisAngleToQuaternion(orientation.AxisAngle{Axis: r3.Vec{Z: 1}, Angle: deg(30)})
	for i := range g.Voxels {
		v := &g.Voxels[i]
		v.Phase = 1
		v.ImageQuality = 1
		v.Confidence = 1
		if _, _, z := g.Coord(i); z >= 5 {
			v.SetOrientation(other)
		}
	}
	bad := &g.Voxels[g.Index(4, 4, 7)]
	bad.SetOrientation(orientation.AxisAngleToQuaternion(orientation.AxisAngle{Axis: r3.Vec{X: 1}, Angle: deg(20)}))
	bad.Confidence = 0.01
	return g
}

type recordingSink struct {
	name   string
	err    error
	result *Result
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Consume(_ context.Context, r *Result) error {
	s.result = r
	return s.err
}

func TestProcessTwoHalves(t *testing.T) {
	grid := twoHalves(t)
	sink := &recordingSink{name: "memory"}
	r := NewReconstructor(grid, cubic, defaultParams(), WithSinks(sink))

	res, err := r.Process(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Same(t, res, sink.result)
	assert.NotEqual(t, uuid.Nil, res.RunID)

	require.NoError(t, grain.CheckInvariants(res.Grid, res.Graph))
	assert.Equal(t, 2, res.Graph.ActiveCount())
	assert.Equal(t, 500, res.Graph.Grain(1).Size())
	assert.Equal(t, 500, res.Graph.Grain(2).Size())
	// The unindexed voxel was filled from its neighbours.
	assert.Equal(t, 2, grid.Voxels[grid.Index(4, 4, 7)].GrainID)

	n, ok := res.Graph.Grain(1).Neighbor(2)
	require.True(t, ok)
	assert.Equal(t, 100, n.Faces)

	assert.Equal(t, 2, res.Stats.GrainCount)
	assert.Equal(t, 0, res.Stats.UnbiasedCount)
	assert.InDelta(t, 1, res.Stats.PhaseFractions[1], 1e-12)
	assert.InDelta(t, 1, res.Stats.MeanNeighbors, 1e-12)
	assert.InDelta(t, 2*math.Cbrt(3*500/(4*math.Pi)), res.Stats.MeanESD, 1e-9)

	for _, st := range []string{StageValidate, StageSegment, StageRenumber, StageSinks} {
		assert.Contains(t, res.Durations, st)
	}
}

func TestProcessCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	grid := twoHalves(t)
	before := grid.GrainIDs()

	res, err := NewReconstructor(grid, cubic, defaultParams()).Process(ctx)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrCanceled)
	assert.ErrorIs(t, err, context.Canceled)
	var se *StageError
	assert.False(t, errors.As(err, &se))
	assert.Equal(t, before, grid.GrainIDs())
}

func TestProcessCanceledBetweenStages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var seen []string
	progress := func(stage string, percent int) {
		seen = append(seen, stage)
		if stage == StageBuildGraph {
			cancel()
		}
	}
	sink := &recordingSink{name: "memory"}
	r := NewReconstructor(twoHalves(t), cubic, defaultParams(), WithProgress(progress), WithSinks(sink))

	res, err := r.Process(ctx)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrCanceled)
	assert.Equal(t, StageBuildGraph, seen[len(seen)-1])
	assert.Nil(t, sink.result)
}

func TestProcessStageErrors(t *testing.T) {
	tests := []struct {
		name   string
		phases symmetry.PhaseTable
		params func(*Params)
		stage  string
		target error
	}{
		{
			name:   "negative tolerance",
			phases: cubic,
			params: func(p *Params) { p.MisorientationTolerance = -1 },
			stage:  StageValidate,
			target: ErrInvalidParams,
		},
		{
			name:   "unknown structure in table",
			phases: symmetry.PhaseTable{1: symmetry.Unknown},
			params: func(*Params) {},
			stage:  StageValidate,
			target: symmetry.ErrUnknownCrystalStructure,
		},
		{
			name:   "phase missing from table",
			phases: symmetry.PhaseTable{2: symmetry.Cubic},
			params: func(*Params) {},
			stage:  StageSegment,
			target: symmetry.ErrUnknownPhase,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := defaultParams()
			tt.params(&p)
			res, err := NewReconstructor(twoHalves(t), tt.phases, p).Process(context.Background())
			assert.Nil(t, res)
			var se *StageError
			require.True(t, errors.As(err, &se), "got %v", err)
			assert.Equal(t, tt.stage, se.Stage)
			assert.ErrorIs(t, err, tt.target)
			assert.False(t, errors.Is(err, ErrCanceled))
		})
	}
}

func TestProcessSinkError(t *testing.T) {
	boom := errors.New("disk full")
	first := &recordingSink{name: "first", err: boom}
	second := &recordingSink{name: "second"}
	r := NewReconstructor(twoHalves(t), cubic, defaultParams(), WithSinks(first, second))

	res, err := r.Process(context.Background())
	assert.Nil(t, res)
	assert.ErrorIs(t, err, boom)
	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, StageSinks, se.Stage)
	assert.Nil(t, second.result)
}

func TestProcessProgress(t *testing.T) {
	var stages []string
	var percents []int
	progress := func(stage string, percent int) {
		stages = append(stages, stage)
		percents = append(percents, percent)
	}
	_, err := NewReconstructor(twoHalves(t), cubic, defaultParams(), WithProgress(progress)).Process(context.Background())
	require.NoError(t, err)

	require.Len(t, stages, 14)
	assert.Equal(t, StageValidate, stages[0])
	assert.Equal(t, 0, percents[0])
	assert.Equal(t, "done", stages[13])
	assert.Equal(t, 100, percents[13])
	for i := 1; i < len(percents); i++ {
		assert.GreaterOrEqual(t, percents[i], percents[i-1])
	}
}

func TestProcessIntermediaryResults(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}
	dir := t.TempDir()
	p := defaultParams()
	p.SaveIntermediaryResults = true
	p.IntermediaryDir = dir

	_, err := NewReconstructor(twoHalves(t), cubic, p).Process(context.Background())
	require.NoError(t, err)
	for _, stage := range []string{"01_segmented", "02_renumbered"} {
		entries, err := os.ReadDir(filepath.Join(dir, stage))
		require.NoError(t, err)
		assert.Len(t, entries, 10, stage)
	}
}

func TestParamsValidate(t *testing.T) {
	assert.NoError(t, defaultParams().Validate())

	bad := []func(*Params){
		func(p *Params) { p.MisorientationTolerance = math.NaN() },
		func(p *Params) { p.MisorientationTolerance = 4 },
		func(p *Params) { p.MinGrainSize = -1 },
		func(p *Params) { p.MinConfidence = 2 },
		func(p *Params) { p.SaveIntermediaryResults = true },
	}
	for i, mutate := range bad {
		p := defaultParams()
		mutate(&p)
		assert.ErrorIs(t, p.Validate(), ErrInvalidParams, "case %d", i)
	}
}

// TestProcessSynthetic reconstructs a generated Voronoi microstructure and
// checks that every sizeable generating grain comes back as one grain.
func TestProcessSynthetic(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping end-to-end reconstruction in short mode")
	}
	grid, truth, err := synthetic.Generate(synthetic.Params{
		Geometry:    voxel.Geometry{XPoints: 24, YPoints: 24, ZPoints: 24, XRes: 0.5, YRes: 0.5, ZRes: 0.5},
		Grains:      12,
		Phase:       1,
		Scatter:     deg(0.3),
		BadFraction: 0.01,
		Seed:        42,
	})
	require.NoError(t, err)

	p := defaultParams()
	p.MinGrainSize = 8
	res, err := NewReconstructor(grid, cubic, p).Process(context.Background())
	require.NoError(t, err)
	require.NoError(t, grain.CheckInvariants(res.Grid, res.Graph))

	members := make(map[int]map[int]int)
	for i, label := range truth.Labels {
		if members[label] == nil {
			members[label] = make(map[int]int)
		}
		members[label][grid.Voxels[i].GrainID]++
	}
	for label, ids := range members {
		total, best := 0, 0
		for _, n := range ids {
			total += n
			best = max(best, n)
		}
		if total < 200 {
			continue
		}
		assert.GreaterOrEqual(t, float64(best)/float64(total), 0.95, "generating grain %d", label)
	}
	assert.LessOrEqual(t, res.Stats.GrainCount, 12)
	assert.Greater(t, res.Stats.MeanESD, 0.0)
	assert.InDelta(t, 1, res.Stats.PhaseFractions[1], 1e-9)
}
