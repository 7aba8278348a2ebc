package voxel

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ebsdrecon/internal/models"
)

func cube(n int) Geometry {
	return Geometry{XPoints: n, YPoints: n, ZPoints: n, XRes: 1, YRes: 1, ZRes: 1}
}

func TestGeometryValidate(t *testing.T) {
	tests := []struct {
		name    string
		g       Geometry
		wantErr bool
	}{
		{"ok", cube(3), false},
		{"zero points", Geometry{XPoints: 0, YPoints: 1, ZPoints: 1, XRes: 1, YRes: 1, ZRes: 1}, true},
		{"negative res", Geometry{XPoints: 1, YPoints: 1, ZPoints: 1, XRes: -1, YRes: 1, ZRes: 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.g.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidGeometry)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIndexLayout(t *testing.T) {
	g, err := New(Geometry{XPoints: 4, YPoints: 3, ZPoints: 2, XRes: 1, YRes: 1, ZRes: 1})
	require.NoError(t, err)
	assert.Equal(t, 24, g.Len())
	assert.Equal(t, 0, g.Index(0, 0, 0))
	assert.Equal(t, 1, g.Index(1, 0, 0))
	assert.Equal(t, 4, g.Index(0, 1, 0))
	assert.Equal(t, 12, g.Index(0, 0, 1))
	assert.Equal(t, 23, g.Index(3, 2, 1))

	for i := 0; i < g.Len(); i++ {
		x, y, z := g.Coord(i)
		assert.Equal(t, i, g.Index(x, y, z))
	}

	assert.Panics(t, func() { g.Index(4, 0, 0) })
	assert.Panics(t, func() { g.Index(0, -1, 0) })
}

func TestNeighbors6(t *testing.T) {
	g, err := New(cube(3))
	require.NoError(t, err)

	corner := g.Neighbors6(g.Index(0, 0, 0), nil)
	sort.Ints(corner)
	assert.Equal(t, []int{g.Index(1, 0, 0), g.Index(0, 1, 0), g.Index(0, 0, 1)}, corner)

	centre := g.Neighbors6(g.Index(1, 1, 1), nil)
	assert.Len(t, centre, 6)

	// Neighbours never wrap across a row.
	edge := g.Neighbors6(g.Index(2, 0, 0), nil)
	assert.NotContains(t, edge, g.Index(0, 1, 0))

	assert.Len(t, g.Neighbors26(g.Index(1, 1, 1), nil), 26)
	assert.Len(t, g.Neighbors26(g.Index(0, 0, 0), nil), 7)
}

func TestBoundary(t *testing.T) {
	g, err := New(cube(3))
	require.NoError(t, err)
	assert.True(t, g.OnBoundary(g.Index(0, 1, 1)))
	assert.False(t, g.OnBoundary(g.Index(1, 1, 1)))
	assert.Equal(t, 3, g.Voxels[g.Index(2, 2, 2)].SurfaceFaces)
	assert.Equal(t, 0, g.Voxels[g.Index(1, 1, 1)].SurfaceFaces)
}

func TestGrainIDs(t *testing.T) {
	g, err := New(cube(2))
	require.NoError(t, err)
	ids := []int{1, 1, 2, 2, 3, 3, 4, 4}
	g.SetGrainIDs(ids)
	got := g.GrainIDs()
	if diff := cmp.Diff(ids, got); diff != "" {
		t.Errorf("GrainIDs mismatch (-want +got):\n%s", diff)
	}
	got[0] = 99
	assert.Equal(t, 1, g.Voxels[0].GrainID, "GrainIDs must return a copy")

	g.ResetGrainIDs()
	assert.Equal(t, make([]int, 8), g.GrainIDs())
	assert.Panics(t, func() { g.SetGrainIDs([]int{1}) })
}

func TestFromSections(t *testing.T) {
	geom := Geometry{XPoints: 2, YPoints: 2, ZPoints: 2, XRes: 0.5, YRes: 0.5, ZRes: 1}
	var sections []models.Section
	for z := 0; z < 2; z++ {
		s := models.Section{Index: z, Width: 2, Height: 2}
		for j := 0; j < 4; j++ {
			s.Points = append(s.Points, models.Point{Phi1: 0.1 * float64(z*4+j), Phi: 0.5, Phase: 1, Confidence: 0.9})
		}
		sections = append(sections, s)
	}
	g, err := FromSections(sections, geom)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, g.Voxels[5].Euler.Phi1, 1e-9)
	assert.Equal(t, 1, g.Voxels[7].Phase)
	assert.InDelta(t, 0.25, g.VoxelVolume(), 1e-12)
	assert.Equal(t, 0, g.Voxels[3].GrainID)

	_, err = FromSections(sections[:1], geom)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	sections[1].Points = sections[1].Points[:3]
	sections[1].Filename = "slice_001.txt"
	_, err = FromSections(sections, geom)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.ErrorContains(t, err, "section 1 (slice_001.txt)")
}

func TestReadTable(t *testing.T) {
	geom := Geometry{XPoints: 2, YPoints: 1, ZPoints: 1, XRes: 1, YRes: 1, ZRes: 1}
	in := "# phi1 Phi phi2 phase iq ci\n0.1 0.2 0.3 1 50 0.8\n\n1.0 0.5 2.0 2 60 0.1\n"
	g, err := ReadTable(strings.NewReader(in), geom)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, g.Voxels[0].Euler.Phi, 1e-12)
	assert.Equal(t, 2, g.Voxels[1].Phase)
	assert.InDelta(t, 60, g.Voxels[1].ImageQuality, 1e-12)

	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, g))
	back, err := ReadTable(&buf, geom)
	require.NoError(t, err)
	assert.InDelta(t, g.Voxels[1].Euler.Phi2, back.Voxels[1].Euler.Phi2, 1e-6)

	_, err = ReadTable(strings.NewReader("0 0 0 1 1 1\n"), geom)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = ReadTable(strings.NewReader("0 0 0 1 1 1\n0 0 0 1 1 1\n0 0 0 1 1 1\n"), geom)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = ReadTable(strings.NewReader("0 0 0 1.5 1 1\n0 0 0 1 1 1\n"), geom)
	assert.Error(t, err)

	_, err = ReadTable(strings.NewReader("0 0 x 1 1 1\n0 0 0 1 1 1\n"), geom)
	assert.ErrorContains(t, err, "line 1")
}

func TestFillLowConfidence(t *testing.T) {
	g, err := New(Geometry{XPoints: 5, YPoints: 1, ZPoints: 1, XRes: 1, YRes: 1, ZRes: 1})
	require.NoError(t, err)
	for i := range g.Voxels {
		g.Voxels[i].Confidence = 0.01
		g.Voxels[i].ImageQuality = float64(i)
	}
	g.Voxels[0].Confidence = 0.9
	g.Voxels[0].Phase = 3

	filled := FillLowConfidence(g, 0.1)
	assert.Equal(t, 4, filled)
	for i := range g.Voxels {
		assert.Equal(t, 3, g.Voxels[i].Phase, fmt.Sprintf("voxel %d", i))
		assert.InDelta(t, 0, g.Voxels[i].ImageQuality, 1e-12)
	}
	assert.Equal(t, 3, g.Voxels[4].FillSource)
	assert.Equal(t, -1, g.Voxels[0].FillSource)
}

func TestFillLowConfidenceAtThreshold(t *testing.T) {
	g, err := New(Geometry{XPoints: 2, YPoints: 1, ZPoints: 1, XRes: 1, YRes: 1, ZRes: 1})
	require.NoError(t, err)
	g.Voxels[0].Confidence = 0.1
	g.Voxels[0].Phase = 2
	g.Voxels[1].Confidence = 0.05

	// A voxel exactly at the threshold is good data and may seed a fill.
	assert.Equal(t, 1, FillLowConfidence(g, 0.1))
	assert.Equal(t, 0, g.Voxels[1].FillSource)
	assert.Equal(t, 2, g.Voxels[1].Phase)
	assert.InDelta(t, 0.1, g.Voxels[1].Confidence, 1e-12)
}

func TestFillLowConfidenceNoSource(t *testing.T) {
	g, err := New(cube(2))
	require.NoError(t, err)
	assert.Equal(t, 0, FillLowConfidence(g, 0.5))
	assert.False(t, math.IsNaN(g.Voxels[0].Orientation.Real))
}
