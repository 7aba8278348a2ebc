package voxel

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"ebsdrecon/internal/models"
	"ebsdrecon/pkg/orientation"
)

// FromSections stacks serial sections into a grid. Section i becomes the
// plane z = i; every section must be XPoints×YPoints.
func FromSections(sections []models.Section, g Geometry) (*Grid, error) {
	grid, err := New(g)
	if err != nil {
		return nil, err
	}
	if len(sections) != g.ZPoints {
		return nil, fmt.Errorf("%w: %d sections for %d planes", ErrDimensionMismatch, len(sections), g.ZPoints)
	}
	for z, s := range sections {
		if s.Width != g.XPoints || s.Height != g.YPoints || len(s.Points) != g.XPoints*g.YPoints {
			name := fmt.Sprintf("section %d", s.Index)
			if s.Filename != "" {
				name += " (" + s.Filename + ")"
			}
			return nil, fmt.Errorf("%w: %s is %dx%d with %d points, want %dx%d",
				ErrDimensionMismatch, name, s.Width, s.Height, len(s.Points), g.XPoints, g.YPoints)
		}
		base := z * grid.sliceSize
		for j, p := range s.Points {
			grid.Voxels[base+j].load(p)
		}
	}
	return grid, nil
}

// ReadTable reads a whitespace separated voxel table with one voxel per line
// in grid order, X varying fastest:
//
//	phi1 Phi phi2 phase iq ci
//
// Angles are in radians. Blank lines and lines starting with '#' are skipped.
func ReadTable(r io.Reader, g Geometry) (*Grid, error) {
	grid, err := New(g)
	if err != nil {
		return nil, err
	}
	sc := bufio.NewScanner(r)
	n, line := 0, 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		if n >= grid.Len() {
			return nil, fmt.Errorf("%w: more than %d voxels in table", ErrDimensionMismatch, grid.Len())
		}
		p, err := parsePoint(strings.Fields(text))
		if err != nil {
			return nil, fmt.Errorf("voxel: table line %d: %w", line, err)
		}
		grid.Voxels[n].load(p)
		n++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("voxel: reading table: %w", err)
	}
	if n != grid.Len() {
		return nil, fmt.Errorf("%w: table has %d voxels, geometry needs %d", ErrDimensionMismatch, n, grid.Len())
	}
	return grid, nil
}

func parsePoint(fields []string) (models.Point, error) {
	if len(fields) != 6 {
		return models.Point{}, fmt.Errorf("want 6 columns, got %d", len(fields))
	}
	var vals [6]float64
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return models.Point{}, fmt.Errorf("column %d: %w", i+1, err)
		}
		vals[i] = v
	}
	phase := int(vals[3])
	if float64(phase) != vals[3] {
		return models.Point{}, fmt.Errorf("phase %q is not an integer", fields[3])
	}
	return models.Point{
		Phi1: vals[0], Phi: vals[1], Phi2: vals[2],
		Phase:        phase,
		ImageQuality: vals[4],
		Confidence:   vals[5],
	}, nil
}

// WriteTable writes the grid in the format read by ReadTable.
func WriteTable(w io.Writer, grid *Grid) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# %d %d %d\n", grid.XPoints, grid.YPoints, grid.ZPoints)
	for i := range grid.Voxels {
		v := &grid.Voxels[i]
		fmt.Fprintf(bw, "%.6f %.6f %.6f %d %.4f %.4f\n",
			v.Euler.Phi1, v.Euler.Phi, v.Euler.Phi2, v.Phase, v.ImageQuality, v.Confidence)
	}
	return bw.Flush()
}

func (v *Voxel) load(p models.Point) {
	v.SetEuler(orientation.Euler{Phi1: p.Phi1, Phi: p.Phi, Phi2: p.Phi2})
	v.Phase = p.Phase
	v.ImageQuality = p.ImageQuality
	v.Confidence = p.Confidence
	v.GrainID = 0
	v.FillSource = -1
}
