// Package visualization renders planar sections of a reconstructed grid as
// images, one colour per grain or per orientation.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"ebsdrecon/pkg/voxel"
)

// ColorMode selects how a voxel is coloured.
type ColorMode int

const (
	// ByGrain gives every grain id its own colour; unassigned voxels are
	// black.
	ByGrain ColorMode = iota
	// ByEuler maps (φ1, Φ, φ2) onto the red, green and blue channels.
	ByEuler
)

// Viewer extracts sections from a grid.
type Viewer struct {
	grid *voxel.Grid
	mode ColorMode
}

// NewViewer creates a viewer over grid.
func NewViewer(grid *voxel.Grid, mode ColorMode) *Viewer {
	return &Viewer{grid: grid, mode: mode}
}

// ExtractSlice extracts the section perpendicular to axis at position.
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}
	g := v.grid

	var img *image.RGBA
	switch axis {
	case "x", "X":
		// YZ plane
		if position >= g.XPoints {
			return nil, fmt.Errorf("position %d exceeds width %d", position, g.XPoints)
		}
		img = image.NewRGBA(image.Rect(0, 0, g.ZPoints, g.YPoints))
		for y := 0; y < g.YPoints; y++ {
			for z := 0; z < g.ZPoints; z++ {
				img.Set(z, y, v.color(g.Index(position, y, z)))
			}
		}

	case "y", "Y":
		// XZ plane
		if position >= g.YPoints {
			return nil, fmt.Errorf("position %d exceeds height %d", position, g.YPoints)
		}
		img = image.NewRGBA(image.Rect(0, 0, g.XPoints, g.ZPoints))
		for z := 0; z < g.ZPoints; z++ {
			for x := 0; x < g.XPoints; x++ {
				img.Set(x, z, v.color(g.Index(x, position, z)))
			}
		}

	case "z", "Z":
		// XY plane
		if position >= g.ZPoints {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, g.ZPoints)
		}
		img = image.NewRGBA(image.Rect(0, 0, g.XPoints, g.YPoints))
		for y := 0; y < g.YPoints; y++ {
			for x := 0; x < g.XPoints; x++ {
				img.Set(x, y, v.color(g.Index(x, y, position)))
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

// SaveSlice writes an extracted slice as a PNG image.
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return png.Encode(file, img)
}

// SaveSliceSequence extracts and saves every slice along axis.
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	var maxPos int
	switch axis {
	case "x", "X":
		maxPos = v.grid.XPoints
	case "y", "Y":
		maxPos = v.grid.YPoints
	case "z", "Z":
		maxPos = v.grid.ZPoints
	default:
		return fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.png", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}

func (v *Viewer) color(i int) color.RGBA {
	vx := &v.grid.Voxels[i]
	if v.mode == ByEuler {
		return color.RGBA{
			R: channel(vx.Euler.Phi1 / (2 * math.Pi)),
			G: channel(vx.Euler.Phi / math.Pi),
			B: channel(vx.Euler.Phi2 / (2 * math.Pi)),
			A: 255,
		}
	}
	return GrainColor(vx.GrainID)
}

// GrainColor is the colour used for grain id. Ids map to well separated hues
// by stepping around the colour wheel by the golden angle.
func GrainColor(id int) color.RGBA {
	if id <= 0 {
		return color.RGBA{A: 255}
	}
	h := math.Mod(float64(id)*137.50776405, 360)
	r, g, b := hsvToRGB(h, 0.65, 0.95)
	return color.RGBA{R: channel(r), G: channel(g), B: channel(b), A: 255}
}

func channel(f float64) uint8 {
	return uint8(math.Max(0, math.Min(255, math.Round(f*255))))
}

func hsvToRGB(h, s, v float64) (r, g, b float64) {
	c := v * s
	hp := h / 60
	x := c * (1 - math.Abs(math.Mod(hp, 2)-1))
	switch {
	case hp < 1:
		r, g, b = c, x, 0
	case hp < 2:
		r, g, b = x, c, 0
	case hp < 3:
		r, g, b = 0, c, x
	case hp < 4:
		r, g, b = 0, x, c
	case hp < 5:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	m := v - c
	return r + m, g + m, b + m
}
