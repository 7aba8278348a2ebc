package visualization

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"ebsdrecon/pkg/orientation"
	"ebsdrecon/pkg/voxel"
)

// testGrid labels each z layer with its own grain id.
func testGrid(t *testing.T, width, height, depth int) *voxel.Grid {
	t.Helper()
	grid, err := voxel.New(voxel.Geometry{
		XPoints: width, YPoints: height, ZPoints: depth,
		XRes: 1, YRes: 1, ZRes: 1,
	})
	if err != nil {
		t.Fatalf("Failed to create grid: %v", err)
	}
	for i := range grid.Voxels {
		_, _, z := grid.Coord(i)
		grid.Voxels[i].GrainID = z + 1
	}
	return grid
}

// TestExtractSlice verifies slice dimensions and grain colouring
func TestExtractSlice(t *testing.T) {
	width, height, depth := 10, 8, 5
	viewer := NewViewer(testGrid(t, width, height, depth), ByGrain)

	for z := 0; z < depth; z++ {
		img, err := viewer.ExtractSlice("z", z)
		if err != nil {
			t.Fatalf("Failed to extract Z slice at position %d: %v", z, err)
		}

		bounds := img.Bounds()
		if bounds.Dx() != width || bounds.Dy() != height {
			t.Errorf("Expected Z slice dimensions %dx%d, got %dx%d",
				width, height, bounds.Dx(), bounds.Dy())
		}

		want := GrainColor(z + 1)
		got := img.At(width/2, height/2).(color.RGBA)
		if got != want {
			t.Errorf("Expected colour %v at center of slice %d, got %v", want, z, got)
		}
	}

	imgX, err := viewer.ExtractSlice("x", width/2)
	if err != nil {
		t.Fatalf("Failed to extract X slice: %v", err)
	}
	if b := imgX.Bounds(); b.Dx() != depth || b.Dy() != height {
		t.Errorf("Expected X slice dimensions %dx%d, got %dx%d", depth, height, b.Dx(), b.Dy())
	}
	// Column z of an X slice belongs to grain z+1.
	if got := imgX.At(2, 0).(color.RGBA); got != GrainColor(3) {
		t.Errorf("Expected grain 3 colour in X slice, got %v", got)
	}

	imgY, err := viewer.ExtractSlice("y", height/2)
	if err != nil {
		t.Fatalf("Failed to extract Y slice: %v", err)
	}
	if b := imgY.Bounds(); b.Dx() != width || b.Dy() != depth {
		t.Errorf("Expected Y slice dimensions %dx%d, got %dx%d", width, depth, b.Dx(), b.Dy())
	}

	if _, err := viewer.ExtractSlice("invalid", 0); err == nil {
		t.Error("Expected error for invalid axis, got nil")
	}
	if _, err := viewer.ExtractSlice("z", depth+1); err == nil {
		t.Error("Expected error for out of bounds position, got nil")
	}
	if _, err := viewer.ExtractSlice("z", -1); err == nil {
		t.Error("Expected error for negative position, got nil")
	}
}

func TestGrainColor(t *testing.T) {
	if got := GrainColor(0); got != (color.RGBA{A: 255}) {
		t.Errorf("Expected black for unassigned voxels, got %v", got)
	}
	seen := make(map[color.RGBA]int)
	for id := 1; id <= 50; id++ {
		c := GrainColor(id)
		if prev, ok := seen[c]; ok {
			t.Errorf("Grains %d and %d share colour %v", prev, id, c)
		}
		seen[c] = id
	}
}

func TestExtractSliceByEuler(t *testing.T) {
	grid := testGrid(t, 2, 2, 1)
	grid.Voxels[0].SetEuler(orientation.Euler{Phi1: 0, Phi: 3.14159265, Phi2: 0})
	viewer := NewViewer(grid, ByEuler)

	img, err := viewer.ExtractSlice("z", 0)
	if err != nil {
		t.Fatalf("Failed to extract slice: %v", err)
	}
	c := img.At(0, 0).(color.RGBA)
	if c.G != 255 || c.R != 0 {
		t.Errorf("Expected Φ=π to saturate green only, got %v", c)
	}
	if c := img.At(1, 1).(color.RGBA); c.R != 0 || c.G != 0 || c.B != 0 {
		t.Errorf("Expected identity orientation to be black, got %v", c)
	}
}

// TestSaveSliceSequence verifies that a sequence of slices can be saved
func TestSaveSliceSequence(t *testing.T) {
	// Skip this test in short mode
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}

	tempDir := t.TempDir()
	width, height, depth := 5, 5, 3
	viewer := NewViewer(testGrid(t, width, height, depth), ByGrain)

	outputDir := filepath.Join(tempDir, "slices")
	if err := viewer.SaveSliceSequence("z", outputDir); err != nil {
		t.Fatalf("Failed to save slice sequence: %v", err)
	}

	for z := 0; z < depth; z++ {
		filename := filepath.Join(outputDir, fmt.Sprintf("slice_z_%03d.png", z))
		f, err := os.Open(filename)
		if err != nil {
			t.Errorf("Expected slice file does not exist: %s", filename)
			continue
		}
		img, _, err := image.Decode(f)
		f.Close()
		if err != nil {
			t.Errorf("Failed to decode %s: %v", filename, err)
			continue
		}
		if got := color.RGBAModel.Convert(img.At(0, 0)).(color.RGBA); got != GrainColor(z+1) {
			t.Errorf("Slice %d: expected %v, got %v", z, GrainColor(z+1), got)
		}
	}

	if err := viewer.SaveSliceSequence("invalid", outputDir); err == nil {
		t.Error("Expected error for invalid axis, got nil")
	}
}
