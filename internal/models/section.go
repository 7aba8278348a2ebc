package models

// Point is one EBSD measurement as produced by a section loader
type Point struct {
	// Phi1, Phi, Phi2 are the Bunge Euler angles in radians
	Phi1, Phi, Phi2 float64

	// Phase is the index into the run's phase table
	Phase int

	// ImageQuality is the pattern quality reported by the indexing software
	ImageQuality float64

	// Confidence is the indexing confidence index
	Confidence float64
}

// Section represents a single serial section of EBSD measurements
type Section struct {
	// Points holds the section's measurements in row-major order (X fastest)
	Points []Point

	// Index is the position of this section in the stack
	Index int

	// Width and Height are the section dimensions in measurement points
	Width, Height int

	// Filename is the source the section was read from, if any
	Filename string
}

// PhaseInfo describes one crystallographic phase of the sample
type PhaseInfo struct {
	// ID is the phase id used by voxels
	ID int `yaml:"id"`

	// Name is a human readable label, e.g. "Ni" or "alpha-Ti"
	Name string `yaml:"name"`

	// CrystalStructure is the point group name (cubic, hexagonal, ...)
	CrystalStructure string `yaml:"crystalStructure"`
}
