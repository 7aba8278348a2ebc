// Package symmetry holds the crystal point-group operator tables and the
// misorientation calculations built on them.
//
// The set of crystal structures is closed. Every exported entry point that
// takes a CrystalStructure rejects Unknown (and any value outside the enum)
// with ErrUnknownCrystalStructure instead of returning a degenerate result.
package symmetry

import (
	"fmt"
	"strings"
)

// CrystalStructure selects the point group of a phase.
type CrystalStructure int

const (
	Unknown CrystalStructure = iota
	Cubic
	Hexagonal
	OrthoRhombic
	Trigonal
	Tetragonal
)

var structureNames = map[CrystalStructure]string{
	Unknown:      "unknown",
	Cubic:        "cubic",
	Hexagonal:    "hexagonal",
	OrthoRhombic: "orthorhombic",
	Trigonal:     "trigonal",
	Tetragonal:   "tetragonal",
}

func (c CrystalStructure) String() string {
	if name, ok := structureNames[c]; ok {
		return name
	}
	return fmt.Sprintf("CrystalStructure(%d)", int(c))
}

// ParseCrystalStructure reads a structure name as written in configuration
// files. Matching ignores case and surrounding space.
func ParseCrystalStructure(s string) (CrystalStructure, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for c, n := range structureNames {
		if c != Unknown && n == name {
			return c, nil
		}
	}
	return Unknown, fmt.Errorf("%w: %q", ErrUnknownCrystalStructure, s)
}

// MarshalText implements encoding.TextMarshaler so structures round-trip
// through YAML as names.
func (c CrystalStructure) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *CrystalStructure) UnmarshalText(b []byte) error {
	v, err := ParseCrystalStructure(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}
