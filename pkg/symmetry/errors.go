package symmetry

import "errors"

var (
	// ErrUnknownCrystalStructure is returned for the Unknown structure or any
	// value outside the enum.
	ErrUnknownCrystalStructure = errors.New("symmetry: unknown crystal structure")

	// ErrUnknownPhase is returned when a phase id has no entry in a PhaseTable.
	ErrUnknownPhase = errors.New("symmetry: phase not in table")
)
