package symmetry

import (
	"fmt"
	"sort"
)

// PhaseTable maps the phase ids found in a voxel grid to crystal structures.
// It is built once per run from configuration and not modified afterwards.
type PhaseTable map[int]CrystalStructure

// Lookup returns the structure of a phase.
func (t PhaseTable) Lookup(phase int) (CrystalStructure, error) {
	c, ok := t[phase]
	if !ok {
		return Unknown, fmt.Errorf("%w: %d", ErrUnknownPhase, phase)
	}
	return c, nil
}

// Operators resolves the operator table of a phase in one step.
func (t PhaseTable) Operators(phase int) (Operators, error) {
	c, err := t.Lookup(phase)
	if err != nil {
		return nil, err
	}
	ops, err := OperatorsFor(c)
	if err != nil {
		return nil, fmt.Errorf("phase %d: %w", phase, err)
	}
	return ops, nil
}

// Validate checks that every entry has a usable structure.
func (t PhaseTable) Validate() error {
	for _, id := range t.IDs() {
		if _, err := OperatorsFor(t[id]); err != nil {
			return fmt.Errorf("phase %d: %w", id, err)
		}
	}
	return nil
}

// IDs returns the phase ids in ascending order.
func (t PhaseTable) IDs() []int {
	ids := make([]int, 0, len(t))
	for id := range t {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
