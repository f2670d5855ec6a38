package reconcile

import (
	"slices"

	"github.com/tordrt/dbintegrity/internal/definition"
	"github.com/tordrt/dbintegrity/internal/schema"
)

// Comparison lists the constraint names of a table that need to be created,
// altered or dropped to match the declared state.
type Comparison struct {
	Create []string
	Alter  []string
	Drop   []string
}

// Empty reports whether no action is needed
func (c Comparison) Empty() bool {
	return c.Len() == 0
}

// Len returns the number of actions
func (c Comparison) Len() int {
	return len(c.Create) + len(c.Alter) + len(c.Drop)
}

// needsAlter compares an existing foreign key with its declaration and stops
// at the first difference.
func needsAlter(existing schema.ForeignKey, declared definition.Constraint, onUpdateSupported bool) bool {
	if !slices.Equal(existing.LocalColumns, declared.LocalColumns) {
		return true
	}
	if !slices.Equal(existing.ForeignColumns, declared.ForeignColumns) {
		return true
	}
	if existing.ForeignTable != declared.ForeignTable {
		return true
	}
	if actionDiffers(existing.OnDelete, declared.OnDelete) {
		return true
	}
	return onUpdateSupported && actionDiffers(existing.OnUpdate, declared.OnUpdate)
}

// actionDiffers applies the default equivalence rule: an existing action
// without explicit value matches an unset, NO ACTION or RESTRICT declaration.
func actionDiffers(existing, declared string) bool {
	existing = schema.NormalizeAction(existing)
	declared = schema.NormalizeAction(declared)
	if existing != "" {
		return existing != declared
	}
	return declared != "" && !schema.IsDefaultAction(declared)
}
