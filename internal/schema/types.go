package schema

import "strings"

// Referential actions as reported by the platforms
const (
	ActionNoAction   = "NO ACTION"
	ActionRestrict   = "RESTRICT"
	ActionCascade    = "CASCADE"
	ActionSetNull    = "SET NULL"
	ActionSetDefault = "SET DEFAULT"
)

// ForeignKey represents a foreign key constraint found in a live schema.
//
// OnDelete and OnUpdate are empty when the platform reports no explicit
// action, which is equivalent to its default (NO ACTION/RESTRICT).
type ForeignKey struct {
	Name           string
	LocalColumns   []string
	ForeignTable   string
	ForeignColumns []string
	OnDelete       string
	OnUpdate       string
}

// Index represents a database index
type Index struct {
	Name     string
	Columns  []string
	IsUnique bool
}

// NormalizeAction upper-cases an action and collapses inner whitespace
func NormalizeAction(action string) string {
	return strings.Join(strings.Fields(strings.ToUpper(action)), " ")
}

// IsDefaultAction reports whether action is one of the values platforms
// treat as "no explicit action".
func IsDefaultAction(action string) bool {
	switch NormalizeAction(action) {
	case ActionNoAction, ActionRestrict:
		return true
	}
	return false
}
