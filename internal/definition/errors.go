package definition

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownSource is returned when a source key was never registered
var ErrUnknownSource = errors.New("unknown definition source")

// ValidationError reports a malformed definition
type ValidationError struct {
	Source     string
	Table      string
	Constraint string
	Reason     string
}

func (e *ValidationError) Error() string {
	var where []string
	if e.Source != "" {
		where = append(where, fmt.Sprintf("source %q", e.Source))
	}
	if e.Table != "" {
		where = append(where, fmt.Sprintf("table %q", e.Table))
	}
	if e.Constraint != "" {
		where = append(where, fmt.Sprintf("constraint %q", e.Constraint))
	}
	if len(where) == 0 {
		return "invalid foreign key definition: " + e.Reason
	}
	return fmt.Sprintf("invalid foreign key definition (%s): %s", strings.Join(where, ", "), e.Reason)
}
