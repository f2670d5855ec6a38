package reconcile

import (
	"fmt"
	"strings"
)

// IndexMismatchError is returned when an index named after a foreign key
// cannot support it.
type IndexMismatchError struct {
	Table    string
	Index    string
	Missing  []string
	Expected []string
	Actual   []string
}

func (e *IndexMismatchError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("existing foreign key index %q on table %q does not include the needed columns: missing %s, expected %s",
			e.Index, e.Table, quoteList(e.Missing), quoteList(e.Expected))
	}
	return fmt.Sprintf("existing foreign key index %q on table %q must start with %s in this order, found %s",
		e.Index, e.Table, quoteList(e.Expected), quoteList(e.Actual))
}

func quoteList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = fmt.Sprintf("%q", v)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
