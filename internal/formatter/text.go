package formatter

import (
	"fmt"
	"io"

	"github.com/tordrt/dbintegrity/internal/definition"
	"github.com/tordrt/dbintegrity/internal/reconcile"
)

// TextFormatter formats plans as compact text
type TextFormatter struct {
	writer io.Writer
}

// NewTextFormatter creates a new text formatter
func NewTextFormatter(w io.Writer) *TextFormatter {
	return &TextFormatter{writer: w}
}

// Format writes the plan in compact text format
func (f *TextFormatter) Format(plans []reconcile.TablePlan, declared definition.Set) error {
	for i, plan := range plans {
		if i > 0 {
			_, _ = fmt.Fprintln(f.writer) // Blank line between tables
		}
		f.formatTable(plan, declared[plan.Table])
	}
	return nil
}

func (f *TextFormatter) formatTable(plan reconcile.TablePlan, declared definition.TableConstraints) {
	_, _ = fmt.Fprintf(f.writer, "TABLE %s (%d action(s))\n", plan.Table, plan.Comparison.Len())

	for _, name := range plan.Comparison.Drop {
		_, _ = fmt.Fprintf(f.writer, "  DROP   %s\n", name)
	}
	for _, name := range plan.Comparison.Create {
		_, _ = fmt.Fprintf(f.writer, "  CREATE %s %s\n", name, describe(declared[name]))
	}
	for _, name := range plan.Comparison.Alter {
		_, _ = fmt.Fprintf(f.writer, "  ALTER  %s %s\n", name, describe(declared[name]))
	}
}
