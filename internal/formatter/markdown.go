package formatter

import (
	"fmt"
	"io"

	"github.com/tordrt/dbintegrity/internal/definition"
	"github.com/tordrt/dbintegrity/internal/reconcile"
)

// MarkdownFormatter formats plans as markdown
type MarkdownFormatter struct {
	writer io.Writer
}

// NewMarkdownFormatter creates a new markdown formatter
func NewMarkdownFormatter(w io.Writer) *MarkdownFormatter {
	return &MarkdownFormatter{writer: w}
}

// Format writes the plan in markdown format
func (f *MarkdownFormatter) Format(plans []reconcile.TablePlan, declared definition.Set) error {
	_, _ = fmt.Fprintln(f.writer, "# Foreign Key Constraints Plan")
	_, _ = fmt.Fprintln(f.writer)

	if len(plans) == 0 {
		_, _ = fmt.Fprintln(f.writer, "No changes.")
		return nil
	}

	for _, plan := range plans {
		f.formatTable(plan, declared[plan.Table])
	}
	return nil
}

func (f *MarkdownFormatter) formatTable(plan reconcile.TablePlan, declared definition.TableConstraints) {
	_, _ = fmt.Fprintf(f.writer, "## %s\n\n", plan.Table)
	_, _ = fmt.Fprintln(f.writer, "| Action | Constraint | Definition |")
	_, _ = fmt.Fprintln(f.writer, "|--------|------------|------------|")

	for _, name := range plan.Comparison.Drop {
		_, _ = fmt.Fprintf(f.writer, "| drop | `%s` | |\n", name)
	}
	for _, name := range plan.Comparison.Create {
		_, _ = fmt.Fprintf(f.writer, "| create | `%s` | %s |\n", name, describe(declared[name]))
	}
	for _, name := range plan.Comparison.Alter {
		_, _ = fmt.Fprintf(f.writer, "| alter | `%s` | %s |\n", name, describe(declared[name]))
	}
	_, _ = fmt.Fprintln(f.writer)
}
