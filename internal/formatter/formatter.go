package formatter

import (
	"fmt"
	"io"
	"strings"

	"github.com/tordrt/dbintegrity/internal/definition"
	"github.com/tordrt/dbintegrity/internal/reconcile"
)

const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
)

// Formatter writes a reconciliation plan
type Formatter interface {
	Format(plans []reconcile.TablePlan, declared definition.Set) error
}

// New returns the formatter for format
func New(format string, w io.Writer) (Formatter, error) {
	switch format {
	case FormatText, "":
		return NewTextFormatter(w), nil
	case FormatMarkdown:
		return NewMarkdownFormatter(w), nil
	}
	return nil, fmt.Errorf("unknown format %q (must be text or markdown)", format)
}

// describe renders a declared constraint as "(a, b) -> table (x, y) ON DELETE ..."
func describe(c definition.Constraint) string {
	var b strings.Builder
	fmt.Fprintf(&b, "(%s) -> %s (%s)",
		strings.Join(c.LocalColumns, ", "),
		c.ForeignTable,
		strings.Join(c.ForeignColumns, ", "),
	)
	fk := c.ForeignKey("")
	if fk.OnDelete != "" {
		b.WriteString(" ON DELETE " + fk.OnDelete)
	}
	if fk.OnUpdate != "" {
		b.WriteString(" ON UPDATE " + fk.OnUpdate)
	}
	return b.String()
}
