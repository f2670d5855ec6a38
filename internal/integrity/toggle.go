package integrity

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/tordrt/dbintegrity/internal/db"
)

// Toggle switches foreign key enforcement for the connection serving a
// table. It does not track nesting; see Guard.
type Toggle struct {
	resolver db.Resolver
}

// NewToggle creates a toggle switching checks on the connection resolved for a table
func NewToggle(resolver db.Resolver) *Toggle {
	return &Toggle{resolver: resolver}
}

// Disable turns foreign key checks off. It is a no-op on platforms without
// session-level enforcement switches.
func (t *Toggle) Disable(ctx context.Context, table string) error {
	return t.set(ctx, table, false)
}

// Enable turns foreign key checks back on
func (t *Toggle) Enable(ctx context.Context, table string) error {
	return t.set(ctx, table, true)
}

func (t *Toggle) set(ctx context.Context, table string, enabled bool) error {
	inspector, err := t.resolver.ForTable(ctx, table)
	if err != nil {
		return fmt.Errorf("failed to resolve connection for table %s: %w", table, err)
	}
	if !inspector.SupportsToggleableForeignKeyChecks() {
		return nil
	}

	statement := inspector.ForeignKeyChecksStatement(enabled)
	if err := inspector.Execute(ctx, statement); err != nil {
		return fmt.Errorf("failed to switch foreign key checks for table %s: %w", table, err)
	}
	log.Ctx(ctx).Debug().
		Str("table", table).
		Bool("enabled", enabled).
		Msg("foreign key checks switched")
	return nil
}
