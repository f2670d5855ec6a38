package reconcile

import (
	"context"
	"fmt"
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/tordrt/dbintegrity/internal/db"
	"github.com/tordrt/dbintegrity/internal/definition"
	"github.com/tordrt/dbintegrity/internal/schema"
)

// Applier executes comparisons against the live schema
type Applier struct {
	resolver   db.Resolver
	reconciler *Reconciler
}

// NewApplier creates an applier that invalidates reconciler after each table
func NewApplier(resolver db.Resolver, reconciler *Reconciler) *Applier {
	return &Applier{
		resolver:   resolver,
		reconciler: reconciler,
	}
}

// Apply runs drops, then creates, then alters, and returns the number of
// executed actions. On error the actions already executed are not rolled
// back and are included in the count.
func (a *Applier) Apply(ctx context.Context, table string, cmp Comparison, declared definition.TableConstraints) (n int, err error) {
	defer a.reconciler.Invalidate(table)

	inspector, err := a.resolver.ForTable(ctx, table)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve connection for table %s: %w", table, err)
	}
	logger := log.Ctx(ctx).With().Str("table", table).Logger()

	for _, name := range cmp.Drop {
		if err := inspector.DropForeignKey(ctx, table, name); err != nil {
			return n, fmt.Errorf("failed to drop foreign key %s on table %s: %w", name, table, err)
		}
		logger.Info().Str("constraint", name).Msg("dropped foreign key")
		n++
	}

	for _, name := range cmp.Create {
		c, ok := declared[name]
		if !ok {
			return n, fmt.Errorf("no declaration for foreign key %s on table %s", name, table)
		}
		if err := a.create(ctx, inspector, table, c.ForeignKey(name)); err != nil {
			return n, err
		}
		logger.Info().Str("constraint", name).Msg("created foreign key")
		n++
	}

	for _, name := range cmp.Alter {
		c, ok := declared[name]
		if !ok {
			return n, fmt.Errorf("no declaration for foreign key %s on table %s", name, table)
		}
		if err := inspector.DropAndCreateForeignKey(ctx, table, c.ForeignKey(name)); err != nil {
			return n, fmt.Errorf("failed to alter foreign key %s on table %s: %w", name, table, err)
		}
		logger.Info().Str("constraint", name).Msg("altered foreign key")
		n++
	}

	return n, nil
}

// create makes sure the supporting index exists before adding the foreign key
func (a *Applier) create(ctx context.Context, inspector db.Inspector, table string, fk schema.ForeignKey) error {
	indexes, err := inspector.ListIndexes(ctx, table)
	if err != nil {
		return fmt.Errorf("failed to list indexes of table %s: %w", table, err)
	}

	needsIndex := true
	for _, idx := range indexes {
		if idx.Name != fk.Name {
			continue
		}
		if err := checkSupportingIndex(table, idx, fk.LocalColumns); err != nil {
			return err
		}
		needsIndex = false
		break
	}

	if needsIndex {
		if err := inspector.CreateIndex(ctx, table, fk.Name, fk.LocalColumns); err != nil {
			return fmt.Errorf("failed to create index %s on table %s: %w", fk.Name, table, err)
		}
	}

	if err := inspector.CreateForeignKey(ctx, table, fk); err != nil {
		return fmt.Errorf("failed to create foreign key %s on table %s: %w", fk.Name, table, err)
	}
	return nil
}

func checkSupportingIndex(table string, idx schema.Index, columns []string) error {
	var missing []string
	for _, col := range columns {
		if !slices.Contains(idx.Columns, col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return &IndexMismatchError{Table: table, Index: idx.Name, Missing: missing, Expected: columns, Actual: idx.Columns}
	}
	if len(idx.Columns) < len(columns) || !slices.Equal(idx.Columns[:len(columns)], columns) {
		return &IndexMismatchError{Table: table, Index: idx.Name, Expected: columns, Actual: idx.Columns}
	}
	return nil
}
