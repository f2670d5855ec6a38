package reconcile

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/tordrt/dbintegrity/internal/db"
	"github.com/tordrt/dbintegrity/internal/definition"
)

// Reconciler compares declared constraints with the live schema and caches
// the result per table until invalidated. It is not safe for concurrent use.
type Reconciler struct {
	resolver db.Resolver
	cache    map[string]Comparison
}

// NewReconciler creates a reconciler reading the live schema through resolver
func NewReconciler(resolver db.Resolver) *Reconciler {
	return &Reconciler{
		resolver: resolver,
		cache:    make(map[string]Comparison),
	}
}

// Compare classifies the foreign keys of table against declared
func (r *Reconciler) Compare(ctx context.Context, table string, declared definition.TableConstraints) (Comparison, error) {
	if cmp, ok := r.cache[table]; ok {
		return cmp, nil
	}

	inspector, err := r.resolver.ForTable(ctx, table)
	if err != nil {
		return Comparison{}, fmt.Errorf("failed to resolve connection for table %s: %w", table, err)
	}

	existing, err := inspector.ListForeignKeys(ctx, table)
	if err != nil {
		return Comparison{}, fmt.Errorf("failed to list foreign keys of table %s: %w", table, err)
	}

	var cmp Comparison
	seen := make(map[string]bool, len(existing))
	for _, fk := range existing {
		seen[fk.Name] = true

		c, ok := declared[fk.Name]
		if !ok {
			cmp.Drop = append(cmp.Drop, fk.Name)
			continue
		}
		if err := c.Validate(); err != nil {
			return Comparison{}, &definition.ValidationError{Table: table, Constraint: fk.Name, Reason: err.Error()}
		}
		if needsAlter(fk, c, inspector.SupportsOnUpdateAction()) {
			cmp.Alter = append(cmp.Alter, fk.Name)
		}
	}

	for _, name := range declared.Names() {
		if !seen[name] {
			cmp.Create = append(cmp.Create, name)
		}
	}
	sort.Strings(cmp.Drop)
	sort.Strings(cmp.Alter)

	log.Ctx(ctx).Debug().
		Str("table", table).
		Strs("create", cmp.Create).
		Strs("alter", cmp.Alter).
		Strs("drop", cmp.Drop).
		Msg("compared foreign keys")

	r.cache[table] = cmp
	return cmp, nil
}

// Invalidate forgets the cached comparison of table
func (r *Reconciler) Invalidate(table string) {
	delete(r.cache, table)
}
