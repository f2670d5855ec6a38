package reconcile

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/tordrt/dbintegrity/internal/db"
	"github.com/tordrt/dbintegrity/internal/definition"
)

// TablePlan is the comparison of one table
type TablePlan struct {
	Table      string
	Comparison Comparison
}

// Session owns the caches of one reconciliation run. Callers must serialize
// access to it.
type Session struct {
	resolver   db.Resolver
	store      *definition.Store
	reconciler *Reconciler
	applier    *Applier
}

// NewSession creates a run-scoped session
func NewSession(resolver db.Resolver, store *definition.Store) *Session {
	reconciler := NewReconciler(resolver)
	return &Session{
		resolver:   resolver,
		store:      store,
		reconciler: reconciler,
		applier:    NewApplier(resolver, reconciler),
	}
}

// Reconciler returns the session's reconciler
func (s *Session) Reconciler() *Reconciler {
	return s.reconciler
}

// Definitions returns the declared set of one source, or the merge of all
// sources when sourceKey is empty.
func (s *Session) Definitions(ctx context.Context, sourceKey string) (definition.Set, error) {
	if sourceKey == "" {
		return s.store.MergeAll(ctx)
	}
	return s.store.Load(ctx, sourceKey)
}

// NeedsUpdate reports whether any declared table differs from the live schema
func (s *Session) NeedsUpdate(ctx context.Context, sourceKey string) (bool, error) {
	set, err := s.Definitions(ctx, sourceKey)
	if err != nil {
		return false, err
	}
	for _, table := range set.Tables() {
		cmp, err := s.reconciler.Compare(ctx, table, set[table])
		if err != nil {
			return false, err
		}
		if !cmp.Empty() {
			return true, nil
		}
	}
	return false, nil
}

// Plan returns the comparisons of every declared table needing changes
func (s *Session) Plan(ctx context.Context, sourceKey string) ([]TablePlan, error) {
	set, err := s.Definitions(ctx, sourceKey)
	if err != nil {
		return nil, err
	}
	var plans []TablePlan
	for _, table := range set.Tables() {
		cmp, err := s.reconciler.Compare(ctx, table, set[table])
		if err != nil {
			return nil, err
		}
		if !cmp.Empty() {
			plans = append(plans, TablePlan{Table: table, Comparison: cmp})
		}
	}
	return plans, nil
}

// Update reconciles every declared table and returns the number of executed
// actions, including those executed before a failure.
func (s *Session) Update(ctx context.Context, sourceKey string) (int, error) {
	set, err := s.Definitions(ctx, sourceKey)
	if err != nil {
		return 0, err
	}

	actions := 0
	for _, table := range set.Tables() {
		cmp, err := s.reconciler.Compare(ctx, table, set[table])
		if err != nil {
			return actions, err
		}
		if cmp.Empty() {
			continue
		}
		n, err := s.applier.Apply(ctx, table, cmp, set[table])
		actions += n
		if err != nil {
			return actions, err
		}
	}

	log.Ctx(ctx).Info().Int("actions", actions).Msg("foreign key constraints updated")
	return actions, nil
}

// Bootstrap prepends synthetic table statements for every declared foreign
// key to statements, so that definitions appearing later in the list take
// precedence over them.
func (s *Session) Bootstrap(ctx context.Context, statements []string) ([]string, error) {
	result := append([]string(nil), statements...)
	for _, key := range s.store.Keys() {
		set, err := s.store.Load(ctx, key)
		if err != nil {
			return nil, err
		}
		for _, table := range set.Tables() {
			platform, err := s.resolver.PlatformForTable(table)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve platform for table %s: %w", table, err)
			}
			constraints := set[table]
			for _, name := range constraints.Names() {
				synthetic := db.SyntheticTableSQL(platform, table, constraints[name].ForeignKey(name))
				result = append(synthetic, result...)
			}
		}
	}
	return result, nil
}
