package integrity

import (
	"context"
	"errors"
	"sync"
)

// WriteRequest describes a write spanning one or more statements on Table.
// DisableChecks is set by the caller when rows are written in an order that
// temporarily violates foreign keys.
type WriteRequest struct {
	Table         string
	DisableChecks bool
}

// Switcher disables and enables foreign key checks for a table
type Switcher interface {
	Disable(ctx context.Context, table string) error
	Enable(ctx context.Context, table string) error
}

// Guard tracks nested acquisitions per table. The first acquisition
// disables checks and the last release enables them again. Only tables
// with declared foreign keys are switched.
//
// The switch itself acts on the connection serving a table. When two tables
// share a connection, releasing the inner table's section enables checks
// for both while the outer section is still open; nest sections on one
// table per connection, or disable checks for the outer table only.
type Guard struct {
	mu       sync.Mutex
	switcher Switcher
	tables   map[string]bool
	depth    map[string]int
}

// NewGuard creates a guard switching checks for the given tables
func NewGuard(switcher Switcher, tables []string) *Guard {
	g := &Guard{
		switcher: switcher,
		tables:   make(map[string]bool, len(tables)),
		depth:    make(map[string]int),
	}
	for _, table := range tables {
		g.tables[table] = true
	}
	return g
}

// Depth returns the current nesting depth of table
func (g *Guard) Depth(table string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.depth[table]
}

// Acquire enters a guarded section for table. The returned release function
// must be called exactly once; further calls are no-ops.
func (g *Guard) Acquire(ctx context.Context, table string) (func(context.Context) error, error) {
	if !g.tables[table] {
		return func(context.Context) error { return nil }, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.depth[table] == 0 {
		if err := g.switcher.Disable(ctx, table); err != nil {
			return nil, err
		}
	}
	g.depth[table]++

	var once sync.Once
	release := func(ctx context.Context) error {
		var err error
		once.Do(func() {
			err = g.release(ctx, table)
		})
		return err
	}
	return release, nil
}

func (g *Guard) release(ctx context.Context, table string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.depth[table]--
	if g.depth[table] > 0 {
		return nil
	}
	delete(g.depth, table)
	return g.switcher.Enable(ctx, table)
}

// Run executes fn, inside a guarded section when req asks for disabled
// checks. The section is always released, also when fn fails.
func (g *Guard) Run(ctx context.Context, req WriteRequest, fn func(ctx context.Context) error) (err error) {
	if !req.DisableChecks {
		return fn(ctx)
	}

	release, err := g.Acquire(ctx, req.Table)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, release(ctx))
	}()

	return fn(ctx)
}
