package testutils

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/stretchr/testify/mock"

	"github.com/tordrt/dbintegrity/internal/db"
	"github.com/tordrt/dbintegrity/internal/schema"
)

// FakeInspector keeps foreign keys and indexes in memory and records every
// mutating call in Calls.
type FakeInspector struct {
	PlatformName db.Platform
	OnUpdate     bool
	ForeignKeys  map[string][]schema.ForeignKey
	Indexes      map[string][]schema.Index
	Calls        []string
	// FailOn makes the call with this label return an error
	FailOn string
}

var _ db.Inspector = (*FakeInspector)(nil)

// NewFakeInspector creates an empty in-memory schema for platform
func NewFakeInspector(platform db.Platform) *FakeInspector {
	return &FakeInspector{
		PlatformName: platform,
		OnUpdate:     platform.SupportsOnUpdateAction(),
		ForeignKeys:  make(map[string][]schema.ForeignKey),
		Indexes:      make(map[string][]schema.Index),
	}
}

func (f *FakeInspector) record(label string) error {
	f.Calls = append(f.Calls, label)
	if f.FailOn == label {
		return fmt.Errorf("forced failure: %s", label)
	}
	return nil
}

func (f *FakeInspector) Platform() db.Platform {
	return f.PlatformName
}

func (f *FakeInspector) ListForeignKeys(_ context.Context, table string) ([]schema.ForeignKey, error) {
	return slices.Clone(f.ForeignKeys[table]), nil
}

func (f *FakeInspector) ListIndexes(_ context.Context, table string) ([]schema.Index, error) {
	return slices.Clone(f.Indexes[table]), nil
}

func (f *FakeInspector) SupportsOnUpdateAction() bool {
	return f.OnUpdate
}

func (f *FakeInspector) SupportsToggleableForeignKeyChecks() bool {
	return f.PlatformName.SupportsToggleableForeignKeyChecks()
}

func (f *FakeInspector) ForeignKeyChecksStatement(enabled bool) string {
	if !f.SupportsToggleableForeignKeyChecks() {
		return ""
	}
	if enabled {
		return "checks on"
	}
	return "checks off"
}

func (f *FakeInspector) DropForeignKey(_ context.Context, table, name string) error {
	if err := f.record("drop " + table + "." + name); err != nil {
		return err
	}
	f.ForeignKeys[table] = slices.DeleteFunc(f.ForeignKeys[table], func(fk schema.ForeignKey) bool {
		return fk.Name == name
	})
	return nil
}

func (f *FakeInspector) CreateForeignKey(_ context.Context, table string, fk schema.ForeignKey) error {
	if err := f.record("create " + table + "." + fk.Name); err != nil {
		return err
	}
	f.ForeignKeys[table] = append(f.ForeignKeys[table], fk)
	sort.Slice(f.ForeignKeys[table], func(i, j int) bool {
		return f.ForeignKeys[table][i].Name < f.ForeignKeys[table][j].Name
	})
	return nil
}

func (f *FakeInspector) CreateIndex(_ context.Context, table, name string, columns []string) error {
	if err := f.record("index " + table + "." + name); err != nil {
		return err
	}
	f.Indexes[table] = append(f.Indexes[table], schema.Index{Name: name, Columns: slices.Clone(columns)})
	return nil
}

func (f *FakeInspector) DropAndCreateForeignKey(_ context.Context, table string, fk schema.ForeignKey) error {
	if err := f.record("alter " + table + "." + fk.Name); err != nil {
		return err
	}
	for i, existing := range f.ForeignKeys[table] {
		if existing.Name == fk.Name {
			f.ForeignKeys[table][i] = fk
			return nil
		}
	}
	return fmt.Errorf("foreign key %s not found on table %s", fk.Name, table)
}

func (f *FakeInspector) Execute(_ context.Context, statement string) error {
	return f.record(statement)
}

func (f *FakeInspector) Close(_ context.Context) error {
	return nil
}

// StaticResolver serves every table from one inspector
type StaticResolver struct {
	Inspector db.Inspector
}

var _ db.Resolver = StaticResolver{}

func (r StaticResolver) ForTable(_ context.Context, _ string) (db.Inspector, error) {
	return r.Inspector, nil
}

func (r StaticResolver) PlatformForTable(_ string) (db.Platform, error) {
	return r.Inspector.Platform(), nil
}

// MockInspector is a testify mock of db.Inspector
type MockInspector struct {
	mock.Mock
}

var _ db.Inspector = (*MockInspector)(nil)

func (m *MockInspector) Platform() db.Platform {
	return m.Called().Get(0).(db.Platform)
}

func (m *MockInspector) ListForeignKeys(ctx context.Context, table string) ([]schema.ForeignKey, error) {
	args := m.Called(ctx, table)
	fks, _ := args.Get(0).([]schema.ForeignKey)
	return fks, args.Error(1)
}

func (m *MockInspector) ListIndexes(ctx context.Context, table string) ([]schema.Index, error) {
	args := m.Called(ctx, table)
	idx, _ := args.Get(0).([]schema.Index)
	return idx, args.Error(1)
}

func (m *MockInspector) SupportsOnUpdateAction() bool {
	return m.Called().Bool(0)
}

func (m *MockInspector) SupportsToggleableForeignKeyChecks() bool {
	return m.Called().Bool(0)
}

func (m *MockInspector) ForeignKeyChecksStatement(enabled bool) string {
	return m.Called(enabled).String(0)
}

func (m *MockInspector) DropForeignKey(ctx context.Context, table, name string) error {
	return m.Called(ctx, table, name).Error(0)
}

func (m *MockInspector) CreateForeignKey(ctx context.Context, table string, fk schema.ForeignKey) error {
	return m.Called(ctx, table, fk).Error(0)
}

func (m *MockInspector) CreateIndex(ctx context.Context, table, name string, columns []string) error {
	return m.Called(ctx, table, name, columns).Error(0)
}

func (m *MockInspector) DropAndCreateForeignKey(ctx context.Context, table string, fk schema.ForeignKey) error {
	return m.Called(ctx, table, fk).Error(0)
}

func (m *MockInspector) Execute(ctx context.Context, statement string) error {
	return m.Called(ctx, statement).Error(0)
}

func (m *MockInspector) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
