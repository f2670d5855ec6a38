package definition

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"github.com/tordrt/dbintegrity/internal/schema"
)

// Constraint is a declared foreign key
type Constraint struct {
	LocalColumns   []string `mapstructure:"localColumns" yaml:"localColumns" json:"localColumns"`
	ForeignTable   string   `mapstructure:"foreignTable" yaml:"foreignTable" json:"foreignTable"`
	ForeignColumns []string `mapstructure:"foreignColumns" yaml:"foreignColumns" json:"foreignColumns"`
	OnDelete       string   `mapstructure:"onDelete" yaml:"onDelete,omitempty" json:"onDelete,omitempty"`
	OnUpdate       string   `mapstructure:"onUpdate" yaml:"onUpdate,omitempty" json:"onUpdate,omitempty"`
}

// TableConstraints maps constraint names to their declaration
type TableConstraints map[string]Constraint

// Set maps table names to their declared constraints
type Set map[string]TableConstraints

// Tables returns the declared table names, sorted. A table declared with
// no constraints is included: its existing foreign keys are all dropped.
func (s Set) Tables() []string {
	tables := make([]string, 0, len(s))
	for table := range s {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	return tables
}

// Names returns the constraint names of a table, sorted
func (t TableConstraints) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks the invariants of a constraint. The returned error carries
// only the reason; callers wrap it into a ValidationError.
func (c Constraint) Validate() error {
	if len(c.LocalColumns) == 0 {
		return fmt.Errorf("localColumns must not be empty")
	}
	if len(c.ForeignColumns) == 0 {
		return fmt.Errorf("foreignColumns must not be empty")
	}
	if len(c.LocalColumns) != len(c.ForeignColumns) {
		return fmt.Errorf("localColumns has %d column(s) but foreignColumns has %d", len(c.LocalColumns), len(c.ForeignColumns))
	}
	for _, col := range c.LocalColumns {
		if strings.TrimSpace(col) == "" {
			return fmt.Errorf("localColumns contains an empty column name")
		}
	}
	for _, col := range c.ForeignColumns {
		if strings.TrimSpace(col) == "" {
			return fmt.Errorf("foreignColumns contains an empty column name")
		}
	}
	if strings.TrimSpace(c.ForeignTable) == "" {
		return fmt.Errorf("foreignTable must not be empty")
	}
	if err := validateAction("onDelete", c.OnDelete); err != nil {
		return err
	}
	return validateAction("onUpdate", c.OnUpdate)
}

func validateAction(field, action string) error {
	switch schema.NormalizeAction(action) {
	case "", schema.ActionNoAction, schema.ActionRestrict, schema.ActionCascade, schema.ActionSetNull, schema.ActionSetDefault:
		return nil
	}
	return fmt.Errorf("%s has unknown referential action %q", field, action)
}

// ForeignKey converts the declaration into the form passed to inspectors.
// Referential actions are upper-cased.
func (c Constraint) ForeignKey(name string) schema.ForeignKey {
	return schema.ForeignKey{
		Name:           name,
		LocalColumns:   append([]string(nil), c.LocalColumns...),
		ForeignTable:   c.ForeignTable,
		ForeignColumns: append([]string(nil), c.ForeignColumns...),
		OnDelete:       schema.NormalizeAction(c.OnDelete),
		OnUpdate:       schema.NormalizeAction(c.OnUpdate),
	}
}

// stringToSliceHook turns a scalar string into a one-element slice
func stringToSliceHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to.Kind() != reflect.Slice {
		return data, nil
	}
	return []string{data.(string)}, nil
}

// decodeSet converts a raw parsed document into a validated Set
func decodeSet(source string, raw map[string]any) (Set, error) {
	set := make(Set, len(raw))
	for table, rawTable := range raw {
		if strings.TrimSpace(table) == "" {
			return nil, &ValidationError{Source: source, Reason: "empty table name"}
		}
		if rawTable == nil {
			set[table] = TableConstraints{}
			continue
		}
		constraints, ok := rawTable.(map[string]any)
		if !ok {
			return nil, &ValidationError{Source: source, Table: table, Reason: "constraints must be a mapping of names to definitions"}
		}

		tc := make(TableConstraints, len(constraints))
		for name, rawConstraint := range constraints {
			if strings.TrimSpace(name) == "" {
				return nil, &ValidationError{Source: source, Table: table, Reason: "empty constraint name"}
			}
			c, err := decodeConstraint(rawConstraint)
			if err != nil {
				return nil, &ValidationError{Source: source, Table: table, Constraint: name, Reason: err.Error()}
			}
			if err := c.Validate(); err != nil {
				return nil, &ValidationError{Source: source, Table: table, Constraint: name, Reason: err.Error()}
			}
			tc[name] = c
		}
		set[table] = tc
	}
	return set, nil
}

func decodeConstraint(raw any) (Constraint, error) {
	var c Constraint
	if _, ok := raw.(map[string]any); !ok {
		return c, fmt.Errorf("definition must be a mapping")
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:  mapstructure.DecodeHookFuncType(stringToSliceHook),
		ErrorUnused: true,
		Result:      &c,
	})
	if err != nil {
		return c, fmt.Errorf("cannot create decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return c, err
	}
	return c, nil
}

// Merge deep-merges sets in order. Later sets win per constraint name.
func Merge(sets ...Set) Set {
	merged := make(Set)
	for _, set := range sets {
		for table, constraints := range set {
			target, ok := merged[table]
			if !ok {
				target = make(TableConstraints, len(constraints))
				merged[table] = target
			}
			for name, c := range constraints {
				target[name] = c
			}
		}
	}
	return merged
}
