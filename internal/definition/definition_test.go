package definition

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name       string
		doc        string
		want       Set
		wantTable  string
		wantName   string
		wantReason string
	}{
		{
			name: "yaml with sequences",
			doc: `
orders:
  fk_customer:
    localColumns: [customer_id]
    foreignTable: customers
    foreignColumns: [id]
    onDelete: cascade
`,
			want: Set{"orders": {"fk_customer": {
				LocalColumns:   []string{"customer_id"},
				ForeignTable:   "customers",
				ForeignColumns: []string{"id"},
				OnDelete:       "cascade",
			}}},
		},
		{
			name: "scalar column is a one element sequence",
			doc: `
orders:
  fk_customer:
    localColumns: customer_id
    foreignTable: customers
    foreignColumns: id
`,
			want: Set{"orders": {"fk_customer": {
				LocalColumns:   []string{"customer_id"},
				ForeignTable:   "customers",
				ForeignColumns: []string{"id"},
			}}},
		},
		{
			name: "json document",
			doc:  `{"lines": {"fk_order": {"localColumns": ["order_id", "shop_id"], "foreignTable": "orders", "foreignColumns": ["id", "shop_id"], "onUpdate": "SET NULL"}}}`,
			want: Set{"lines": {"fk_order": {
				LocalColumns:   []string{"order_id", "shop_id"},
				ForeignTable:   "orders",
				ForeignColumns: []string{"id", "shop_id"},
				OnUpdate:       "SET NULL",
			}}},
		},
		{
			name: "empty document",
			doc:  "",
			want: Set{},
		},
		{
			name: "cardinality mismatch",
			doc: `
orders:
  fk_customer:
    localColumns: [customer_id, shop_id]
    foreignTable: customers
    foreignColumns: [id]
`,
			wantTable:  "orders",
			wantName:   "fk_customer",
			wantReason: "localColumns has 2 column(s) but foreignColumns has 1",
		},
		{
			name: "missing foreign table",
			doc: `
orders:
  fk_customer:
    localColumns: [customer_id]
    foreignColumns: [id]
`,
			wantTable:  "orders",
			wantName:   "fk_customer",
			wantReason: "foreignTable must not be empty",
		},
		{
			name: "missing local columns",
			doc: `
orders:
  fk_customer:
    foreignTable: customers
    foreignColumns: [id]
`,
			wantTable:  "orders",
			wantName:   "fk_customer",
			wantReason: "localColumns must not be empty",
		},
		{
			name: "unknown action",
			doc: `
orders:
  fk_customer:
    localColumns: [customer_id]
    foreignTable: customers
    foreignColumns: [id]
    onDelete: explode
`,
			wantTable:  "orders",
			wantName:   "fk_customer",
			wantReason: `onDelete has unknown referential action "explode"`,
		},
		{
			name: "definition is not a mapping",
			doc: `
orders:
  fk_customer: customers
`,
			wantTable:  "orders",
			wantName:   "fk_customer",
			wantReason: "definition must be a mapping",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse("test", []byte(tt.doc))
			if tt.wantReason != "" {
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, "test", verr.Source)
				assert.Equal(t, tt.wantTable, verr.Table)
				assert.Equal(t, tt.wantName, verr.Constraint)
				assert.Equal(t, tt.wantReason, verr.Reason)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse("test", []byte(`
orders:
  fk_customer:
    localColumns: [customer_id]
    foreignTable: customers
    foreignColumns: [id]
    onDelet: cascade
`))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "onDelet")
}

func TestMergePrecedence(t *testing.T) {
	first := Set{"orders": {
		"fk_customer": {LocalColumns: []string{"customer_id"}, ForeignTable: "customers", ForeignColumns: []string{"id"}},
		"fk_shop":     {LocalColumns: []string{"shop_id"}, ForeignTable: "shops", ForeignColumns: []string{"id"}},
	}}
	second := Set{
		"orders": {
			"fk_customer": {LocalColumns: []string{"customer_id"}, ForeignTable: "customers", ForeignColumns: []string{"id"}, OnDelete: "CASCADE"},
		},
		"lines": {
			"fk_order": {LocalColumns: []string{"order_id"}, ForeignTable: "orders", ForeignColumns: []string{"id"}},
		},
	}

	merged := Merge(first, second)

	assert.Equal(t, []string{"lines", "orders"}, merged.Tables())
	assert.Equal(t, "CASCADE", merged["orders"]["fk_customer"].OnDelete)
	assert.Contains(t, merged["orders"], "fk_shop")

	// inputs are left untouched
	assert.Empty(t, first["orders"]["fk_customer"].OnDelete)
}

func TestConstraintForeignKey(t *testing.T) {
	c := Constraint{
		LocalColumns:   []string{"customer_id"},
		ForeignTable:   "customers",
		ForeignColumns: []string{"id"},
		OnDelete:       "set  null",
		OnUpdate:       "cascade",
	}

	fk := c.ForeignKey("fk_customer")

	assert.Equal(t, "fk_customer", fk.Name)
	assert.Equal(t, "SET NULL", fk.OnDelete)
	assert.Equal(t, "CASCADE", fk.OnUpdate)
	assert.Equal(t, []string{"customer_id"}, fk.LocalColumns)
}

func TestValidationErrorMessage(t *testing.T) {
	err := error(&ValidationError{Source: "core", Table: "orders", Constraint: "fk_customer", Reason: "foreignTable must not be empty"})
	assert.Equal(t, `invalid foreign key definition (source "core", table "orders", constraint "fk_customer"): foreignTable must not be empty`, err.Error())

	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
}
