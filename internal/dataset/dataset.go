// Package dataset provides the tabular data model shared by all disclosure
// control engines: an ordered collection of records with named, typed
// columns. Datasets are transient snapshots; engines never mutate their
// input and return fresh datasets instead.
package dataset

import (
	"fmt"

	"github.com/inferloop/tabsdc/pkg/errors"
)

// ColumnType classifies how a column's values are interpreted by the
// engines.
type ColumnType string

const (
	// ColumnNumeric holds float64 values (or nil for missing).
	ColumnNumeric ColumnType = "numeric"
	// ColumnCategorical holds string values from a bounded vocabulary.
	ColumnCategorical ColumnType = "categorical"
	// ColumnString holds free-form text that the engines pass through.
	ColumnString ColumnType = "string"
)

// Record maps column names to cell values. Cell values are float64 for
// numeric columns, string for categorical and string columns, or nil for
// missing.
type Record map[string]interface{}

// ColumnRoles partitions a dataset's columns into the roles the engines
// care about. Columns in neither list are carried through untouched.
type ColumnRoles struct {
	QuasiIdentifiers    []string `json:"quasi_identifiers"`
	SensitiveAttributes []string `json:"sensitive_attributes"`
}

// Dataset is an ordered collection of records over a fixed schema.
type Dataset struct {
	columns []string
	types   map[string]ColumnType
	records []Record
}

// New creates an empty dataset with the given column order and types.
// Columns without an entry in types default to ColumnCategorical.
func New(columns []string, types map[string]ColumnType) (*Dataset, error) {
	seen := make(map[string]bool, len(columns))
	for _, col := range columns {
		if seen[col] {
			return nil, errors.NewSchemaError(errors.CodeDuplicateColumn,
				fmt.Sprintf("duplicate column %q", col))
		}
		seen[col] = true
	}

	resolved := make(map[string]ColumnType, len(columns))
	for _, col := range columns {
		if t, ok := types[col]; ok {
			resolved[col] = t
		} else {
			resolved[col] = ColumnCategorical
		}
	}
	for col := range types {
		if !seen[col] {
			return nil, errors.NewUnknownColumnError(col)
		}
	}

	return &Dataset{
		columns: append([]string(nil), columns...),
		types:   resolved,
		records: make([]Record, 0),
	}, nil
}

// Columns returns the column names in schema order.
func (d *Dataset) Columns() []string {
	return append([]string(nil), d.columns...)
}

// Len returns the number of records.
func (d *Dataset) Len() int {
	return len(d.records)
}

// HasColumn reports whether the schema contains the named column.
func (d *Dataset) HasColumn(name string) bool {
	_, ok := d.types[name]
	return ok
}

// Type returns the declared type of the named column.
func (d *Dataset) Type(name string) (ColumnType, error) {
	t, ok := d.types[name]
	if !ok {
		return "", errors.NewUnknownColumnError(name)
	}
	return t, nil
}

// CheckColumns verifies that every name exists in the schema. Engines call
// this up front so a mistyped quasi-identifier fails the whole operation
// instead of silently weakening the guarantee.
func (d *Dataset) CheckColumns(names []string) error {
	for _, name := range names {
		if !d.HasColumn(name) {
			return errors.NewUnknownColumnError(name)
		}
	}
	return nil
}

// AppendRow appends a record. Keys absent from the schema are rejected;
// schema columns absent from the record are stored as missing. Numeric
// cells accept int, int64, or float64 and are normalized to float64.
func (d *Dataset) AppendRow(rec Record) error {
	for col := range rec {
		if !d.HasColumn(col) {
			return errors.NewUnknownColumnError(col)
		}
	}

	row := make(Record, len(d.columns))
	for _, col := range d.columns {
		v, ok := rec[col]
		if !ok || v == nil {
			row[col] = nil
			continue
		}
		if d.types[col] == ColumnNumeric {
			f, ok := toFloat(v)
			if !ok {
				return errors.NewSchemaError(errors.CodeColumnTypeMismatch,
					fmt.Sprintf("column %q is numeric but got %T", col, v))
			}
			row[col] = f
			continue
		}
		s, ok := v.(string)
		if !ok {
			return errors.NewSchemaError(errors.CodeColumnTypeMismatch,
				fmt.Sprintf("column %q is %s but got %T", col, d.types[col], v))
		}
		row[col] = s
	}

	d.records = append(d.records, row)
	return nil
}

// Row returns the i-th record. The returned map is the stored record;
// callers must treat it as read-only.
func (d *Dataset) Row(i int) Record {
	return d.records[i]
}

// Records returns the underlying record slice in row order. Callers must
// treat records as read-only.
func (d *Dataset) Records() []Record {
	return d.records
}

// Column returns all values of the named column in row order, including
// nils for missing cells.
func (d *Dataset) Column(name string) ([]interface{}, error) {
	if !d.HasColumn(name) {
		return nil, errors.NewUnknownColumnError(name)
	}
	values := make([]interface{}, len(d.records))
	for i, rec := range d.records {
		values[i] = rec[name]
	}
	return values, nil
}

// NumericColumn returns the non-missing values of a numeric column in row
// order. Missing cells are skipped, so the result may be shorter than
// Len().
func (d *Dataset) NumericColumn(name string) ([]float64, error) {
	t, err := d.Type(name)
	if err != nil {
		return nil, err
	}
	if t != ColumnNumeric {
		return nil, errors.NewSchemaError(errors.CodeColumnTypeMismatch,
			fmt.Sprintf("column %q is %s, not numeric", name, t))
	}
	values := make([]float64, 0, len(d.records))
	for _, rec := range d.records {
		if f, ok := rec[name].(float64); ok {
			values = append(values, f)
		}
	}
	return values, nil
}

// SetValue overwrites a single cell. Used by engines when building
// generalized copies.
func (d *Dataset) SetValue(row int, column string, value interface{}) error {
	if !d.HasColumn(column) {
		return errors.NewUnknownColumnError(column)
	}
	if row < 0 || row >= len(d.records) {
		return errors.NewValidationError(errors.CodeOutOfRange,
			fmt.Sprintf("row %d out of range [0, %d)", row, len(d.records)))
	}
	d.records[row][column] = value
	return nil
}

// ReplaceColumn swaps every value of a column and redeclares its type.
// values must have exactly Len() entries. Generalization uses this to turn
// numeric columns into categorical range labels.
func (d *Dataset) ReplaceColumn(name string, values []interface{}, newType ColumnType) error {
	if !d.HasColumn(name) {
		return errors.NewUnknownColumnError(name)
	}
	if len(values) != len(d.records) {
		return errors.NewValidationError(errors.CodeInvalidInput,
			fmt.Sprintf("column %q: got %d values for %d records", name, len(values), len(d.records)))
	}
	for i, rec := range d.records {
		rec[name] = values[i]
	}
	d.types[name] = newType
	return nil
}

// Select returns a new dataset containing the rows at the given indices, in
// the given order. Records are deep-copied so the subset is independent of
// the source.
func (d *Dataset) Select(rows []int) (*Dataset, error) {
	out := d.EmptyLike()
	for _, i := range rows {
		if i < 0 || i >= len(d.records) {
			return nil, errors.NewValidationError(errors.CodeOutOfRange,
				fmt.Sprintf("row %d out of range [0, %d)", i, len(d.records)))
		}
		out.records = append(out.records, copyRecord(d.records[i]))
	}
	return out, nil
}

// EmptyLike returns an empty dataset with this dataset's schema. Engines
// return it when suppression removes every class.
func (d *Dataset) EmptyLike() *Dataset {
	types := make(map[string]ColumnType, len(d.types))
	for col, t := range d.types {
		types[col] = t
	}
	return &Dataset{
		columns: append([]string(nil), d.columns...),
		types:   types,
		records: make([]Record, 0),
	}
}

// Copy returns a deep copy of the dataset.
func (d *Dataset) Copy() *Dataset {
	out := d.EmptyLike()
	out.records = make([]Record, len(d.records))
	for i, rec := range d.records {
		out.records[i] = copyRecord(rec)
	}
	return out
}

// Validate checks the roles against the dataset schema.
func (r ColumnRoles) Validate(d *Dataset) error {
	if err := d.CheckColumns(r.QuasiIdentifiers); err != nil {
		return err
	}
	return d.CheckColumns(r.SensitiveAttributes)
}

func copyRecord(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
