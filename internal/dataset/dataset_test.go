package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/inferloop/tabsdc/pkg/errors"
)

func createTestDataset(t *testing.T) *Dataset {
	t.Helper()

	ds, err := New([]string{"age", "gender", "diagnosis"}, map[string]ColumnType{
		"age":       ColumnNumeric,
		"gender":    ColumnCategorical,
		"diagnosis": ColumnCategorical,
	})
	require.NoError(t, err)

	rows := []Record{
		{"age": 25.0, "gender": "M", "diagnosis": "Flu"},
		{"age": 35.0, "gender": "F", "diagnosis": "Cold"},
		{"age": 45.0, "gender": "M", "diagnosis": "Asthma"},
	}
	for _, row := range rows {
		require.NoError(t, ds.AppendRow(row))
	}
	return ds
}

func TestNewRejectsDuplicateColumns(t *testing.T) {
	_, err := New([]string{"age", "age"}, nil)
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeDuplicateColumn, appErr.Code)
}

func TestNewRejectsTypeForUnknownColumn(t *testing.T) {
	_, err := New([]string{"age"}, map[string]ColumnType{"zipcode": ColumnCategorical})
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeUnknownColumn, appErr.Code)
}

func TestAppendRowRejectsUnknownColumn(t *testing.T) {
	ds := createTestDataset(t)

	err := ds.AppendRow(Record{"age": 30.0, "zipcode": "12345"})
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeUnknownColumn, appErr.Code)
	assert.Equal(t, 3, ds.Len())
}

func TestAppendRowNormalizesNumericCells(t *testing.T) {
	ds := createTestDataset(t)

	require.NoError(t, ds.AppendRow(Record{"age": 52, "gender": "F", "diagnosis": "Flu"}))
	assert.Equal(t, 52.0, ds.Row(3)["age"])

	err := ds.AppendRow(Record{"age": "old", "gender": "F", "diagnosis": "Flu"})
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeColumnTypeMismatch, appErr.Code)
}

func TestAppendRowKeepsMissingCells(t *testing.T) {
	ds := createTestDataset(t)

	require.NoError(t, ds.AppendRow(Record{"gender": "F"}))
	row := ds.Row(3)
	assert.Nil(t, row["age"])
	assert.Nil(t, row["diagnosis"])
	assert.Equal(t, "F", row["gender"])
}

func TestCheckColumnsNamesOffender(t *testing.T) {
	ds := createTestDataset(t)

	require.NoError(t, ds.CheckColumns([]string{"age", "gender"}))

	err := ds.CheckColumns([]string{"age", "zipcode"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zipcode")
}

func TestNumericColumnSkipsMissing(t *testing.T) {
	ds := createTestDataset(t)
	require.NoError(t, ds.AppendRow(Record{"gender": "F"}))

	values, err := ds.NumericColumn("age")
	require.NoError(t, err)
	assert.Equal(t, []float64{25, 35, 45}, values)

	_, err = ds.NumericColumn("gender")
	require.Error(t, err)
}

func TestSelectPreservesOrderAndIsolation(t *testing.T) {
	ds := createTestDataset(t)

	subset, err := ds.Select([]int{2, 0})
	require.NoError(t, err)
	require.Equal(t, 2, subset.Len())
	assert.Equal(t, 45.0, subset.Row(0)["age"])
	assert.Equal(t, 25.0, subset.Row(1)["age"])

	subset.Row(0)["age"] = 99.0
	assert.Equal(t, 45.0, ds.Row(2)["age"])

	_, err = ds.Select([]int{5})
	require.Error(t, err)
}

func TestReplaceColumnRedeclaresType(t *testing.T) {
	ds := createTestDataset(t)

	err := ds.ReplaceColumn("age", []interface{}{"18-29", "30-49", "30-49"}, ColumnCategorical)
	require.NoError(t, err)

	typ, err := ds.Type("age")
	require.NoError(t, err)
	assert.Equal(t, ColumnCategorical, typ)
	assert.Equal(t, "30-49", ds.Row(1)["age"])

	err = ds.ReplaceColumn("age", []interface{}{"only-one"}, ColumnCategorical)
	require.Error(t, err)
}

func TestEmptyLikeKeepsSchema(t *testing.T) {
	ds := createTestDataset(t)

	empty := ds.EmptyLike()
	assert.Equal(t, 0, empty.Len())
	assert.Equal(t, ds.Columns(), empty.Columns())

	typ, err := empty.Type("age")
	require.NoError(t, err)
	assert.Equal(t, ColumnNumeric, typ)
}

func TestCopyIsDeep(t *testing.T) {
	ds := createTestDataset(t)

	clone := ds.Copy()
	clone.Row(0)["gender"] = "F"
	assert.Equal(t, "M", ds.Row(0)["gender"])
	assert.Equal(t, ds.Len(), clone.Len())
}

func TestColumnRolesValidate(t *testing.T) {
	ds := createTestDataset(t)

	roles := ColumnRoles{
		QuasiIdentifiers:    []string{"age", "gender"},
		SensitiveAttributes: []string{"diagnosis"},
	}
	require.NoError(t, roles.Validate(ds))

	roles.SensitiveAttributes = []string{"treatment"}
	require.Error(t, roles.Validate(ds))
}
