package dataset

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `age,gender,diagnosis
25,M,Flu
35,F,Cold
,F,Flu
45,M,
`

func TestReadCSVInfersTypesAndMissing(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Equal(t, 4, ds.Len())
	assert.Equal(t, []string{"age", "gender", "diagnosis"}, ds.Columns())

	typ, err := ds.Type("age")
	require.NoError(t, err)
	assert.Equal(t, ColumnNumeric, typ)

	typ, err = ds.Type("gender")
	require.NoError(t, err)
	assert.Equal(t, ColumnCategorical, typ)

	assert.Equal(t, 25.0, ds.Row(0)["age"])
	assert.Nil(t, ds.Row(2)["age"])
	assert.Nil(t, ds.Row(3)["diagnosis"])
}

func TestReadCSVMixedColumnStaysCategorical(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader("code\n12\nA7\n"))
	require.NoError(t, err)

	typ, err := ds.Type("code")
	require.NoError(t, err)
	assert.Equal(t, ColumnCategorical, typ)
	assert.Equal(t, "12", ds.Row(0)["code"])
}

func TestReadCSVRequiresHeader(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "header")
}

func TestReadCSVRejectsRaggedRows(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("a,b\n1,2,3\n"))
	require.Error(t, err)
}

func TestWriteCSVRoundTrip(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, ds))

	again, err := ReadCSV(&buf)
	require.NoError(t, err)
	require.Equal(t, ds.Len(), again.Len())
	assert.Equal(t, ds.Row(0), again.Row(0))
	assert.Nil(t, again.Row(2)["age"])
}

func TestImputeFillsMedianAndMode(t *testing.T) {
	csv := `age,gender
10,M
20,F
30,M
,
40,
`
	ds, err := ReadCSV(strings.NewReader(csv))
	require.NoError(t, err)

	filled := Impute(ds)

	// median of {10, 20, 30, 40} is 25
	assert.Equal(t, 25.0, filled.Row(3)["age"])
	// M occurs twice, F once
	assert.Equal(t, "M", filled.Row(3)["gender"])
	assert.Equal(t, "M", filled.Row(4)["gender"])

	// source dataset untouched
	assert.Nil(t, ds.Row(3)["age"])
}

func TestImputeModeTieBreaksByFirstOccurrence(t *testing.T) {
	csv := `gender
F
M
F
M

`
	ds, err := ReadCSV(strings.NewReader(csv))
	require.NoError(t, err)

	filled := Impute(ds)
	assert.Equal(t, "F", filled.Row(4)["gender"])
}

func TestImputeLeavesAllMissingColumnAlone(t *testing.T) {
	ds, err := New([]string{"bmi"}, map[string]ColumnType{"bmi": ColumnNumeric})
	require.NoError(t, err)
	require.NoError(t, ds.AppendRow(Record{}))

	filled := Impute(ds)
	assert.Nil(t, filled.Row(0)["bmi"])
}

func TestDescribeSummarizesColumns(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	profile := Describe(ds)
	require.Equal(t, 4, profile.Records)
	require.Len(t, profile.Columns, 3)

	age := profile.Columns[0]
	assert.Equal(t, "age", age.Name)
	assert.Equal(t, 3, age.Count)
	assert.Equal(t, 1, age.Missing)
	assert.InDelta(t, 35.0, age.Mean, 1e-9)
	assert.Equal(t, 25.0, age.Min)
	assert.Equal(t, 45.0, age.Max)

	gender := profile.Columns[1]
	assert.Equal(t, 2, gender.Distinct)
	require.NotEmpty(t, gender.TopValues)
	assert.Equal(t, "M", gender.TopValues[0].Value)
	assert.Equal(t, 2, gender.TopValues[0].Count)
}
