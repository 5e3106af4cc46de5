package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/stat"

	"github.com/inferloop/tabsdc/pkg/errors"
)

// ReadCSV parses a dataset from CSV. The first row is the header. A column
// is typed numeric when every non-empty cell parses as a float and at least
// one cell is non-empty; all other columns are categorical. Empty cells
// become missing values.
func ReadCSV(r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeIO, errors.CodeReadFailed, "failed to read CSV")
	}
	if len(rows) == 0 {
		return nil, errors.NewIOError(errors.CodeReadFailed, "missing header row")
	}

	header := rows[0]
	body := rows[1:]

	types := inferColumnTypes(header, body)
	ds, err := New(header, types)
	if err != nil {
		return nil, err
	}

	for i, row := range body {
		rec := make(Record, len(header))
		for j, col := range header {
			cell := row[j]
			if cell == "" {
				continue
			}
			if types[col] == ColumnNumeric {
				f, err := strconv.ParseFloat(cell, 64)
				if err != nil {
					return nil, errors.NewSchemaError(errors.CodeColumnTypeMismatch,
						fmt.Sprintf("row %d column %q: %q is not numeric", i+1, col, cell))
				}
				rec[col] = f
			} else {
				rec[col] = cell
			}
		}
		if err := ds.AppendRow(rec); err != nil {
			return nil, err
		}
	}

	return ds, nil
}

// LoadCSV reads a dataset from a CSV file on disk.
func LoadCSV(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeIO, errors.CodeFileNotFound,
			fmt.Sprintf("failed to open %s", path))
	}
	defer f.Close()
	return ReadCSV(f)
}

// WriteCSV writes the dataset as CSV with a header row. Missing cells are
// written empty.
func WriteCSV(w io.Writer, d *Dataset) error {
	writer := csv.NewWriter(w)
	columns := d.Columns()

	if err := writer.Write(columns); err != nil {
		return errors.WrapError(err, errors.ErrorTypeIO, errors.CodeWriteFailed, "failed to write header")
	}

	row := make([]string, len(columns))
	for _, rec := range d.Records() {
		for j, col := range columns {
			row[j] = formatCell(rec[col])
		}
		if err := writer.Write(row); err != nil {
			return errors.WrapError(err, errors.ErrorTypeIO, errors.CodeWriteFailed, "failed to write row")
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return errors.WrapError(err, errors.ErrorTypeIO, errors.CodeWriteFailed, "failed to flush CSV")
	}
	return nil
}

// SaveCSV writes the dataset to a CSV file on disk.
func SaveCSV(path string, d *Dataset) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeIO, errors.CodeWriteFailed,
			fmt.Sprintf("failed to create %s", path))
	}
	defer f.Close()
	return WriteCSV(f, d)
}

// Impute returns a copy of the dataset with missing values filled in:
// numeric columns use the column median, categorical and string columns use
// the most frequent value with ties broken by first occurrence. Columns
// that are entirely missing are left as-is.
func Impute(d *Dataset) *Dataset {
	out := d.Copy()

	for _, col := range out.Columns() {
		t, _ := out.Type(col)
		if t == ColumnNumeric {
			imputeNumeric(out, col)
		} else {
			imputeCategorical(out, col)
		}
	}
	return out
}

func imputeNumeric(d *Dataset, col string) {
	present := make([]float64, 0, d.Len())
	for _, rec := range d.Records() {
		if f, ok := rec[col].(float64); ok {
			present = append(present, f)
		}
	}
	if len(present) == 0 || len(present) == d.Len() {
		return
	}

	sort.Float64s(present)
	median := stat.Quantile(0.5, stat.LinInterp, present, nil)

	for _, rec := range d.Records() {
		if rec[col] == nil {
			rec[col] = median
		}
	}
}

func imputeCategorical(d *Dataset, col string) {
	counts := make(map[string]int)
	firstSeen := make(map[string]int)
	missing := 0
	for i, rec := range d.Records() {
		s, ok := rec[col].(string)
		if !ok {
			missing++
			continue
		}
		counts[s]++
		if _, seen := firstSeen[s]; !seen {
			firstSeen[s] = i
		}
	}
	if missing == 0 || len(counts) == 0 {
		return
	}

	mode := ""
	best := -1
	for v, n := range counts {
		if n > best || (n == best && firstSeen[v] < firstSeen[mode]) {
			mode = v
			best = n
		}
	}

	for _, rec := range d.Records() {
		if rec[col] == nil {
			rec[col] = mode
		}
	}
}

func inferColumnTypes(header []string, body [][]string) map[string]ColumnType {
	types := make(map[string]ColumnType, len(header))
	for j, col := range header {
		numeric := false
		allParse := true
		for _, row := range body {
			if j >= len(row) || row[j] == "" {
				continue
			}
			if _, err := strconv.ParseFloat(row[j], 64); err != nil {
				allParse = false
				break
			}
			numeric = true
		}
		if numeric && allParse {
			types[col] = ColumnNumeric
		} else {
			types[col] = ColumnCategorical
		}
	}
	return types
}

func formatCell(v interface{}) string {
	switch c := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(c, 'g', -1, 64)
	case string:
		return c
	default:
		return fmt.Sprintf("%v", c)
	}
}
