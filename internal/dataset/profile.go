package dataset

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ColumnSummary describes one column for profiling output.
type ColumnSummary struct {
	Name     string     `json:"name"`
	Type     ColumnType `json:"type"`
	Count    int        `json:"count"`
	Missing  int        `json:"missing"`
	Distinct int        `json:"distinct"`

	// Numeric columns only
	Mean   float64 `json:"mean,omitempty"`
	StdDev float64 `json:"std_dev,omitempty"`
	Min    float64 `json:"min,omitempty"`
	Max    float64 `json:"max,omitempty"`

	// Categorical and string columns only
	TopValues []ValueCount `json:"top_values,omitempty"`
}

// ValueCount pairs a categorical value with its frequency.
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Profile summarizes a whole dataset.
type Profile struct {
	Records int             `json:"records"`
	Columns []ColumnSummary `json:"columns"`
}

const topValueLimit = 5

// Describe computes per-column summaries: count, missing, and distinct for
// all columns; mean, standard deviation, min, and max for numeric columns;
// the most frequent values for the rest.
func Describe(d *Dataset) *Profile {
	profile := &Profile{Records: d.Len()}

	for _, col := range d.Columns() {
		t, _ := d.Type(col)
		summary := ColumnSummary{Name: col, Type: t}

		if t == ColumnNumeric {
			describeNumeric(d, col, &summary)
		} else {
			describeCategorical(d, col, &summary)
		}
		profile.Columns = append(profile.Columns, summary)
	}
	return profile
}

func describeNumeric(d *Dataset, col string, summary *ColumnSummary) {
	values := make([]float64, 0, d.Len())
	distinct := make(map[float64]bool)
	for _, rec := range d.Records() {
		f, ok := rec[col].(float64)
		if !ok {
			summary.Missing++
			continue
		}
		values = append(values, f)
		distinct[f] = true
	}

	summary.Count = len(values)
	summary.Distinct = len(distinct)
	if len(values) == 0 {
		return
	}

	summary.Mean = stat.Mean(values, nil)
	summary.StdDev = stat.StdDev(values, nil)
	summary.Min = floats.Min(values)
	summary.Max = floats.Max(values)
}

func describeCategorical(d *Dataset, col string, summary *ColumnSummary) {
	counts := make(map[string]int)
	order := make([]string, 0)
	for _, rec := range d.Records() {
		s, ok := rec[col].(string)
		if !ok {
			summary.Missing++
			continue
		}
		if counts[s] == 0 {
			order = append(order, s)
		}
		counts[s]++
		summary.Count++
	}

	summary.Distinct = len(counts)

	rank := make(map[string]int, len(order))
	for i, v := range order {
		rank[v] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		if counts[order[i]] != counts[order[j]] {
			return counts[order[i]] > counts[order[j]]
		}
		return rank[order[i]] < rank[order[j]]
	})

	limit := topValueLimit
	if len(order) < limit {
		limit = len(order)
	}
	for _, v := range order[:limit] {
		summary.TopValues = append(summary.TopValues, ValueCount{Value: v, Count: counts[v]})
	}
}
