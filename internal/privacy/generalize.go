package privacy

import (
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/inferloop/tabsdc/internal/dataset"
	"github.com/inferloop/tabsdc/pkg/constants"
)

// Generalizer maps raw quasi-identifier values to coarser categories.
// Generalization is a pure function of the column's values at call time:
// the same input always produces the same output, and values that are
// already generalized (string range labels) pass through unchanged.
type Generalizer struct {
	logger *logrus.Logger
}

func NewGeneralizer(logger *logrus.Logger) *Generalizer {
	if logger == nil {
		logger = logrus.New()
	}
	return &Generalizer{logger: logger}
}

// GeneralizeNumeric maps numeric values to range labels. Columns named
// "age" use fixed clinically meaningful bands; every other numeric column
// is binned by its quartiles into four ordinal labels. Missing values map
// to the explicit Unknown label. Non-numeric values (already-generalized
// labels) pass through unchanged.
func (g *Generalizer) GeneralizeNumeric(values []interface{}, semantics string) []interface{} {
	if strings.EqualFold(semantics, constants.SemanticsAge) {
		return generalizeAges(values)
	}
	return generalizeByQuartiles(values)
}

// GeneralizeCategorical collapses values occurring fewer than minGroupSize
// times into the wildcard label, bounding the number of equivalence classes
// that rare categories can create. Missing values map to the Unknown label
// and are counted like any other value.
func (g *Generalizer) GeneralizeCategorical(values []interface{}, minGroupSize int) []interface{} {
	out := make([]interface{}, len(values))
	counts := make(map[string]int)

	for i, v := range values {
		label := categoricalLabel(v)
		out[i] = label
		if s, ok := label.(string); ok {
			counts[s]++
		}
	}

	if minGroupSize < 2 {
		return out
	}

	for i, v := range out {
		if s, ok := v.(string); ok && counts[s] < minGroupSize {
			out[i] = constants.WildcardLabel
		}
	}
	return out
}

// GeneralizeQuasiIdentifiers returns a copy of the dataset with every
// quasi-identifier column generalized: numeric columns become categorical
// range labels, categorical columns have rare values collapsed, and string
// columns pass through. A quasi-identifier absent from the schema fails the
// whole operation.
func (g *Generalizer) GeneralizeQuasiIdentifiers(ds *dataset.Dataset, quasiIdentifiers []string, minGroupSize int) (*dataset.Dataset, error) {
	if err := ds.CheckColumns(quasiIdentifiers); err != nil {
		return nil, err
	}

	out := ds.Copy()
	for _, qi := range quasiIdentifiers {
		t, err := out.Type(qi)
		if err != nil {
			return nil, err
		}
		column, err := out.Column(qi)
		if err != nil {
			return nil, err
		}

		switch t {
		case dataset.ColumnNumeric:
			generalized := g.GeneralizeNumeric(column, qi)
			if err := out.ReplaceColumn(qi, generalized, dataset.ColumnCategorical); err != nil {
				return nil, err
			}
		case dataset.ColumnCategorical:
			generalized := g.GeneralizeCategorical(column, minGroupSize)
			if err := out.ReplaceColumn(qi, generalized, dataset.ColumnCategorical); err != nil {
				return nil, err
			}
		default:
			// Free-form text is passed through; suppression handles it.
		}
	}

	g.logger.WithFields(logrus.Fields{
		"quasi_identifiers": quasiIdentifiers,
		"min_group_size":    minGroupSize,
	}).Debug("Generalized quasi-identifiers")

	return out, nil
}

func generalizeAges(values []interface{}) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		f, ok := v.(float64)
		if !ok {
			if v == nil {
				out[i] = constants.UnknownLabel
			} else {
				out[i] = v
			}
			continue
		}
		out[i] = ageBand(f)
	}
	return out
}

func ageBand(age float64) string {
	switch {
	case age < 30:
		return constants.AgeBandUnder30
	case age < 50:
		return constants.AgeBand30To49
	case age < 70:
		return constants.AgeBand50To69
	default:
		return constants.AgeBand70Plus
	}
}

func generalizeByQuartiles(values []interface{}) []interface{} {
	present := make([]float64, 0, len(values))
	for _, v := range values {
		if f, ok := v.(float64); ok {
			present = append(present, f)
		}
	}

	out := make([]interface{}, len(values))
	if len(present) == 0 {
		for i, v := range values {
			if v == nil {
				out[i] = constants.UnknownLabel
			} else {
				out[i] = v
			}
		}
		return out
	}

	sort.Float64s(present)
	q1 := stat.Quantile(0.25, stat.LinInterp, present, nil)
	q2 := stat.Quantile(0.5, stat.LinInterp, present, nil)
	q3 := stat.Quantile(0.75, stat.LinInterp, present, nil)

	for i, v := range values {
		f, ok := v.(float64)
		if !ok {
			if v == nil {
				out[i] = constants.UnknownLabel
			} else {
				out[i] = v
			}
			continue
		}
		out[i] = quartileLabel(f, q1, q2, q3)
	}
	return out
}

func quartileLabel(v, q1, q2, q3 float64) string {
	switch {
	case v <= q1:
		return constants.QuartileLow
	case v <= q2:
		return constants.QuartileMediumLow
	case v <= q3:
		return constants.QuartileMediumHigh
	default:
		return constants.QuartileHigh
	}
}

func categoricalLabel(v interface{}) interface{} {
	if v == nil {
		return constants.UnknownLabel
	}
	return v
}
