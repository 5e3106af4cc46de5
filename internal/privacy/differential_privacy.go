package privacy

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/inferloop/tabsdc/internal/dataset"
	"github.com/inferloop/tabsdc/pkg/constants"
	"github.com/inferloop/tabsdc/pkg/errors"
)

// DifferentialPrivacyEngine answers statistical queries about a dataset with
// calibrated Laplace noise so that the presence or absence of any single
// record cannot be inferred from the output.
type DifferentialPrivacyEngine struct {
	config  *DifferentialPrivacyConfig
	laplace *LaplaceMechanism
	logger  *logrus.Logger
}

// DifferentialPrivacyConfig contains configuration for the engine. Epsilon
// is the privacy budget per query (smaller = more private). Seed drives the
// noise source; a zero seed falls back to the default.
type DifferentialPrivacyConfig struct {
	Epsilon float64 `json:"epsilon"`
	Seed    int64   `json:"seed"`
}

// Bounds is a public (min, max) value range used to bound query sensitivity.
type Bounds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// NumericalColumnStats holds the private statistics of one numeric column.
// Min and Max are public bounds and carry no noise.
type NumericalColumnStats struct {
	Count float64 `json:"count"`
	Mean  float64 `json:"mean"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// CategoricalColumnStats holds the private statistics of one categorical
// column.
type CategoricalColumnStats struct {
	Count         float64            `json:"count"`
	UniqueValues  float64            `json:"unique_values"`
	TopCategories map[string]float64 `json:"top_categories"`
}

// SummaryStatistics is a dataset-wide statistical summary. Produced with
// noise by PrivateSummaryStatistics and without by ExactSummaryStatistics.
type SummaryStatistics struct {
	TotalRecords          float64                            `json:"total_records"`
	NumericalStatistics   map[string]*NumericalColumnStats   `json:"numerical_statistics"`
	CategoricalStatistics map[string]*CategoricalColumnStats `json:"categorical_statistics"`
}

// UtilityMetrics quantifies how much statistical value survives the noise.
type UtilityMetrics struct {
	MeanAbsoluteError float64 `json:"mean_absolute_error"`
	RelativeError     float64 `json:"relative_error"`
	UtilityScore      float64 `json:"utility_score"`
}

// BudgetAnalysis reports how the privacy budget splits across a query count.
type BudgetAnalysis struct {
	TotalEpsilon    float64 `json:"total_epsilon"`
	NumQueries      int     `json:"num_queries"`
	EpsilonPerQuery float64 `json:"epsilon_per_query"`
	RemainingBudget float64 `json:"remaining_budget"`
	PrivacyLevel    string  `json:"privacy_level"`
}

// NewDifferentialPrivacyEngine creates a new engine. Equal seeds produce
// equal noise sequences, which keeps runs reproducible.
func NewDifferentialPrivacyEngine(config *DifferentialPrivacyConfig, logger *logrus.Logger) (*DifferentialPrivacyEngine, error) {
	if config == nil {
		config = getDefaultDifferentialPrivacyConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	if config.Seed == 0 {
		config.Seed = constants.DefaultSeed
	}

	if err := errors.CheckEpsilon(config.Epsilon); err != nil {
		return nil, err
	}

	logger.WithField("epsilon", config.Epsilon).Info("Initialized differential privacy engine")

	return &DifferentialPrivacyEngine{
		config:  config,
		laplace: NewLaplaceMechanism(config.Seed),
		logger:  logger,
	}, nil
}

// Epsilon returns the configured privacy budget per query.
func (dpe *DifferentialPrivacyEngine) Epsilon() float64 {
	return dpe.config.Epsilon
}

// PrivateCount returns a noisy count. With a condition, values equal to it
// are counted; without one, the series length is counted. Counts never go
// negative.
func (dpe *DifferentialPrivacyEngine) PrivateCount(ctx context.Context, values []interface{}, condition interface{}) (float64, error) {
	count := float64(len(values))
	if condition != nil {
		want := fmt.Sprintf("%v", condition)
		count = 0
		for _, v := range values {
			if v != nil && fmt.Sprintf("%v", v) == want {
				count++
			}
		}
	}

	return dpe.privateCount(ctx, count)
}

// PrivateMean returns a noisy mean. The bounds determine the query
// sensitivity ((max - min) / n); when nil, the observed value range is used
// instead.
func (dpe *DifferentialPrivacyEngine) PrivateMean(ctx context.Context, values []float64, bounds *Bounds) (float64, error) {
	if len(values) == 0 {
		return 0, errors.NewValidationError(errors.CodeInvalidInput,
			"mean requires at least one value")
	}
	if bounds == nil {
		bounds = &Bounds{Min: floats.Min(values), Max: floats.Max(values)}
	}

	sensitivity := (bounds.Max - bounds.Min) / float64(len(values))

	return dpe.laplace.AddNoise(ctx, stat.Mean(values, nil), sensitivity, dpe.config.Epsilon)
}

// PrivateHistogram bins numeric values into equal-width ranges and returns
// noisy, non-negative counts keyed by "lo-hi" range labels.
func (dpe *DifferentialPrivacyEngine) PrivateHistogram(ctx context.Context, values []float64, bins int) (map[string]float64, error) {
	if len(values) == 0 {
		return nil, errors.NewValidationError(errors.CodeInvalidInput,
			"histogram requires at least one value")
	}
	if bins <= 0 {
		bins = constants.DefaultNumericBins
	}

	lo, hi := floats.Min(values), floats.Max(values)
	if lo == hi {
		// Pad a zero-width range so every value lands in a bin
		lo, hi = lo-0.5, hi+0.5
	}
	width := (hi - lo) / float64(bins)

	counts := make([]float64, bins)
	for _, v := range values {
		index := int((v - lo) / width)
		if index >= bins {
			index = bins - 1
		}
		counts[index]++
	}

	private := make(map[string]float64, bins)
	for i, count := range counts {
		label := fmt.Sprintf("%.1f-%.1f", lo+float64(i)*width, lo+float64(i+1)*width)
		noisy, err := dpe.laplace.AddNoise(ctx, count, 1.0, dpe.config.Epsilon)
		if err != nil {
			return nil, err
		}
		private[label] = math.Max(0, noisy)
	}

	return private, nil
}

// PrivateCategoryCounts returns noisy, non-negative counts per distinct
// category value.
func (dpe *DifferentialPrivacyEngine) PrivateCategoryCounts(ctx context.Context, values []string) (map[string]float64, error) {
	counts := make(map[string]int)
	for _, v := range values {
		counts[v]++
	}

	private := make(map[string]float64, len(counts))
	for category, count := range counts {
		noisy, err := dpe.laplace.AddNoise(ctx, float64(count), 1.0, dpe.config.Epsilon)
		if err != nil {
			return nil, err
		}
		private[category] = math.Max(0, noisy)
	}

	return private, nil
}

// PrivateCorrelation returns a noisy Pearson correlation coefficient,
// clamped to the valid range [-1, 1].
func (dpe *DifferentialPrivacyEngine) PrivateCorrelation(ctx context.Context, x, y []float64) (float64, error) {
	if len(x) != len(y) {
		return 0, errors.NewValidationError(errors.CodeInvalidInput,
			fmt.Sprintf("series length mismatch: %d vs %d", len(x), len(y)))
	}
	if len(x) < 2 {
		return 0, errors.NewValidationError(errors.CodeInvalidInput,
			"correlation requires at least two value pairs")
	}

	// Approximate sensitivity for a correlation query
	sensitivity := 2.0 / float64(len(x))

	noisy, err := dpe.laplace.AddNoise(ctx, stat.Correlation(x, y, nil), sensitivity, dpe.config.Epsilon)
	if err != nil {
		return 0, err
	}

	return math.Max(-1, math.Min(1, noisy)), nil
}

// PrivateSummaryStatistics builds a noisy dataset-wide summary. Nil column
// lists select every column of the matching type; explicitly named columns
// must exist and have the right type.
func (dpe *DifferentialPrivacyEngine) PrivateSummaryStatistics(ctx context.Context, ds *dataset.Dataset, numericalCols, categoricalCols []string) (*SummaryStatistics, error) {
	if ds == nil {
		return nil, errors.NewValidationError(errors.CodeInvalidInput, "dataset is nil")
	}

	numericalCols, categoricalCols, err := resolveStatColumns(ds, numericalCols, categoricalCols)
	if err != nil {
		return nil, err
	}

	dpe.logger.Info("Computing differentially private summary statistics")

	summary := &SummaryStatistics{
		NumericalStatistics:   make(map[string]*NumericalColumnStats),
		CategoricalStatistics: make(map[string]*CategoricalColumnStats),
	}

	summary.TotalRecords, err = dpe.privateCount(ctx, float64(ds.Len()))
	if err != nil {
		return nil, err
	}

	for _, col := range numericalCols {
		values, err := ds.NumericColumn(col)
		if err != nil {
			return nil, err
		}
		if len(values) == 0 {
			return nil, errors.NewValidationError(errors.CodeInvalidInput,
				fmt.Sprintf("column %q has no values to summarize", col))
		}

		bounds := &Bounds{Min: floats.Min(values), Max: floats.Max(values)}
		count, err := dpe.privateCount(ctx, float64(len(values)))
		if err != nil {
			return nil, err
		}
		mean, err := dpe.PrivateMean(ctx, values, bounds)
		if err != nil {
			return nil, err
		}

		summary.NumericalStatistics[col] = &NumericalColumnStats{
			Count: count,
			Mean:  mean,
			// Bounds are public, min and max carry no noise
			Min: bounds.Min,
			Max: bounds.Max,
		}
	}

	for _, col := range categoricalCols {
		values, distinct, err := categoryValues(ds, col)
		if err != nil {
			return nil, err
		}

		count, err := dpe.privateCount(ctx, float64(len(values)))
		if err != nil {
			return nil, err
		}
		unique, err := dpe.privateCount(ctx, float64(distinct))
		if err != nil {
			return nil, err
		}
		top, err := dpe.PrivateCategoryCounts(ctx, values)
		if err != nil {
			return nil, err
		}

		summary.CategoricalStatistics[col] = &CategoricalColumnStats{
			Count:         count,
			UniqueValues:  unique,
			TopCategories: top,
		}
	}

	return summary, nil
}

// ExactSummaryStatistics builds the same summary shape without noise, for
// utility comparison against a private summary.
func (dpe *DifferentialPrivacyEngine) ExactSummaryStatistics(ctx context.Context, ds *dataset.Dataset, numericalCols, categoricalCols []string) (*SummaryStatistics, error) {
	if ds == nil {
		return nil, errors.NewValidationError(errors.CodeInvalidInput, "dataset is nil")
	}

	numericalCols, categoricalCols, err := resolveStatColumns(ds, numericalCols, categoricalCols)
	if err != nil {
		return nil, err
	}

	summary := &SummaryStatistics{
		TotalRecords:          float64(ds.Len()),
		NumericalStatistics:   make(map[string]*NumericalColumnStats),
		CategoricalStatistics: make(map[string]*CategoricalColumnStats),
	}

	for _, col := range numericalCols {
		values, err := ds.NumericColumn(col)
		if err != nil {
			return nil, err
		}
		if len(values) == 0 {
			return nil, errors.NewValidationError(errors.CodeInvalidInput,
				fmt.Sprintf("column %q has no values to summarize", col))
		}

		summary.NumericalStatistics[col] = &NumericalColumnStats{
			Count: float64(len(values)),
			Mean:  stat.Mean(values, nil),
			Min:   floats.Min(values),
			Max:   floats.Max(values),
		}
	}

	for _, col := range categoricalCols {
		values, distinct, err := categoryValues(ds, col)
		if err != nil {
			return nil, err
		}

		top := make(map[string]float64)
		for _, v := range values {
			top[v]++
		}

		summary.CategoricalStatistics[col] = &CategoricalColumnStats{
			Count:         float64(len(values)),
			UniqueValues:  float64(distinct),
			TopCategories: top,
		}
	}

	return summary, nil
}

// AddNoiseToDataset returns a copy of the dataset with independent Laplace
// noise on every non-missing cell of the named numeric columns. The
// per-column sensitivity is the value range scaled by noiseScale; a
// zero-range column comes back unchanged. Nil numericalCols selects every
// numeric column.
func (dpe *DifferentialPrivacyEngine) AddNoiseToDataset(ctx context.Context, ds *dataset.Dataset, numericalCols []string, noiseScale float64) (*dataset.Dataset, error) {
	if ds == nil {
		return nil, errors.NewValidationError(errors.CodeInvalidInput, "dataset is nil")
	}
	if noiseScale < 0 {
		return nil, errors.NewParameterError("noise_scale", noiseScale, "a value >= 0")
	}

	numericalCols, err := numericColumns(ds, numericalCols)
	if err != nil {
		return nil, err
	}

	noisy := ds.Copy()
	for _, col := range numericalCols {
		values, err := ds.NumericColumn(col)
		if err != nil {
			return nil, err
		}
		if len(values) == 0 {
			continue
		}

		sensitivity := dataRange(values) * noiseScale

		for row := 0; row < ds.Len(); row++ {
			v, ok := ds.Row(row)[col].(float64)
			if !ok {
				continue
			}
			noisyValue, err := dpe.laplace.AddNoise(ctx, v, sensitivity, dpe.config.Epsilon)
			if err != nil {
				return nil, err
			}
			if err := noisy.SetValue(row, col, noisyValue); err != nil {
				return nil, err
			}
		}
	}

	dpe.logger.WithField("columns", len(numericalCols)).Info("Added differential privacy noise to dataset")

	return noisy, nil
}

// PrivacyBudgetAnalysis reports how the configured budget splits evenly
// across the given number of queries.
func (dpe *DifferentialPrivacyEngine) PrivacyBudgetAnalysis(numQueries int) (*BudgetAnalysis, error) {
	if err := errors.CheckPositiveInt("num_queries", numQueries); err != nil {
		return nil, err
	}

	epsilonPerQuery := dpe.config.Epsilon / float64(numQueries)

	return &BudgetAnalysis{
		TotalEpsilon:    dpe.config.Epsilon,
		NumQueries:      numQueries,
		EpsilonPerQuery: epsilonPerQuery,
		RemainingBudget: math.Max(0, dpe.config.Epsilon-float64(numQueries)*epsilonPerQuery),
		PrivacyLevel:    privacyLevel(dpe.config.Epsilon),
	}, nil
}

// GetUtilityMetrics compares the numeric means of two summaries. Columns
// present in only one summary are ignored; with no comparable columns the
// metrics stay zero.
func (dpe *DifferentialPrivacyEngine) GetUtilityMetrics(original, private *SummaryStatistics) (*UtilityMetrics, error) {
	if original == nil || private == nil {
		return nil, errors.NewValidationError(errors.CodeInvalidInput,
			"both original and private statistics are required")
	}

	metrics := &UtilityMetrics{}

	var absErrors, relErrors []float64
	for col, priv := range private.NumericalStatistics {
		orig, ok := original.NumericalStatistics[col]
		if !ok {
			continue
		}

		absError := math.Abs(orig.Mean - priv.Mean)
		relError := 0.0
		if orig.Mean != 0 {
			relError = absError / math.Abs(orig.Mean)
		}

		absErrors = append(absErrors, absError)
		relErrors = append(relErrors, relError)
	}

	if len(absErrors) > 0 {
		metrics.MeanAbsoluteError = stat.Mean(absErrors, nil)
		metrics.RelativeError = stat.Mean(relErrors, nil)
		metrics.UtilityScore = 1 - math.Min(1, metrics.RelativeError)
	}

	return metrics, nil
}

// privateCount noises a raw count with sensitivity 1 and clamps at zero.
func (dpe *DifferentialPrivacyEngine) privateCount(ctx context.Context, count float64) (float64, error) {
	noisy, err := dpe.laplace.AddNoise(ctx, count, 1.0, dpe.config.Epsilon)
	if err != nil {
		return 0, err
	}
	return math.Max(0, noisy), nil
}

// categoryValues returns a column's non-missing values as strings plus the
// distinct value count.
func categoryValues(ds *dataset.Dataset, col string) ([]string, int, error) {
	raw, err := ds.Column(col)
	if err != nil {
		return nil, 0, err
	}

	values := make([]string, 0, len(raw))
	distinct := make(map[string]bool)
	for _, v := range raw {
		if v == nil {
			continue
		}
		s := fmt.Sprintf("%v", v)
		values = append(values, s)
		distinct[s] = true
	}

	return values, len(distinct), nil
}

// resolveStatColumns fills nil column lists from the schema and validates
// explicit ones.
func resolveStatColumns(ds *dataset.Dataset, numericalCols, categoricalCols []string) ([]string, []string, error) {
	numericalCols, err := numericColumns(ds, numericalCols)
	if err != nil {
		return nil, nil, err
	}
	categoricalCols, err = nonNumericColumns(ds, categoricalCols)
	if err != nil {
		return nil, nil, err
	}
	return numericalCols, categoricalCols, nil
}

func numericColumns(ds *dataset.Dataset, cols []string) ([]string, error) {
	if cols == nil {
		for _, col := range ds.Columns() {
			if t, _ := ds.Type(col); t == dataset.ColumnNumeric {
				cols = append(cols, col)
			}
		}
		return cols, nil
	}

	for _, col := range cols {
		t, err := ds.Type(col)
		if err != nil {
			return nil, err
		}
		if t != dataset.ColumnNumeric {
			return nil, errors.NewSchemaError(errors.CodeColumnTypeMismatch,
				fmt.Sprintf("column %q is %s, not numeric", col, t))
		}
	}
	return cols, nil
}

func nonNumericColumns(ds *dataset.Dataset, cols []string) ([]string, error) {
	if cols == nil {
		for _, col := range ds.Columns() {
			if t, _ := ds.Type(col); t != dataset.ColumnNumeric {
				cols = append(cols, col)
			}
		}
		return cols, nil
	}

	for _, col := range cols {
		t, err := ds.Type(col)
		if err != nil {
			return nil, err
		}
		if t == dataset.ColumnNumeric {
			return nil, errors.NewSchemaError(errors.CodeColumnTypeMismatch,
				fmt.Sprintf("column %q is numeric, not categorical", col))
		}
	}
	return cols, nil
}

func privacyLevel(epsilon float64) string {
	switch {
	case epsilon < constants.HighPrivacyEpsilonBound:
		return constants.PrivacyLevelHigh
	case epsilon < constants.MediumPrivacyEpsilonBound:
		return constants.PrivacyLevelMedium
	default:
		return constants.PrivacyLevelLow
	}
}

func getDefaultDifferentialPrivacyConfig() *DifferentialPrivacyConfig {
	return &DifferentialPrivacyConfig{
		Epsilon: constants.DefaultEpsilon,
		Seed:    constants.DefaultSeed,
	}
}
