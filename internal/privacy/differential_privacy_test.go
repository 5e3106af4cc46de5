package privacy

import (
	"context"
	"math"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"github.com/inferloop/tabsdc/internal/dataset"
	apperrors "github.com/inferloop/tabsdc/pkg/errors"
)

func TestNewDifferentialPrivacyEngineValidatesEpsilon(t *testing.T) {
	logger := logrus.New()

	_, err := NewDifferentialPrivacyEngine(&DifferentialPrivacyConfig{Epsilon: -1}, logger)
	require.Error(t, err)

	_, err = NewDifferentialPrivacyEngine(&DifferentialPrivacyConfig{Epsilon: 0}, logger)
	require.Error(t, err)

	engine, err := NewDifferentialPrivacyEngine(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, engine.Epsilon())
}

func TestEngineIsReproducibleBySeed(t *testing.T) {
	ctx := context.Background()
	values := []interface{}{"Flu", "Cold", "Flu"}

	first, err := createTestEngine(t, 1.0, 11).PrivateCount(ctx, values, nil)
	require.NoError(t, err)
	second, err := createTestEngine(t, 1.0, 11).PrivateCount(ctx, values, nil)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	other, err := createTestEngine(t, 1.0, 12).PrivateCount(ctx, values, nil)
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestPrivateCountWithoutCondition(t *testing.T) {
	engine := createTestEngine(t, 1000, 7)

	// Missing values still count toward the series length
	count, err := engine.PrivateCount(context.Background(), []interface{}{"Flu", "Cold", nil, "Flu"}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, count, 0.05)
}

func TestPrivateCountWithCondition(t *testing.T) {
	engine := createTestEngine(t, 1000, 7)
	ctx := context.Background()
	values := []interface{}{"Flu", "Cold", nil, "Flu"}

	count, err := engine.PrivateCount(ctx, values, "Flu")
	require.NoError(t, err)
	assert.InDelta(t, 2.0, count, 0.05)

	count, err = engine.PrivateCount(ctx, values, "Measles")
	require.NoError(t, err)
	assert.InDelta(t, 0.0, count, 0.05)
	assert.GreaterOrEqual(t, count, 0.0)
}

func TestPrivateCountNeverGoesNegative(t *testing.T) {
	engine := createTestEngine(t, 0.1, 21)
	ctx := context.Background()

	sawZero := false
	for i := 0; i < 60; i++ {
		count, err := engine.PrivateCount(ctx, []interface{}{"x"}, nil)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, count, 0.0)
		if count == 0 {
			sawZero = true
		}
	}

	// At noise scale 10 around a count of 1, many draws land below zero
	// and must be clamped
	assert.True(t, sawZero)
}

func TestPrivateCountNoiseMatchesLaplaceScale(t *testing.T) {
	engine := createTestEngine(t, 0.1, 42)
	ctx := context.Background()

	values := make([]interface{}, 100)
	for i := range values {
		values[i] = "record"
	}

	const n = 1000
	noise := make([]float64, n)
	for i := 0; i < n; i++ {
		count, err := engine.PrivateCount(ctx, values, nil)
		require.NoError(t, err)
		noise[i] = count - 100
	}

	// Counting has sensitivity 1, so epsilon 0.1 draws Laplace noise at
	// scale 10 with stddev 10*sqrt(2)
	want := 10 * math.Sqrt2
	assert.InDelta(t, want, stat.StdDev(noise, nil), want*0.1)
}

func TestPrivateMeanTracksTrueMean(t *testing.T) {
	engine := createTestEngine(t, 1000, 7)
	ctx := context.Background()
	values := []float64{10, 20, 30}

	mean, err := engine.PrivateMean(ctx, values, &Bounds{Min: 0, Max: 100})
	require.NoError(t, err)
	assert.InDelta(t, 20.0, mean, 1.0)

	// Without public bounds the observed range stands in
	mean, err = engine.PrivateMean(ctx, values, nil)
	require.NoError(t, err)
	assert.InDelta(t, 20.0, mean, 1.0)

	_, err = engine.PrivateMean(ctx, nil, nil)
	require.Error(t, err)
}

func TestPrivateHistogramSplitsRange(t *testing.T) {
	engine := createTestEngine(t, 1000, 7)
	values := []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}

	hist, err := engine.PrivateHistogram(context.Background(), values, 2)
	require.NoError(t, err)
	require.Len(t, hist, 2)

	assert.Contains(t, hist, "0.0-4.5")
	assert.Contains(t, hist, "4.5-9.0")
	assert.InDelta(t, 5.0, hist["0.0-4.5"], 0.2)
	assert.InDelta(t, 5.0, hist["4.5-9.0"], 0.2)
	for _, count := range hist {
		assert.GreaterOrEqual(t, count, 0.0)
	}
}

func TestPrivateHistogramUniformColumn(t *testing.T) {
	engine := createTestEngine(t, 1000, 7)

	// A zero-width value range is padded by half a unit on each side
	hist, err := engine.PrivateHistogram(context.Background(), []float64{7, 7, 7, 7}, 2)
	require.NoError(t, err)
	require.Len(t, hist, 2)

	assert.Contains(t, hist, "6.5-7.0")
	assert.Contains(t, hist, "7.0-7.5")
	assert.InDelta(t, 4.0, hist["7.0-7.5"], 0.2)
	assert.InDelta(t, 0.0, hist["6.5-7.0"], 0.2)
}

func TestPrivateHistogramDefaultsToTenBins(t *testing.T) {
	engine := createTestEngine(t, 1000, 7)
	values := []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}

	hist, err := engine.PrivateHistogram(context.Background(), values, 0)
	require.NoError(t, err)
	assert.Len(t, hist, 10)

	_, err = engine.PrivateHistogram(context.Background(), nil, 2)
	require.Error(t, err)
}

func TestPrivateCategoryCounts(t *testing.T) {
	engine := createTestEngine(t, 1000, 7)
	ctx := context.Background()

	counts, err := engine.PrivateCategoryCounts(ctx, []string{"a", "a", "b"})
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.InDelta(t, 2.0, counts["a"], 0.05)
	assert.InDelta(t, 1.0, counts["b"], 0.05)

	empty, err := engine.PrivateCategoryCounts(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestPrivateCorrelationTracksPearson(t *testing.T) {
	engine := createTestEngine(t, 1000, 7)

	x := make([]float64, 20)
	y := make([]float64, 20)
	for i := range x {
		x[i] = float64(i + 1)
		y[i] = 2*float64(i+1) + 1
	}

	r, err := engine.PrivateCorrelation(context.Background(), x, y)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, r, 0.01)
	assert.LessOrEqual(t, r, 1.0)
}

func TestPrivateCorrelationStaysInRange(t *testing.T) {
	engine := createTestEngine(t, 0.05, 31)
	ctx := context.Background()

	x := []float64{1, 2, 3, 4}
	y := []float64{2, 4, 6, 8}

	clamped := 0
	for i := 0; i < 40; i++ {
		r, err := engine.PrivateCorrelation(ctx, x, y)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, r, -1.0)
		assert.LessOrEqual(t, r, 1.0)
		if r == 1.0 || r == -1.0 {
			clamped++
		}
	}

	// Noise scale 10 pushes most draws outside the valid range
	assert.Greater(t, clamped, 0)
}

func TestPrivateCorrelationValidatesInput(t *testing.T) {
	engine := createTestEngine(t, 1.0, 7)
	ctx := context.Background()

	_, err := engine.PrivateCorrelation(ctx, []float64{1, 2}, []float64{1})
	require.Error(t, err)

	_, err = engine.PrivateCorrelation(ctx, []float64{1}, []float64{1})
	require.Error(t, err)
}

func TestPrivateSummaryStatistics(t *testing.T) {
	ds := createDemoDataset(t)
	engine := createTestEngine(t, 1000, 7)

	summary, err := engine.PrivateSummaryStatistics(context.Background(), ds, []string{"age"}, []string{"diagnosis"})
	require.NoError(t, err)

	assert.InDelta(t, 9.0, summary.TotalRecords, 0.05)

	age := summary.NumericalStatistics["age"]
	require.NotNil(t, age)
	assert.InDelta(t, 9.0, age.Count, 0.05)
	assert.InDelta(t, 35.0, age.Mean, 0.05)

	// Bounds are public, min and max carry no noise
	assert.Equal(t, 25.0, age.Min)
	assert.Equal(t, 45.0, age.Max)

	diagnosis := summary.CategoricalStatistics["diagnosis"]
	require.NotNil(t, diagnosis)
	assert.InDelta(t, 9.0, diagnosis.Count, 0.05)
	assert.InDelta(t, 3.0, diagnosis.UniqueValues, 0.05)
	require.Len(t, diagnosis.TopCategories, 3)
	assert.InDelta(t, 3.0, diagnosis.TopCategories["Flu"], 0.05)
	assert.InDelta(t, 3.0, diagnosis.TopCategories["Cold"], 0.05)
	assert.InDelta(t, 3.0, diagnosis.TopCategories["Asthma"], 0.05)
}

func TestPrivateSummaryStatisticsAutoDetectsColumns(t *testing.T) {
	ds := createDemoDataset(t)
	engine := createTestEngine(t, 1000, 7)

	summary, err := engine.PrivateSummaryStatistics(context.Background(), ds, nil, nil)
	require.NoError(t, err)

	assert.Len(t, summary.NumericalStatistics, 1)
	assert.Contains(t, summary.NumericalStatistics, "age")
	assert.Len(t, summary.CategoricalStatistics, 3)
	assert.Contains(t, summary.CategoricalStatistics, "gender")
	assert.Contains(t, summary.CategoricalStatistics, "zipcode")
	assert.Contains(t, summary.CategoricalStatistics, "diagnosis")
}

func TestSummaryStatisticsValidatesColumns(t *testing.T) {
	ds := createDemoDataset(t)
	engine := createTestEngine(t, 1.0, 7)
	ctx := context.Background()

	_, err := engine.PrivateSummaryStatistics(ctx, ds, []string{"gender"}, nil)
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeColumnTypeMismatch, appErr.Code)

	_, err = engine.PrivateSummaryStatistics(ctx, ds, []string{"height"}, nil)
	require.Error(t, err)
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeUnknownColumn, appErr.Code)

	_, err = engine.PrivateSummaryStatistics(ctx, ds, nil, []string{"age"})
	require.Error(t, err)
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeColumnTypeMismatch, appErr.Code)

	_, err = engine.PrivateSummaryStatistics(ctx, nil, nil, nil)
	require.Error(t, err)
}

func TestSummaryStatisticsEmptyNumericColumnFails(t *testing.T) {
	ds, err := dataset.New([]string{"age"}, map[string]dataset.ColumnType{
		"age": dataset.ColumnNumeric,
	})
	require.NoError(t, err)
	require.NoError(t, ds.AppendRow(dataset.Record{"age": nil}))
	require.NoError(t, ds.AppendRow(dataset.Record{"age": nil}))

	engine := createTestEngine(t, 1.0, 7)

	_, err = engine.PrivateSummaryStatistics(context.Background(), ds, []string{"age"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "age")
}

func TestExactSummaryStatisticsIsNoiseless(t *testing.T) {
	ds := createDemoDataset(t)
	engine := createTestEngine(t, 1.0, 7)

	summary, err := engine.ExactSummaryStatistics(context.Background(), ds, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 9.0, summary.TotalRecords)

	age := summary.NumericalStatistics["age"]
	require.NotNil(t, age)
	assert.Equal(t, 9.0, age.Count)
	assert.Equal(t, 35.0, age.Mean)
	assert.Equal(t, 25.0, age.Min)
	assert.Equal(t, 45.0, age.Max)

	diagnosis := summary.CategoricalStatistics["diagnosis"]
	require.NotNil(t, diagnosis)
	assert.Equal(t, 3.0, diagnosis.UniqueValues)
	assert.Equal(t, map[string]float64{"Flu": 3, "Cold": 3, "Asthma": 3}, diagnosis.TopCategories)
}

func TestAddNoiseToDatasetPerturbsNumericCells(t *testing.T) {
	ds := createDemoDataset(t)
	require.NoError(t, ds.AppendRow(dataset.Record{"age": nil, "gender": "X", "zipcode": "00000", "diagnosis": "Flu"}))

	engine := createTestEngine(t, 1.0, 7)

	noisy, err := engine.AddNoiseToDataset(context.Background(), ds, nil, 0.1)
	require.NoError(t, err)
	require.Equal(t, ds.Len(), noisy.Len())

	for row := 0; row < 9; row++ {
		assert.NotEqual(t, ds.Row(row)["age"], noisy.Row(row)["age"])
		assert.Equal(t, ds.Row(row)["gender"], noisy.Row(row)["gender"])
	}

	// Missing cells stay missing, the input dataset stays clean
	assert.Nil(t, noisy.Row(9)["age"])
	assert.Equal(t, 25.0, ds.Row(0)["age"])
}

func TestAddNoiseToDatasetZeroRangeColumn(t *testing.T) {
	ds, err := dataset.New([]string{"age"}, map[string]dataset.ColumnType{
		"age": dataset.ColumnNumeric,
	})
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		require.NoError(t, ds.AppendRow(dataset.Record{"age": 50.0}))
	}

	engine := createTestEngine(t, 1.0, 7)

	noisy, err := engine.AddNoiseToDataset(context.Background(), ds, []string{"age"}, 0.1)
	require.NoError(t, err)
	for row := 0; row < noisy.Len(); row++ {
		assert.Equal(t, 50.0, noisy.Row(row)["age"])
	}
}

func TestAddNoiseToDatasetValidatesInput(t *testing.T) {
	ds := createDemoDataset(t)
	engine := createTestEngine(t, 1.0, 7)
	ctx := context.Background()

	_, err := engine.AddNoiseToDataset(ctx, ds, nil, -0.1)
	require.Error(t, err)
	var paramErr *apperrors.ParameterError
	require.ErrorAs(t, err, &paramErr)
	assert.Equal(t, "noise_scale", paramErr.Parameter)

	_, err = engine.AddNoiseToDataset(ctx, ds, []string{"height"}, 0.1)
	require.Error(t, err)

	_, err = engine.AddNoiseToDataset(ctx, nil, nil, 0.1)
	require.Error(t, err)
}

func TestPrivacyBudgetAnalysisSplitsEvenly(t *testing.T) {
	engine := createTestEngine(t, 1.0, 7)

	analysis, err := engine.PrivacyBudgetAnalysis(5)
	require.NoError(t, err)

	assert.Equal(t, 1.0, analysis.TotalEpsilon)
	assert.Equal(t, 5, analysis.NumQueries)
	assert.InDelta(t, 0.2, analysis.EpsilonPerQuery, 1e-12)
	assert.Equal(t, 0.0, analysis.RemainingBudget)
	assert.Equal(t, "Medium", analysis.PrivacyLevel)

	_, err = engine.PrivacyBudgetAnalysis(0)
	require.Error(t, err)
}

func TestPrivacyBudgetAnalysisLevels(t *testing.T) {
	analysis, err := createTestEngine(t, 0.5, 7).PrivacyBudgetAnalysis(1)
	require.NoError(t, err)
	assert.Equal(t, "High", analysis.PrivacyLevel)

	analysis, err = createTestEngine(t, 10, 7).PrivacyBudgetAnalysis(1)
	require.NoError(t, err)
	assert.Equal(t, "Low", analysis.PrivacyLevel)
}

func TestGetUtilityMetricsComparesMeans(t *testing.T) {
	engine := createTestEngine(t, 1.0, 7)

	original := &SummaryStatistics{NumericalStatistics: map[string]*NumericalColumnStats{
		"age": {Mean: 35},
	}}
	private := &SummaryStatistics{NumericalStatistics: map[string]*NumericalColumnStats{
		"age":    {Mean: 36},
		"weight": {Mean: 70},
	}}

	metrics, err := engine.GetUtilityMetrics(original, private)
	require.NoError(t, err)

	// The weight column has no original counterpart and is ignored
	assert.InDelta(t, 1.0, metrics.MeanAbsoluteError, 1e-12)
	assert.InDelta(t, 1.0/35.0, metrics.RelativeError, 1e-12)
	assert.InDelta(t, 1.0-1.0/35.0, metrics.UtilityScore, 1e-12)
}

func TestGetUtilityMetricsZeroMeanColumn(t *testing.T) {
	engine := createTestEngine(t, 1.0, 7)

	original := &SummaryStatistics{NumericalStatistics: map[string]*NumericalColumnStats{
		"delta": {Mean: 0},
	}}
	private := &SummaryStatistics{NumericalStatistics: map[string]*NumericalColumnStats{
		"delta": {Mean: 0.5},
	}}

	metrics, err := engine.GetUtilityMetrics(original, private)
	require.NoError(t, err)

	// A zero original mean contributes no relative error
	assert.InDelta(t, 0.5, metrics.MeanAbsoluteError, 1e-12)
	assert.Equal(t, 0.0, metrics.RelativeError)
	assert.Equal(t, 1.0, metrics.UtilityScore)
}

func TestGetUtilityMetricsNoComparableColumns(t *testing.T) {
	engine := createTestEngine(t, 1.0, 7)

	original := &SummaryStatistics{NumericalStatistics: map[string]*NumericalColumnStats{
		"age": {Mean: 35},
	}}
	private := &SummaryStatistics{NumericalStatistics: map[string]*NumericalColumnStats{
		"weight": {Mean: 70},
	}}

	metrics, err := engine.GetUtilityMetrics(original, private)
	require.NoError(t, err)
	assert.Equal(t, 0.0, metrics.MeanAbsoluteError)
	assert.Equal(t, 0.0, metrics.UtilityScore)

	_, err = engine.GetUtilityMetrics(nil, private)
	require.Error(t, err)
}

// Helper functions to create test data

func createTestEngine(t *testing.T, epsilon float64, seed int64) *DifferentialPrivacyEngine {
	t.Helper()

	engine, err := NewDifferentialPrivacyEngine(&DifferentialPrivacyConfig{
		Epsilon: epsilon,
		Seed:    seed,
	}, logrus.New())
	require.NoError(t, err)
	return engine
}
