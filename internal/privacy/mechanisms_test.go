package privacy

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	apperrors "github.com/inferloop/tabsdc/pkg/errors"
)

func TestLaplaceMechanismDeterministicBySeed(t *testing.T) {
	ctx := context.Background()

	first, err := NewLaplaceMechanism(7).AddNoise(ctx, 10, 1, 1)
	require.NoError(t, err)
	second, err := NewLaplaceMechanism(7).AddNoise(ctx, 10, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	other, err := NewLaplaceMechanism(8).AddNoise(ctx, 10, 1, 1)
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestLaplaceNoiseIsCenteredOnValue(t *testing.T) {
	lm := NewLaplaceMechanism(42)
	ctx := context.Background()

	const n = 2000
	sum := 0.0
	for i := 0; i < n; i++ {
		noisy, err := lm.AddNoise(ctx, 100, 1, 1)
		require.NoError(t, err)
		sum += noisy - 100
	}

	// Laplace(0, 1) noise has stddev sqrt(2); the mean of 2000 draws
	// stays well inside a quarter
	assert.InDelta(t, 0, sum/n, 0.25)
}

func TestLaplaceNoiseScaleMatchesEpsilon(t *testing.T) {
	lm := NewLaplaceMechanism(42)
	ctx := context.Background()

	const n = 2000
	noise := make([]float64, n)
	for i := 0; i < n; i++ {
		noisy, err := lm.AddNoise(ctx, 0, 1, 0.1)
		require.NoError(t, err)
		noise[i] = noisy
	}

	// Sensitivity 1 at epsilon 0.1 gives scale b = 10 and stddev b*sqrt(2)
	want := 10 * math.Sqrt2
	assert.InDelta(t, want, stat.StdDev(noise, nil), want*0.1)
	assert.Equal(t, 10.0, lm.CalculateNoiseScale(1, 0.1))
}

func TestLaplaceZeroSensitivityReturnsValue(t *testing.T) {
	lm := NewLaplaceMechanism(1)

	got, err := lm.AddNoise(context.Background(), 5.5, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, 5.5, got)
}

func TestLaplaceRejectsInvalidParameters(t *testing.T) {
	lm := NewLaplaceMechanism(1)
	ctx := context.Background()

	_, err := lm.AddNoise(ctx, 1, 1, 0)
	require.Error(t, err)

	var paramErr *apperrors.ParameterError
	require.ErrorAs(t, err, &paramErr)
	assert.Equal(t, "epsilon", paramErr.Parameter)

	_, err = lm.AddNoise(ctx, 1, -1, 1)
	require.Error(t, err)

	require.NoError(t, lm.ValidateParameters(1, 0))
	require.Error(t, lm.ValidateParameters(1, 0.5))
}

func TestAddNoiseToSeriesHonorsCancellation(t *testing.T) {
	lm := NewLaplaceMechanism(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := lm.AddNoiseToSeries(ctx, []float64{1, 2, 3}, 1, 1)
	require.ErrorIs(t, err, context.Canceled)
}

func TestAddNoiseToSeriesPerturbsEachValue(t *testing.T) {
	lm := NewLaplaceMechanism(3)
	data := []float64{1, 2, 3}

	out, err := lm.AddNoiseToSeries(context.Background(), data, 1, 1)
	require.NoError(t, err)
	require.Len(t, out, 3)
	for i := range out {
		assert.NotEqual(t, data[i], out[i])
	}

	// Input slice is untouched
	assert.Equal(t, []float64{1, 2, 3}, data)

	empty, err := lm.AddNoiseToSeries(context.Background(), nil, 1, 1)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestCalculateSensitivityByQueryType(t *testing.T) {
	lm := NewLaplaceMechanism(1)
	data := []float64{0, 2, 4, 6, 8, 10}

	assert.Equal(t, 1.0, lm.CalculateSensitivity(data, QueryTypeCount))
	assert.Equal(t, 10.0, lm.CalculateSensitivity(data, QueryTypeSum))
	assert.InDelta(t, 10.0/6.0, lm.CalculateSensitivity(data, QueryTypeMean), 1e-12)
	assert.Equal(t, 5.0, lm.CalculateSensitivity(data, QueryTypeMedian))
	assert.InDelta(t, 100.0/6.0, lm.CalculateSensitivity(data, QueryTypeVariance), 1e-12)
	assert.Equal(t, 10.0, lm.CalculateSensitivity(data, QueryType("unknown")))
	assert.Equal(t, 0.0, lm.CalculateSensitivity(nil, QueryTypeCount))
}

func TestGaussianMechanismValidatesDelta(t *testing.T) {
	gm := NewGaussianMechanism(1)

	require.Error(t, gm.ValidateParameters(1, 0))
	require.Error(t, gm.ValidateParameters(1, 1))
	require.NoError(t, gm.ValidateParameters(1, 1e-5))

	_, err := gm.AddNoiseWithDelta(context.Background(), 1, 1, 1, 2)
	require.Error(t, err)
}

func TestGaussianNoiseScaleFormula(t *testing.T) {
	gm := NewGaussianMechanism(1)

	// sigma = sqrt(2 ln(1.25/delta)) * sensitivity / epsilon
	want := math.Sqrt(2*math.Log(1.25/1e-5)) * 2.0 / 0.5
	assert.InDelta(t, want, gm.CalculateNoiseScale(2.0, 0.5, 1e-5), 1e-12)
	assert.InDelta(t, 4.844, gm.CalculateNoiseScale(1, 1, 1e-5), 0.01)
}

func TestGaussianMechanismDeterministicBySeed(t *testing.T) {
	ctx := context.Background()

	first, err := NewGaussianMechanism(9).AddNoise(ctx, 0, 1, 1)
	require.NoError(t, err)
	second, err := NewGaussianMechanism(9).AddNoise(ctx, 0, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestMechanismMetadata(t *testing.T) {
	assert.Equal(t, "laplace", NewLaplaceMechanism(1).GetName())
	assert.Equal(t, "gaussian", NewGaussianMechanism(1).GetName())
	assert.NotEmpty(t, NewLaplaceMechanism(1).GetDescription())
	assert.NotEmpty(t, NewGaussianMechanism(1).GetDescription())
}
