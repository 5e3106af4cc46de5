package privacy

import (
	"context"
	"fmt"
	"math"

	exprand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/inferloop/tabsdc/pkg/errors"
)

// QueryType identifies the aggregate query a sensitivity bound is derived
// for.
type QueryType string

const (
	QueryTypeCount    QueryType = "count"
	QueryTypeSum      QueryType = "sum"
	QueryTypeMean     QueryType = "mean"
	QueryTypeMedian   QueryType = "median"
	QueryTypeVariance QueryType = "variance"
)

// defaultGaussianDelta is used when callers do not supply a delta.
const defaultGaussianDelta = 1e-5

// LaplaceMechanism implements the Laplace mechanism for pure
// epsilon-differential privacy. Noise draws come from a seeded source, so
// equal seeds produce equal noise sequences.
type LaplaceMechanism struct {
	src exprand.Source
}

// GaussianMechanism implements the Gaussian mechanism for approximate
// (epsilon, delta)-differential privacy.
type GaussianMechanism struct {
	src exprand.Source
}

// NewLaplaceMechanism creates a new Laplace mechanism seeded with the given
// value.
func NewLaplaceMechanism(seed int64) *LaplaceMechanism {
	return &LaplaceMechanism{src: exprand.NewSource(uint64(seed))}
}

// GetName returns the mechanism name
func (lm *LaplaceMechanism) GetName() string {
	return "laplace"
}

// GetDescription returns mechanism description
func (lm *LaplaceMechanism) GetDescription() string {
	return "Laplace mechanism adds noise from Laplace distribution calibrated to query sensitivity"
}

// AddNoise adds Laplace noise to a single value. The noise scale is
// sensitivity/epsilon; zero sensitivity returns the value unchanged.
func (lm *LaplaceMechanism) AddNoise(ctx context.Context, value, sensitivity, epsilon float64) (float64, error) {
	if err := errors.CheckEpsilon(epsilon); err != nil {
		return 0, err
	}
	if sensitivity < 0 {
		return 0, errors.NewParameterError("sensitivity", sensitivity, "a value >= 0")
	}
	if sensitivity == 0 {
		return value, nil
	}

	dist := distuv.Laplace{
		Mu:    0,
		Scale: lm.CalculateNoiseScale(sensitivity, epsilon),
		Src:   lm.src,
	}

	return value + dist.Rand(), nil
}

// AddNoiseToSeries adds independent Laplace noise to every value.
func (lm *LaplaceMechanism) AddNoiseToSeries(ctx context.Context, data []float64, sensitivity, epsilon float64) ([]float64, error) {
	if len(data) == 0 {
		return []float64{}, nil
	}

	result := make([]float64, len(data))
	for i, value := range data {
		noisyValue, err := lm.AddNoise(ctx, value, sensitivity, epsilon)
		if err != nil {
			return nil, fmt.Errorf("error adding noise at index %d: %w", i, err)
		}
		result[i] = noisyValue

		// Check for cancellation
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
	}

	return result, nil
}

// CalculateSensitivity calculates sensitivity for different query types
func (lm *LaplaceMechanism) CalculateSensitivity(data []float64, queryType QueryType) float64 {
	return calculateSensitivity(data, queryType)
}

// ValidateParameters validates epsilon and delta parameters
func (lm *LaplaceMechanism) ValidateParameters(epsilon, delta float64) error {
	if err := errors.CheckEpsilon(epsilon); err != nil {
		return err
	}
	// Laplace mechanism is pure DP, delta must be 0
	if delta != 0 {
		return errors.NewParameterError("delta", delta, "0 for the Laplace mechanism")
	}
	return nil
}

// CalculateNoiseScale calculates the noise scale parameter (b = sensitivity / epsilon)
func (lm *LaplaceMechanism) CalculateNoiseScale(sensitivity, epsilon float64) float64 {
	return sensitivity / epsilon
}

// NewGaussianMechanism creates a new Gaussian mechanism seeded with the
// given value.
func NewGaussianMechanism(seed int64) *GaussianMechanism {
	return &GaussianMechanism{src: exprand.NewSource(uint64(seed))}
}

// GetName returns the mechanism name
func (gm *GaussianMechanism) GetName() string {
	return "gaussian"
}

// GetDescription returns mechanism description
func (gm *GaussianMechanism) GetDescription() string {
	return "Gaussian mechanism adds noise from normal distribution for (ε,δ)-differential privacy"
}

// AddNoise adds Gaussian noise using a default delta of 1e-5.
func (gm *GaussianMechanism) AddNoise(ctx context.Context, value, sensitivity, epsilon float64) (float64, error) {
	return gm.AddNoiseWithDelta(ctx, value, sensitivity, epsilon, defaultGaussianDelta)
}

// AddNoiseWithDelta adds Gaussian noise with an explicit delta.
func (gm *GaussianMechanism) AddNoiseWithDelta(ctx context.Context, value, sensitivity, epsilon, delta float64) (float64, error) {
	if err := gm.ValidateParameters(epsilon, delta); err != nil {
		return 0, err
	}
	if sensitivity < 0 {
		return 0, errors.NewParameterError("sensitivity", sensitivity, "a value >= 0")
	}
	if sensitivity == 0 {
		return value, nil
	}

	dist := distuv.Normal{
		Mu:    0,
		Sigma: gm.CalculateNoiseScale(sensitivity, epsilon, delta),
		Src:   gm.src,
	}

	return value + dist.Rand(), nil
}

// AddNoiseToSeries adds independent Gaussian noise to every value using the
// default delta.
func (gm *GaussianMechanism) AddNoiseToSeries(ctx context.Context, data []float64, sensitivity, epsilon float64) ([]float64, error) {
	if len(data) == 0 {
		return []float64{}, nil
	}

	result := make([]float64, len(data))
	for i, value := range data {
		noisyValue, err := gm.AddNoise(ctx, value, sensitivity, epsilon)
		if err != nil {
			return nil, fmt.Errorf("error adding noise at index %d: %w", i, err)
		}
		result[i] = noisyValue

		// Check for cancellation
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
	}

	return result, nil
}

// CalculateSensitivity calculates sensitivity for different query types
func (gm *GaussianMechanism) CalculateSensitivity(data []float64, queryType QueryType) float64 {
	return calculateSensitivity(data, queryType)
}

// ValidateParameters validates epsilon and delta parameters
func (gm *GaussianMechanism) ValidateParameters(epsilon, delta float64) error {
	if err := errors.CheckEpsilon(epsilon); err != nil {
		return err
	}
	if delta <= 0 || delta >= 1 {
		return errors.NewParameterError("delta", delta, "a value in (0, 1)")
	}
	return nil
}

// CalculateNoiseScale calculates the noise scale parameter
// (σ = sqrt(2 * ln(1.25/δ)) * sensitivity / ε)
func (gm *GaussianMechanism) CalculateNoiseScale(sensitivity, epsilon, delta float64) float64 {
	return math.Sqrt(2*math.Log(1.25/delta)) * sensitivity / epsilon
}

func calculateSensitivity(data []float64, queryType QueryType) float64 {
	if len(data) == 0 {
		return 0
	}

	switch queryType {
	case QueryTypeCount:
		return 1
	case QueryTypeSum:
		return dataRange(data)
	case QueryTypeMean:
		return dataRange(data) / float64(len(data))
	case QueryTypeMedian:
		return dataRange(data) / 2
	case QueryTypeVariance:
		r := dataRange(data)
		return r * r / float64(len(data))
	default:
		// Conservative default
		return dataRange(data)
	}
}

func dataRange(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return floats.Max(data) - floats.Min(data)
}
