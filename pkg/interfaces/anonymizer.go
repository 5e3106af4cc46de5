package interfaces

import (
	"context"

	"github.com/inferloop/tabsdc/internal/dataset"
)

// Anonymizer defines the interface for dataset anonymization engines
type Anonymizer interface {
	// GetName returns a human-readable name for the engine
	GetName() string

	// Anonymize transforms the dataset so it satisfies the engine's
	// privacy model, suppressing records that cannot comply
	Anonymize(ctx context.Context, ds *dataset.Dataset) (*dataset.Dataset, error)
}
