package privacy

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/tabsdc/internal/dataset"
	"github.com/inferloop/tabsdc/pkg/constants"
	"github.com/inferloop/tabsdc/pkg/errors"
)

type KAnonymityConfig struct {
	K                    int      `json:"k"`
	QuasiIdentifiers     []string `json:"quasi_identifiers"`
	SuppressionThreshold float64  `json:"suppression_threshold"`
}

type KAnonymityProcessor struct {
	config      *KAnonymityConfig
	generalizer *Generalizer
	logger      *logrus.Logger
}

// AnonymizationStats reports the outcome of a k-anonymity run. Callers and
// reporting collaborators rely on the JSON keys staying stable.
type AnonymizationStats struct {
	OriginalRecords   int     `json:"original_records"`
	AnonymizedRecords int     `json:"anonymized_records"`
	SuppressionRate   float64 `json:"suppression_rate"`
	KValue            int     `json:"k_value"`
	AnonymityAchieved bool    `json:"anonymity_achieved"`
}

func NewKAnonymityProcessor(config *KAnonymityConfig, logger *logrus.Logger) (*KAnonymityProcessor, error) {
	if config == nil {
		config = getDefaultKAnonymityConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}

	if err := errors.CheckK(config.K); err != nil {
		return nil, err
	}
	if err := errors.CheckFraction("suppression_threshold", config.SuppressionThreshold); err != nil {
		return nil, err
	}
	if len(config.QuasiIdentifiers) == 0 {
		return nil, errors.NewValidationError(errors.CodeMissingField,
			"at least one quasi-identifier is required")
	}

	return &KAnonymityProcessor{
		config:      config,
		generalizer: NewGeneralizer(logger),
		logger:      logger,
	}, nil
}

func (k *KAnonymityProcessor) GetName() string {
	return "k-anonymity"
}

// Anonymize generalizes the quasi-identifiers, partitions the records into
// equivalence classes, and suppresses every class smaller than k in full.
// Within a retained class, row order is preserved. When every class falls
// below k the result is an empty dataset with the schema intact, which is a
// valid outcome rather than an error.
func (k *KAnonymityProcessor) Anonymize(ctx context.Context, ds *dataset.Dataset) (*dataset.Dataset, error) {
	if ds == nil {
		return nil, errors.NewValidationError(errors.CodeInvalidInput, "dataset is nil")
	}

	k.logger.WithFields(logrus.Fields{
		"dataset_size": ds.Len(),
		"k_value":      k.config.K,
	}).Info("Applying k-anonymity")

	if ds.Len() == 0 {
		return ds.EmptyLike(), nil
	}

	// Step 1: Generalize quasi-identifier columns
	generalized, err := k.generalizer.GeneralizeQuasiIdentifiers(ds, k.config.QuasiIdentifiers, k.config.K)
	if err != nil {
		return nil, err
	}

	// Step 2: Partition into equivalence classes
	classes, err := PartitionByQuasiIdentifiers(generalized, k.config.QuasiIdentifiers)
	if err != nil {
		return nil, err
	}

	// Step 3: Suppress classes smaller than k in full
	retained := make([]int, 0, generalized.Len())
	suppressed := 0
	for _, class := range classes {
		if class.Size >= k.config.K {
			retained = append(retained, class.Rows...)
		} else {
			suppressed += class.Size
		}
	}

	result, err := generalized.Select(retained)
	if err != nil {
		return nil, err
	}

	suppressionRate := float64(suppressed) / float64(ds.Len())
	if suppressionRate > k.config.SuppressionThreshold {
		k.logger.WithFields(logrus.Fields{
			"suppression_rate": suppressionRate,
			"threshold":        k.config.SuppressionThreshold,
		}).Warn("Suppression rate exceeds threshold")
	}

	k.logger.WithFields(logrus.Fields{
		"suppressed": suppressed,
		"retained":   result.Len(),
		"classes":    len(classes),
	}).Info("Suppression complete")

	return result, nil
}

// GetStatistics compares the original dataset with an anonymized output.
// AnonymityAchieved re-verifies the invariant by re-partitioning the output.
func (k *KAnonymityProcessor) GetStatistics(original, anonymized *dataset.Dataset) (*AnonymizationStats, error) {
	if original == nil || anonymized == nil {
		return nil, errors.NewValidationError(errors.CodeInvalidInput, "dataset is nil")
	}

	achieved, err := k.ValidateKAnonymity(anonymized)
	if err != nil {
		return nil, err
	}

	suppressionRate := 0.0
	if original.Len() > 0 {
		suppressionRate = 1.0 - float64(anonymized.Len())/float64(original.Len())
	}

	return &AnonymizationStats{
		OriginalRecords:   original.Len(),
		AnonymizedRecords: anonymized.Len(),
		SuppressionRate:   suppressionRate,
		KValue:            k.config.K,
		AnonymityAchieved: achieved,
	}, nil
}

// ValidateKAnonymity reports whether every equivalence class in the dataset
// has at least k records. An empty dataset satisfies the invariant
// vacuously.
func (k *KAnonymityProcessor) ValidateKAnonymity(ds *dataset.Dataset) (bool, error) {
	classes, err := PartitionByQuasiIdentifiers(ds, k.config.QuasiIdentifiers)
	if err != nil {
		return false, err
	}

	for _, class := range classes {
		if class.Size < k.config.K {
			return false, nil
		}
	}
	return true, nil
}

func getDefaultKAnonymityConfig() *KAnonymityConfig {
	return &KAnonymityConfig{
		K:                    constants.DefaultK,
		QuasiIdentifiers:     []string{"age", "gender", "zipcode"},
		SuppressionThreshold: constants.DefaultSuppressionThreshold,
	}
}
