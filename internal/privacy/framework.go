package privacy

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/inferloop/tabsdc/internal/dataset"
	"github.com/inferloop/tabsdc/pkg/constants"
	"github.com/inferloop/tabsdc/pkg/errors"
	"github.com/inferloop/tabsdc/pkg/interfaces"
)

// Protection layer labels. The anonymization labels match the engines'
// GetName values.
const (
	layerKAnonymity          = "k-anonymity"
	layerLDiversity          = "l-diversity"
	layerTCloseness          = "t-closeness"
	layerDifferentialPrivacy = "differential-privacy"
	layerAccessControl       = "access-control"
	layerSimulatedEncryption = "simulated-encryption"
)

// FrameworkConfig selects the protection layers an integrated run applies.
// A nil engine config skips that layer. AccessControl and
// SimulatedEncryption record process-level safeguards that never transform
// the data but count toward the protection score.
type FrameworkConfig struct {
	KAnonymity          *KAnonymityConfig          `json:"k_anonymity,omitempty"`
	LDiversity          *LDiversityConfig          `json:"l_diversity,omitempty"`
	TCloseness          *TClosenessConfig          `json:"t_closeness,omitempty"`
	DifferentialPrivacy *DifferentialPrivacyConfig `json:"differential_privacy,omitempty"`
	NoiseScale          float64                    `json:"noise_scale"`
	AccessControl       bool                       `json:"access_control"`
	SimulatedEncryption bool                       `json:"simulated_encryption"`
}

// PrivacyFramework chains the configured anonymization engines and the
// differential privacy engine into one integrated protection run. Noise is
// injected after suppression so distribution distances are measured on real
// values.
type PrivacyFramework struct {
	config     *FrameworkConfig
	logger     *logrus.Logger
	kProcessor *KAnonymityProcessor
	lProcessor *LDiversityProcessor
	tProcessor *TClosenessProcessor
	dpEngine   *DifferentialPrivacyEngine
}

// RegulatoryCompliance maps the applied layers onto the regimes the toolkit
// is evaluated against: HIPAA follows access control, GDPR follows the
// k-anonymity plus differential privacy pairing, FDA follows utility
// preservation above 0.7.
type RegulatoryCompliance struct {
	HIPAA bool `json:"hipaa"`
	GDPR  bool `json:"gdpr"`
	FDA   bool `json:"fda"`
}

// FrameworkReport describes one integrated protection run. RecordsAfter
// holds the record count remaining after each data-transforming layer,
// keyed by layer label.
type FrameworkReport struct {
	OriginalRecords  int                   `json:"original_records"`
	FinalRecords     int                   `json:"final_records"`
	SuppressionRate  float64               `json:"suppression_rate"`
	AppliedLayers    []string              `json:"applied_layers"`
	ProtectionLayers int                   `json:"protection_layers"`
	RecordsAfter     map[string]int        `json:"records_after"`
	NoisedColumns    []string              `json:"noised_columns"`
	PrivacyScore     float64               `json:"privacy_score"`
	UtilityScore     float64               `json:"utility_score"`
	Compliance       *RegulatoryCompliance `json:"compliance"`
	ProcessingTime   time.Duration         `json:"processing_time"`
}

func NewPrivacyFramework(config *FrameworkConfig, logger *logrus.Logger) (*PrivacyFramework, error) {
	if config == nil {
		config = getDefaultFrameworkConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	if config.NoiseScale == 0 {
		config.NoiseScale = constants.DefaultNoiseScale
	}

	if config.NoiseScale < 0 {
		return nil, errors.NewParameterError("noise_scale", config.NoiseScale, "a value >= 0")
	}
	if config.KAnonymity == nil && config.LDiversity == nil &&
		config.TCloseness == nil && config.DifferentialPrivacy == nil {
		return nil, errors.NewValidationError(errors.CodeMissingField,
			"at least one protection layer is required")
	}

	fw := &PrivacyFramework{
		config: config,
		logger: logger,
	}

	if config.KAnonymity != nil {
		p, err := NewKAnonymityProcessor(config.KAnonymity, logger)
		if err != nil {
			return nil, err
		}
		fw.kProcessor = p
	}
	if config.LDiversity != nil {
		p, err := NewLDiversityProcessor(config.LDiversity, logger)
		if err != nil {
			return nil, err
		}
		fw.lProcessor = p
	}
	if config.TCloseness != nil {
		p, err := NewTClosenessProcessor(config.TCloseness, logger)
		if err != nil {
			return nil, err
		}
		fw.tProcessor = p
	}
	if config.DifferentialPrivacy != nil {
		e, err := NewDifferentialPrivacyEngine(config.DifferentialPrivacy, logger)
		if err != nil {
			return nil, err
		}
		fw.dpEngine = e
	}

	return fw, nil
}

// Protect runs every configured layer in sequence and reports what was
// applied. The anonymization engines run first, each on the previous
// layer's output; dataset noising runs last against the columns that are
// still numeric after generalization.
func (pf *PrivacyFramework) Protect(ctx context.Context, ds *dataset.Dataset) (*dataset.Dataset, *FrameworkReport, error) {
	if ds == nil {
		return nil, nil, errors.NewValidationError(errors.CodeInvalidInput, "dataset is nil")
	}

	start := time.Now()
	pf.logger.WithFields(logrus.Fields{
		"dataset_size": ds.Len(),
	}).Info("Applying integrated privacy protection")

	protected := ds
	applied := make([]string, 0, 6)
	recordsAfter := make(map[string]int)

	for _, engine := range pf.anonymizers() {
		out, err := engine.Anonymize(ctx, protected)
		if err != nil {
			return nil, nil, fmt.Errorf("%s failed: %w", engine.GetName(), err)
		}
		protected = out
		applied = append(applied, engine.GetName())
		recordsAfter[engine.GetName()] = protected.Len()
	}

	noised := make([]string, 0)
	if pf.dpEngine != nil {
		cols, err := numericColumns(protected, nil)
		if err != nil {
			return nil, nil, err
		}
		if len(cols) > 0 {
			out, err := pf.dpEngine.AddNoiseToDataset(ctx, protected, cols, pf.config.NoiseScale)
			if err != nil {
				return nil, nil, fmt.Errorf("%s failed: %w", layerDifferentialPrivacy, err)
			}
			protected = out
			noised = cols
		}
		applied = append(applied, layerDifferentialPrivacy)
		recordsAfter[layerDifferentialPrivacy] = protected.Len()
	}

	if pf.config.AccessControl {
		applied = append(applied, layerAccessControl)
	}
	if pf.config.SimulatedEncryption {
		applied = append(applied, layerSimulatedEncryption)
	}

	report := &FrameworkReport{
		OriginalRecords:  ds.Len(),
		FinalRecords:     protected.Len(),
		AppliedLayers:    applied,
		ProtectionLayers: len(applied),
		RecordsAfter:     recordsAfter,
		NoisedColumns:    noised,
		PrivacyScore:     privacyScore(applied),
		UtilityScore:     utilityScore(ds, protected),
		ProcessingTime:   time.Since(start),
	}
	if ds.Len() > 0 {
		report.SuppressionRate = 1.0 - float64(protected.Len())/float64(ds.Len())
	}
	report.Compliance = &RegulatoryCompliance{
		HIPAA: pf.config.AccessControl,
		GDPR:  pf.kProcessor != nil && pf.dpEngine != nil,
		FDA:   report.UtilityScore > 0.7,
	}

	pf.logger.WithFields(logrus.Fields{
		"applied_layers":  applied,
		"final_records":   report.FinalRecords,
		"privacy_score":   report.PrivacyScore,
		"utility_score":   report.UtilityScore,
		"processing_time": report.ProcessingTime,
	}).Info("Integrated privacy protection applied")

	return protected, report, nil
}

func (pf *PrivacyFramework) anonymizers() []interfaces.Anonymizer {
	engines := make([]interfaces.Anonymizer, 0, 3)
	if pf.kProcessor != nil {
		engines = append(engines, pf.kProcessor)
	}
	if pf.lProcessor != nil {
		engines = append(engines, pf.lProcessor)
	}
	if pf.tProcessor != nil {
		engines = append(engines, pf.tProcessor)
	}
	return engines
}

// privacyScore sums the weights of the applied layers. The full six-layer
// stack scores 0.9.
func privacyScore(applied []string) float64 {
	score := 0.0
	for _, layer := range applied {
		score += layerWeight(layer)
	}
	return score
}

// layerWeight is each layer's contribution to the protection score.
// Simulated encryption contributes the least; it provides no real
// confidentiality.
func layerWeight(layer string) float64 {
	switch layer {
	case layerKAnonymity:
		return 0.20
	case layerLDiversity:
		return 0.15
	case layerTCloseness:
		return 0.15
	case layerDifferentialPrivacy:
		return 0.25
	case layerAccessControl:
		return 0.10
	case layerSimulatedEncryption:
		return 0.05
	default:
		return 0
	}
}

// utilityScore averages record retention with the per-column preservation
// of numeric means. Columns generalized away from numeric are skipped; with
// no comparable columns the preservation component defaults to 0.5.
func utilityScore(original, protected *dataset.Dataset) float64 {
	if original.Len() == 0 || protected.Len() == 0 {
		return 0
	}

	retention := float64(protected.Len()) / float64(original.Len())

	preservations := make([]float64, 0)
	for _, col := range original.Columns() {
		if t, err := original.Type(col); err != nil || t != dataset.ColumnNumeric {
			continue
		}
		origValues, err := original.NumericColumn(col)
		if err != nil || len(origValues) == 0 {
			continue
		}
		protValues, err := protected.NumericColumn(col)
		if err != nil || len(protValues) == 0 {
			continue
		}

		origMean := stat.Mean(origValues, nil)
		if origMean == 0 {
			continue
		}
		preservation := 1.0 - math.Abs(origMean-stat.Mean(protValues, nil))/math.Abs(origMean)
		preservations = append(preservations, math.Max(0, preservation))
	}

	statScore := 0.5
	if len(preservations) > 0 {
		statScore = stat.Mean(preservations, nil)
	}

	return (retention + statScore) / 2
}

func getDefaultFrameworkConfig() *FrameworkConfig {
	return &FrameworkConfig{
		KAnonymity:          getDefaultKAnonymityConfig(),
		LDiversity:          getDefaultLDiversityConfig(),
		TCloseness:          getDefaultTClosenessConfig(),
		DifferentialPrivacy: getDefaultDifferentialPrivacyConfig(),
		NoiseScale:          constants.DefaultNoiseScale,
		AccessControl:       true,
		SimulatedEncryption: true,
	}
}
