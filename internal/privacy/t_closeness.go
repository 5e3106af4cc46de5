package privacy

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/inferloop/tabsdc/internal/dataset"
	"github.com/inferloop/tabsdc/pkg/constants"
	"github.com/inferloop/tabsdc/pkg/errors"
)

type TClosenessConfig struct {
	T                   float64  `json:"t"`
	K                   int      `json:"k"`
	QuasiIdentifiers    []string `json:"quasi_identifiers"`
	SensitiveAttributes []string `json:"sensitive_attributes"`
	NumericBins         int      `json:"numeric_bins"`
}

type TClosenessProcessor struct {
	config      *TClosenessConfig
	generalizer *Generalizer
	logger      *logrus.Logger
}

// Distribution is a normalized frequency table over an attribute's values.
// Numeric attributes are binned into equal-width ranges derived from the
// reference dataset so that group and reference distributions share support.
type Distribution struct {
	Frequencies map[string]float64
	Total       int
	IsNumeric   bool
	Bins        int
	BinMin      float64
	BinWidth    float64
}

// ClosenessReport summarizes a t-closeness verification. DistanceViolations
// counts (group, attribute) pairs whose distance exceeds the threshold;
// ValidGroups counts groups where no attribute violates it.
type ClosenessReport struct {
	SatisfiesTCloseness bool    `json:"satisfies_t_closeness"`
	MaxDistance         float64 `json:"max_distance"`
	TThreshold          float64 `json:"t_threshold"`
	TotalGroups         int     `json:"total_groups"`
	ValidGroups         int     `json:"valid_groups"`
	ComplianceRate      float64 `json:"compliance_rate"`
	DistanceViolations  int     `json:"distance_violations"`
}

// DistanceRecord is one measured group-to-reference distance.
type DistanceRecord struct {
	GroupID   string  `json:"group_id"`
	Attribute string  `json:"attribute"`
	GroupSize int     `json:"group_size"`
	Distance  float64 `json:"distance"`
	Violation bool    `json:"violation"`
}

// DistanceAnalysis aggregates every group-to-reference distance in a
// dataset together with summary statistics over them.
type DistanceAnalysis struct {
	Distances      []DistanceRecord `json:"distances"`
	MeanDistance   float64          `json:"mean_distance"`
	MedianDistance float64          `json:"median_distance"`
	MaxDistance    float64          `json:"max_distance"`
	MinDistance    float64          `json:"min_distance"`
	StdDistance    float64          `json:"std_distance"`
	ViolationCount int              `json:"violation_count"`
	ViolationRate  float64          `json:"violation_rate"`
}

func NewTClosenessProcessor(config *TClosenessConfig, logger *logrus.Logger) (*TClosenessProcessor, error) {
	if config == nil {
		config = getDefaultTClosenessConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	if config.NumericBins <= 0 {
		config.NumericBins = constants.DefaultNumericBins
	}

	if err := errors.CheckT(config.T); err != nil {
		return nil, err
	}
	if err := errors.CheckK(config.K); err != nil {
		return nil, err
	}
	if len(config.QuasiIdentifiers) == 0 {
		return nil, errors.NewValidationError(errors.CodeMissingField,
			"at least one quasi-identifier is required")
	}
	if len(config.SensitiveAttributes) == 0 {
		return nil, errors.NewValidationError(errors.CodeMissingField,
			"at least one sensitive attribute is required")
	}

	return &TClosenessProcessor{
		config:      config,
		generalizer: NewGeneralizer(logger),
		logger:      logger,
	}, nil
}

func (t *TClosenessProcessor) GetName() string {
	return "t-closeness"
}

// Anonymize builds k-anonymous equivalence classes and keeps only those
// whose sensitive attribute distributions stay within distance T of the
// dataset-wide distribution. Sensitive columns themselves are never
// generalized, so the reference is computed from the input as given.
func (t *TClosenessProcessor) Anonymize(ctx context.Context, ds *dataset.Dataset) (*dataset.Dataset, error) {
	if ds == nil {
		return nil, errors.NewValidationError(errors.CodeInvalidInput, "dataset is nil")
	}
	if err := ds.CheckColumns(t.config.SensitiveAttributes); err != nil {
		return nil, err
	}

	t.logger.WithFields(logrus.Fields{
		"dataset_size": ds.Len(),
		"t_value":      t.config.T,
		"k_value":      t.config.K,
	}).Info("Applying t-closeness")

	if ds.Len() == 0 {
		return ds.EmptyLike(), nil
	}

	// Step 1: Calculate reference distributions for sensitive attributes
	references, err := t.calculateReferenceDistributions(ds)
	if err != nil {
		return nil, err
	}

	// Step 2: Generalize quasi-identifier columns
	generalized, err := t.generalizer.GeneralizeQuasiIdentifiers(ds, t.config.QuasiIdentifiers, t.config.K)
	if err != nil {
		return nil, err
	}

	// Step 3: Partition into equivalence classes
	classes, err := PartitionByQuasiIdentifiers(generalized, t.config.QuasiIdentifiers)
	if err != nil {
		return nil, err
	}

	// Step 4: Keep classes that meet both the size and closeness bounds
	retained := make([]int, 0, generalized.Len())
	suppressed := 0
	for _, class := range classes {
		if class.Size >= t.config.K && t.checkTCloseness(generalized, class, references) {
			retained = append(retained, class.Rows...)
		} else {
			suppressed += class.Size
		}
	}

	result, err := generalized.Select(retained)
	if err != nil {
		return nil, err
	}

	t.logger.WithFields(logrus.Fields{
		"suppressed": suppressed,
		"retained":   result.Len(),
		"classes":    len(classes),
	}).Info("Closeness filtering complete")

	return result, nil
}

// VerifyTCloseness measures the dataset as given: a reference distribution
// is computed per sensitive attribute over the whole dataset, records are
// grouped by their current quasi-identifier values, and every group's
// distance to the reference is checked against the threshold.
func (t *TClosenessProcessor) VerifyTCloseness(ctx context.Context, ds *dataset.Dataset) (*ClosenessReport, error) {
	if ds == nil {
		return nil, errors.NewValidationError(errors.CodeInvalidInput, "dataset is nil")
	}
	if err := ds.CheckColumns(t.config.SensitiveAttributes); err != nil {
		return nil, err
	}

	references, err := t.calculateReferenceDistributions(ds)
	if err != nil {
		return nil, err
	}
	classes, err := PartitionByQuasiIdentifiers(ds, t.config.QuasiIdentifiers)
	if err != nil {
		return nil, err
	}

	report := &ClosenessReport{
		TThreshold:  t.config.T,
		TotalGroups: len(classes),
	}

	for _, class := range classes {
		valid := true
		for _, attr := range t.config.SensitiveAttributes {
			distance := t.classAttributeDistance(ds, class, attr, references[attr])
			if distance > report.MaxDistance {
				report.MaxDistance = distance
			}
			if distance > t.config.T {
				report.DistanceViolations++
				valid = false
			}
		}
		if valid {
			report.ValidGroups++
		}
	}

	report.SatisfiesTCloseness = report.MaxDistance <= t.config.T
	if report.TotalGroups > 0 {
		report.ComplianceRate = float64(report.ValidGroups) / float64(report.TotalGroups)
	}

	return report, nil
}

// AnalyzeDistributionDistances measures every (group, attribute) distance in
// the dataset and summarizes them. Useful for picking a workable T before
// anonymizing.
func (t *TClosenessProcessor) AnalyzeDistributionDistances(ctx context.Context, ds *dataset.Dataset) (*DistanceAnalysis, error) {
	if ds == nil {
		return nil, errors.NewValidationError(errors.CodeInvalidInput, "dataset is nil")
	}
	if err := ds.CheckColumns(t.config.SensitiveAttributes); err != nil {
		return nil, err
	}

	references, err := t.calculateReferenceDistributions(ds)
	if err != nil {
		return nil, err
	}
	classes, err := PartitionByQuasiIdentifiers(ds, t.config.QuasiIdentifiers)
	if err != nil {
		return nil, err
	}

	analysis := &DistanceAnalysis{
		Distances: make([]DistanceRecord, 0, len(classes)*len(t.config.SensitiveAttributes)),
	}

	distances := make([]float64, 0, cap(analysis.Distances))
	for _, class := range classes {
		for _, attr := range t.config.SensitiveAttributes {
			distance := t.classAttributeDistance(ds, class, attr, references[attr])
			violation := distance > t.config.T
			analysis.Distances = append(analysis.Distances, DistanceRecord{
				GroupID:   class.Identifier,
				Attribute: attr,
				GroupSize: class.Size,
				Distance:  distance,
				Violation: violation,
			})
			if violation {
				analysis.ViolationCount++
			}
			distances = append(distances, distance)
		}
	}

	if len(distances) == 0 {
		return analysis, nil
	}

	sorted := append([]float64(nil), distances...)
	sort.Float64s(sorted)

	analysis.MeanDistance = stat.Mean(distances, nil)
	analysis.MedianDistance = stat.Quantile(0.5, stat.LinInterp, sorted, nil)
	analysis.MaxDistance = floats.Max(distances)
	analysis.MinDistance = floats.Min(distances)
	analysis.StdDistance = stat.PopStdDev(distances, nil)
	analysis.ViolationRate = float64(analysis.ViolationCount) / float64(len(distances))

	return analysis, nil
}

func (t *TClosenessProcessor) calculateReferenceDistributions(ds *dataset.Dataset) (map[string]*Distribution, error) {
	references := make(map[string]*Distribution, len(t.config.SensitiveAttributes))

	for _, attr := range t.config.SensitiveAttributes {
		colType, err := ds.Type(attr)
		if err != nil {
			return nil, err
		}

		if colType == dataset.ColumnNumeric {
			values, err := ds.NumericColumn(attr)
			if err != nil {
				return nil, err
			}
			references[attr] = t.binNumericValues(values)
		} else {
			values, err := ds.Column(attr)
			if err != nil {
				return nil, err
			}
			references[attr] = t.categoricalDistribution(values)
		}
	}

	return references, nil
}

// binNumericValues builds an equal-width binned distribution over the full
// value range. Group distributions reuse these edges via groupDistribution.
func (t *TClosenessProcessor) binNumericValues(values []float64) *Distribution {
	dist := &Distribution{
		Frequencies: make(map[string]float64),
		IsNumeric:   true,
		Bins:        t.config.NumericBins,
	}
	if len(values) == 0 {
		return dist
	}

	dist.Total = len(values)
	dist.BinMin = floats.Min(values)
	dist.BinWidth = (floats.Max(values) - dist.BinMin) / float64(dist.Bins)

	for _, v := range values {
		dist.Frequencies[dist.binKey(v)]++
	}
	for k := range dist.Frequencies {
		dist.Frequencies[k] /= float64(dist.Total)
	}

	return dist
}

func (t *TClosenessProcessor) categoricalDistribution(values []interface{}) *Distribution {
	dist := &Distribution{Frequencies: make(map[string]float64)}

	for _, v := range values {
		if v == nil {
			continue
		}
		dist.Frequencies[fmt.Sprintf("%v", v)]++
		dist.Total++
	}
	for k := range dist.Frequencies {
		dist.Frequencies[k] /= float64(dist.Total)
	}

	return dist
}

// groupDistribution builds a class-local distribution on the reference's
// support: numeric values fall into the reference's bins, categorical values
// keep their own labels.
func (t *TClosenessProcessor) groupDistribution(ds *dataset.Dataset, class *EquivalenceClass, attr string, reference *Distribution) *Distribution {
	dist := &Distribution{
		Frequencies: make(map[string]float64),
		IsNumeric:   reference.IsNumeric,
		Bins:        reference.Bins,
		BinMin:      reference.BinMin,
		BinWidth:    reference.BinWidth,
	}

	for _, row := range class.Rows {
		v := ds.Row(row)[attr]
		if v == nil {
			continue
		}
		var key string
		if reference.IsNumeric {
			f, ok := v.(float64)
			if !ok {
				continue
			}
			key = dist.binKey(f)
		} else {
			key = fmt.Sprintf("%v", v)
		}
		dist.Frequencies[key]++
		dist.Total++
	}
	for k := range dist.Frequencies {
		dist.Frequencies[k] /= float64(dist.Total)
	}

	return dist
}

func (d *Distribution) binKey(v float64) string {
	index := 0
	if d.BinWidth > 0 {
		index = int((v - d.BinMin) / d.BinWidth)
	}
	if index < 0 {
		index = 0
	}
	if index >= d.Bins {
		index = d.Bins - 1
	}
	return fmt.Sprintf("bin_%d", index)
}

func (t *TClosenessProcessor) checkTCloseness(ds *dataset.Dataset, class *EquivalenceClass, references map[string]*Distribution) bool {
	for _, attr := range t.config.SensitiveAttributes {
		if t.classAttributeDistance(ds, class, attr, references[attr]) > t.config.T {
			return false
		}
	}
	return true
}

func (t *TClosenessProcessor) classAttributeDistance(ds *dataset.Dataset, class *EquivalenceClass, attr string, reference *Distribution) float64 {
	groupDist := t.groupDistribution(ds, class, attr, reference)
	if groupDist.Total == 0 {
		return 0 // no observed values for this attribute
	}
	return t.calculateDistance(groupDist, reference)
}

// calculateDistance returns the total variation distance between two
// distributions: half the sum of absolute frequency differences over their
// combined support. It ranges from 0 (identical) to 1 (disjoint).
func (t *TClosenessProcessor) calculateDistance(groupDist, referenceDist *Distribution) float64 {
	support := make(map[string]bool, len(referenceDist.Frequencies))
	for v := range groupDist.Frequencies {
		support[v] = true
	}
	for v := range referenceDist.Frequencies {
		support[v] = true
	}

	distance := 0.0
	for v := range support {
		distance += math.Abs(groupDist.Frequencies[v] - referenceDist.Frequencies[v])
	}

	return distance / 2
}

func getDefaultTClosenessConfig() *TClosenessConfig {
	return &TClosenessConfig{
		T:                   constants.DefaultT,
		K:                   constants.DefaultK,
		QuasiIdentifiers:    []string{"age", "gender", "zipcode"},
		SensitiveAttributes: []string{"diagnosis"},
		NumericBins:         constants.DefaultNumericBins,
	}
}
