package commands

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/inferloop/tabsdc/internal/dataset"
	"github.com/inferloop/tabsdc/internal/observability/metrics"
	"github.com/inferloop/tabsdc/internal/privacy"
	"github.com/inferloop/tabsdc/pkg/constants"
)

type EvaluateOptions struct {
	InputFile        string
	OutputFile       string
	QuasiIdentifiers string
	Sensitive        string
	K                int
	L                int
	T                float64
	Epsilon          float64
	NoiseScale       float64
	Seed             int64
	Format           string
}

func NewEvaluateCmd() *cobra.Command {
	opts := &EvaluateOptions{}

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run and score the integrated protection stack",
		Long: `Apply every configured protection layer to a CSV dataset in one pass
and score the outcome: the anonymization engines run first, differential
privacy noise is injected into the columns that are still numeric, and
the report grades privacy protection, utility preservation, and
regulatory compliance.`,
		Example: `  # Score the full stack over patient records
  tabsdc-cli evaluate --input patients.csv --quasi-identifiers age,gender,zipcode \
    --sensitive diagnosis --k 3 --l 2 --t 0.2 --epsilon 1.0

  # k-anonymity plus noise only, exporting the protected data
  tabsdc-cli evaluate --input patients.csv --quasi-identifiers age,gender,zipcode \
    --k 5 --epsilon 0.5 --output protected.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluate(cmd, opts)
		},
	}

	// Add flags
	cmd.Flags().StringVarP(&opts.InputFile, "input", "i", "", "Input CSV file")
	cmd.Flags().StringVarP(&opts.OutputFile, "output", "o", "", "Protected dataset output file (omit to skip the export)")
	cmd.Flags().StringVarP(&opts.QuasiIdentifiers, "quasi-identifiers", "q", "", "Comma-separated quasi-identifier columns")
	cmd.Flags().StringVarP(&opts.Sensitive, "sensitive", "s", "", "Comma-separated sensitive attribute columns")
	cmd.Flags().IntVar(&opts.K, "k", constants.DefaultK, "Minimum equivalence class size")
	cmd.Flags().IntVar(&opts.L, "l", 0, "Minimum sensitive attribute diversity (0 skips l-diversity)")
	cmd.Flags().Float64Var(&opts.T, "t", 0, "Maximum sensitive distribution distance (0 skips t-closeness)")
	cmd.Flags().Float64Var(&opts.Epsilon, "epsilon", 0, "Privacy budget for the noise layer (default from config)")
	cmd.Flags().Float64Var(&opts.NoiseScale, "noise-scale", 0, "Noise scale for still-numeric columns (default from config)")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 0, "Noise source seed (default from config)")
	cmd.Flags().StringVar(&opts.Format, "format", "", "Report format (text, json)")
	cmd.MarkFlagRequired("input")
	cmd.MarkFlagRequired("quasi-identifiers")

	return cmd
}

func runEvaluate(cmd *cobra.Command, opts *EvaluateOptions) error {
	out := cmd.OutOrStdout()
	logger := newLogger()

	cfg, err := loadCLIConfig()
	if err != nil {
		return err
	}
	if opts.Format == "" {
		opts.Format = cfg.DefaultFormat
	}
	if opts.Epsilon == 0 {
		opts.Epsilon = cfg.Privacy.Epsilon
	}
	if opts.NoiseScale == 0 {
		opts.NoiseScale = cfg.Privacy.NoiseScale
	}
	if opts.Seed == 0 {
		opts.Seed = cfg.Privacy.Seed
	}
	if err := checkFormat(opts.Format); err != nil {
		return err
	}

	quasiIdentifiers := splitColumns(opts.QuasiIdentifiers)
	sensitive := splitColumns(opts.Sensitive)
	if (opts.L > 0 || opts.T > 0) && len(sensitive) == 0 {
		return fmt.Errorf("--sensitive is required with --l or --t")
	}

	ds, err := dataset.LoadCSV(opts.InputFile)
	if err != nil {
		logger.WithError(err).Error("Failed to load dataset")
		return fmt.Errorf("failed to load dataset: %w", err)
	}

	fw, err := privacy.NewPrivacyFramework(buildFrameworkConfig(opts, quasiIdentifiers, sensitive), logger)
	if err != nil {
		return err
	}

	pm, err := metrics.NewPrivacyMetrics(nil, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	ctx := context.Background()

	if opts.Format == "text" {
		fmt.Fprintf(out, "Evaluating integrated protection...\n")
		fmt.Fprintf(out, "Input File: %s\n", opts.InputFile)
		fmt.Fprintf(out, "Records: %d\n", ds.Len())
	}

	start := time.Now()
	protected, report, err := fw.Protect(ctx, ds)
	if err != nil {
		pm.RecordAnonymizationRun("framework", "error", time.Since(start))
		logger.WithError(err).Error("Integrated protection failed")
		return err
	}
	pm.RecordAnonymizationRun("framework", "success", time.Since(start))
	pm.RecordSuppressedRecords("framework", ds.Len()-protected.Len())
	if ds.Len() > 0 {
		pm.SetRetentionRate("framework", float64(protected.Len())/float64(ds.Len()))
	}

	if opts.Format == "json" {
		if err := printJSON(out, report); err != nil {
			return err
		}
	} else {
		printFrameworkReport(out, report)
	}

	if opts.OutputFile == "" {
		return nil
	}
	if err := dataset.SaveCSV(opts.OutputFile, protected); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if opts.Format == "text" {
		fmt.Fprintf(out, "\nProtected dataset written to: %s\n", opts.OutputFile)
	}
	return nil
}

// buildFrameworkConfig translates the flags into framework layers. The
// noise layer is always on; l-diversity and t-closeness join only when
// their thresholds are set.
func buildFrameworkConfig(opts *EvaluateOptions, quasiIdentifiers, sensitive []string) *privacy.FrameworkConfig {
	config := &privacy.FrameworkConfig{
		KAnonymity: &privacy.KAnonymityConfig{
			K:                    opts.K,
			QuasiIdentifiers:     quasiIdentifiers,
			SuppressionThreshold: constants.DefaultSuppressionThreshold,
		},
		DifferentialPrivacy: &privacy.DifferentialPrivacyConfig{
			Epsilon: opts.Epsilon,
			Seed:    opts.Seed,
		},
		NoiseScale:          opts.NoiseScale,
		AccessControl:       true,
		SimulatedEncryption: true,
	}

	if opts.L > 0 {
		config.LDiversity = &privacy.LDiversityConfig{
			L:                   opts.L,
			K:                   opts.K,
			QuasiIdentifiers:    quasiIdentifiers,
			SensitiveAttributes: sensitive,
		}
	}
	if opts.T > 0 {
		config.TCloseness = &privacy.TClosenessConfig{
			T:                   opts.T,
			K:                   opts.K,
			QuasiIdentifiers:    quasiIdentifiers,
			SensitiveAttributes: sensitive,
		}
	}

	return config
}

func printFrameworkReport(out io.Writer, report *privacy.FrameworkReport) {
	fmt.Fprintln(out, "\nIntegrated Protection:")
	fmt.Fprintf(out, "- Original Records: %d\n", report.OriginalRecords)
	fmt.Fprintf(out, "- Final Records: %d\n", report.FinalRecords)
	fmt.Fprintf(out, "- Suppression Rate: %.2f%%\n", report.SuppressionRate*100)
	fmt.Fprintf(out, "- Protection Layers: %d\n", report.ProtectionLayers)
	fmt.Fprintf(out, "- Applied: %s\n", strings.Join(report.AppliedLayers, ", "))
	for _, layer := range report.AppliedLayers {
		if count, ok := report.RecordsAfter[layer]; ok {
			fmt.Fprintf(out, "- After %s: %d records\n", layer, count)
		}
	}
	if len(report.NoisedColumns) > 0 {
		fmt.Fprintf(out, "- Noised Columns: %s\n", strings.Join(report.NoisedColumns, ", "))
	}
	fmt.Fprintf(out, "- Privacy Score: %.2f\n", report.PrivacyScore)
	fmt.Fprintf(out, "- Utility Score: %.2f\n", report.UtilityScore)

	fmt.Fprintln(out, "\nRegulatory Compliance:")
	printComplianceLine(out, "HIPAA", report.Compliance.HIPAA)
	printComplianceLine(out, "GDPR", report.Compliance.GDPR)
	printComplianceLine(out, "FDA", report.Compliance.FDA)
}

func printComplianceLine(out io.Writer, regime string, satisfied bool) {
	if satisfied {
		fmt.Fprintf(out, "- %s: satisfied\n", regime)
	} else {
		fmt.Fprintf(out, "- %s: NOT satisfied\n", regime)
	}
}
