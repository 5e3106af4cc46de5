package commands

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inferloop/tabsdc/internal/dataset"
	"github.com/inferloop/tabsdc/internal/observability/metrics"
	"github.com/inferloop/tabsdc/internal/privacy"
)

type PrivatizeOptions struct {
	InputFile   string
	OutputFile  string
	Columns     string
	Categorical string
	Epsilon     float64
	NoiseScale  float64
	Seed        int64
	TotalBudget float64
	Format      string
}

// privatizeReport collects the query results for JSON output.
type privatizeReport struct {
	Statistics   *privacy.SummaryStatistics  `json:"statistics"`
	Analysis     *privacy.BudgetAnalysis     `json:"analysis"`
	Budget       *privacy.BudgetStatus       `json:"budget"`
	Transactions []privacy.BudgetTransaction `json:"transactions"`
}

func NewPrivatizeCmd() *cobra.Command {
	opts := &PrivatizeOptions{}

	cmd := &cobra.Command{
		Use:   "privatize",
		Short: "Publish differentially private statistics",
		Long: `Compute differentially private summary statistics over a CSV dataset
and optionally export a noisy copy of it. Every query draws epsilon from
a privacy budget ledger; the command fails once the budget is exhausted.`,
		Example: `  # Private summary statistics for two numeric columns
  tabsdc-cli privatize --input patients.csv --columns age,bmi --epsilon 1.0

  # Also export a noise-perturbed copy of the data
  tabsdc-cli privatize --input patients.csv --columns age,bmi --epsilon 0.5 \
    --noise-scale 0.1 --seed 42 --output noisy.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrivatize(cmd, opts)
		},
	}

	// Add flags
	cmd.Flags().StringVarP(&opts.InputFile, "input", "i", "", "Input CSV file")
	cmd.Flags().StringVarP(&opts.OutputFile, "output", "o", "", "Noisy dataset output file (omit to skip the export)")
	cmd.Flags().StringVarP(&opts.Columns, "columns", "c", "", "Comma-separated numeric columns to privatize")
	cmd.Flags().StringVar(&opts.Categorical, "categorical", "", "Comma-separated categorical columns to summarize")
	cmd.Flags().Float64Var(&opts.Epsilon, "epsilon", 0, "Privacy budget per query (default from config)")
	cmd.Flags().Float64Var(&opts.NoiseScale, "noise-scale", 0, "Noise scale for the dataset export (default from config)")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 0, "Noise source seed (default from config)")
	cmd.Flags().Float64Var(&opts.TotalBudget, "budget", 0, "Total epsilon budget for this run (default from config)")
	cmd.Flags().StringVar(&opts.Format, "format", "", "Report format (text, json)")
	cmd.MarkFlagRequired("input")
	cmd.MarkFlagRequired("columns")

	return cmd
}

func runPrivatize(cmd *cobra.Command, opts *PrivatizeOptions) error {
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
	if opts.TotalBudget == 0 {
		opts.TotalBudget = cfg.Privacy.TotalBudget
	}
	if err := checkFormat(opts.Format); err != nil {
		return err
	}

	numericalCols := splitColumns(opts.Columns)
	categoricalCols := splitColumns(opts.Categorical)

	ds, err := dataset.LoadCSV(opts.InputFile)
	if err != nil {
		logger.WithError(err).Error("Failed to load dataset")
		return fmt.Errorf("failed to load dataset: %w", err)
	}

	engine, err := privacy.NewDifferentialPrivacyEngine(&privacy.DifferentialPrivacyConfig{
		Epsilon: opts.Epsilon,
		Seed:    opts.Seed,
	}, logger)
	if err != nil {
		return err
	}

	ledger, err := privacy.NewPrivacyBudgetManager(opts.TotalBudget)
	if err != nil {
		return err
	}

	pm, err := metrics.NewPrivacyMetrics(nil, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	ctx := context.Background()
	queries := 1
	if opts.OutputFile != "" {
		queries++
	}

	if opts.Format == "text" {
		fmt.Fprintf(out, "Privatizing dataset...\n")
		fmt.Fprintf(out, "Input File: %s\n", opts.InputFile)
		fmt.Fprintf(out, "Records: %d\n", ds.Len())
		fmt.Fprintf(out, "Epsilon: %.2f\n", opts.Epsilon)
		fmt.Fprintf(out, "Seed: %d\n", opts.Seed)
	}

	// Query 1: summary statistics
	if _, err := ledger.Spend(opts.Epsilon, "summary statistics"); err != nil {
		logger.WithError(err).Error("Budget spend rejected")
		return fmt.Errorf("privacy budget rejected the query: %w", err)
	}

	stats, err := engine.PrivateSummaryStatistics(ctx, ds, numericalCols, categoricalCols)
	if err != nil {
		pm.RecordDPQuery("summary_statistics", "error")
		logger.WithError(err).Error("Summary statistics failed")
		return err
	}
	pm.RecordDPQuery("summary_statistics", "success")

	if opts.Format == "text" {
		printSummaryStatistics(out, stats)
	}

	// Query 2: noisy dataset export
	if opts.OutputFile != "" {
		if _, err := ledger.Spend(opts.Epsilon, "noisy dataset export"); err != nil {
			logger.WithError(err).Error("Budget spend rejected")
			return fmt.Errorf("privacy budget rejected the export: %w", err)
		}

		noisy, err := engine.AddNoiseToDataset(ctx, ds, numericalCols, opts.NoiseScale)
		if err != nil {
			pm.RecordDPQuery("dataset_export", "error")
			logger.WithError(err).Error("Dataset export failed")
			return err
		}
		pm.RecordDPQuery("dataset_export", "success")

		if err := dataset.SaveCSV(opts.OutputFile, noisy); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		if opts.Format == "text" {
			fmt.Fprintf(out, "\nNoisy dataset written to: %s\n", opts.OutputFile)
		}
	}

	analysis, err := engine.PrivacyBudgetAnalysis(queries)
	if err != nil {
		return err
	}

	status := ledger.GetStatus()
	pm.SetBudgetConsumption(status.ConsumedEpsilon, status.RemainingEpsilon)

	if opts.Format == "json" {
		return printJSON(out, &privatizeReport{
			Statistics:   stats,
			Analysis:     analysis,
			Budget:       status,
			Transactions: ledger.GetTransactionHistory(0),
		})
	}

	printBudgetReport(out, queries, analysis, status)
	return nil
}

func printSummaryStatistics(out io.Writer, stats *privacy.SummaryStatistics) {
	fmt.Fprintln(out, "\nPrivate Summary Statistics:")
	fmt.Fprintln(out, "===========================")
	fmt.Fprintf(out, "Total Records: %.2f\n", stats.TotalRecords)

	numerical := make([]string, 0, len(stats.NumericalStatistics))
	for col := range stats.NumericalStatistics {
		numerical = append(numerical, col)
	}
	sort.Strings(numerical)
	for _, col := range numerical {
		s := stats.NumericalStatistics[col]
		fmt.Fprintf(out, "\n%s (numeric)\n", col)
		fmt.Fprintf(out, "- Count: %.2f\n", s.Count)
		fmt.Fprintf(out, "- Mean: %.2f\n", s.Mean)
		fmt.Fprintf(out, "- Min: %.2f\n", s.Min)
		fmt.Fprintf(out, "- Max: %.2f\n", s.Max)
	}

	categorical := make([]string, 0, len(stats.CategoricalStatistics))
	for col := range stats.CategoricalStatistics {
		categorical = append(categorical, col)
	}
	sort.Strings(categorical)
	for _, col := range categorical {
		s := stats.CategoricalStatistics[col]
		fmt.Fprintf(out, "\n%s (categorical)\n", col)
		fmt.Fprintf(out, "- Count: %.2f\n", s.Count)
		fmt.Fprintf(out, "- Unique Values: %.2f\n", s.UniqueValues)
		if len(s.TopCategories) > 0 {
			fmt.Fprintf(out, "- Top Categories: %s\n", formatCategories(s.TopCategories))
		}
	}
}

func printBudgetReport(out io.Writer, queries int, analysis *privacy.BudgetAnalysis, status *privacy.BudgetStatus) {
	fmt.Fprintln(out, "\nBudget Analysis:")
	fmt.Fprintf(out, "- Queries: %d\n", queries)
	fmt.Fprintf(out, "- Epsilon Per Query: %.2f\n", analysis.EpsilonPerQuery)
	fmt.Fprintf(out, "- Privacy Level: %s\n", analysis.PrivacyLevel)

	fmt.Fprintln(out, "\nPrivacy Budget:")
	fmt.Fprintf(out, "- Total Epsilon: %.2f\n", status.TotalEpsilon)
	fmt.Fprintf(out, "- Consumed: %.2f (%.1f%% utilized)\n", status.ConsumedEpsilon, status.Utilization*100)
	fmt.Fprintf(out, "- Remaining: %.2f\n", status.RemainingEpsilon)
	fmt.Fprintf(out, "- Health: %s\n", status.HealthStatus)
	if len(status.Warnings) > 0 {
		fmt.Fprintf(out, "- Warnings: %s\n", strings.Join(status.Warnings, "; "))
	}
}

// formatCategories renders noisy category counts, largest first.
func formatCategories(categories map[string]float64) string {
	names := make([]string, 0, len(categories))
	for name := range categories {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if categories[names[i]] != categories[names[j]] {
			return categories[names[i]] > categories[names[j]]
		}
		return names[i] < names[j]
	})

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s (%.2f)", name, categories[name]))
	}
	return strings.Join(parts, ", ")
}
