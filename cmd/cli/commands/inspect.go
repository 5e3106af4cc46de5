package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/inferloop/tabsdc/internal/dataset"
)

type InspectOptions struct {
	InputFile  string
	Format     string
	SkipImpute bool
}

func NewInspectCmd() *cobra.Command {
	opts := &InspectOptions{}

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Profile a tabular dataset",
		Long: `Load a CSV dataset, impute missing values, and print per-column
profiles: counts, missing and distinct values, numeric moments, and the
most frequent categories.`,
		Example: `  # Profile a patient records file
  tabsdc-cli inspect --input patients.csv

  # Profile without imputation, as JSON
  tabsdc-cli inspect --input patients.csv --skip-impute --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, opts)
		},
	}

	// Add flags
	cmd.Flags().StringVarP(&opts.InputFile, "input", "i", "", "Input CSV file")
	cmd.Flags().StringVar(&opts.Format, "format", "", "Output format (text, json)")
	cmd.Flags().BoolVar(&opts.SkipImpute, "skip-impute", false, "Profile the data as loaded, without imputing missing values")
	cmd.MarkFlagRequired("input")

	return cmd
}

func runInspect(cmd *cobra.Command, opts *InspectOptions) error {
	out := cmd.OutOrStdout()
	logger := newLogger()

	cfg, err := loadCLIConfig()
	if err != nil {
		return err
	}
	if opts.Format == "" {
		opts.Format = cfg.DefaultFormat
	}
	if err := checkFormat(opts.Format); err != nil {
		return err
	}

	ds, err := dataset.LoadCSV(opts.InputFile)
	if err != nil {
		logger.WithError(err).Error("Failed to load dataset")
		return fmt.Errorf("failed to load dataset: %w", err)
	}

	if !opts.SkipImpute {
		ds = dataset.Impute(ds)
	}

	profile := dataset.Describe(ds)

	if opts.Format == "json" {
		return printJSON(out, profile)
	}

	fmt.Fprintf(out, "Inspecting dataset...\n")
	fmt.Fprintf(out, "Input File: %s\n", opts.InputFile)
	fmt.Fprintf(out, "Records: %d\n", profile.Records)
	fmt.Fprintf(out, "Columns: %d\n", len(profile.Columns))

	fmt.Fprintln(out, "\nColumn Profiles:")
	fmt.Fprintln(out, "================")
	for _, col := range profile.Columns {
		printColumnSummary(out, col)
	}

	return nil
}

func printColumnSummary(out io.Writer, col dataset.ColumnSummary) {
	fmt.Fprintf(out, "\n%s (%s)\n", col.Name, col.Type)
	fmt.Fprintf(out, "- Count: %d (%d missing)\n", col.Count, col.Missing)
	fmt.Fprintf(out, "- Distinct: %d\n", col.Distinct)

	if col.Type == dataset.ColumnNumeric {
		if col.Count > 0 {
			fmt.Fprintf(out, "- Mean: %.2f\n", col.Mean)
			fmt.Fprintf(out, "- Std Dev: %.2f\n", col.StdDev)
			fmt.Fprintf(out, "- Range: %.2f to %.2f\n", col.Min, col.Max)
		}
		return
	}

	if len(col.TopValues) > 0 {
		fmt.Fprintf(out, "- Top Values:")
		for _, vc := range col.TopValues {
			fmt.Fprintf(out, " %s (%d)", vc.Value, vc.Count)
		}
		fmt.Fprintln(out)
	}
}
