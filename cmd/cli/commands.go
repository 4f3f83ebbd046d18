package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"metabostat/adapters/excel"
	"metabostat/adapters/stats/formula"
	"metabostat/app"
	"metabostat/domain/stats"
	"metabostat/internal/errors"
	"metabostat/internal/preprocess"
)

func newFormulaCmd() *cobra.Command {
	var response string
	var vars []string
	var interaction string

	cmd := &cobra.Command{
		Use:   "formula",
		Short: "Print the model formula for a response and predictor set",
		Long: `Build the Wilkinson formula used for every peak.

Example: metabostat formula --response 709.55 --vars tissue,age --interaction pairwise`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := resolveMode(cmd, interaction)
			if err != nil {
				return err
			}
			spec, err := formula.Build(response, resolveVars(vars), mode)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), spec.Text)
			for _, term := range spec.Terms {
				fmt.Fprintf(cmd.OutOrStdout(), "  %-30s order %d\n", term.Name, term.Order())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&response, "response", "", "response (peak) column name")
	cmd.Flags().StringSliceVar(&vars, "vars", nil, "predictor variables (default: configured variables)")
	cmd.Flags().StringVar(&interaction, "interaction", "", "none|pairwise|full (legacy: no|double|multiple)")
	_ = cmd.MarkFlagRequired("response")
	return cmd
}

func newAnovaCmd() *cobra.Command {
	var vars []string
	var interaction string
	var alpha float64
	var out string
	var format string

	cmd := &cobra.Command{
		Use:   "anova [table]",
		Short: "Fit every peak and report FDR-corrected significant terms",
		Long: `Run a type-I ANOVA for every peak of an analysis-ready table (.csv or .xlsx:
sample id, peaks, then two metadata columns), correct all term/peak p-values with
the two-stage Benjamini-Hochberg procedure and report the significant entries.

The output format follows --format, or the extension of --out (.csv, .json, .xlsx).

Example: metabostat anova lipids.csv --vars tissue,age --interaction pairwise --out result.xlsx`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := resolveMode(cmd, interaction)
			if err != nil {
				return err
			}
			res, err := env.service.Analyze(cmd.Context(), app.AnalyzeRequest{
				Path:      args[0],
				Variables: resolveVars(vars),
				Mode:      mode,
				Alpha:     alpha,
			})
			if err != nil {
				return errors.Wrapf(err, "analyze %s", args[0])
			}
			return writeAnalysis(cmd.OutOrStdout(), out, outputFormat(format, out), res)
		},
	}

	cmd.Flags().StringSliceVar(&vars, "vars", nil, "predictor variables (default: configured variables)")
	cmd.Flags().StringVar(&interaction, "interaction", "", "none|pairwise|full")
	cmd.Flags().Float64Var(&alpha, "alpha", 0, "FDR level (default: configured alpha)")
	cmd.Flags().StringVar(&out, "out", "", "output file (default: stdout)")
	cmd.Flags().StringVar(&format, "format", "", "csv|json|xlsx")
	return cmd
}

func newPermuteCmd() *cobra.Command {
	var vars []string
	var permute []string
	var interaction string
	var iterations int
	var seed int64
	var timeout time.Duration
	var out string

	cmd := &cobra.Command{
		Use:   "permute [table]",
		Short: "Build a permutation null of significant peak sets",
		Long: `Shuffle the labels of the permuted variables, rerun ANOVA and FDR correction every
iteration and record the peaks found significant per term. The run is reproducible
for a given seed. Prints the permutation table as JSON and a false-positive summary.

Example: metabostat permute lipids.csv --vars tissue,age --permute age --iterations 1000 --seed 7`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := resolveMode(cmd, interaction)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("seed") {
				seed = env.cfg.Permutation.Seed
			}
			table, err := env.service.Permute(cmd.Context(), app.PermuteRequest{
				Path:       args[0],
				Variables:  resolveVars(vars),
				Permuted:   permute,
				Mode:       mode,
				Iterations: iterations,
				Seed:       seed,
				Timeout:    timeout,
			})
			if err != nil {
				return errors.Wrapf(err, "permute %s", args[0])
			}

			w, closeFn, err := openOutput(cmd.OutOrStdout(), out)
			if err != nil {
				return err
			}
			defer closeFn()
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			if err := enc.Encode(table); err != nil {
				return errors.IOError(out, err)
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "run %s: %d iterations\n", table.RunID, table.Iterations())
			for _, term := range table.Terms {
				fmt.Fprintf(cmd.ErrOrStderr(), "  %-30s fpr %.4f  any-hit %.3f\n", term,
					table.FalsePositiveRate(term), table.AnyHitRate(term))
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&vars, "vars", nil, "predictor variables (default: configured variables)")
	cmd.Flags().StringSliceVar(&permute, "permute", nil, "variables whose labels are shuffled (default: configured)")
	cmd.Flags().StringVar(&interaction, "interaction", "", "none|pairwise|full")
	cmd.Flags().IntVar(&iterations, "iterations", 0, "permutation rounds (default: configured, 1000)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed (default: METABOSTAT_SEED)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "abort between rounds once exceeded (0 = configured)")
	cmd.Flags().StringVar(&out, "out", "", "JSON output file (default: stdout)")
	return cmd
}

func newPreprocessCmd() *cobra.Command {
	var meta string
	var out string
	var normalization string
	var exclude []string
	var zscore bool
	var massNormalize bool

	cmd := &cobra.Command{
		Use:   "preprocess [export]",
		Short: "Clean a raw peak export into an analysis-ready table",
		Long: `Read a wide instrument export (one row per peak, one intensity column per sample),
purge blank-level signal and isotopes, fill and normalise intensities and write the
analysis-ready table: sample id, peaks, tissue, age.

Example: metabostat preprocess export.xlsx --meta animals.csv --out lipids.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := env.cfg.Preprocess
			if normalization != "" {
				opts.Normalization = preprocess.Normalization(strings.ToLower(normalization))
			}
			if len(exclude) > 0 {
				opts.Exclude = exclude
			}
			if cmd.Flags().Changed("zscore") {
				opts.ZScore = zscore
			}
			if cmd.Flags().Changed("mass-normalize") {
				opts.MassNormalize = massNormalize
			}

			res, err := env.service.Preprocess(cmd.Context(), app.PreprocessRequest{
				ExportPath:   args[0],
				MetadataPath: meta,
				Options:      opts,
			})
			if err != nil {
				return errors.Wrapf(err, "preprocess %s", args[0])
			}

			w, closeFn, err := openOutput(cmd.OutOrStdout(), out)
			if err != nil {
				return err
			}
			defer closeFn()
			if err := excel.WriteDatasetCSV(w, res.Dataset); err != nil {
				return errors.IOError(out, err)
			}
			env.logger.Info("wrote %d samples x %d peaks", res.Dataset.RowCount(), len(res.Dataset.PeakNames()))
			return nil
		},
	}

	cmd.Flags().StringVar(&meta, "meta", "", "animal metadata sheet with id, age and tissue mass columns")
	cmd.Flags().StringVar(&out, "out", "", "output CSV (default: stdout)")
	cmd.Flags().StringVar(&normalization, "normalization", "", "none|percentile|standard (default: configured)")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "sample columns or animal ids to drop")
	cmd.Flags().BoolVar(&zscore, "zscore", false, "z-score every peak across samples")
	cmd.Flags().BoolVar(&massNormalize, "mass-normalize", false, "divide intensities by tissue mass from --meta")
	return cmd
}

func resolveMode(cmd *cobra.Command, interaction string) (stats.InteractionMode, error) {
	if !cmd.Flags().Changed("interaction") {
		return env.cfg.Analysis.Interaction, nil
	}
	return stats.ParseInteractionMode(interaction)
}

func resolveVars(vars []string) []string {
	if len(vars) == 0 {
		return env.cfg.Analysis.Variables
	}
	return vars
}

func outputFormat(format, out string) string {
	if format != "" {
		return strings.ToLower(format)
	}
	switch strings.ToLower(filepath.Ext(out)) {
	case ".json":
		return "json"
	case ".xlsx":
		return "xlsx"
	}
	return "csv"
}

func writeAnalysis(stdout io.Writer, out, format string, res *app.AnalyzeResult) error {
	if format == "xlsx" {
		if out == "" {
			return errors.InvalidInput("xlsx output needs --out")
		}
		if err := excel.WriteResultXLSX(out, res.Raw, res.Corrected); err != nil {
			return errors.IOError(out, err)
		}
		return nil
	}

	w, closeFn, err := openOutput(stdout, out)
	if err != nil {
		return err
	}
	defer closeFn()

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		err = enc.Encode(res)
	case "csv":
		err = excel.WriteSignificantCSV(w, res.Corrected)
	default:
		return errors.InvalidInput(fmt.Sprintf("unknown output format %q", format))
	}
	if err != nil {
		return errors.IOError(out, err)
	}
	return nil
}

func openOutput(stdout io.Writer, path string) (io.Writer, func(), error) {
	if path == "" {
		return stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, errors.IOError(path, err)
	}
	return f, func() { f.Close() }, nil
}
