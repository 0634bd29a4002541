package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/volley/internal/bench/campaign"
	"github.com/wesleyorama2/volley/internal/bench/compare"
	"github.com/wesleyorama2/volley/internal/bench/report"
	"github.com/wesleyorama2/volley/internal/output"
)

func newCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare BASELINE.json CANDIDATE.json",
		Short: "Compare two saved reports target by target",
		Long: `Compare every target of CANDIDATE with the target of the same id in BASELINE.

A target regresses when its key percentile grows by more than the threshold.
The command exits with status 1 if any target regressed.`,
		Args: cobra.ExactArgs(2),
		RunE: runCompare,
	}

	cmd.Flags().Float64("threshold", compare.DefaultThreshold, "Relative increase of the key percentile that counts as a regression")
	cmd.Flags().Float64("key-percentile", compare.DefaultKeyPercentile, "Percentile used for the regression verdict")
	cmd.Flags().Float64("alpha", compare.DefaultAlpha, "Significance level of the mean comparison")
	cmd.Flags().Bool("json", false, "Output the comparisons as JSON")
	cmd.Flags().BoolP("quiet", "q", false, "Print only the verdict")
	cmd.Flags().String("unit", "", "Duration unit: ns, us, ms or s")
	return cmd
}

// comparisonOutput is the JSON document written by `compare --json`.
type comparisonOutput struct {
	Baseline    string            `json:"baseline"`
	Candidate   string            `json:"candidate"`
	Comparisons []*compare.Result `json:"comparisons"`
	Notes       []string          `json:"notes"`
	Regressed   bool              `json:"regressed"`
}

func runCompare(cmd *cobra.Command, args []string) error {
	threshold, _ := cmd.Flags().GetFloat64("threshold")
	keyPercentile, _ := cmd.Flags().GetFloat64("key-percentile")
	alpha, _ := cmd.Flags().GetFloat64("alpha")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	quiet, _ := cmd.Flags().GetBool("quiet")
	noColor, _ := cmd.Flags().GetBool("no-color")
	unitFlag, _ := cmd.Flags().GetString("unit")

	unit, err := output.ParseUnit(unitFlag)
	if err != nil {
		return err
	}

	opts := compare.Options{
		Threshold:     threshold,
		KeyPercentile: keyPercentile,
		Alpha:         alpha,
	}
	if err := opts.Validate(); err != nil {
		return err
	}

	baseline, err := report.Load(args[0])
	if err != nil {
		return fmt.Errorf("error loading baseline: %w", err)
	}
	candidate, err := report.Load(args[1])
	if err != nil {
		return fmt.Errorf("error loading candidate: %w", err)
	}

	results, notes := campaign.CompareReports(baseline, candidate, opts)
	regressed := false
	for _, r := range results {
		regressed = regressed || r.Regressed
	}

	if jsonOutput {
		doc := comparisonOutput{
			Baseline:    args[0],
			Candidate:   args[1],
			Comparisons: results,
			Notes:       notes,
			Regressed:   regressed,
		}
		if doc.Comparisons == nil {
			doc.Comparisons = []*compare.Result{}
		}
		if doc.Notes == nil {
			doc.Notes = []string{}
		}
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return fmt.Errorf("error encoding comparisons: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
	} else {
		console := output.NewConsole(output.ConsoleConfig{
			Writer:  cmd.OutOrStdout(),
			Quiet:   quiet,
			NoColor: noColor,
			Unit:    unit,
		})
		if err := console.PrintComparisons(results, notes); err != nil {
			return err
		}
	}

	if regressed {
		return ErrCheckFailed
	}
	return nil
}
