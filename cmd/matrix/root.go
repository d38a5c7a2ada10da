// Package matrix implements the benchmark matrix commands.
//
// validate checks the structure of a matrix document and applies the approval
// gate; evaluate additionally compares measured results with the budgets of
// every case. Both exit non-zero when the gate fails, evaluate also when
// enforced thresholds are exceeded.
package matrix

import (
	"fmt"

	"github.com/ValentinKolb/dVol/cmd/util"
	"github.com/ValentinKolb/dVol/lib/matrix"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// MatrixCommands is the parent of all matrix commands
	MatrixCommands = &cobra.Command{
		Use:               "matrix",
		Short:             "Validate benchmark matrices and evaluate results",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return util.BindCommandFlags(cmd) },
	}

	validateCmd = &cobra.Command{
		Use:   "validate [flags] <matrix.(json|yaml)>",
		Short: "Validate a benchmark matrix and apply the approval gate",
		Args:  cobra.ExactArgs(1),
		RunE:  runValidate,
	}

	evaluateCmd = &cobra.Command{
		Use:   "evaluate [flags] <matrix.(json|yaml)>",
		Short: "Compare benchmark results with the budgets of a matrix",
		Long: `Compare benchmark results with the budgets of a matrix. The results
file holds a list of {case, stepMs, scale1Requests} objects. Violations are
only fatal with --enforce-thresholds, and enforcing requires an approved
matrix unless --allow-unapproved-matrix is set.`,
		Args: cobra.ExactArgs(1),
		RunE: runEvaluate,
	}
)

func init() {
	key := "enforce-thresholds"
	MatrixCommands.PersistentFlags().Bool(key, false, util.WrapString("Fail when a budget is exceeded. Requires an approved matrix"))

	key = "allow-unapproved-matrix"
	MatrixCommands.PersistentFlags().Bool(key, false, util.WrapString("Allow threshold enforcement on a matrix that is not approved"))

	key = "results"
	evaluateCmd.Flags().String(key, "results.json", util.WrapString("Path of the benchmark results (JSON or YAML)"))

	MatrixCommands.AddCommand(validateCmd)
	MatrixCommands.AddCommand(evaluateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := matrix.Load(args[0])
	if err != nil {
		return err
	}
	if err := matrix.AssertApprovedForThresholdEnforcement(cfg,
		viper.GetBool("enforce-thresholds"), viper.GetBool("allow-unapproved-matrix")); err != nil {
		return err
	}
	fmt.Println(cfg)
	return nil
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	cfg, err := matrix.Load(args[0])
	if err != nil {
		return err
	}
	results, err := matrix.LoadResults(viper.GetString("results"))
	if err != nil {
		return err
	}

	violations := matrix.Evaluate(cfg, results)
	for _, v := range violations {
		fmt.Printf("%-20s %s\n", v.Case, v)
	}
	if err := matrix.Enforce(cfg, violations,
		viper.GetBool("enforce-thresholds"), viper.GetBool("allow-unapproved-matrix")); err != nil {
		return err
	}
	fmt.Printf("%d cases, %d violations\n", len(cfg.Cases), len(violations))
	return nil
}
